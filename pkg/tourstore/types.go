package tourstore

import (
	"fmt"
	"time"

	"wayfarer/pkg/model"
)

// VersionEntry is one row of a language's append-only version history.
type VersionEntry struct {
	Version              int       `json:"version"`
	VersionString        string    `json:"version_string"`
	Timestamp            time.Time `json:"timestamp"`
	ParamsHash           string    `json:"params_hash"`
	OverallScore         float64   `json:"overall_score"`
	ConstraintViolations int       `json:"constraint_violations"`
	User                 string    `json:"user,omitempty"`
}

// LanguageState tracks the current pointer and history for one language.
type LanguageState struct {
	CurrentVersion int            `json:"current_version"`
	VersionHistory []VersionEntry `json:"version_history"`
}

// Metadata is the per-tour identity document.
type Metadata struct {
	ID        string                    `json:"id"`
	City      string                    `json:"city"`
	Languages map[string]*LanguageState `json:"languages"`
	CreatedBy string                    `json:"created_by,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// GenerationRecord captures everything that went into producing one version:
// the exact inputs, the selection decision, and the outcome.
type GenerationRecord struct {
	Version              int                      `json:"version"`
	VersionString        string                   `json:"version_string"`
	Language             string                   `json:"language"`
	Params               model.PlanParams         `json:"input_parameters"`
	ParamsHash           string                   `json:"params_hash"`
	Scores               model.Scores             `json:"scores"`
	SolverStats          *model.SolverStats       `json:"solver_stats,omitempty"`
	ConstraintViolations int                      `json:"constraint_violations"`
	Selection            *model.SelectionDecision `json:"selection,omitempty"`
	CreatedAt            time.Time                `json:"created_at"`
}

// LanguageSummary is the per-language slice of a listing row.
type LanguageSummary struct {
	CurrentVersion int       `json:"current_version"`
	VersionString  string    `json:"version_string"`
	UpdatedAt      time.Time `json:"updated_at"`
	OverallScore   float64   `json:"overall_score"`
}

// Summary is one row of the tour listing.
type Summary struct {
	ID        string                     `json:"id"`
	City      string                     `json:"city"`
	Languages map[string]LanguageSummary `json:"languages"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// versionString builds the canonical v<N>_<ISO-date> tag.
func versionString(n int, now time.Time) string {
	return fmt.Sprintf("v%d_%s", n, now.Format("2006-01-02"))
}
