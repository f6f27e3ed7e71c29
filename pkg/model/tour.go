package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SolverStatus reports how a tour's sequence was produced.
type SolverStatus string

const (
	StatusOptimal        SolverStatus = "OPTIMAL"
	StatusFeasible       SolverStatus = "FEASIBLE"
	StatusInfeasible     SolverStatus = "INFEASIBLE"
	StatusGreedyFallback SolverStatus = "greedy_fallback"
)

// SolverStats captures the solve of the constraint model.
type SolverStats struct {
	Status           SolverStatus `json:"status"`
	SolveTimeSeconds float64      `json:"solve_time_seconds"`
	ObjectiveValue   float64      `json:"objective_value"`
}

// Scores are the post-hoc quality scores of an itinerary, rounded to 2 decimals.
type Scores struct {
	DistanceScore   float64 `json:"distance_score"`
	CoherenceScore  float64 `json:"coherence_score"`
	OverallScore    float64 `json:"overall_score"`
	TotalDistanceKm float64 `json:"total_distance_km"`
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Rounded returns a copy with every field rounded to 2 decimals.
func (s Scores) Rounded() Scores {
	return Scores{
		DistanceScore:   Round2(s.DistanceScore),
		CoherenceScore:  Round2(s.CoherenceScore),
		OverallScore:    Round2(s.OverallScore),
		TotalDistanceKm: Round2(s.TotalDistanceKm),
	}
}

// Visit is one POI assignment inside a day.
type Visit struct {
	POI            string  `json:"poi"`
	Slug           string  `json:"slug"`
	EstimatedHours float64 `json:"estimated_hours"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	// Walking leg to the next visit; zero on the last visit of a day.
	WalkToNextKm      float64 `json:"walk_to_next_km"`
	WalkToNextMinutes float64 `json:"walk_to_next_minutes"`
}

// Day is one ordered day of the itinerary, numbered from 1.
type Day struct {
	Number int     `json:"day"`
	Visits []Visit `json:"visits"`
}

// BackupCandidate is an alternative that can substitute a starting POI.
type BackupCandidate struct {
	POI             string  `json:"poi"`
	SimilarityScore float64 `json:"similarity_score"`
	Reason          string  `json:"reason"`
}

// Rejection records why a candidate POI was left out.
type Rejection struct {
	POI    string `json:"poi"`
	Reason string `json:"reason"`
}

// DistanceEntry is one cached pair bundled with the tour so replacements
// don't re-query the provider for known pairs.
type DistanceEntry struct {
	Origin          string  `json:"origin_id"`
	Dest            string  `json:"dest_id"`
	Mode            string  `json:"mode"`
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
}

// Tour is one planning artifact for a single language.
type Tour struct {
	ID       string `json:"id"`
	City     string `json:"city"`
	Language string `json:"language"`
	Version  int    `json:"version"`

	Days        []Day                        `json:"days"`
	Scores      Scores                       `json:"scores"`
	BackupPOIs  map[string][]BackupCandidate `json:"backup_pois,omitempty"`
	Rejected    []Rejection                  `json:"rejected_pois,omitempty"`
	Params      PlanParams                   `json:"input_parameters"`
	SolverStats *SolverStats                 `json:"solver_stats,omitempty"`
	Distances   []DistanceEntry              `json:"distance_cache,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// POINames returns every POI name across all days in visit order.
func (t *Tour) POINames() []string {
	var names []string
	for _, d := range t.Days {
		for _, v := range d.Visits {
			names = append(names, v.POI)
		}
	}
	return names
}

// FindVisit locates a POI in the itinerary, returning day number and
// position, or (0, -1) when absent.
func (t *Tour) FindVisit(poi string) (day, pos int) {
	for _, d := range t.Days {
		for i, v := range d.Visits {
			if strings.EqualFold(v.POI, poi) {
				return d.Number, i
			}
		}
	}
	return 0, -1
}

// TranscriptType distinguishes standard from user-customized transcripts.
type TranscriptType string

const (
	TranscriptStandard TranscriptType = "standard"
	TranscriptCustom   TranscriptType = "custom"
)

// TranscriptLink references a transcript by path and version; the tour
// never owns transcript content.
type TranscriptLink struct {
	POI               string         `json:"poi"`
	POIID             string         `json:"poi_id"`
	TranscriptPath    string         `json:"transcript_path"`
	TranscriptVersion int            `json:"transcript_version"`
	TranscriptType    TranscriptType `json:"transcript_type"`
	LinkedAt          time.Time      `json:"linked_at"`
}

// NewTourID builds the world-unique tour identity
// <city-slug>-tour-<yyyymmdd>-<hhmmss>-<6-hex>.
func NewTourID(city string, now time.Time) string {
	hexPart := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-tour-%s-%s-%s",
		Slugify(city), now.Format("20060102"), now.Format("150405"), hexPart)
}
