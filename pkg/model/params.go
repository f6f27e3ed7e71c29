package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Pace is the requested visiting intensity.
type Pace string

const (
	PaceRelaxed Pace = "relaxed"
	PaceNormal  Pace = "normal"
	PacePacked  Pace = "packed"
)

// HoursPerDay returns the sightseeing-hour budget for the pace.
func (p Pace) HoursPerDay() float64 {
	switch p {
	case PaceRelaxed:
		return 6
	case PacePacked:
		return 9
	default:
		return 7.5
	}
}

// Valid reports whether the pace is a known value.
func (p Pace) Valid() bool {
	return p == PaceRelaxed || p == PaceNormal || p == PacePacked
}

// WalkingTolerance is the user's declared appetite for walking.
type WalkingTolerance string

const (
	WalkingLow      WalkingTolerance = "low"
	WalkingModerate WalkingTolerance = "moderate"
	WalkingHigh     WalkingTolerance = "high"
)

// Valid reports whether the tolerance is a known value.
func (w WalkingTolerance) Valid() bool {
	return w == WalkingLow || w == WalkingModerate || w == WalkingHigh
}

// IndoorOutdoor is the indoor/outdoor preference.
type IndoorOutdoor string

const (
	PreferIndoor   IndoorOutdoor = "indoor"
	PreferOutdoor  IndoorOutdoor = "outdoor"
	PreferBalanced IndoorOutdoor = "balanced"
)

// PlanMode selects the sequencing backend.
type PlanMode string

const (
	// ModeSimple uses only the greedy sequencer.
	ModeSimple PlanMode = "simple"
	// ModeILP runs the constraint model with greedy warm start and fallback.
	ModeILP PlanMode = "ilp"
)

// Valid reports whether the mode is recognized.
func (m PlanMode) Valid() bool {
	return m == ModeSimple || m == ModeILP
}

// Date is a calendar day marshalled as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format("2006-01-02") }

// MarshalJSON emits YYYY-MM-DD.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses YYYY-MM-DD; empty means unset.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AddDays returns the date shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

// Weekday0Sunday returns the day of week with Sunday = 0,
// matching the opening-period convention.
func (d Date) Weekday0Sunday() int {
	return int(d.Weekday())
}

// PlanParams is the exact planning call that produced a tour.
type PlanParams struct {
	City             string           `json:"city"`
	Days             int              `json:"days"`
	Interests        []string         `json:"interests,omitempty"`
	Pace             Pace             `json:"pace"`
	WalkingTolerance WalkingTolerance `json:"walking_tolerance"`
	IndoorOutdoor    IndoorOutdoor    `json:"indoor_outdoor,omitempty"`
	MustSee          []string         `json:"must_see,omitempty"`
	Avoid            []string         `json:"avoid,omitempty"`
	Mode             PlanMode         `json:"mode"`
	StartLocation    string           `json:"start_location,omitempty"`
	EndLocation      string           `json:"end_location,omitempty"`
	StartDate        Date             `json:"start_date,omitempty"`
	Language         string           `json:"language"`
}

// Normalize fills defaults so hashes stay stable across equivalent calls.
func (p *PlanParams) Normalize() {
	if p.Pace == "" {
		p.Pace = PaceNormal
	}
	if p.WalkingTolerance == "" {
		p.WalkingTolerance = WalkingModerate
	}
	if p.IndoorOutdoor == "" {
		p.IndoorOutdoor = PreferBalanced
	}
	if p.Mode == "" {
		p.Mode = ModeILP
	}
	if p.Language == "" {
		p.Language = "en"
	}
}

// Hash returns a stable SHA-256 over the canonical JSON encoding,
// used by the tour store for change detection.
func (p PlanParams) Hash() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
