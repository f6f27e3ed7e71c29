package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// Setting classifies a POI as indoor, outdoor, or mixed.
type Setting string

const (
	SettingIndoor  Setting = "indoor"
	SettingOutdoor Setting = "outdoor"
	SettingMixed   Setting = "mixed"
	SettingUnknown Setting = "unknown"
)

// ParseSetting maps a record value to a Setting, defaulting to unknown.
func ParseSetting(s string) Setting {
	switch Setting(strings.ToLower(strings.TrimSpace(s))) {
	case SettingIndoor, SettingOutdoor, SettingMixed:
		return Setting(strings.ToLower(strings.TrimSpace(s)))
	default:
		return SettingUnknown
	}
}

// GeoPoint is a collected coordinate with provenance.
type GeoPoint struct {
	Lat         float64   `yaml:"lat" json:"lat"`
	Lon         float64   `yaml:"lon" json:"lon"`
	Source      string    `yaml:"source,omitempty" json:"source,omitempty"` // api, geocoder, manual
	CollectedAt time.Time `yaml:"collected_at,omitempty" json:"collected_at,omitempty"`
}

// Point returns the orb representation (lon, lat order).
func (g *GeoPoint) Point() orb.Point {
	return orb.Point{g.Lon, g.Lat}
}

// Valid reports whether the coordinate is inside the WGS84 envelope.
func (g *GeoPoint) Valid() bool {
	return g != nil && g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// HHMM is a local time of day stored on disk as a 4-digit string ("0930").
type HHMM int

// Hour and Minute split the value.
func (h HHMM) Hour() int   { return int(h) / 100 }
func (h HHMM) Minute() int { return int(h) % 100 }

// FromMinutes converts minutes since midnight to HHMM.
func FromMinutes(m int) HHMM {
	return HHMM((m/60)*100 + m%60)
}

// Minutes returns minutes since midnight.
func (h HHMM) Minutes() int {
	return h.Hour()*60 + h.Minute()
}

func (h HHMM) String() string { return fmt.Sprintf("%04d", int(h)) }

// MarshalYAML emits the 4-digit string form.
func (h HHMM) MarshalYAML() (any, error) { return h.String(), nil }

// UnmarshalYAML accepts "0930", 930, or 0930.
func (h *HHMM) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err != nil {
			return fmt.Errorf("invalid hhmm %q: %w", v, err)
		}
		*h = HHMM(n)
	case int:
		*h = HHMM(v)
	case float64:
		*h = HHMM(int(v))
	default:
		return fmt.Errorf("invalid hhmm value %v", raw)
	}
	return nil
}

// MarshalJSON emits the 4-digit string form.
func (h HHMM) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON accepts both string and numeric forms for forward compatibility.
func (h *HHMM) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return fmt.Errorf("invalid hhmm %q: %w", s, err)
	}
	*h = HHMM(n)
	return nil
}

// OpeningPeriod is one (day-of-week, open, close) admission window.
// Day 0 = Sunday.
type OpeningPeriod struct {
	Day   int  `yaml:"day_of_week" json:"day_of_week"`
	Open  HHMM `yaml:"open" json:"open"`
	Close HHMM `yaml:"close" json:"close"`
}

// OpeningHours owns the ordered period list for a POI.
type OpeningHours struct {
	Periods []OpeningPeriod `yaml:"periods" json:"periods"`
}

// OpenAt reports whether some period for dow contains t.
func (o *OpeningHours) OpenAt(dow int, t HHMM) bool {
	if o == nil {
		return true // no data means never forbidden
	}
	for _, p := range o.Periods {
		if p.Day == dow && p.Open <= t && t <= p.Close {
			return true
		}
	}
	return false
}

// HasDay reports whether any period exists for the given weekday.
func (o *OpeningHours) HasDay(dow int) bool {
	if o == nil {
		return true
	}
	for _, p := range o.Periods {
		if p.Day == dow {
			return true
		}
	}
	return false
}

// BookingSlot is a preferred reservation window.
type BookingSlot struct {
	Start HHMM `yaml:"start" json:"start"`
	End   HHMM `yaml:"end" json:"end"`
}

// BookingInfo describes reservation requirements for a POI.
type BookingInfo struct {
	Required       bool          `yaml:"required" json:"required"`
	AdvanceDays    int           `yaml:"advance_days,omitempty" json:"advance_days,omitempty"`
	PreferredSlots []BookingSlot `yaml:"preferred_slots,omitempty" json:"preferred_slots,omitempty"`
	URL            string        `yaml:"url,omitempty" json:"url,omitempty"`
}

// InPreferredSlot reports whether t falls in at least one preferred slot.
// A booking with no slots accepts any time.
func (b *BookingInfo) InPreferredSlot(t HHMM) bool {
	if b == nil || len(b.PreferredSlots) == 0 {
		return true
	}
	for _, s := range b.PreferredSlots {
		if s.Start <= t && t <= s.End {
			return true
		}
	}
	return false
}

// POI is a visitable entity loaded from the on-disk catalog.
// The planner treats POI records as read-only.
type POI struct {
	Slug string `yaml:"slug" json:"slug"`
	Name string `yaml:"name" json:"name"`
	City string `yaml:"city" json:"city"`

	Location *GeoPoint `yaml:"location,omitempty" json:"location,omitempty"`

	// Visit planning data
	DurationMinutes int           `yaml:"duration_minutes,omitempty" json:"duration_minutes,omitempty"`
	Setting         Setting       `yaml:"setting,omitempty" json:"setting,omitempty"`
	OpeningHours    *OpeningHours `yaml:"opening_hours,omitempty" json:"opening_hours,omitempty"`
	Booking         *BookingInfo  `yaml:"booking,omitempty" json:"booking,omitempty"`
	ComboTicketIDs  []string      `yaml:"combo_tickets,omitempty" json:"combo_tickets,omitempty"`

	// Optional descriptive data
	Address          string   `yaml:"address,omitempty" json:"address,omitempty"`
	Phone            string   `yaml:"phone,omitempty" json:"phone,omitempty"`
	Website          string   `yaml:"website,omitempty" json:"website,omitempty"`
	Rating           float64  `yaml:"rating,omitempty" json:"rating,omitempty"`
	Wheelchair       *bool    `yaml:"wheelchair_accessible,omitempty" json:"wheelchair_accessible,omitempty"`
	Category         string   `yaml:"category,omitempty" json:"category,omitempty"`
	Period           string   `yaml:"historical_period,omitempty" json:"historical_period,omitempty"`
	ConstructionDate string   `yaml:"construction_date,omitempty" json:"construction_date,omitempty"`
	MustVisitAfter   []string `yaml:"must_visit_after,omitempty" json:"must_visit_after,omitempty"`

	// Enriched view, not persisted with the record.
	Combos []*ComboGroup `yaml:"-" json:"-"`
}

// DefaultVisitMinutes is assumed when a record has no duration.
const DefaultVisitMinutes = 120

// VisitMinutes returns the estimated visit duration.
func (p *POI) VisitMinutes() int {
	if p.DurationMinutes > 0 {
		return p.DurationMinutes
	}
	return DefaultVisitMinutes
}

// VisitHours returns the estimated visit duration in hours.
func (p *POI) VisitHours() float64 {
	return float64(p.VisitMinutes()) / 60.0
}

// Slugify produces the stable lowercase-hyphenated identity for a name.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
