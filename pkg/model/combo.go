package model

import "strings"

// ComboTicketType tags how a combo admission couples its members.
type ComboTicketType string

const (
	ComboSameDayConsecutive ComboTicketType = "same_day_consecutive"
	ComboSameDayAnyOrder    ComboTicketType = "same_day_any_order"
	ComboMultiDay           ComboTicketType = "multi_day"
	ComboSameDayClustered   ComboTicketType = "same_day_clustered"
)

// VisitOrder constrains the ordering of combo members.
type VisitOrder string

const (
	OrderFixed         VisitOrder = "fixed"
	OrderFlexible      VisitOrder = "flexible"
	OrderChronological VisitOrder = "chronological"
)

// ComboConstraints is the constraint block of a combo-ticket group.
type ComboConstraints struct {
	MustVisitTogether  bool            `yaml:"must_visit_together" json:"must_visit_together"`
	MaxSeparationHours float64         `yaml:"max_separation_hours,omitempty" json:"max_separation_hours,omitempty"`
	VisitOrder         VisitOrder      `yaml:"visit_order,omitempty" json:"visit_order,omitempty"`
	SameDayRequired    bool            `yaml:"same_day_required" json:"same_day_required"`
	TicketType         ComboTicketType `yaml:"ticket_type,omitempty" json:"ticket_type,omitempty"`
}

// ComboGroup is a city-level combo-ticket record coupling 2..10 POIs.
type ComboGroup struct {
	ID          string           `yaml:"id" json:"id"`
	City        string           `yaml:"city" json:"city"`
	Members     []string         `yaml:"members" json:"members"`
	Constraints ComboConstraints `yaml:"constraints" json:"constraints"`
}

// HasMember reports membership by POI name (case-insensitive).
func (g *ComboGroup) HasMember(name string) bool {
	for _, m := range g.Members {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}
