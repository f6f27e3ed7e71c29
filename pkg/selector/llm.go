package selector

import (
	"context"
	"fmt"
	"strings"

	"wayfarer/pkg/catalog"
	"wayfarer/pkg/llm"
	"wayfarer/pkg/model"
)

// LLMSelector delegates the selection decision to a language model.
type LLMSelector struct {
	provider llm.Provider
}

// NewLLMSelector creates a Selector backed by the given provider.
func NewLLMSelector(provider llm.Provider) *LLMSelector {
	return &LLMSelector{provider: provider}
}

// Select builds a catalog summary prompt and asks for a structured decision.
func (s *LLMSelector) Select(ctx context.Context, cat *catalog.Catalog, params model.PlanParams) (*model.SelectionDecision, error) {
	var decision model.SelectionDecision
	if err := s.provider.GenerateJSON(ctx, "poi-selection", buildPrompt(cat, params), &decision); err != nil {
		return nil, fmt.Errorf("selection generation failed: %w", err)
	}
	return &decision, nil
}

func buildPrompt(cat *catalog.Catalog, params model.PlanParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are planning a %d-day walking tour of %s.\n", params.Days, params.City)
	fmt.Fprintf(&b, "Pace: %s (up to %.1f sightseeing hours per day). Walking tolerance: %s. Indoor/outdoor preference: %s.\n",
		params.Pace, params.Pace.HoursPerDay(), params.WalkingTolerance, params.IndoorOutdoor)
	if len(params.Interests) > 0 {
		fmt.Fprintf(&b, "Traveler interests: %s.\n", strings.Join(params.Interests, ", "))
	}
	if len(params.MustSee) > 0 {
		fmt.Fprintf(&b, "Must include: %s.\n", strings.Join(params.MustSee, ", "))
	}
	if len(params.Avoid) > 0 {
		fmt.Fprintf(&b, "Avoid: %s.\n", strings.Join(params.Avoid, ", "))
	}

	b.WriteString("\nAvailable POIs (name | category | period | visit hours | rating):\n")
	for _, p := range cat.List() {
		fmt.Fprintf(&b, "- %s | %s | %s | %.1f | %.1f\n",
			p.Name, orDash(p.Category), orDash(p.Period), p.VisitHours(), p.Rating)
	}

	b.WriteString(`
Choose a starting set of 8-12 POIs (fewer for short trips) whose total visit
hours fit the trip, honoring the must-include list. For each starting POI give
2-3 backup alternatives from the same list (similar category, period, or
nearby), each with a similarity_score between 0.6 and 1.0 and a short reason.
List every remaining POI under rejected_pois with a reason.

Respond with JSON only:
{
  "starting_pois": ["..."],
  "backup_pois": {"<starting poi>": [{"poi": "...", "similarity_score": 0.8, "reason": "..."}]},
  "rejected_pois": [{"poi": "...", "reason": "..."}],
  "reasoning_summary": "..."
}
`)
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
