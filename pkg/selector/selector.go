// Package selector chooses the starting POI set for a trip, with ranked
// backups per starting POI and rejection reasons for everything left out.
//
// The choice itself is delegated to a Selector port (LLM-backed by default);
// the Service validates whatever comes back against the catalog and enforces
// the structural guarantees callers rely on.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"wayfarer/pkg/catalog"
	"wayfarer/pkg/model"
)

// Selector proposes a selection decision for a trip.
type Selector interface {
	Select(ctx context.Context, cat *catalog.Catalog, params model.PlanParams) (*model.SelectionDecision, error)
}

const (
	maxStartingSet = 12
	maxBackups     = 3
)

// Service wraps a Selector port with catalog validation.
type Service struct {
	port Selector
}

// NewService creates a validated selector around the given port.
func NewService(port Selector) *Service {
	return &Service{port: port}
}

// Select runs the port and normalizes its decision:
// unknown names are dropped with a warning, must-see POIs are reinserted,
// backups are checked for similarity and trimmed, the starting set is capped
// by the trip's hour budget, and the decision is extended to cover every
// catalog POI.
func (s *Service) Select(ctx context.Context, cat *catalog.Catalog, params model.PlanParams) (*model.SelectionDecision, error) {
	raw, err := s.port.Select(ctx, cat, params)
	if err != nil {
		return nil, fmt.Errorf("selector port failed: %w", err)
	}
	return validate(raw, cat, params), nil
}

func validate(d *model.SelectionDecision, cat *catalog.Catalog, params model.PlanParams) *model.SelectionDecision {
	out := &model.SelectionDecision{
		BackupPOIs:       make(map[string][]model.BackupCandidate),
		ReasoningSummary: d.ReasoningSummary,
	}

	// Keep only starting names the catalog resolves, canonicalized to the
	// catalog's display names, deduped in order.
	seen := make(map[string]bool)
	for _, name := range d.StartingPOIs {
		p, ok := cat.GetByName(name)
		if !ok {
			slog.Warn("selector returned unknown starting POI, dropping", "poi", name)
			continue
		}
		if seen[p.Slug] {
			continue
		}
		seen[p.Slug] = true
		out.StartingPOIs = append(out.StartingPOIs, p.Name)
	}

	// Must-see POIs present in the catalog always make the starting set.
	for _, name := range params.MustSee {
		p, ok := cat.GetByName(name)
		if !ok {
			slog.Warn("must-see POI not in catalog", "poi", name, "city", params.City)
			continue
		}
		if !seen[p.Slug] {
			slog.Warn("selector dropped must-see POI, reinserting", "poi", p.Name)
			seen[p.Slug] = true
			out.StartingPOIs = append(out.StartingPOIs, p.Name)
		}
	}

	out.StartingPOIs = capByBudget(out.StartingPOIs, cat, params, &out.RejectedPOIs)

	starting := make(map[string]bool)
	for _, name := range out.StartingPOIs {
		starting[name] = true
	}

	// Validate backups for the surviving starting set. A starting POI losing
	// all its backups keeps an empty list, never fails.
	for _, name := range out.StartingPOIs {
		primary, _ := cat.GetByName(name)
		var kept []model.BackupCandidate
		for _, b := range d.BackupPOIs[name] {
			cand, ok := cat.GetByName(b.POI)
			if !ok {
				slog.Warn("selector returned unknown backup POI, dropping", "backup", b.POI, "for", name)
				continue
			}
			if cand.Name == name || starting[cand.Name] {
				continue
			}
			if !Similar(primary, cand) {
				slog.Warn("backup fails similarity rules, dropping", "backup", cand.Name, "for", name)
				continue
			}
			b.POI = cand.Name
			b.SimilarityScore = clampSimilarity(b.SimilarityScore)
			kept = append(kept, b)
			if len(kept) == maxBackups {
				break
			}
		}
		out.BackupPOIs[name] = kept
	}

	// Rejections: keep known names, then extend coverage to every catalog
	// POI not otherwise placed.
	placed := make(map[string]bool)
	for _, name := range out.StartingPOIs {
		placed[name] = true
	}
	for _, backups := range out.BackupPOIs {
		for _, b := range backups {
			placed[b.POI] = true
		}
	}
	for _, r := range d.RejectedPOIs {
		p, ok := cat.GetByName(r.POI)
		if !ok || placed[p.Name] {
			continue
		}
		placed[p.Name] = true
		out.RejectedPOIs = append(out.RejectedPOIs, model.Rejection{POI: p.Name, Reason: r.Reason})
	}
	for _, p := range cat.List() {
		if !placed[p.Name] {
			out.RejectedPOIs = append(out.RejectedPOIs, model.Rejection{
				POI: p.Name, Reason: "not selected for this trip",
			})
		}
	}

	sort.Slice(out.RejectedPOIs, func(i, j int) bool {
		return out.RejectedPOIs[i].POI < out.RejectedPOIs[j].POI
	})
	return out
}

// capByBudget trims the starting set so total estimated hours fit the trip,
// never removing must-see POIs. Trimmed POIs become rejections.
func capByBudget(names []string, cat *catalog.Catalog, params model.PlanParams, rejected *[]model.Rejection) []string {
	budget := float64(params.Days) * params.Pace.HoursPerDay()

	mustSee := make(map[string]bool)
	for _, name := range params.MustSee {
		if p, ok := cat.GetByName(name); ok {
			mustSee[p.Name] = true
		}
	}

	var kept []string
	var total float64
	var overflow []string
	for _, name := range names {
		p, _ := cat.GetByName(name)
		h := p.VisitHours()
		if len(kept) >= maxStartingSet || (total+h > budget && !mustSee[name] && len(kept) > 0) {
			overflow = append(overflow, name)
			continue
		}
		kept = append(kept, name)
		total += h
	}
	for _, name := range overflow {
		slog.Warn("starting POI trimmed to fit trip budget", "poi", name, "budget_hours", budget)
		*rejected = append(*rejected, model.Rejection{
			POI:    name,
			Reason: fmt.Sprintf("does not fit the %d-day %s-pace budget", params.Days, params.Pace),
		})
	}
	return kept
}

func clampSimilarity(s float64) float64 {
	if s < 0.6 {
		return 0.6
	}
	if s > 1.0 {
		return 1.0
	}
	return s
}

// Similar reports whether cand is an acceptable backup for primary: same
// category, same historical period, or within walking reach.
func Similar(primary, cand *model.POI) bool {
	if primary == nil || cand == nil {
		return false
	}
	if primary.Category != "" && strings.EqualFold(primary.Category, cand.Category) {
		return true
	}
	if primary.Period != "" && strings.EqualFold(primary.Period, cand.Period) {
		return true
	}
	return WithinBackupRange(primary.Location, cand.Location)
}
