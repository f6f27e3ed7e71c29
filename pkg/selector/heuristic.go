package selector

import (
	"context"
	"sort"
	"strings"

	"wayfarer/pkg/catalog"
	"wayfarer/pkg/model"
)

// HeuristicSelector is a deterministic rule-based Selector. It serves as the
// offline fallback when no LLM is configured and as the test double.
type HeuristicSelector struct{}

// NewHeuristicSelector creates the rule-based selector.
func NewHeuristicSelector() *HeuristicSelector { return &HeuristicSelector{} }

// Select ranks POIs by interest match, rating, and name, takes must-see plus
// the best of the rest up to the trip budget, and derives backups from
// category, period, and proximity.
func (s *HeuristicSelector) Select(ctx context.Context, cat *catalog.Catalog, params model.PlanParams) (*model.SelectionDecision, error) {
	avoid := nameSet(params.Avoid)
	mustSee := nameSet(params.MustSee)

	pois := cat.List()
	sort.SliceStable(pois, func(i, j int) bool {
		si, sj := score(pois[i], params), score(pois[j], params)
		if si != sj {
			return si > sj
		}
		return pois[i].Name < pois[j].Name
	})

	budget := float64(params.Days) * params.Pace.HoursPerDay()
	decision := &model.SelectionDecision{
		BackupPOIs:       make(map[string][]model.BackupCandidate),
		ReasoningSummary: "rule-based selection: interest match, rating, and trip budget",
	}

	var total float64
	starting := make(map[string]bool)
	for _, p := range pois {
		lower := strings.ToLower(p.Name)
		if avoid[lower] {
			decision.RejectedPOIs = append(decision.RejectedPOIs, model.Rejection{
				POI: p.Name, Reason: "on the avoid list",
			})
			continue
		}
		h := p.VisitHours()
		if mustSee[lower] || (total+h <= budget && len(decision.StartingPOIs) < maxStartingSet) {
			decision.StartingPOIs = append(decision.StartingPOIs, p.Name)
			starting[p.Name] = true
			total += h
			continue
		}
		decision.RejectedPOIs = append(decision.RejectedPOIs, model.Rejection{
			POI: p.Name, Reason: "lower priority for the available time",
		})
	}

	for _, name := range decision.StartingPOIs {
		primary, _ := cat.GetByName(name)
		decision.BackupPOIs[name] = backupsFor(primary, pois, starting)
	}
	return decision, nil
}

func score(p *model.POI, params model.PlanParams) float64 {
	s := p.Rating
	for _, interest := range params.Interests {
		tag := strings.ToLower(interest)
		if strings.Contains(strings.ToLower(p.Category), tag) ||
			strings.Contains(strings.ToLower(p.Period), tag) {
			s += 2
		}
	}
	switch params.IndoorOutdoor {
	case model.PreferIndoor:
		if p.Setting == model.SettingIndoor {
			s += 1
		}
	case model.PreferOutdoor:
		if p.Setting == model.SettingOutdoor {
			s += 1
		}
	}
	return s
}

func backupsFor(primary *model.POI, pool []*model.POI, starting map[string]bool) []model.BackupCandidate {
	var out []model.BackupCandidate
	for _, cand := range pool {
		if cand.Slug == primary.Slug || starting[cand.Name] {
			continue
		}
		var sim float64
		var reason string
		switch {
		case primary.Category != "" && strings.EqualFold(primary.Category, cand.Category):
			sim, reason = 0.85, "same category"
		case primary.Period != "" && strings.EqualFold(primary.Period, cand.Period):
			sim, reason = 0.75, "same historical period"
		case WithinBackupRange(primary.Location, cand.Location):
			sim, reason = 0.65, "within walking distance"
		default:
			continue
		}
		out = append(out, model.BackupCandidate{POI: cand.Name, SimilarityScore: sim, Reason: reason})
		if len(out) == maxBackups {
			break
		}
	}
	return out
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}
