// Package reopt applies POI replacements to an existing tour. Edits are
// tiered by blast radius: a single swap inside a small day keeps every other
// visit untouched, a few affected days are re-ordered locally, and anything
// wider goes back through the full sequencer.
package reopt

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"wayfarer/pkg/catalog"
	"wayfarer/pkg/coherence"
	"wayfarer/pkg/config"
	"wayfarer/pkg/distcache"
	"wayfarer/pkg/fault"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/model"
	"wayfarer/pkg/sequencer"
	"wayfarer/pkg/tourstore"
)

// Tier names the re-solve strategy an edit used.
type Tier string

const (
	TierLocalSwap Tier = "local_swap"
	TierDayLevel  Tier = "day_level"
	TierFullTour  Tier = "full_tour"
)

// localSwapMaxDaySize is the largest day a positional swap may edit without
// re-ordering; beyond it the day is re-sequenced.
const localSwapMaxDaySize = 5

// Mode bounds how much re-optimization an edit may trigger. Simple applies
// the swaps in place and recomputes only walking legs and scores; reoptimize
// lets the service escalate through the tiers.
type Mode string

const (
	ModeSimple     Mode = "simple"
	ModeReoptimize Mode = "reoptimize"
)

// Replacement is one requested edit. Day is optional; when set it must name
// the day the original is on.
type Replacement struct {
	Original    string `json:"original_poi"`
	Replacement string `json:"replacement_poi"`
	Day         int    `json:"day,omitempty"`
}

// Result is the committed edit.
type Result struct {
	Tour    *model.Tour
	Version int
	Tier    Tier
}

// Service executes replacement edits against stored tours.
type Service struct {
	cfg      *config.Config
	catalogs *catalog.Store
	dist     *distcache.Cache
	provider geo.Provider
	seq      *sequencer.Sequencer
	tours    *tourstore.Store
}

// New creates a replacement service.
func New(cfg *config.Config, catalogs *catalog.Store, dist *distcache.Cache,
	provider geo.Provider, tours *tourstore.Store) *Service {
	return &Service{
		cfg:      cfg,
		catalogs: catalogs,
		dist:     dist,
		provider: provider,
		seq:      sequencer.New(cfg.Planner),
		tours:    tours,
	}
}

// Replace validates the requested edits, applies them at the cheapest
// adequate tier, and commits the result as a new version of the tour. An
// empty mode means reoptimize.
func (s *Service) Replace(ctx context.Context, id, language string, mode Mode, repls []Replacement, user string) (*Result, error) {
	if len(repls) == 0 {
		return nil, fault.New(fault.Invalid, fault.CodeInvalidArgument, "no replacements requested")
	}
	switch mode {
	case "", ModeSimple, ModeReoptimize:
	default:
		return nil, fault.New(fault.Invalid, fault.CodeInvalidArgument, "unknown replacement mode %q", mode)
	}

	tour, err := s.tours.Load(id, language)
	if err != nil {
		return nil, err
	}
	backups, err := s.tours.AuthoritativeBackups(id, language)
	if err != nil {
		return nil, err
	}
	if err := preflight(tour, backups, repls); err != nil {
		return nil, err
	}

	cat, err := s.catalogs.LoadCity(tour.City)
	if err != nil {
		return nil, err
	}
	replacements := make([]*model.POI, len(repls))
	for i, r := range repls {
		poi, ok := cat.GetByName(r.Replacement)
		if !ok {
			return nil, fault.New(fault.NotFound, fault.CodePOINotFound,
				"replacement %q not in catalog for %s", r.Replacement, tour.City)
		}
		replacements[i] = poi
	}

	edited := cloneTour(tour)
	affected := applySwaps(edited, repls, replacements)

	pois, err := itineraryPOIs(edited, cat)
	if err != nil {
		return nil, err
	}

	matrix, err := s.extendMatrix(ctx, edited, pois, replacements)
	if err != nil {
		return nil, err
	}
	coh := coherence.NewMatrix(pois)

	tier := tierFor(edited, repls, affected)
	if mode == ModeSimple {
		tier = TierLocalSwap
	}
	stats := model.SolverStats{Status: model.StatusFeasible}

	switch tier {
	case TierLocalSwap:
		// Positions are final; only the walking legs change.
	case TierDayLevel:
		for day := range affected {
			reorderDay(edited, day, matrix, s.cfg.Planner)
		}
	case TierFullTour:
		result, err := s.seq.Sequence(ctx, pois, edited.Params, matrix, coh, cat.ComboGroups(), nil)
		if err != nil {
			return nil, err
		}
		edited.Days = result.Days
		stats = result.Stats
	}

	refreshLegs(edited, matrix, s.cfg.Planner)
	edited.Scores = scoreDays(edited.Days, matrix, coh, s.cfg.Planner, len(pois))
	edited.SolverStats = &stats
	edited.BackupPOIs = maintainBackups(backups, repls)
	edited.Distances = bundleDistances(matrix, pois)
	edited.CreatedAt = time.Now().UTC()

	if err := s.dist.Persist(model.Slugify(edited.City), matrix); err != nil {
		slog.Warn("failed to persist distance matrix after edit", "city", edited.City, "error", err)
	}

	version, err := s.tours.AppendVersion(id, language, edited, &tourstore.GenerationRecord{}, user)
	if err != nil {
		return nil, err
	}

	if links, err := s.tours.TranscriptLinks(id, language); err == nil && len(links) > 0 {
		if repointed, changed := repointLinks(links, repls, replacements); changed {
			if err := s.tours.SaveTranscriptLinks(id, language, repointed); err != nil {
				slog.Warn("failed to update transcript links", "tour", id, "error", err)
			}
		}
	}

	slog.Info("tour edited",
		"tour", id, "language", language, "version", version,
		"tier", tier, "replacements", len(repls))
	return &Result{Tour: edited, Version: version, Tier: tier}, nil
}

// preflight rejects edits before anything is computed: every original must
// be in the itinerary and every replacement must come from the original's
// authoritative backup list.
func preflight(tour *model.Tour, backups map[string][]model.BackupCandidate, repls []Replacement) error {
	seen := make(map[string]bool, len(repls))
	for _, r := range repls {
		key := strings.ToLower(r.Original)
		if seen[key] {
			return fault.New(fault.Invalid, fault.CodeReplacementInvalid,
				"duplicate replacement for %q", r.Original)
		}
		seen[key] = true

		day, pos := tour.FindVisit(r.Original)
		if pos < 0 {
			return fault.New(fault.Invalid, fault.CodeReplacementInvalid,
				"%q is not in the itinerary", r.Original)
		}
		if r.Day != 0 && r.Day != day {
			return fault.New(fault.Invalid, fault.CodeReplacementInvalid,
				"%q is on day %d, not day %d", r.Original, day, r.Day)
		}
		if _, pos := tour.FindVisit(r.Replacement); pos >= 0 {
			return fault.New(fault.Invalid, fault.CodeReplacementInvalid,
				"%q is already in the itinerary", r.Replacement)
		}
		if !backupListed(backups[r.Original], r.Replacement) {
			return fault.New(fault.Invalid, fault.CodeReplacementInvalid,
				"%q is not a backup for %q", r.Replacement, r.Original)
		}
	}
	return nil
}

func backupListed(candidates []model.BackupCandidate, name string) bool {
	for _, c := range candidates {
		if strings.EqualFold(c.POI, name) {
			return true
		}
	}
	return false
}

// applySwaps substitutes each replacement at the original's exact position
// and returns the set of affected day numbers.
func applySwaps(tour *model.Tour, repls []Replacement, pois []*model.POI) map[int]bool {
	affected := make(map[int]bool)
	for i, r := range repls {
		day, pos := tour.FindVisit(r.Original)
		affected[day] = true
		for d := range tour.Days {
			if tour.Days[d].Number != day {
				continue
			}
			tour.Days[d].Visits[pos] = visitFor(pois[i])
		}
	}
	return affected
}

func visitFor(p *model.POI) model.Visit {
	v := model.Visit{POI: p.Name, Slug: p.Slug, EstimatedHours: p.VisitHours()}
	if p.Location != nil {
		v.Lat = p.Location.Lat
		v.Lon = p.Location.Lon
	}
	return v
}

// tierFor picks the cheapest strategy that can absorb the edit.
func tierFor(tour *model.Tour, repls []Replacement, affected map[int]bool) Tier {
	if len(repls) == 1 {
		for _, d := range tour.Days {
			if affected[d.Number] && len(d.Visits) <= localSwapMaxDaySize {
				return TierLocalSwap
			}
		}
	}
	if len(affected) <= 2 {
		return TierDayLevel
	}
	return TierFullTour
}

// extendMatrix seeds the cache with the pairs bundled in the tour, then
// computes only the legs the replacements introduce.
func (s *Service) extendMatrix(ctx context.Context, tour *model.Tour, pois, replacements []*model.POI) (*distcache.Matrix, error) {
	slug := model.Slugify(tour.City)
	matrix, err := s.dist.Load(slug)
	if err != nil {
		return nil, fault.Wrap(fault.IO, fault.CodeIO, err, "failed to load distance matrix for %s", slug)
	}
	matrix.Seed(tour.Distances)

	for _, poi := range replacements {
		if err := s.dist.Extend(ctx, matrix, poi, pois, s.provider); err != nil {
			return nil, fault.Wrap(fault.ExternalUnavailable, fault.CodeExternalUnavailable, err,
				"distance matrix extension failed for %s", poi.Slug)
		}
	}
	return matrix, nil
}

func itineraryPOIs(tour *model.Tour, cat *catalog.Catalog) ([]*model.POI, error) {
	var out []*model.POI
	for _, d := range tour.Days {
		for _, v := range d.Visits {
			poi, err := cat.Get(v.Slug)
			if err != nil {
				return nil, err
			}
			out = append(out, poi)
		}
	}
	return out, nil
}

// reorderDay rebuilds one day's visit order with nearest-neighbor
// construction followed by 2-opt improvement. The first visit stays anchored
// so the day keeps its rough geography.
func reorderDay(tour *model.Tour, dayNum int, matrix *distcache.Matrix, cfg config.PlannerConfig) {
	for d := range tour.Days {
		if tour.Days[d].Number != dayNum || len(tour.Days[d].Visits) < 3 {
			continue
		}
		visits := tour.Days[d].Visits
		ordered := []model.Visit{visits[0]}
		rest := append([]model.Visit(nil), visits[1:]...)
		for len(rest) > 0 {
			cur := ordered[len(ordered)-1]
			best, bestKm := 0, 0.0
			for i, v := range rest {
				km := pairKm(matrix, cur.Slug, v.Slug, cfg)
				if i == 0 || km < bestKm {
					best, bestKm = i, km
				}
			}
			ordered = append(ordered, rest[best])
			rest = append(rest[:best], rest[best+1:]...)
		}
		tour.Days[d].Visits = twoOptVisits(ordered, matrix, cfg)
	}
}

// twoOptVisits runs first-improvement 2-opt passes over a single day's
// sequence, minimizing total walking distance. The anchored first visit
// never moves.
func twoOptVisits(visits []model.Visit, matrix *distcache.Matrix, cfg config.PlannerConfig) []model.Visit {
	n := len(visits)
	if n < 4 {
		return visits
	}
	km := func(a, b model.Visit) float64 { return pairKm(matrix, a.Slug, b.Slug, cfg) }

	for pass := 0; pass < cfg.TwoOptPasses; pass++ {
		improved := false
		for i := 0; i < n-2; i++ {
			for j := i + 2; j < n; j++ {
				delta := km(visits[i], visits[j]) - km(visits[i], visits[i+1])
				if j+1 < n {
					delta += km(visits[i+1], visits[j+1]) - km(visits[j], visits[j+1])
				}
				if delta < -1e-9 {
					for lo, hi := i+1, j; lo < hi; lo, hi = lo+1, hi-1 {
						visits[lo], visits[hi] = visits[hi], visits[lo]
					}
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return visits
}

// refreshLegs recomputes the walk-to-next annotations on every day.
func refreshLegs(tour *model.Tour, matrix *distcache.Matrix, cfg config.PlannerConfig) {
	for d := range tour.Days {
		visits := tour.Days[d].Visits
		for i := range visits {
			if i+1 < len(visits) {
				visits[i].WalkToNextKm = pairKm(matrix, visits[i].Slug, visits[i+1].Slug, cfg)
				visits[i].WalkToNextMinutes = pairMinutes(matrix, visits[i].Slug, visits[i+1].Slug, cfg)
			} else {
				visits[i].WalkToNextKm = 0
				visits[i].WalkToNextMinutes = 0
			}
		}
	}
}

// scoreDays recomputes the itinerary quality scores from consecutive
// same-day pairs, mirroring how freshly sequenced tours are scored.
func scoreDays(days []model.Day, matrix *distcache.Matrix, coh *coherence.Matrix, cfg config.PlannerConfig, n int) model.Scores {
	var totalKm, cohSum float64
	pairs := 0
	for _, d := range days {
		for i := 0; i+1 < len(d.Visits); i++ {
			totalKm += pairKm(matrix, d.Visits[i].Slug, d.Visits[i+1].Slug, cfg)
			cohSum += coh.Score(d.Visits[i].Slug, d.Visits[i+1].Slug)
			pairs++
		}
	}
	distScore := 1 - totalKm/(float64(n)*3.0)
	if distScore < 0 {
		distScore = 0
	} else if distScore > 1 {
		distScore = 1
	}
	cohScore := 0.5
	if pairs > 0 {
		cohScore = cohSum / float64(pairs)
	}
	return model.Scores{
		DistanceScore:   distScore,
		CoherenceScore:  cohScore,
		OverallScore:    (distScore + cohScore) / 2,
		TotalDistanceKm: totalKm,
	}.Rounded()
}

func pairKm(matrix *distcache.Matrix, a, b string, cfg config.PlannerConfig) float64 {
	e, err := matrix.Lookup(a, b, geo.ModeWalking)
	if err != nil {
		return cfg.UnknownPairKm
	}
	return e.DistanceKm
}

func pairMinutes(matrix *distcache.Matrix, a, b string, cfg config.PlannerConfig) float64 {
	e, err := matrix.Lookup(a, b, geo.ModeWalking)
	if err != nil {
		return cfg.UnknownPairKm / cfg.WalkSpeedKmh * 60
	}
	if e.DurationMinutes > 0 {
		return e.DurationMinutes
	}
	return e.DistanceKm / cfg.WalkSpeedKmh * 60
}

// maintainBackups rewrites the backup map after the swaps: the original
// becomes the first backup of its replacement so the edit is reversible, the
// original's remaining backups and any the replacement already had follow,
// and the original's own entry is removed.
func maintainBackups(backups map[string][]model.BackupCandidate, repls []Replacement) map[string][]model.BackupCandidate {
	out := make(map[string][]model.BackupCandidate, len(backups))
	for k, v := range backups {
		out[k] = append([]model.BackupCandidate(nil), v...)
	}
	for _, r := range repls {
		merged := []model.BackupCandidate{{POI: r.Original, SimilarityScore: 1.0, Reason: "can swap back"}}
		for _, c := range append(out[r.Original], out[r.Replacement]...) {
			if strings.EqualFold(c.POI, r.Replacement) || backupListed(merged, c.POI) {
				continue
			}
			merged = append(merged, c)
		}
		delete(out, r.Original)
		out[r.Replacement] = merged
	}
	return out
}

// repointLinks redirects each replaced POI's transcript link to its
// replacement, keeping any transcript version and type already recorded for
// the replacement and stamping the edit time.
func repointLinks(links []model.TranscriptLink, repls []Replacement, replacements []*model.POI) ([]model.TranscriptLink, bool) {
	byOriginal := make(map[string]*model.POI, len(repls))
	for i, r := range repls {
		byOriginal[strings.ToLower(r.Original)] = replacements[i]
		byOriginal[model.Slugify(r.Original)] = replacements[i]
	}
	recorded := make(map[string]model.TranscriptLink, len(links))
	for _, l := range links {
		recorded[l.POIID] = l
	}

	changed := false
	out := make([]model.TranscriptLink, 0, len(links))
	for _, l := range links {
		target := byOriginal[strings.ToLower(l.POI)]
		if target == nil {
			target = byOriginal[l.POIID]
		}
		if target == nil {
			out = append(out, l)
			continue
		}
		next := l
		next.POI = target.Name
		next.POIID = target.Slug
		next.TranscriptVersion = 1
		next.TranscriptType = model.TranscriptStandard
		if prev, ok := recorded[target.Slug]; ok {
			next.TranscriptVersion = prev.TranscriptVersion
			next.TranscriptType = prev.TranscriptType
		}
		if l.POIID != "" {
			next.TranscriptPath = strings.ReplaceAll(l.TranscriptPath, l.POIID, target.Slug)
		}
		next.LinkedAt = time.Now().UTC()
		out = append(out, next)
		changed = true
	}
	return out, changed
}

func bundleDistances(matrix *distcache.Matrix, pois []*model.POI) []model.DistanceEntry {
	selected := make(map[string]bool, len(pois))
	for _, p := range pois {
		selected[p.Slug] = true
	}
	var out []model.DistanceEntry
	for _, e := range matrix.Entries() {
		if selected[e.Origin] && selected[e.Dest] {
			out = append(out, e)
		}
	}
	return out
}

func cloneTour(t *model.Tour) *model.Tour {
	clone := *t
	clone.Days = make([]model.Day, len(t.Days))
	for i, d := range t.Days {
		clone.Days[i] = model.Day{Number: d.Number, Visits: append([]model.Visit(nil), d.Visits...)}
	}
	return &clone
}
