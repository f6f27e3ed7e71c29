// Package planner orchestrates one planning run: catalog load, POI
// selection, distance matrix, coherence scoring, sequencing, and the
// versioned commit to the tour store.
package planner

import (
	"context"
	"log/slog"
	"math"
	"time"

	orbgeo "github.com/paulmach/orb/geo"

	"wayfarer/pkg/catalog"
	"wayfarer/pkg/coherence"
	"wayfarer/pkg/config"
	"wayfarer/pkg/distcache"
	"wayfarer/pkg/fault"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/model"
	"wayfarer/pkg/selector"
	"wayfarer/pkg/sequencer"
	"wayfarer/pkg/tourstore"
)

// maxTripDays bounds the request; beyond this the catalog math stops making
// sense for a single city.
const maxTripDays = 14

// Planner wires the planning pipeline. All dependencies are injected so the
// CLI and the daemon share one construction path.
type Planner struct {
	cfg      *config.Config
	catalogs *catalog.Store
	sel      *selector.Service
	fallback *selector.Service
	dist     *distcache.Cache
	provider geo.Provider
	seq      *sequencer.Sequencer
	tours    *tourstore.Store
}

// New creates a Planner. fallback may be nil; when set it is used after the
// primary selector fails with an external fault.
func New(cfg *config.Config, catalogs *catalog.Store, sel, fallback *selector.Service,
	dist *distcache.Cache, provider geo.Provider, tours *tourstore.Store) *Planner {
	return &Planner{
		cfg:      cfg,
		catalogs: catalogs,
		sel:      sel,
		fallback: fallback,
		dist:     dist,
		provider: provider,
		seq:      sequencer.New(cfg.Planner),
		tours:    tours,
	}
}

// Plan runs the full pipeline and persists version 1 of a new tour.
func (p *Planner) Plan(ctx context.Context, params model.PlanParams, user string) (*model.Tour, error) {
	params.Normalize()
	if err := validateParams(params); err != nil {
		return nil, err
	}

	cat, err := p.catalogs.LoadCity(params.City)
	if err != nil {
		return nil, err
	}

	decision, err := p.selectPOIs(ctx, cat, params)
	if err != nil {
		return nil, err
	}
	pois, err := resolve(cat, decision.StartingPOIs)
	if err != nil {
		return nil, err
	}

	matrix, err := p.ensureMatrix(ctx, params.City, pois)
	if err != nil {
		return nil, err
	}

	coh := coherence.NewMatrix(pois)
	result, err := p.seq.Sequence(ctx, pois, params, matrix, coh, cat.ComboGroups(), p.locationHints(ctx, params, pois))
	if err != nil {
		return nil, err
	}

	tour := assemble(params, decision, result, matrix, pois)
	rec := &tourstore.GenerationRecord{Selection: decision}
	if err := p.tours.Create(tour, rec, user); err != nil {
		return nil, err
	}

	slog.Info("tour planned",
		"tour", tour.ID, "city", params.City, "days", len(tour.Days),
		"pois", len(pois), "status", result.Stats.Status, "score", tour.Scores.OverallScore)
	return tour, nil
}

// AddLanguage creates version 1 of an existing tour in a new language. The
// itinerary is carried over unchanged; only the language marker differs, so
// later edits version independently.
func (p *Planner) AddLanguage(ctx context.Context, id, language, user string) (*model.Tour, error) {
	if language == "" {
		return nil, fault.New(fault.Invalid, fault.CodeInvalidArgument, "language must not be empty")
	}
	meta, err := p.tours.Metadata(id)
	if err != nil {
		return nil, err
	}
	source := ""
	for lang := range meta.Languages {
		if source == "" || lang < source {
			source = lang
		}
	}
	if source == "" {
		return nil, fault.New(fault.NotFound, fault.CodeTourNotFound, "tour %s has no languages", id)
	}

	tour, err := p.tours.Load(id, source)
	if err != nil {
		return nil, err
	}
	clone := *tour
	clone.Language = language
	clone.Params.Language = language
	clone.CreatedAt = time.Now().UTC()

	rec, err := p.tours.GenerationRecord(id, source, tour.Version)
	if err != nil {
		slog.Warn("no generation record to carry over", "tour", id, "language", source, "error", err)
		rec = nil
	}
	var newRec *tourstore.GenerationRecord
	if rec != nil {
		newRec = &tourstore.GenerationRecord{Selection: rec.Selection}
	}
	if err := p.tours.Create(&clone, newRec, user); err != nil {
		return nil, err
	}
	return &clone, nil
}

// ValidateCity loads a city catalog and returns its consistency issues.
func (p *Planner) ValidateCity(city string) ([]catalog.Issue, error) {
	cat, err := p.catalogs.LoadCity(city)
	if err != nil {
		return nil, err
	}
	return cat.Validate(), nil
}

// selectPOIs runs the primary selector, falling back on external failures.
func (p *Planner) selectPOIs(ctx context.Context, cat *catalog.Catalog, params model.PlanParams) (*model.SelectionDecision, error) {
	decision, err := p.sel.Select(ctx, cat, params)
	if err == nil {
		return decision, nil
	}
	if p.fallback == nil || !externalFault(err) {
		return nil, err
	}
	slog.Warn("selector failed, using fallback", "error", err)
	return p.fallback.Select(ctx, cat, params)
}

func externalFault(err error) bool {
	return fault.IsKind(err, fault.ExternalTransient) ||
		fault.IsKind(err, fault.ExternalUnavailable) ||
		fault.IsKind(err, fault.ExternalPermanent)
}

// locationHints resolves the requested start and end locations to the
// selected POIs closest to them. Nil when neither location is set or neither
// can be resolved.
func (p *Planner) locationHints(ctx context.Context, params model.PlanParams, pois []*model.POI) *sequencer.Hints {
	start := p.closestTo(ctx, params.StartLocation, params.City, pois)
	end := p.closestTo(ctx, params.EndLocation, params.City, pois)
	if start == "" && end == "" {
		return nil
	}
	return &sequencer.Hints{StartPOI: start, EndPOI: end}
}

// closestTo geocodes a free-text location and names the nearest selected
// POI. A failed geocode drops the hint rather than the plan; the endpoints
// are preferences, not constraints.
func (p *Planner) closestTo(ctx context.Context, location, city string, pois []*model.POI) string {
	if location == "" {
		return ""
	}
	point, err := p.provider.Geocode(ctx, location, city)
	if err != nil {
		slog.Warn("could not geocode location hint", "location", location, "error", err)
		return ""
	}
	best, bestMeters := "", math.Inf(1)
	for _, poi := range pois {
		if poi.Location == nil || !poi.Location.Valid() {
			continue
		}
		if m := orbgeo.Distance(point.Point(), poi.Location.Point()); m < bestMeters {
			best, bestMeters = poi.Slug, m
		}
	}
	return best
}

// ensureMatrix loads the persisted city matrix and fills any pairs the
// selection needs. A fresh city computes the full set in one batched pass;
// a known city extends pair by pair.
func (p *Planner) ensureMatrix(ctx context.Context, city string, pois []*model.POI) (*distcache.Matrix, error) {
	slug := model.Slugify(city)
	matrix, err := p.dist.Load(slug)
	if err != nil {
		return nil, fault.Wrap(fault.IO, fault.CodeIO, err, "failed to load distance matrix for %s", slug)
	}

	if matrix.Len() == 0 {
		matrix, err = p.dist.ComputeAll(ctx, slug, pois, p.provider)
		if err != nil {
			return nil, fault.Wrap(fault.ExternalUnavailable, fault.CodeExternalUnavailable, err,
				"distance matrix computation failed for %s", slug)
		}
	} else {
		for _, poi := range pois {
			if err := p.dist.Extend(ctx, matrix, poi, pois, p.provider); err != nil {
				return nil, fault.Wrap(fault.ExternalUnavailable, fault.CodeExternalUnavailable, err,
					"distance matrix extension failed for %s", poi.Slug)
			}
		}
	}

	if err := p.dist.Persist(slug, matrix); err != nil {
		slog.Warn("failed to persist distance matrix", "city", slug, "error", err)
	}
	return matrix, nil
}

// resolve maps selector output names to catalog records. The selector
// canonicalizes names, so a miss here is a programming error surfaced as a
// fault rather than silently shrinking the tour.
func resolve(cat *catalog.Catalog, names []string) ([]*model.POI, error) {
	if len(names) == 0 {
		return nil, fault.New(fault.Infeasible, fault.CodeInfeasible, "selector produced an empty starting set")
	}
	pois := make([]*model.POI, 0, len(names))
	for _, name := range names {
		poi, ok := cat.GetByName(name)
		if !ok {
			return nil, fault.New(fault.NotFound, fault.CodePOINotFound, "selected poi %q not in catalog", name)
		}
		pois = append(pois, poi)
	}
	return pois, nil
}

// assemble builds the tour document from the pipeline outputs.
func assemble(params model.PlanParams, decision *model.SelectionDecision,
	result *sequencer.Result, matrix *distcache.Matrix, pois []*model.POI) *model.Tour {

	now := time.Now().UTC()
	stats := result.Stats
	return &model.Tour{
		ID:          model.NewTourID(params.City, now),
		City:        model.Slugify(params.City),
		Language:    params.Language,
		Days:        result.Days,
		Scores:      result.Scores,
		BackupPOIs:  decision.BackupPOIs,
		Rejected:    decision.RejectedPOIs,
		Params:      params,
		SolverStats: &stats,
		Distances:   bundleDistances(matrix, pois),
		CreatedAt:   now,
	}
}

// bundleDistances snapshots the pairs among the selected POIs so replacement
// edits can reseed a cache without re-querying known legs.
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

func validateParams(p model.PlanParams) error {
	switch {
	case p.City == "":
		return fault.New(fault.Invalid, fault.CodeInvalidArgument, "city must not be empty")
	case p.Days < 1 || p.Days > maxTripDays:
		return fault.New(fault.Invalid, fault.CodeInvalidArgument, "days must be in 1..%d, got %d", maxTripDays, p.Days)
	case !p.Pace.Valid():
		return fault.New(fault.Invalid, fault.CodeInvalidArgument, "unknown pace %q", p.Pace)
	case !p.WalkingTolerance.Valid():
		return fault.New(fault.Invalid, fault.CodeInvalidArgument, "unknown walking tolerance %q", p.WalkingTolerance)
	case !p.Mode.Valid():
		return fault.New(fault.Invalid, fault.CodeInvalidArgument, "unknown mode %q", p.Mode)
	}
	return nil
}
