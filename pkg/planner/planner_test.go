package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/pkg/catalog"
	"wayfarer/pkg/config"
	"wayfarer/pkg/distcache"
	"wayfarer/pkg/fault"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/model"
	"wayfarer/pkg/selector"
	"wayfarer/pkg/tourstore"
)

type scriptedSelector struct {
	decision *model.SelectionDecision
	err      error
}

func (s *scriptedSelector) Select(_ context.Context, _ *catalog.Catalog, _ model.PlanParams) (*model.SelectionDecision, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.decision, nil
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func fixtureCatalogs(t *testing.T) *catalog.Store {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "pois", "rome")

	writeFixture(t, dir, "colosseum.yaml", `
name: Colosseum
city: rome
location: {lat: 41.8902, lon: 12.4922}
duration_minutes: 150
category: ancient-site
historical_period: Roman Empire
`)
	writeFixture(t, dir, "roman-forum.yaml", `
name: Roman Forum
city: rome
location: {lat: 41.8925, lon: 12.4853}
duration_minutes: 120
category: ancient-site
historical_period: Roman Empire
`)
	writeFixture(t, dir, "pantheon.yaml", `
name: Pantheon
city: rome
location: {lat: 41.8986, lon: 12.4769}
duration_minutes: 60
historical_period: Roman Empire
`)
	return catalog.NewStore(root)
}

func romeDecision() *model.SelectionDecision {
	return &model.SelectionDecision{
		StartingPOIs: []string{"Colosseum", "Roman Forum", "Pantheon"},
		BackupPOIs: map[string][]model.BackupCandidate{
			"Colosseum": {{POI: "Roman Forum", SimilarityScore: 0.8, Reason: "same category"}},
		},
	}
}

func newTestPlanner(t *testing.T, sel, fallback selector.Selector) *Planner {
	t.Helper()
	var fb *selector.Service
	if fallback != nil {
		fb = selector.NewService(fallback)
	}
	return New(
		config.DefaultConfig(),
		fixtureCatalogs(t),
		selector.NewService(sel),
		fb,
		distcache.New(nil),
		geo.NewHaversineProvider(),
		tourstore.NewStore(filepath.Join(t.TempDir(), "tours")),
	)
}

func params() model.PlanParams {
	return model.PlanParams{City: "rome", Days: 1, Pace: model.PaceNormal, Mode: model.ModeSimple}
}

func TestPlanEndToEnd(t *testing.T) {
	p := newTestPlanner(t, &scriptedSelector{decision: romeDecision()}, nil)

	tour, err := p.Plan(context.Background(), params(), "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, tour.Version)
	assert.Equal(t, "rome", tour.City)
	assert.Equal(t, "en", tour.Language)
	require.NotNil(t, tour.SolverStats)
	assert.Equal(t, model.StatusGreedyFallback, tour.SolverStats.Status)

	// Every selected POI appears exactly once.
	seen := map[string]int{}
	for _, name := range tour.POINames() {
		seen[name]++
	}
	assert.Len(t, seen, 3)
	for name, n := range seen {
		assert.Equal(t, 1, n, name)
	}

	// Distance pairs among the three POIs travel with the tour.
	assert.Len(t, tour.Distances, 6)

	// The tour is persisted and loadable.
	loaded, err := p.tours.Load(tour.ID, "en")
	require.NoError(t, err)
	assert.Equal(t, tour.POINames(), loaded.POINames())
}

func TestPlanILPMode(t *testing.T) {
	p := newTestPlanner(t, &scriptedSelector{decision: romeDecision()}, nil)

	pr := params()
	pr.Mode = model.ModeILP
	pr.Days = 2
	tour, err := p.Plan(context.Background(), pr, "")
	require.NoError(t, err)

	status := tour.SolverStats.Status
	assert.Contains(t, []model.SolverStatus{model.StatusOptimal, model.StatusFeasible}, status)
	assert.GreaterOrEqual(t, tour.Scores.OverallScore, 0.0)
	assert.LessOrEqual(t, tour.Scores.OverallScore, 1.0)
}

func TestPlanValidatesParams(t *testing.T) {
	p := newTestPlanner(t, &scriptedSelector{decision: romeDecision()}, nil)

	for _, bad := range []model.PlanParams{
		{Days: 1},
		{City: "rome", Days: 0},
		{City: "rome", Days: 30},
		{City: "rome", Days: 1, Pace: "sprint"},
	} {
		_, err := p.Plan(context.Background(), bad, "")
		require.Error(t, err)
		assert.Equal(t, fault.CodeInvalidArgument, fault.CodeOf(err))
	}
}

func TestPlanUnknownCity(t *testing.T) {
	p := newTestPlanner(t, &scriptedSelector{decision: romeDecision()}, nil)

	pr := params()
	pr.City = "atlantis"
	_, err := p.Plan(context.Background(), pr, "")
	assert.Equal(t, fault.CodeCityNotFound, fault.CodeOf(err))
}

func TestPlanSelectorFallback(t *testing.T) {
	primary := &scriptedSelector{err: fault.New(fault.ExternalUnavailable, fault.CodeExternalUnavailable, "llm down")}
	p := newTestPlanner(t, primary, &scriptedSelector{decision: romeDecision()})

	tour, err := p.Plan(context.Background(), params(), "")
	require.NoError(t, err)
	assert.Len(t, tour.POINames(), 3)
}

func TestPlanSelectorHardFailure(t *testing.T) {
	primary := &scriptedSelector{err: fault.New(fault.Invalid, fault.CodeInvalidArgument, "bad prompt")}
	p := newTestPlanner(t, primary, &scriptedSelector{decision: romeDecision()})

	_, err := p.Plan(context.Background(), params(), "")
	assert.Equal(t, fault.CodeInvalidArgument, fault.CodeOf(err))
}

func TestAddLanguage(t *testing.T) {
	p := newTestPlanner(t, &scriptedSelector{decision: romeDecision()}, nil)

	tour, err := p.Plan(context.Background(), params(), "")
	require.NoError(t, err)

	zh, err := p.AddLanguage(context.Background(), tour.ID, "zh-tw", "")
	require.NoError(t, err)
	assert.Equal(t, "zh-tw", zh.Language)
	assert.Equal(t, 1, zh.Version)
	assert.Equal(t, tour.POINames(), zh.POINames())

	meta, err := p.tours.Metadata(tour.ID)
	require.NoError(t, err)
	assert.Len(t, meta.Languages, 2)

	// Adding the same language again conflicts.
	_, err = p.AddLanguage(context.Background(), tour.ID, "zh-tw", "")
	assert.Equal(t, fault.CodeConflict, fault.CodeOf(err))
}

type geocodingProvider struct {
	*geo.HaversineProvider
	point model.GeoPoint
}

func (g *geocodingProvider) Geocode(_ context.Context, _, _ string) (*model.GeoPoint, error) {
	pt := g.point
	return &pt, nil
}

func TestPlanHonorsStartLocation(t *testing.T) {
	provider := &geocodingProvider{
		HaversineProvider: geo.NewHaversineProvider(),
		point:             model.GeoPoint{Lat: 41.8990, Lon: 12.4770}, // beside the Pantheon
	}
	p := New(
		config.DefaultConfig(),
		fixtureCatalogs(t),
		selector.NewService(&scriptedSelector{decision: romeDecision()}),
		nil,
		distcache.New(nil),
		provider,
		tourstore.NewStore(filepath.Join(t.TempDir(), "tours")),
	)

	req := params()
	req.StartLocation = "Piazza della Rotonda"
	tour, err := p.Plan(context.Background(), req, "")
	require.NoError(t, err)

	// The POI closest to the start location opens the first day.
	require.NotEmpty(t, tour.Days)
	assert.Equal(t, "pantheon", tour.Days[0].Visits[0].Slug)
}

// An offline provider cannot geocode, so the hint is dropped and planning
// proceeds.
func TestPlanDropsUngeocodableHint(t *testing.T) {
	p := newTestPlanner(t, &scriptedSelector{decision: romeDecision()}, nil)

	req := params()
	req.StartLocation = "Hotel Europa"
	tour, err := p.Plan(context.Background(), req, "")
	require.NoError(t, err)
	assert.NotEmpty(t, tour.Days)
}
