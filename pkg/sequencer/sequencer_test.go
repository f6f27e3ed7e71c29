package sequencer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/pkg/coherence"
	"wayfarer/pkg/config"
	"wayfarer/pkg/distcache"
	"wayfarer/pkg/fault"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/model"
)

func plannerConfig() config.PlannerConfig {
	return config.DefaultConfig().Planner
}

func romePOIs() []*model.POI {
	return []*model.POI{
		{
			Slug: "colosseum", Name: "Colosseum", City: "rome",
			Location:         &model.GeoPoint{Lat: 41.8902, Lon: 12.4922},
			DurationMinutes:  150,
			Category:         "ancient-site",
			Period:           "Roman Empire",
			ConstructionDate: "80 AD",
			ComboTicketIDs:   []string{"archaeological_pass"},
		},
		{
			Slug: "roman-forum", Name: "Roman Forum", City: "rome",
			Location:         &model.GeoPoint{Lat: 41.8925, Lon: 12.4853},
			DurationMinutes:  120,
			Category:         "ancient-site",
			Period:           "Roman Empire",
			ConstructionDate: "500 BC",
			ComboTicketIDs:   []string{"archaeological_pass"},
		},
		{
			Slug: "palatine-hill", Name: "Palatine Hill", City: "rome",
			Location:         &model.GeoPoint{Lat: 41.8894, Lon: 12.4875},
			DurationMinutes:  90,
			Category:         "ancient-site",
			Period:           "Roman Empire",
			ConstructionDate: "750 BC",
			ComboTicketIDs:   []string{"archaeological_pass"},
		},
		{
			Slug: "pantheon", Name: "Pantheon", City: "rome",
			Location:         &model.GeoPoint{Lat: 41.8986, Lon: 12.4769},
			DurationMinutes:  60,
			Category:         "temple",
			Period:           "Roman Empire",
			ConstructionDate: "126 AD",
		},
		{
			Slug: "trevi-fountain", Name: "Trevi Fountain", City: "rome",
			Location:         &model.GeoPoint{Lat: 41.9009, Lon: 12.4833},
			DurationMinutes:  30,
			Category:         "fountain",
			Period:           "Baroque",
			ConstructionDate: "1762",
		},
	}
}

func archaeologicalPass() []*model.ComboGroup {
	return []*model.ComboGroup{{
		ID:      "archaeological_pass",
		City:    "rome",
		Members: []string{"Colosseum", "Roman Forum", "Palatine Hill"},
		Constraints: model.ComboConstraints{
			MustVisitTogether: true,
			SameDayRequired:   true,
			TicketType:        model.ComboSameDayAnyOrder,
		},
	}}
}

func matrixFor(t *testing.T, pois []*model.POI) *distcache.Matrix {
	t.Helper()
	m, err := distcache.New(nil).ComputeAll(context.Background(), "test", pois, geo.NewHaversineProvider())
	require.NoError(t, err)
	return m
}

func monday(t *testing.T) model.Date {
	t.Helper()
	d, err := model.ParseDate("2026-09-07")
	require.NoError(t, err)
	require.Equal(t, 1, d.Weekday0Sunday())
	return d
}

func solve(t *testing.T, pois []*model.POI, params model.PlanParams, combos []*model.ComboGroup) (*Result, error) {
	t.Helper()
	params.Normalize()
	cfg := plannerConfig()
	cfg.SolverTimeout = config.Duration(5e9) // keep tests fast
	return New(cfg).Sequence(context.Background(), pois,
		params, matrixFor(t, pois), coherence.NewMatrix(pois), combos, nil)
}

func allVisits(r *Result) []model.Visit {
	var out []model.Visit
	for _, d := range r.Days {
		out = append(out, d.Visits...)
	}
	return out
}

// S1: a feasible two-day trip keeps the combo group on one day.
func TestComboMembersShareDay(t *testing.T) {
	pois := romePOIs()
	params := model.PlanParams{
		City: "rome", Days: 2,
		Interests: []string{"history"},
		Pace:      model.PaceNormal,
		StartDate: monday(t),
	}

	r, err := solve(t, pois, params, archaeologicalPass())
	require.NoError(t, err)
	assert.Contains(t, []model.SolverStatus{model.StatusOptimal, model.StatusFeasible}, r.Stats.Status)

	comboDay := map[string]int{}
	for _, d := range r.Days {
		for _, v := range d.Visits {
			switch v.Slug {
			case "colosseum", "roman-forum", "palatine-hill":
				comboDay[v.Slug] = d.Number
			}
		}
	}
	require.Len(t, comboDay, 3)
	assert.Equal(t, comboDay["colosseum"], comboDay["roman-forum"])
	assert.Equal(t, comboDay["colosseum"], comboDay["palatine-hill"])
}

// S2: a POI closed on the trip's only day is rejected up front.
func TestClosedDayInfeasible(t *testing.T) {
	sunday, err := model.ParseDate("2026-09-06")
	require.NoError(t, err)
	require.Equal(t, 0, sunday.Weekday0Sunday())

	park := &model.POI{
		Slug: "all-day-park", Name: "All Day Park", City: "rome",
		Location: &model.GeoPoint{Lat: 41.9, Lon: 12.5},
		OpeningHours: &model.OpeningHours{Periods: []model.OpeningPeriod{
			{Day: 1, Open: 700, Close: 2000},
			{Day: 2, Open: 700, Close: 2000},
			{Day: 3, Open: 700, Close: 2000},
			{Day: 4, Open: 700, Close: 2000},
			{Day: 5, Open: 700, Close: 2000},
			{Day: 6, Open: 700, Close: 2000},
		}},
	}
	params := model.PlanParams{City: "rome", Days: 1, StartDate: sunday}

	_, err = solve(t, []*model.POI{park}, params, nil)
	require.Error(t, err)
	assert.Equal(t, fault.CodeTimeWindowsEmpty, fault.CodeOf(err))
	assert.True(t, fault.IsKind(err, fault.Infeasible))
	assert.Contains(t, err.Error(), "TIME_WINDOWS_EMPTY")
}

// S3: a morning-only POI with a preferred booking slot lands early.
func TestMorningOnlyPlacement(t *testing.T) {
	pois := []*model.POI{
		{
			Slug: "morning-museum", Name: "Morning Museum", City: "rome",
			Location:        &model.GeoPoint{Lat: 41.90, Lon: 12.49},
			DurationMinutes: 90,
			OpeningHours: &model.OpeningHours{Periods: []model.OpeningPeriod{
				{Day: 1, Open: 800, Close: 1200},
			}},
			Booking: &model.BookingInfo{
				Required:       true,
				PreferredSlots: []model.BookingSlot{{Start: 800, End: 1000}},
			},
		},
		{
			Slug: "city-square", Name: "City Square", City: "rome",
			Location:        &model.GeoPoint{Lat: 41.91, Lon: 12.48},
			DurationMinutes: 60,
		},
		{
			Slug: "old-bridge", Name: "Old Bridge", City: "rome",
			Location:        &model.GeoPoint{Lat: 41.89, Lon: 12.47},
			DurationMinutes: 45,
		},
	}
	params := model.PlanParams{City: "rome", Days: 1, StartDate: monday(t)}

	r, err := solve(t, pois, params, nil)
	require.NoError(t, err)

	pos := -1
	for _, d := range r.Days {
		for k, v := range d.Visits {
			if v.Slug == "morning-museum" {
				pos = k
			}
		}
	}
	require.NotEqual(t, -1, pos, "morning museum missing from itinerary")
	assert.LessOrEqual(t, pos, 1)
}

// Property 1: every selected POI appears exactly once.
func TestExactlyOnce(t *testing.T) {
	pois := romePOIs()
	params := model.PlanParams{City: "rome", Days: 2, StartDate: monday(t)}

	r, err := solve(t, pois, params, archaeologicalPass())
	require.NoError(t, err)

	counts := map[string]int{}
	for _, v := range allVisits(r) {
		counts[v.Slug]++
	}
	require.Len(t, counts, len(pois))
	for slug, c := range counts {
		assert.Equal(t, 1, c, "poi %s visited %d times", slug, c)
	}
}

// Property 2 holds by construction (visits are slices), so check the related
// shape invariant: no empty days inside the numbered sequence.
func TestDayNumbering(t *testing.T) {
	pois := romePOIs()
	params := model.PlanParams{City: "rome", Days: 3, StartDate: monday(t)}

	r, err := solve(t, pois, params, nil)
	require.NoError(t, err)

	for k, d := range r.Days {
		assert.Equal(t, k+1, d.Number)
		assert.NotEmpty(t, d.Visits)
	}
}

// Property 3: assignments respect opening hours at the expected arrival time.
func TestOpeningHoursRespected(t *testing.T) {
	cfg := plannerConfig()
	pois := romePOIs()
	// Colosseum closes early on Mondays: only the first two slots fit.
	pois[0].OpeningHours = &model.OpeningHours{Periods: []model.OpeningPeriod{
		{Day: 1, Open: 900, Close: 1200},
		{Day: 2, Open: 900, Close: 1900},
	}}
	params := model.PlanParams{City: "rome", Days: 2, StartDate: monday(t)}

	r, err := solve(t, pois, params, nil)
	require.NoError(t, err)

	start := monday(t)
	for _, d := range r.Days {
		dow := start.AddDays(d.Number - 1).Weekday0Sunday()
		for k, v := range d.Visits {
			if v.Slug != "colosseum" {
				continue
			}
			arrival := model.FromMinutes(cfg.StartMinutes + k*cfg.AvgSlotMinutes)
			assert.True(t, pois[0].OpeningHours.OpenAt(dow, arrival),
				"colosseum closed at day %d pos %d (%s)", d.Number, k, arrival)
		}
	}
}

// Property 4: same_day_consecutive members form a contiguous block.
func TestConsecutiveComboBlock(t *testing.T) {
	pois := romePOIs()
	combos := archaeologicalPass()
	combos[0].Constraints.TicketType = model.ComboSameDayConsecutive
	params := model.PlanParams{City: "rome", Days: 2, StartDate: monday(t)}

	r, err := solve(t, pois, params, combos)
	require.NoError(t, err)

	member := map[string]bool{"colosseum": true, "roman-forum": true, "palatine-hill": true}
	for _, d := range r.Days {
		positions := []int{}
		for k, v := range d.Visits {
			if member[v.Slug] {
				positions = append(positions, k)
			}
		}
		if len(positions) == 0 {
			continue
		}
		require.Len(t, positions, 3, "combo split across days")
		assert.Equal(t, positions[0]+2, positions[2], "combo positions not contiguous: %v", positions)
	}
}

// Property 9: scores stay in bounds and are rounded.
func TestScoreBounds(t *testing.T) {
	pois := romePOIs()
	params := model.PlanParams{City: "rome", Days: 2, StartDate: monday(t)}

	for _, mode := range []model.PlanMode{model.ModeSimple, model.ModeILP} {
		params.Mode = mode
		r, err := solve(t, pois, params, nil)
		require.NoError(t, err)

		for _, s := range []float64{r.Scores.DistanceScore, r.Scores.CoherenceScore, r.Scores.OverallScore} {
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
			assert.Equal(t, model.Round2(s), s)
		}
		assert.GreaterOrEqual(t, r.Scores.TotalDistanceKm, 0.0)
	}
}

// Simple mode always reports the greedy path.
func TestSimpleModeStatus(t *testing.T) {
	pois := romePOIs()
	params := model.PlanParams{City: "rome", Days: 2, Mode: model.ModeSimple, StartDate: monday(t)}

	r, err := solve(t, pois, params, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusGreedyFallback, r.Stats.Status)
}

// Precedence: strong asymmetric coherence forces chronological order.
func TestPrecedenceOrdering(t *testing.T) {
	// Classical (rank before Hellenistic) plus a 10-year date gap scores
	// 0.7 in the early->late direction and 0.3 in reverse, so visiting the
	// temple before the stoa becomes a hard constraint.
	pois := []*model.POI{
		{
			Slug: "hellenistic-stoa", Name: "Hellenistic Stoa", City: "athens",
			Location:         &model.GeoPoint{Lat: 37.9754, Lon: 23.7280},
			DurationMinutes:  60,
			Period:           "Hellenistic",
			ConstructionDate: "330 BC",
		},
		{
			Slug: "athena-temple", Name: "Temple of Athena", City: "athens",
			Location:         &model.GeoPoint{Lat: 37.9715, Lon: 23.7267},
			DurationMinutes:  90,
			Period:           "Classical Greece",
			ConstructionDate: "340 BC",
		},
		{
			Slug: "agora", Name: "Ancient Agora", City: "athens",
			Location:        &model.GeoPoint{Lat: 37.9747, Lon: 23.7216},
			DurationMinutes: 60,
		},
	}
	params := model.PlanParams{City: "athens", Days: 1, StartDate: monday(t)}

	r, err := solve(t, pois, params, nil)
	require.NoError(t, err)
	require.Contains(t, []model.SolverStatus{model.StatusOptimal, model.StatusFeasible}, r.Stats.Status)

	order := map[string]int{}
	for k, v := range allVisits(r) {
		order[v.Slug] = k
	}
	assert.Less(t, order["athena-temple"], order["hellenistic-stoa"])
}

// Location hints steer the endpoints: the start POI opens the first day and
// the end POI closes the last one.
func TestStartEndLocationHints(t *testing.T) {
	pois := romePOIs()
	params := model.PlanParams{
		City: "rome", Days: 2, Mode: model.ModeSimple, StartDate: monday(t),
	}
	params.Normalize()

	cfg := plannerConfig()
	hints := &Hints{StartPOI: "trevi-fountain", EndPOI: "palatine-hill"}
	r, err := New(cfg).Sequence(context.Background(), pois,
		params, matrixFor(t, pois), coherence.NewMatrix(pois), nil, hints)
	require.NoError(t, err)

	first := r.Days[0].Visits[0]
	assert.Equal(t, "trevi-fountain", first.Slug)

	lastDay := r.Days[len(r.Days)-1]
	last := lastDay.Visits[len(lastDay.Visits)-1]
	assert.Equal(t, "palatine-hill", last.Slug)
}

// A greedy itinerary that lands a POI outside its opening windows is
// rejected rather than returned.
func TestSimpleModeRejectsWindowViolation(t *testing.T) {
	// Both galleries admit only the first arrival slot of the day, so any
	// single-day order leaves one of them outside its window.
	morning := &model.OpeningHours{Periods: []model.OpeningPeriod{
		{Day: 1, Open: 900, Close: 1000},
	}}
	pois := []*model.POI{
		{
			Slug: "east-gallery", Name: "East Gallery", City: "rome",
			Location:        &model.GeoPoint{Lat: 41.90, Lon: 12.49},
			DurationMinutes: 60, OpeningHours: morning,
		},
		{
			Slug: "west-gallery", Name: "West Gallery", City: "rome",
			Location:        &model.GeoPoint{Lat: 41.91, Lon: 12.48},
			DurationMinutes: 60, OpeningHours: morning,
		},
		{
			Slug: "city-park", Name: "City Park", City: "rome",
			Location:        &model.GeoPoint{Lat: 41.89, Lon: 12.47},
			DurationMinutes: 45,
		},
	}
	params := model.PlanParams{City: "rome", Days: 1, Mode: model.ModeSimple, StartDate: monday(t)}

	_, err := solve(t, pois, params, nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Infeasible))
	assert.Equal(t, fault.CodeInfeasibleWindows, fault.CodeOf(err))
}
