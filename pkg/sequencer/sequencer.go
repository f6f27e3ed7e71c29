package sequencer

import (
	"context"
	"log/slog"
	"time"

	"wayfarer/pkg/coherence"
	"wayfarer/pkg/config"
	"wayfarer/pkg/distcache"
	"wayfarer/pkg/model"
)

// Result is a solved itinerary with its quality scores and solver stats.
type Result struct {
	Days   []model.Day
	Scores model.Scores
	Stats  model.SolverStats
}

// Sequencer owns the planning parameters shared across solves. Each call
// builds a fresh model; nothing persists between solves.
type Sequencer struct {
	cfg config.PlannerConfig
}

// New creates a Sequencer.
func New(cfg config.PlannerConfig) *Sequencer {
	return &Sequencer{cfg: cfg}
}

// Sequence produces the day-by-day itinerary for a starting set. Mode simple
// runs only the greedy pass; mode ilp runs the constraint solver with the
// greedy result as warm start, falling back to it when the solver finds
// nothing in budget. A greedy itinerary that violates a hard constraint is
// rejected rather than returned.
func (s *Sequencer) Sequence(ctx context.Context, pois []*model.POI, params model.PlanParams,
	dist *distcache.Matrix, coh *coherence.Matrix, combos []*model.ComboGroup, hints *Hints) (*Result, error) {

	problem, err := NewProblem(pois, params, s.cfg, dist, coh, combos)
	if err != nil {
		return nil, err
	}
	problem.applyHints(hints)

	started := time.Now()
	greedy := problem.Greedy()

	if params.Mode == model.ModeSimple {
		if err := problem.checkAssignment(greedy.days); err != nil {
			return nil, err
		}
		return s.extract(problem, greedy.days, model.SolverStats{
			Status:           model.StatusGreedyFallback,
			SolveTimeSeconds: time.Since(started).Seconds(),
			ObjectiveValue:   objectiveOf(problem, greedy.days),
		}), nil
	}

	solver := newCPSolver(problem)
	sol, complete := solver.solve(ctx, greedy)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if sol == nil {
		if err := problem.checkAssignment(greedy.days); err != nil {
			return nil, err
		}
		slog.Warn("constraint solver found no solution, using greedy fallback",
			"pois", problem.N, "days", problem.D, "exhausted", complete)
		return s.extract(problem, greedy.days, model.SolverStats{
			Status:           model.StatusGreedyFallback,
			SolveTimeSeconds: time.Since(started).Seconds(),
			ObjectiveValue:   objectiveOf(problem, greedy.days),
		}), nil
	}

	status := model.StatusFeasible
	if complete {
		status = model.StatusOptimal
	}
	return s.extract(problem, sol.days, model.SolverStats{
		Status:           status,
		SolveTimeSeconds: time.Since(started).Seconds(),
		ObjectiveValue:   sol.obj,
	}), nil
}

// extract turns index days into the itinerary document and computes the
// post-hoc scores. Empty days are dropped; numbering restarts at 1.
func (s *Sequencer) extract(p *Problem, days [][]int, stats model.SolverStats) *Result {
	r := &Result{Stats: stats}

	num := 0
	for _, day := range days {
		if len(day) == 0 {
			continue
		}
		num++
		d := model.Day{Number: num}
		for k, i := range day {
			poi := p.POIs[i]
			v := model.Visit{
				POI:            poi.Name,
				Slug:           poi.Slug,
				EstimatedHours: poi.VisitHours(),
			}
			if poi.Location != nil {
				v.Lat = poi.Location.Lat
				v.Lon = poi.Location.Lon
			}
			if k+1 < len(day) {
				v.WalkToNextKm = p.km(i, day[k+1])
				v.WalkToNextMinutes = p.walkMinutes(i, day[k+1])
			}
			d.Visits = append(d.Visits, v)
		}
		r.Days = append(r.Days, d)
	}

	r.Scores = scoresFor(p, days)
	return r
}

// scoresFor computes the itinerary quality scores from consecutive same-day
// pairs.
func scoresFor(p *Problem, days [][]int) model.Scores {
	var totalKm, cohSum float64
	pairs := 0
	for _, day := range days {
		for k := 0; k+1 < len(day); k++ {
			totalKm += p.km(day[k], day[k+1])
			cohSum += p.coherenceOf(day[k], day[k+1])
			pairs++
		}
	}

	distScore := clip(1-totalKm/(float64(p.N)*3.0), 0, 1)
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

// objectiveOf scores an arbitrary assignment with the solver's objective,
// for stats on greedy-produced itineraries.
func objectiveOf(p *Problem, days [][]int) float64 {
	s := newCPSolver(p)
	var obj, dayKm float64
	for _, day := range days {
		dayKm = 0
		for k := 0; k+1 < len(day); k++ {
			obj += s.edgeCost(day[k], day[k+1])
			dayKm += p.km(day[k], day[k+1])
		}
		obj += s.dayPenalty(dayKm)
	}
	return obj
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
