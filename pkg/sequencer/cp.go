package sequencer

import (
	"context"
	"math"
	"sync"
	"time"
)

// objScale keeps the objective in integer-friendly territory: one unit of
// scaled cost per meter walked.
const objScale = 1000.0

// deadlineMask throttles deadline checks to every 2048 nodes.
const deadlineMask = 2047

// dayPenaltyPerKm converts kilometers over the soft day-walk threshold into
// penalty units, capped at maxDayPenalty.
const (
	dayPenaltyPerKm = 200.0
	maxDayPenalty   = 1000.0
)

// cpSolution is a completed assignment with its scaled objective.
type cpSolution struct {
	days [][]int
	obj  float64
}

// cpSolver runs branch and bound over (day, position) slots in lexicographic
// order. Workers share the incumbent under a mutex; each keeps its own
// mutable search state.
type cpSolver struct {
	p  *Problem
	wd float64
	wc float64

	// memberGroups[i] lists combo-group indices containing POI i.
	memberGroups [][]int

	// minEdge is the cheapest possible transition cost, used for bounding.
	minEdge float64

	deadline time.Time

	mu       sync.Mutex
	best     *cpSolution
	complete bool // search exhausted without hitting the deadline
}

// cpState is one worker's mutable depth-first state.
type cpState struct {
	placed      []bool
	count       int
	day, pos    int
	prevInDay   int // POI at (day, pos-1), -1 at day start
	dayKm       float64
	obj         float64
	days        [][]int
	groupDay    []int // first day a group member landed on, -1 unset
	groupPlaced []int
	nodes       uint64
	stopped     bool
}

func newCPSolver(p *Problem) *cpSolver {
	s := &cpSolver{p: p}
	s.wd, s.wc = p.normalizedWeights()

	s.memberGroups = make([][]int, p.N)
	for g, grp := range p.combos {
		for _, i := range grp.members {
			s.memberGroups[i] = append(s.memberGroups[i], g)
		}
	}

	s.minEdge = math.Inf(1)
	for i := 0; i < p.N; i++ {
		for j := 0; j < p.N; j++ {
			if i == j {
				continue
			}
			if e := s.edgeCost(i, j); e < s.minEdge {
				s.minEdge = e
			}
		}
	}
	if s.minEdge > 0 || math.IsInf(s.minEdge, 1) {
		s.minEdge = 0
	}
	return s
}

// edgeCost is the scaled objective contribution of walking i -> j.
func (s *cpSolver) edgeCost(i, j int) float64 {
	return s.wd*objScale*s.p.km(i, j) - s.wc*objScale*s.p.coherenceOf(i, j)
}

// dayPenalty is the soft-constraint cost of closing a day with the given
// walking distance.
func (s *cpSolver) dayPenalty(dayKm float64) float64 {
	limit := s.p.Cfg.DayWalkLimit.Km()
	if dayKm <= limit {
		return 0
	}
	pen := (dayKm - limit) * dayPenaltyPerKm
	if pen > maxDayPenalty {
		pen = maxDayPenalty
	}
	return s.p.Cfg.PenaltyWeight * pen
}

func (s *cpSolver) newState() *cpState {
	p := s.p
	st := &cpState{
		placed:      make([]bool, p.N),
		prevInDay:   -1,
		days:        make([][]int, p.D),
		groupDay:    make([]int, len(p.combos)),
		groupPlaced: make([]int, len(p.combos)),
	}
	for g := range st.groupDay {
		st.groupDay[g] = -1
	}
	return st
}

func (st *cpState) clone() *cpState {
	cp := &cpState{
		placed:      append([]bool(nil), st.placed...),
		count:       st.count,
		day:         st.day,
		pos:         st.pos,
		prevInDay:   st.prevInDay,
		dayKm:       st.dayKm,
		obj:         st.obj,
		days:        make([][]int, len(st.days)),
		groupDay:    append([]int(nil), st.groupDay...),
		groupPlaced: append([]int(nil), st.groupPlaced...),
	}
	for d, day := range st.days {
		cp.days[d] = append([]int(nil), day...)
	}
	return cp
}

// solve runs the search until exhaustion or deadline. It returns the best
// solution found (nil when none) and whether the search completed.
func (s *cpSolver) solve(ctx context.Context, warm *assignment) (*cpSolution, bool) {
	s.deadline = time.Now().Add(time.Duration(s.p.Cfg.SolverTimeout))
	if dl, ok := ctx.Deadline(); ok && dl.Before(s.deadline) {
		s.deadline = dl
	}

	// Warm start: a feasible greedy assignment seeds the incumbent.
	if warm != nil {
		if obj, ok := s.evaluate(warm); ok {
			s.best = &cpSolution{days: warm.days, obj: obj}
		}
	}

	root := s.newState()
	branches := s.expand(root)
	if len(branches) == 0 {
		return s.best, true
	}

	workers := s.p.Cfg.SolverWorkers
	if workers <= 0 {
		workers = 1
	}
	work := make(chan *cpState, len(branches))
	for _, b := range branches {
		work <- b
	}
	close(work)

	exhausted := true
	var exhaustedMu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for st := range work {
				s.dfs(ctx, st)
				if st.stopped {
					exhaustedMu.Lock()
					exhausted = false
					exhaustedMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete = exhausted
	return s.best, exhausted
}

// expand generates the root branches distributed across workers: every legal
// first move, then every legal second move under each.
func (s *cpSolver) expand(root *cpState) []*cpState {
	var out []*cpState
	for _, first := range s.moves(root) {
		for _, second := range s.moves(first) {
			out = append(out, second)
		}
	}
	return out
}

// moves returns a clone of st per legal next decision (placement or day
// close). Completed states pass through unchanged.
func (s *cpSolver) moves(st *cpState) []*cpState {
	if st.count == s.p.N {
		return []*cpState{st}
	}
	var out []*cpState
	for _, i := range s.candidates(st) {
		next := st.clone()
		if s.place(next, i) {
			out = append(out, next)
		}
	}
	if s.canCloseDay(st) {
		next := st.clone()
		s.closeDay(next)
		out = append(out, next)
	}
	return out
}

func (s *cpSolver) dfs(ctx context.Context, st *cpState) {
	if st.stopped {
		return
	}
	st.nodes++
	if st.nodes&deadlineMask == 0 {
		if time.Now().After(s.deadline) || ctx.Err() != nil {
			st.stopped = true
			return
		}
	}

	if st.count == s.p.N {
		s.record(st)
		return
	}

	// Bound: the incumbent must be beaten by more than the relative gap.
	if cutoff, ok := s.cutoff(); ok {
		remaining := float64(s.p.N - st.count)
		if st.obj+remaining*s.minEdge >= cutoff {
			return
		}
	}
	// Capacity: every unplaced POI still needs a slot.
	slotsLeft := (s.p.D-st.day)*s.p.P - st.pos
	if slotsLeft < s.p.N-st.count {
		return
	}

	for _, i := range s.candidates(st) {
		undo := st.clone()
		if s.place(st, i) {
			s.dfs(ctx, st)
		}
		stopped := st.stopped
		nodes := st.nodes
		*st = *undo
		st.stopped = stopped
		st.nodes = nodes
		if stopped {
			return
		}
	}
	if s.canCloseDay(st) {
		undo := st.clone()
		s.closeDay(st)
		s.dfs(ctx, st)
		stopped := st.stopped
		nodes := st.nodes
		*st = *undo
		st.stopped = stopped
		st.nodes = nodes
	}
}

// candidates lists the POIs placeable at the state's current slot.
func (s *cpSolver) candidates(st *cpState) []int {
	p := s.p
	if st.day >= p.D {
		return nil
	}

	// A consecutive combo block in progress forces its own members next.
	var forced []int
	if st.prevInDay >= 0 {
		for _, g := range s.memberGroups[st.prevInDay] {
			grp := p.combos[g]
			if grp.consecutive && st.groupPlaced[g] < len(grp.members) {
				for _, m := range grp.members {
					if !st.placed[m] {
						forced = append(forced, m)
					}
				}
				break
			}
		}
	}

	pool := forced
	if pool == nil {
		pool = make([]int, 0, p.N-st.count)
		for i := 0; i < p.N; i++ {
			if !st.placed[i] {
				pool = append(pool, i)
			}
		}
	}

	var out []int
	for _, i := range pool {
		if !p.allowed[i][st.day][st.pos] {
			continue
		}
		if st.day == 0 && st.pos == 0 && p.anchor >= 0 && i != p.anchor {
			continue
		}
		if !s.precedenceSatisfied(st, i) {
			continue
		}
		if !s.comboAdmits(st, i) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (s *cpSolver) precedenceSatisfied(st *cpState, j int) bool {
	for _, i := range s.p.prec[j] {
		if !st.placed[i] {
			return false
		}
	}
	return true
}

// comboAdmits rejects placements that would split a must-visit-together
// group across days.
func (s *cpSolver) comboAdmits(st *cpState, i int) bool {
	for _, g := range s.memberGroups[i] {
		if st.groupPlaced[g] > 0 && st.groupDay[g] != st.day {
			return false
		}
	}
	return true
}

// place commits POI i to the current slot. It returns false when the slot
// fills the day and the day cannot legally end there.
func (s *cpSolver) place(st *cpState, i int) bool {
	if st.prevInDay >= 0 {
		st.obj += s.edgeCost(st.prevInDay, i)
		st.dayKm += s.p.km(st.prevInDay, i)
	}
	st.placed[i] = true
	st.count++
	st.days[st.day] = append(st.days[st.day], i)
	for _, g := range s.memberGroups[i] {
		if st.groupPlaced[g] == 0 {
			st.groupDay[g] = st.day
		}
		st.groupPlaced[g]++
	}
	st.prevInDay = i
	st.pos++
	if st.pos == s.p.P {
		if st.count < s.p.N && !s.canCloseDay(st) {
			return false
		}
		s.closeDay(st)
	}
	return true
}

// canCloseDay reports whether the current day may end here: no group on this
// day is left incomplete, and another day exists (or nothing remains).
func (s *cpSolver) canCloseDay(st *cpState) bool {
	if st.day >= s.p.D {
		return false
	}
	if st.day == s.p.D-1 && st.count < s.p.N {
		return false
	}
	for g, grp := range s.p.combos {
		if st.groupDay[g] == st.day && st.groupPlaced[g] < len(grp.members) {
			return false
		}
	}
	return true
}

func (s *cpSolver) closeDay(st *cpState) {
	st.obj += s.dayPenalty(st.dayKm)
	st.day++
	st.pos = 0
	st.prevInDay = -1
	st.dayKm = 0
}

// cutoff returns the objective a new solution must beat, tightened by the
// relative gap.
func (s *cpSolver) cutoff() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.best == nil {
		return 0, false
	}
	return s.best.obj - math.Abs(s.best.obj)*s.p.Cfg.RelativeGap, true
}

func (s *cpSolver) record(st *cpState) {
	obj := st.obj
	if st.prevInDay >= 0 || st.dayKm > 0 {
		obj += s.dayPenalty(st.dayKm)
	}

	days := make([][]int, 0, len(st.days))
	for _, d := range st.days {
		days = append(days, append([]int(nil), d...))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.best == nil || obj < s.best.obj {
		s.best = &cpSolution{days: days, obj: obj}
	}
}

// evaluate replays an assignment through the constraint set, returning its
// scaled objective and whether it is feasible as a model solution.
func (s *cpSolver) evaluate(a *assignment) (float64, bool) {
	st := s.newState()
	if len(a.days) > s.p.D {
		return 0, false
	}
	for d, day := range a.days {
		if len(day) > s.p.P {
			return 0, false
		}
		for d > st.day {
			if !s.canCloseDay(st) {
				return 0, false
			}
			s.closeDay(st)
		}
		for _, i := range day {
			admissible := false
			for _, c := range s.candidates(st) {
				if c == i {
					admissible = true
					break
				}
			}
			if !admissible || !s.place(st, i) {
				return 0, false
			}
		}
	}
	if st.count != s.p.N {
		return 0, false
	}
	obj := st.obj
	if st.prevInDay >= 0 || st.dayKm > 0 {
		obj += s.dayPenalty(st.dayKm)
	}
	return obj, true
}
