// Package sequencer turns a selected POI set into a day-by-day itinerary.
// Two backends share one constraint model: a branch-and-bound solver over
// (day, position) slots, and a greedy nearest-neighbor pass with 2-opt
// improvement that doubles as warm start and fallback.
package sequencer

import (
	"fmt"
	"sort"
	"strings"

	"wayfarer/pkg/coherence"
	"wayfarer/pkg/config"
	"wayfarer/pkg/distcache"
	"wayfarer/pkg/fault"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/model"
)

// precedenceThreshold is the coherence above which visiting order becomes a
// hard constraint.
const precedenceThreshold = 0.7

// comboGroup is a must-visit-together group projected onto the selection.
type comboGroup struct {
	id          string
	members     []int // indices into Problem.POIs
	consecutive bool
}

// Problem is the shared constraint model both backends solve.
type Problem struct {
	POIs   []*model.POI
	Params model.PlanParams
	Cfg    config.PlannerConfig

	N int // POI count
	D int // days
	P int // positions per day

	// allowed[i][d][p]: POI i may occupy position p on day d.
	allowed [][][]bool

	// prec[j] lists the POIs that must precede j in the global sequence.
	prec [][]int

	combos []comboGroup

	// anchor is the POI fixed to (0,0) for symmetry breaking, -1 when no
	// POI is admissible there.
	anchor int

	// hintStart and hintEnd are soft endpoint preferences, -1 unset.
	hintStart int
	hintEnd   int

	dist *distcache.Matrix
	coh  *coherence.Matrix

	index map[string]int // slug -> i
}

// NewProblem builds the constraint model. It fails with an Infeasible fault
// when no legal assignment can exist, naming the first violated constraints.
func NewProblem(pois []*model.POI, params model.PlanParams, cfg config.PlannerConfig,
	dist *distcache.Matrix, coh *coherence.Matrix, combos []*model.ComboGroup) (*Problem, error) {

	n := len(pois)
	if n == 0 {
		return nil, fault.New(fault.Invalid, fault.CodeInvalidArgument, "empty POI selection")
	}
	if params.Days <= 0 {
		return nil, fault.New(fault.Invalid, fault.CodeInvalidArgument, "days must be positive, got %d", params.Days)
	}

	p := &Problem{
		POIs:      pois,
		Params:    params,
		Cfg:       cfg,
		N:         n,
		D:         params.Days,
		P:         max(3, (n+params.Days-1)/params.Days+2),
		dist:      dist,
		coh:       coh,
		index:     make(map[string]int, n),
		anchor:    -1,
		hintStart: -1,
		hintEnd:   -1,
	}
	for i, poi := range pois {
		p.index[poi.Slug] = i
	}

	p.buildTimeWindows()
	p.buildPrecedence()
	p.buildCombos(combos)
	p.pickAnchor()

	if violated := p.violations(); len(violated) > 0 {
		code := fault.CodeInfeasible
		if strings.HasPrefix(violated[0], "TIME_WINDOWS_EMPTY") {
			code = fault.CodeTimeWindowsEmpty
		}
		return nil, fault.New(fault.Infeasible, code,
			"no legal assignment: %s", strings.Join(violated, ", "))
	}
	return p, nil
}

// Hints names the POIs closest to the requested start and end locations.
// Either may be empty. Hints nudge the solvers; they never constrain them.
type Hints struct {
	StartPOI string
	EndPOI   string
}

// applyHints registers the endpoint preferences: the start POI becomes the
// symmetry-breaking anchor when slot (0,0) admits it, and the end POI is
// deferred to the tail of the greedy sequence so it lands late on the last
// day.
func (p *Problem) applyHints(h *Hints) {
	if h == nil {
		return
	}
	if h.StartPOI != "" {
		if i, ok := p.lookup(h.StartPOI); ok {
			p.hintStart = i
			if p.allowed[i][0][0] && !p.constrainedElsewhere(i) {
				p.anchor = i
			}
		}
	}
	if h.EndPOI != "" {
		if j, ok := p.lookup(h.EndPOI); ok && j != p.hintStart {
			p.hintEnd = j
		}
	}
}

// checkAssignment verifies a finished assignment against the constraints the
// greedy pass ignores: time windows at the expected arrival slots, group
// day and adjacency requirements, and precedence order.
func (p *Problem) checkAssignment(days [][]int) error {
	rank := make([]int, p.N)
	for i := range rank {
		rank[i] = -1
	}
	next := 0
	for d, day := range days {
		for pos, i := range day {
			if pos >= p.P || !p.allowed[i][d][pos] {
				return fault.New(fault.Infeasible, fault.CodeInfeasibleWindows,
					"%s cannot be visited at day %d position %d", p.POIs[i].Slug, d+1, pos+1)
			}
			rank[i] = next
			next++
		}
	}

	for _, g := range p.combos {
		day := -1
		var positions []int
		for _, m := range g.members {
			md, mpos := locate(days, m)
			if md < 0 {
				continue
			}
			if day >= 0 && md != day {
				return fault.New(fault.Infeasible, fault.CodeInfeasible,
					"combo group %s is split across days", g.id)
			}
			day = md
			positions = append(positions, mpos)
		}
		if g.consecutive && len(positions) > 1 {
			sort.Ints(positions)
			if positions[len(positions)-1]-positions[0] != len(positions)-1 {
				return fault.New(fault.Infeasible, fault.CodeInfeasible,
					"combo group %s is not consecutive", g.id)
			}
		}
	}

	for j := 0; j < p.N; j++ {
		for _, i := range p.prec[j] {
			if rank[i] >= 0 && rank[j] >= 0 && rank[i] > rank[j] {
				return fault.New(fault.Infeasible, fault.CodeInfeasible,
					"%s must be visited before %s", p.POIs[i].Slug, p.POIs[j].Slug)
			}
		}
	}
	return nil
}

func locate(days [][]int, target int) (day, pos int) {
	for d, dd := range days {
		for k, i := range dd {
			if i == target {
				return d, k
			}
		}
	}
	return -1, -1
}

// buildTimeWindows computes allowed[i][d][p] from opening hours and booking
// slots at the expected arrival time t = start + p*slot for the real-world
// weekday of day d.
func (p *Problem) buildTimeWindows() {
	p.allowed = make([][][]bool, p.N)
	for i, poi := range p.POIs {
		p.allowed[i] = make([][]bool, p.D)
		for d := 0; d < p.D; d++ {
			p.allowed[i][d] = make([]bool, p.P)
			dow := p.weekday(d)
			for pos := 0; pos < p.P; pos++ {
				t := p.arrival(pos)
				if !poi.OpeningHours.OpenAt(dow, t) {
					continue
				}
				if poi.Booking != nil && poi.Booking.Required && !poi.Booking.InPreferredSlot(t) {
					continue
				}
				p.allowed[i][d][pos] = true
			}
		}
	}
}

// arrival returns the expected arrival HHMM for a position.
func (p *Problem) arrival(pos int) model.HHMM {
	return model.FromMinutes(p.Cfg.StartMinutes + pos*p.Cfg.AvgSlotMinutes)
}

// weekday maps a tour day index to its real-world weekday (0 = Sunday).
// Without a start date every weekday window is taken at face value via
// Monday, the most common open day.
func (p *Problem) weekday(d int) int {
	if p.Params.StartDate.IsZero() {
		return (1 + d) % 7
	}
	return p.Params.StartDate.AddDays(d).Weekday0Sunday()
}

// buildPrecedence hardens strong coherence into ordering constraints. Only
// asymmetric scores qualify: a same-period pair scores high in both
// directions and carries no ordering information, so constraining it would
// make the model trivially unsatisfiable.
func (p *Problem) buildPrecedence() {
	p.prec = make([][]int, p.N)
	for i, a := range p.POIs {
		for j, b := range p.POIs {
			if i == j {
				continue
			}
			fwd := p.coh.Score(a.Slug, b.Slug)
			if fwd >= precedenceThreshold && fwd > p.coh.Score(b.Slug, a.Slug) {
				p.prec[j] = append(p.prec[j], i)
			}
		}
	}
	// Explicit catalog annotations.
	for j, poi := range p.POIs {
		for _, after := range poi.MustVisitAfter {
			if i, ok := p.lookup(after); ok && i != j {
				p.prec[j] = append(p.prec[j], i)
			}
		}
	}
}

func (p *Problem) lookup(name string) (int, bool) {
	if i, ok := p.index[name]; ok {
		return i, true
	}
	if i, ok := p.index[model.Slugify(name)]; ok {
		return i, true
	}
	for i, poi := range p.POIs {
		if strings.EqualFold(poi.Name, name) {
			return i, true
		}
	}
	return 0, false
}

func (p *Problem) buildCombos(groups []*model.ComboGroup) {
	for _, g := range groups {
		if !g.Constraints.MustVisitTogether && !g.Constraints.SameDayRequired {
			continue
		}
		var members []int
		for _, name := range g.Members {
			if i, ok := p.lookup(name); ok {
				members = append(members, i)
			}
		}
		if len(members) < 2 {
			continue
		}
		p.combos = append(p.combos, comboGroup{
			id:          g.ID,
			members:     members,
			consecutive: g.Constraints.TicketType == model.ComboSameDayConsecutive,
		})
	}
}

// pickAnchor chooses the symmetry-breaking POI for slot (0,0): the first
// must-see admissible there, otherwise the first admissible POI.
func (p *Problem) pickAnchor() {
	for _, name := range p.Params.MustSee {
		if i, ok := p.lookup(name); ok && p.allowed[i][0][0] && !p.constrainedElsewhere(i) {
			p.anchor = i
			return
		}
	}
	for i := 0; i < p.N; i++ {
		if p.allowed[i][0][0] && !p.constrainedElsewhere(i) {
			p.anchor = i
			return
		}
	}
}

// constrainedElsewhere reports whether fixing i at (0,0) would conflict with
// a precedence predecessor.
func (p *Problem) constrainedElsewhere(i int) bool {
	return len(p.prec[i]) > 0
}

// violations returns the first three structurally violated constraints, or
// nil when the model may still have a solution.
func (p *Problem) violations() []string {
	var out []string
	add := func(s string) bool {
		out = append(out, s)
		return len(out) >= 3
	}

	if p.N > p.D*p.P {
		if add(fmt.Sprintf("SLOT_CAPACITY(%d POIs, %d slots)", p.N, p.D*p.P)) {
			return out
		}
	}
	for i, poi := range p.POIs {
		open := false
		for d := 0; d < p.D && !open; d++ {
			for pos := 0; pos < p.P; pos++ {
				if p.allowed[i][d][pos] {
					open = true
					break
				}
			}
		}
		if !open {
			if add(fmt.Sprintf("TIME_WINDOWS_EMPTY(%s)", poi.Slug)) {
				return out
			}
		}
	}
	if p.precedenceCycle() {
		add("PRECEDENCE_CYCLE")
	}
	return out
}

// precedenceCycle detects a cycle in the precedence graph with a DFS.
func (p *Problem) precedenceCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, p.N)
	var visit func(int) bool
	visit = func(j int) bool {
		color[j] = gray
		for _, i := range p.prec[j] {
			switch color[i] {
			case gray:
				return true
			case white:
				if visit(i) {
					return true
				}
			}
		}
		color[j] = black
		return false
	}
	for j := 0; j < p.N; j++ {
		if color[j] == white && visit(j) {
			return true
		}
	}
	return false
}

// km returns the walking distance between two POIs, falling back to the
// conservative default when the pair is not cached.
func (p *Problem) km(i, j int) float64 {
	if i == j {
		return 0
	}
	e, err := p.dist.Lookup(p.POIs[i].Slug, p.POIs[j].Slug, geo.ModeWalking)
	if err != nil {
		return p.Cfg.UnknownPairKm
	}
	return e.DistanceKm
}

// walkMinutes returns the walking time between two POIs, estimated from the
// configured walking speed when the pair is not cached.
func (p *Problem) walkMinutes(i, j int) float64 {
	if i == j {
		return 0
	}
	e, err := p.dist.Lookup(p.POIs[i].Slug, p.POIs[j].Slug, geo.ModeWalking)
	if err != nil {
		return p.Cfg.UnknownPairKm / p.Cfg.WalkSpeedKmh * 60
	}
	if e.DurationMinutes > 0 {
		return e.DurationMinutes
	}
	return e.DistanceKm / p.Cfg.WalkSpeedKmh * 60
}

// coherenceOf returns the directed coherence between two POIs by index.
func (p *Problem) coherenceOf(i, j int) float64 {
	return p.coh.Score(p.POIs[i].Slug, p.POIs[j].Slug)
}

// normalizedWeights returns the distance and coherence weights scaled to sum
// to one.
func (p *Problem) normalizedWeights() (wd, wc float64) {
	wd, wc = p.Cfg.DistanceWeight, p.Cfg.CoherenceWeight
	sum := wd + wc
	if sum <= 0 {
		return 0.5, 0.5
	}
	return wd / sum, wc / sum
}
