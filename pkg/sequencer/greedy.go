package sequencer

// greedyScoreRangeKm normalizes distance in the nearest-neighbor score: a
// candidate 5 km away scores zero on the distance term.
const greedyScoreRangeKm = 5.0

// assignment is a solved itinerary as POI indices per day.
type assignment struct {
	days [][]int
}

// order flattens the assignment into the global visit sequence.
func (a *assignment) order() []int {
	var out []int
	for _, day := range a.days {
		out = append(out, day...)
	}
	return out
}

// Greedy builds an itinerary with nearest-neighbor construction, 2-opt
// improvement, and greedy day partitioning. It ignores the hard constraint
// set; callers use it as warm start, simple-mode backend, and solver
// fallback.
func (p *Problem) Greedy() *assignment {
	seq := p.nearestNeighbor()
	if n := len(seq); p.hintEnd >= 0 && n > 2 && seq[n-1] == p.hintEnd {
		// The end hint stays in the last slot; 2-opt runs on the rest.
		seq = append(p.twoOpt(seq[:n-1]), p.hintEnd)
	} else {
		seq = p.twoOpt(seq)
	}
	return p.partition(seq)
}

// nearestNeighbor starts from the start hint or the highest-priority POI and
// repeatedly picks the unvisited POI maximizing the weighted
// distance/coherence score. The end hint is deferred to the final slot.
func (p *Problem) nearestNeighbor() []int {
	start := 0
	if p.hintStart >= 0 {
		start = p.hintStart
	} else {
		for _, name := range p.Params.MustSee {
			if i, ok := p.lookup(name); ok {
				start = i
				break
			}
		}
	}

	wd, wc := p.normalizedWeights()
	visited := make([]bool, p.N)
	seq := make([]int, 0, p.N)
	seq = append(seq, start)
	visited[start] = true

	for len(seq) < p.N {
		cur := seq[len(seq)-1]
		best, bestScore := -1, 0.0
		for cand := 0; cand < p.N; cand++ {
			if visited[cand] {
				continue
			}
			if cand == p.hintEnd && len(seq) < p.N-1 {
				continue
			}
			score := wd*(1-p.km(cur, cand)/greedyScoreRangeKm) + wc*p.coherenceOf(cur, cand)
			if best == -1 || score > bestScore {
				best, bestScore = cand, score
			}
		}
		seq = append(seq, best)
		visited[best] = true
	}
	return seq
}

// twoOpt applies first-improvement 2-opt passes over the sequence, using
// total walking distance as the objective, until a pass finds nothing or the
// pass budget runs out.
func (p *Problem) twoOpt(seq []int) []int {
	n := len(seq)
	if n < 4 {
		return seq
	}

	for pass := 0; pass < p.Cfg.TwoOptPasses; pass++ {
		improved := false
		for i := 0; i < n-2; i++ {
			for j := i + 2; j < n; j++ {
				// Reversing seq[i+1..j] replaces edges (i,i+1) and (j,j+1).
				delta := p.km(seq[i], seq[j]) - p.km(seq[i], seq[i+1])
				if j+1 < n {
					delta += p.km(seq[i+1], seq[j+1]) - p.km(seq[j], seq[j+1])
				}
				if delta < -1e-9 {
					reverse(seq, i+1, j)
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return seq
}

func reverse(seq []int, i, j int) {
	for i < j {
		seq[i], seq[j] = seq[j], seq[i]
		i++
		j--
	}
}

// partition walks the sequence and starts a new day whenever adding the next
// POI would exceed the pace's hour budget including walking time. Days never
// exceed the trip length; overflow lands on the last day.
func (p *Problem) partition(seq []int) *assignment {
	budget := p.Params.Pace.HoursPerDay()
	a := &assignment{days: make([][]int, 1, p.D)}

	day := 0
	var hours float64
	for k, i := range seq {
		h := p.POIs[i].VisitHours()
		if k > 0 {
			h += p.walkMinutes(seq[k-1], i) / 60
		}
		if len(a.days[day]) > 0 && hours+h > budget && day < p.D-1 {
			day++
			a.days = append(a.days, nil)
			hours = 0
			h = p.POIs[i].VisitHours()
		}
		a.days[day] = append(a.days[day], i)
		hours += h
	}
	return a
}
