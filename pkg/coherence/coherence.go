// Package coherence scores how well one POI narratively leads into another.
// Scores are in [0,1]; same historical period and close construction dates
// score high, and visiting the earlier period first scores higher than the
// reverse.
package coherence

import (
	"regexp"
	"strconv"
	"strings"

	"wayfarer/pkg/model"
)

// Period ranks in a fixed chronological enumeration. Matching is by
// normalized substring so "Classical Greece" and "classical" agree.
var periodRanks = []struct {
	key  string
	rank int
}{
	{"neolithic", 1},
	{"bronze age", 2},
	{"mycenaean", 2},
	{"archaic", 3},
	{"classical", 4},
	{"hellenistic", 5},
	{"roman", 6},
	{"byzantine", 7},
	{"medieval", 7},
	{"ottoman", 8},
	{"renaissance", 8},
	{"neoclassical", 9},
	{"modern", 10},
	{"contemporary", 11},
}

// PeriodRank returns the chronological rank of a period label, or 0 when
// the label is unknown or empty.
func PeriodRank(label string) int {
	norm := strings.ToLower(strings.TrimSpace(label))
	if norm == "" {
		return 0
	}
	for _, p := range periodRanks {
		if strings.Contains(norm, p.key) {
			return p.rank
		}
	}
	return 0
}

var yearRe = regexp.MustCompile(`(\d+)`)

// ParseYear extracts a signed year from a construction-date string.
// BC years are negative; ranges resolve to their midpoint.
// Returns ok=false when no year is present.
func ParseYear(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	matches := yearRe.FindAllString(s, -1)
	if len(matches) == 0 {
		return 0, false
	}

	bc := containsBC(s)
	var sum float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		if bc {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(matches)), true
}

func containsBC(s string) bool {
	upper := strings.ToUpper(s)
	return strings.Contains(upper, "BC") || strings.Contains(upper, "BCE")
}

// Score computes the directed coherence of visiting a immediately before b.
// Missing periods or dates contribute nothing; they are not penalized.
func Score(a, b *model.POI) float64 {
	if a.Slug == b.Slug {
		return 1.0
	}

	score := 0.0

	ra, rb := PeriodRank(a.Period), PeriodRank(b.Period)
	if ra > 0 && rb > 0 {
		// Chronological-order bonus is asymmetric; the tie case awards at
		// most one of the two, then the same-period bonus stacks on top to
		// favor same-period runs.
		if ra < rb {
			score += 0.4
		} else if ra == rb {
			score += 0.3
		}
		if ra == rb {
			score += 0.3
		}
	}

	ya, okA := ParseYear(a.ConstructionDate)
	yb, okB := ParseYear(b.ConstructionDate)
	if okA && okB {
		diff := ya - yb
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff < 50:
			score += 0.3
		case diff < 200:
			score += 0.2
		case diff < 500:
			score += 0.1
		}
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Matrix holds the pairwise coherence for a POI set, keyed by slug.
type Matrix struct {
	scores map[string]map[string]float64
}

// NewMatrix precomputes all ordered pairs.
func NewMatrix(pois []*model.POI) *Matrix {
	m := &Matrix{scores: make(map[string]map[string]float64, len(pois))}
	for _, a := range pois {
		row := make(map[string]float64, len(pois))
		for _, b := range pois {
			row[b.Slug] = Score(a, b)
		}
		m.scores[a.Slug] = row
	}
	return m
}

// Score returns the coherence of visiting a immediately before b,
// or 0 for unknown slugs.
func (m *Matrix) Score(a, b string) float64 {
	if row, ok := m.scores[a]; ok {
		return row[b]
	}
	return 0
}
