package coherence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wayfarer/pkg/model"
)

func poi(slug, period, date string) *model.POI {
	return &model.POI{Slug: slug, Name: slug, Period: period, ConstructionDate: date}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"447 BC", -447, true},
		{"c. 447 BC", -447, true},
		{"447-432 BC", -439.5, true},
		{"161 AD", 161, true},
		{"1836", 1836, true},
		{"2nd century BC", -2, true}, // crude, but stable
		{"", 0, false},
		{"unknown", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseYear(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.InDelta(t, tt.want, got, 0.01, tt.in)
		}
	}
}

func TestPeriodRankOrdering(t *testing.T) {
	assert.Less(t, PeriodRank("Classical Greece"), PeriodRank("Hellenistic"))
	assert.Less(t, PeriodRank("Hellenistic"), PeriodRank("Roman"))
	assert.Less(t, PeriodRank("Roman"), PeriodRank("Byzantine period"))
	assert.Equal(t, 0, PeriodRank(""))
	assert.Equal(t, 0, PeriodRank("space age"))
}

func TestScoreDiagonal(t *testing.T) {
	a := poi("parthenon", "Classical", "447 BC")
	assert.Equal(t, 1.0, Score(a, a))
}

func TestScoreChronologicalAsymmetry(t *testing.T) {
	classical := poi("parthenon", "Classical", "447 BC")
	roman := poi("hadrians-library", "Roman", "132 AD")

	forward := Score(classical, roman)
	backward := Score(roman, classical)
	assert.Greater(t, forward, backward, "earlier-before-later must score higher")
}

func TestScoreSamePeriodStacks(t *testing.T) {
	a := poi("parthenon", "Classical", "447 BC")
	b := poi("erechtheion", "Classical", "421 BC")

	// 0.3 tie + 0.3 same-period + 0.3 date diff < 50.
	assert.InDelta(t, 0.9, Score(a, b), 0.001)
}

func TestScoreMissingDataIsNeutral(t *testing.T) {
	a := poi("a", "", "")
	b := poi("b", "", "")
	assert.Equal(t, 0.0, Score(a, b))
}

func TestScoreBounds(t *testing.T) {
	pois := []*model.POI{
		poi("a", "Classical", "447 BC"),
		poi("b", "Classical", "432 BC"),
		poi("c", "Roman", "132 AD"),
		poi("d", "", ""),
	}
	m := NewMatrix(pois)
	for _, x := range pois {
		for _, y := range pois {
			s := m.Score(x.Slug, y.Slug)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestMatrixUnknownSlug(t *testing.T) {
	m := NewMatrix(nil)
	assert.Equal(t, 0.0, m.Score("x", "y"))
}
