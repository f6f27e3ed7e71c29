package tourstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/pkg/fault"
	"wayfarer/pkg/model"
)

func sampleTour(id, language string) *model.Tour {
	return &model.Tour{
		ID:       id,
		City:     "rome",
		Language: language,
		Days: []model.Day{{
			Number: 1,
			Visits: []model.Visit{
				{POI: "Colosseum", Slug: "colosseum", EstimatedHours: 2.5},
				{POI: "Roman Forum", Slug: "roman-forum", EstimatedHours: 2},
			},
		}},
		Scores: model.Scores{DistanceScore: 0.9, CoherenceScore: 0.8, OverallScore: 0.85, TotalDistanceKm: 1.2},
		Params: model.PlanParams{City: "rome", Days: 1, Pace: model.PaceNormal, Language: language},
		BackupPOIs: map[string][]model.BackupCandidate{
			"Colosseum": {{POI: "Pantheon", SimilarityScore: 0.8, Reason: "same period"}},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "tours")
	return NewStore(root), root
}

func TestCreateAndLoad(t *testing.T) {
	store, root := newTestStore(t)
	id := model.NewTourID("rome", time.Now())
	tour := sampleTour(id, "en")

	require.NoError(t, store.Create(tour, &GenerationRecord{}, "tester"))

	loaded, err := store.Load(id, "en")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, tour.POINames(), loaded.POINames())

	// Canonical file layout.
	dir := filepath.Join(root, "rome", id)
	for _, name := range []string{"metadata.json", "tour_en.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "tour_v1_*_en.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	matches, err = filepath.Glob(filepath.Join(dir, "generation_record_v1_*_en.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLoadNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Load("rome-tour-20260101-000000-abcdef", "en")
	assert.Equal(t, fault.CodeTourNotFound, fault.CodeOf(err))
}

func TestLoadUnknownLanguage(t *testing.T) {
	store, _ := newTestStore(t)
	id := model.NewTourID("rome", time.Now())
	require.NoError(t, store.Create(sampleTour(id, "en"), nil, ""))

	_, err := store.Load(id, "fr")
	assert.Equal(t, fault.CodeLanguageNotFound, fault.CodeOf(err))
}

// Property 8: versions are contiguous from 1 with non-decreasing timestamps.
func TestVersionMonotonicity(t *testing.T) {
	store, _ := newTestStore(t)
	id := model.NewTourID("rome", time.Now())
	require.NoError(t, store.Create(sampleTour(id, "en"), nil, ""))

	for i := 0; i < 3; i++ {
		v, err := store.AppendVersion(id, "en", sampleTour(id, "en"), nil, "editor")
		require.NoError(t, err)
		assert.Equal(t, i+2, v)
	}

	meta, err := store.Metadata(id)
	require.NoError(t, err)
	state := meta.Languages["en"]
	require.NotNil(t, state)
	assert.Equal(t, 4, state.CurrentVersion)
	require.Len(t, state.VersionHistory, 4)
	for i, e := range state.VersionHistory {
		assert.Equal(t, i+1, e.Version)
		if i > 0 {
			assert.False(t, e.Timestamp.Before(state.VersionHistory[i-1].Timestamp))
		}
	}

	// Every historical version stays loadable.
	for v := 1; v <= 4; v++ {
		tour, err := store.LoadVersion(id, "en", v)
		require.NoError(t, err)
		assert.Equal(t, v, tour.Version)
	}
	_, err = store.LoadVersion(id, "en", 5)
	assert.Equal(t, fault.CodeVersionNotFound, fault.CodeOf(err))
}

// S6: languages version independently with no cross-contamination.
func TestLanguageIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	id := model.NewTourID("rome", time.Now())
	require.NoError(t, store.Create(sampleTour(id, "en"), nil, ""))
	require.NoError(t, store.Create(sampleTour(id, "zh-tw"), nil, ""))

	require.NoError(t, store.SaveTranscriptLinks(id, "en", []model.TranscriptLink{
		{POI: "Colosseum", POIID: "colosseum", TranscriptPath: "t/colosseum_en.json", TranscriptVersion: 1, TranscriptType: model.TranscriptStandard},
	}))

	_, err := store.AppendVersion(id, "en", sampleTour(id, "en"), nil, "")
	require.NoError(t, err)

	meta, err := store.Metadata(id)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Languages["en"].CurrentVersion)
	assert.Equal(t, 1, meta.Languages["zh-tw"].CurrentVersion)
	assert.Len(t, meta.Languages, 2)

	links, err := store.TranscriptLinks(id, "zh-tw")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestCreateDuplicateLanguageConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	id := model.NewTourID("rome", time.Now())
	require.NoError(t, store.Create(sampleTour(id, "en"), nil, ""))

	err := store.Create(sampleTour(id, "en"), nil, "")
	assert.Equal(t, fault.CodeConflict, fault.CodeOf(err))
}

func TestAuthoritativeBackups(t *testing.T) {
	store, _ := newTestStore(t)
	id := model.NewTourID("rome", time.Now())

	tour := sampleTour(id, "en")
	rec := &GenerationRecord{Selection: &model.SelectionDecision{
		BackupPOIs: map[string][]model.BackupCandidate{
			"Colosseum": {{POI: "Palatine Hill", SimilarityScore: 0.9, Reason: "from selection"}},
		},
	}}
	require.NoError(t, store.Create(tour, rec, ""))

	// Version 1: the generation record wins.
	backups, err := store.AuthoritativeBackups(id, "en")
	require.NoError(t, err)
	assert.Equal(t, "Palatine Hill", backups["Colosseum"][0].POI)

	// After an edit the tour document wins.
	edited := sampleTour(id, "en")
	edited.BackupPOIs = map[string][]model.BackupCandidate{
		"Colosseum": {{POI: "Pantheon", SimilarityScore: 1.0, Reason: "can swap back"}},
	}
	_, err = store.AppendVersion(id, "en", edited, nil, "")
	require.NoError(t, err)

	backups, err = store.AuthoritativeBackups(id, "en")
	require.NoError(t, err)
	assert.Equal(t, "Pantheon", backups["Colosseum"][0].POI)
}

func TestListSortedByUpdate(t *testing.T) {
	store, _ := newTestStore(t)

	first := model.NewTourID("rome", time.Now())
	require.NoError(t, store.Create(sampleTour(first, "en"), nil, ""))

	second := model.NewTourID("athens", time.Now())
	athens := sampleTour(second, "en")
	athens.City = "athens"
	require.NoError(t, store.Create(athens, nil, ""))

	// Touch the first tour again so it sorts to the top.
	_, err := store.AppendVersion(first, "en", sampleTour(first, "en"), nil, "")
	require.NoError(t, err)

	all, err := store.List("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)

	romeOnly, err := store.List("rome")
	require.NoError(t, err)
	require.Len(t, romeOnly, 1)
	assert.Equal(t, first, romeOnly[0].ID)
}
