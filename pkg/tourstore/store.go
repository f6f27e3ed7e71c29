// Package tourstore owns the versioned tour artifacts on disk.
//
// Layout: tours/<city-slug>/<tour-id>/ holding metadata.json, the current
// tour_<L>.json per language, every historical tour_<vN_date>_<L>.json with
// its generation_record_<vN_date>_<L>.json, and transcript_links_<L>.json.
//
// The current_version pointer in metadata.json is advanced only after the
// versioned file and generation record for the new version exist, so a
// failed write never invalidates the canonical current version.
package tourstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"wayfarer/pkg/fault"
	"wayfarer/pkg/model"
)

// Store manages all tours under a root directory.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir (typically "tours").
func NewStore(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}
}

// Create persists version 1 of a new tour for its language.
func (s *Store) Create(tour *model.Tour, rec *GenerationRecord, user string) error {
	dir := filepath.Join(s.root, model.Slugify(tour.City), tour.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Wrap(fault.IO, fault.CodeIO, err, "failed to create tour directory")
	}

	unlock, err := s.lockTour(tour.ID, dir)
	if err != nil {
		return err
	}
	defer unlock()

	meta, err := s.readMetadata(dir)
	if err != nil {
		if !os.IsNotExist(errCause(err)) {
			return err
		}
		now := time.Now().UTC()
		meta = &Metadata{
			ID:        tour.ID,
			City:      model.Slugify(tour.City),
			Languages: make(map[string]*LanguageState),
			CreatedBy: user,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if _, exists := meta.Languages[tour.Language]; exists {
		return fault.New(fault.Conflict, fault.CodeConflict,
			"tour %s already has language %s", tour.ID, tour.Language)
	}
	return s.commitVersion(dir, meta, tour, rec, user, 1)
}

// AppendVersion writes version N+1 for an existing (tour, language).
func (s *Store) AppendVersion(id, language string, tour *model.Tour, rec *GenerationRecord, user string) (int, error) {
	dir, err := s.findTourDir(id)
	if err != nil {
		return 0, err
	}
	unlock, err := s.lockTour(id, dir)
	if err != nil {
		return 0, err
	}
	defer unlock()

	meta, err := s.readMetadata(dir)
	if err != nil {
		return 0, err
	}
	state, ok := meta.Languages[language]
	if !ok {
		return 0, fault.New(fault.NotFound, fault.CodeLanguageNotFound,
			"tour %s has no language %s", id, language)
	}

	next := state.CurrentVersion + 1
	if err := s.commitVersion(dir, meta, tour, rec, user, next); err != nil {
		return 0, err
	}
	return next, nil
}

// commitVersion writes the versioned artifacts, then advances the pointer,
// then refreshes the current-language convenience copy. Caller holds the
// tour lock.
func (s *Store) commitVersion(dir string, meta *Metadata, tour *model.Tour, rec *GenerationRecord, user string, version int) error {
	now := time.Now().UTC()
	vstr := versionString(version, now)
	lang := tour.Language
	tour.Version = version

	if rec == nil {
		rec = &GenerationRecord{}
	}
	rec.Version = version
	rec.VersionString = vstr
	rec.Language = lang
	rec.Params = tour.Params
	rec.ParamsHash = tour.Params.Hash()
	rec.Scores = tour.Scores
	rec.SolverStats = tour.SolverStats
	rec.CreatedAt = now

	if err := writeJSON(filepath.Join(dir, fmt.Sprintf("tour_%s_%s.json", vstr, lang)), tour); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, fmt.Sprintf("generation_record_%s_%s.json", vstr, lang)), rec); err != nil {
		return err
	}

	state, ok := meta.Languages[lang]
	if !ok {
		state = &LanguageState{}
		meta.Languages[lang] = state
	}
	state.CurrentVersion = version
	state.VersionHistory = append(state.VersionHistory, VersionEntry{
		Version:              version,
		VersionString:        vstr,
		Timestamp:            now,
		ParamsHash:           rec.ParamsHash,
		OverallScore:         tour.Scores.OverallScore,
		ConstraintViolations: rec.ConstraintViolations,
		User:                 user,
	})
	meta.UpdatedAt = now
	if err := writeJSON(filepath.Join(dir, "metadata.json"), meta); err != nil {
		return err
	}

	return writeJSON(filepath.Join(dir, fmt.Sprintf("tour_%s.json", lang)), tour)
}

// Load returns the current tour document for a language.
func (s *Store) Load(id, language string) (*model.Tour, error) {
	dir, err := s.findTourDir(id)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMetadata(dir)
	if err != nil {
		return nil, err
	}
	state, ok := meta.Languages[language]
	if !ok {
		return nil, fault.New(fault.NotFound, fault.CodeLanguageNotFound,
			"tour %s has no language %s", id, language)
	}
	return s.loadVersionFrom(dir, meta, language, state.CurrentVersion)
}

// LoadVersion returns a specific historical version.
func (s *Store) LoadVersion(id, language string, version int) (*model.Tour, error) {
	dir, err := s.findTourDir(id)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMetadata(dir)
	if err != nil {
		return nil, err
	}
	if _, ok := meta.Languages[language]; !ok {
		return nil, fault.New(fault.NotFound, fault.CodeLanguageNotFound,
			"tour %s has no language %s", id, language)
	}
	return s.loadVersionFrom(dir, meta, language, version)
}

func (s *Store) loadVersionFrom(dir string, meta *Metadata, language string, version int) (*model.Tour, error) {
	vstr, ok := findVersionString(meta, language, version)
	if !ok {
		return nil, fault.New(fault.NotFound, fault.CodeVersionNotFound,
			"tour %s has no version %d for %s", meta.ID, version, language)
	}
	var tour model.Tour
	if err := readJSON(filepath.Join(dir, fmt.Sprintf("tour_%s_%s.json", vstr, language)), &tour); err != nil {
		return nil, err
	}
	return &tour, nil
}

func findVersionString(meta *Metadata, language string, version int) (string, bool) {
	state, ok := meta.Languages[language]
	if !ok {
		return "", false
	}
	for _, e := range state.VersionHistory {
		if e.Version == version {
			return e.VersionString, true
		}
	}
	return "", false
}

// Metadata returns the tour's identity document.
func (s *Store) Metadata(id string) (*Metadata, error) {
	dir, err := s.findTourDir(id)
	if err != nil {
		return nil, err
	}
	return s.readMetadata(dir)
}

// GenerationRecord returns the record for a specific version.
func (s *Store) GenerationRecord(id, language string, version int) (*GenerationRecord, error) {
	dir, err := s.findTourDir(id)
	if err != nil {
		return nil, err
	}
	meta, err := s.readMetadata(dir)
	if err != nil {
		return nil, err
	}
	vstr, ok := findVersionString(meta, language, version)
	if !ok {
		return nil, fault.New(fault.NotFound, fault.CodeVersionNotFound,
			"tour %s has no version %d for %s", id, version, language)
	}
	var rec GenerationRecord
	if err := readJSON(filepath.Join(dir, fmt.Sprintf("generation_record_%s_%s.json", vstr, language)), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// AuthoritativeBackups returns the backup map to consult for replacements:
// the tour document once a replacement has produced version 2 or later,
// otherwise the original generation record.
func (s *Store) AuthoritativeBackups(id, language string) (map[string][]model.BackupCandidate, error) {
	tour, err := s.Load(id, language)
	if err != nil {
		return nil, err
	}
	if tour.Version <= 1 {
		rec, err := s.GenerationRecord(id, language, tour.Version)
		if err == nil && rec.Selection != nil && rec.Selection.BackupPOIs != nil {
			return rec.Selection.BackupPOIs, nil
		}
	}
	return tour.BackupPOIs, nil
}

// SaveTranscriptLinks replaces the link records for a language.
func (s *Store) SaveTranscriptLinks(id, language string, links []model.TranscriptLink) error {
	dir, err := s.findTourDir(id)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, fmt.Sprintf("transcript_links_%s.json", language)), links)
}

// TranscriptLinks returns the link records for a language; absent files
// yield an empty list.
func (s *Store) TranscriptLinks(id, language string) ([]model.TranscriptLink, error) {
	dir, err := s.findTourDir(id)
	if err != nil {
		return nil, err
	}
	var links []model.TranscriptLink
	path := filepath.Join(dir, fmt.Sprintf("transcript_links_%s.json", language))
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil, nil
	}
	if err := readJSON(path, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// List enumerates all tours, optionally filtered by city, sorted by
// updated_at descending.
func (s *Store) List(city string) ([]Summary, error) {
	cities, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.IO, fault.CodeIO, err, "failed to read tour root")
	}

	var out []Summary
	for _, c := range cities {
		if !c.IsDir() {
			continue
		}
		if city != "" && c.Name() != model.Slugify(city) {
			continue
		}
		tours, err := os.ReadDir(filepath.Join(s.root, c.Name()))
		if err != nil {
			continue
		}
		for _, t := range tours {
			if !t.IsDir() {
				continue
			}
			meta, err := s.readMetadata(filepath.Join(s.root, c.Name(), t.Name()))
			if err != nil {
				continue
			}
			sum := Summary{
				ID:        meta.ID,
				City:      meta.City,
				Languages: make(map[string]LanguageSummary, len(meta.Languages)),
				CreatedAt: meta.CreatedAt,
				UpdatedAt: meta.UpdatedAt,
			}
			for lang, state := range meta.Languages {
				ls := LanguageSummary{CurrentVersion: state.CurrentVersion}
				if n := len(state.VersionHistory); n > 0 {
					last := state.VersionHistory[n-1]
					ls.VersionString = last.VersionString
					ls.UpdatedAt = last.Timestamp
					ls.OverallScore = last.OverallScore
				}
				sum.Languages[lang] = ls
			}
			out = append(out, sum)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// lockTour serializes writers on a tour: an in-process mutex plus an on-disk
// lock file guarding against other processes.
func (s *Store) lockTour(id, dir string) (func(), error) {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()
	m.Lock()

	lockPath := filepath.Join(dir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		m.Unlock()
		if os.IsExist(err) {
			return nil, fault.New(fault.Conflict, fault.CodeConflict,
				"tour %s is being edited by another process", id)
		}
		return nil, fault.Wrap(fault.IO, fault.CodeIO, err, "failed to acquire tour lock")
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() {
		os.Remove(lockPath)
		m.Unlock()
	}, nil
}

// findTourDir locates a tour directory by scanning the per-city dirs.
func (s *Store) findTourDir(id string) (string, error) {
	cities, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fault.New(fault.NotFound, fault.CodeTourNotFound, "tour %s not found", id)
		}
		return "", fault.Wrap(fault.IO, fault.CodeIO, err, "failed to read tour root")
	}
	for _, c := range cities {
		if !c.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, c.Name(), id)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fault.New(fault.NotFound, fault.CodeTourNotFound, "tour %s not found", id)
}

func (s *Store) readMetadata(dir string) (*Metadata, error) {
	var meta Metadata
	if err := readJSON(filepath.Join(dir, "metadata.json"), &meta); err != nil {
		return nil, err
	}
	if meta.Languages == nil {
		meta.Languages = make(map[string]*LanguageState)
	}
	return &meta, nil
}

// writeJSON writes atomically via a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fault.Wrap(fault.IO, fault.CodeIO, err, "failed to encode %s", filepath.Base(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fault.Wrap(fault.IO, fault.CodeIO, err, "failed to write %s", filepath.Base(path))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fault.Wrap(fault.IO, fault.CodeIO, err, "failed to commit %s", filepath.Base(path))
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fault.Wrap(fault.NotFound, fault.CodeTourNotFound, err, "missing %s", filepath.Base(path))
		}
		return fault.Wrap(fault.IO, fault.CodeIO, err, "failed to read %s", filepath.Base(path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fault.Wrap(fault.IO, fault.CodeIO, err, "failed to decode %s", filepath.Base(path))
	}
	return nil
}

// errCause unwraps a fault to its underlying error for os.IsNotExist checks.
func errCause(err error) error {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*fault.Error); ok && fe.Err != nil {
		return fe.Err
	}
	return err
}
