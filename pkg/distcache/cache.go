// Package distcache memoizes pairwise travel times per city and mode. A
// matrix grows incrementally: extend computes only the rows and columns a new
// POI adds, which keeps replacement edits off the quadratic path.
package distcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wayfarer/pkg/db"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/model"
)

// ErrMiss marks a pair absent from the matrix.
var ErrMiss = errors.New("distance pair not cached")

// Entry is the per-mode travel estimate for an ordered pair.
type Entry struct {
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
}

type pairKey struct {
	origin string
	dest   string
	mode   geo.Mode
}

// Matrix holds the cached pairs for one city.
type Matrix struct {
	City        string
	GeneratedAt time.Time
	POICount    int

	mu    sync.RWMutex
	pairs map[pairKey]Entry
}

// NewMatrix creates an empty matrix for a city.
func NewMatrix(city string) *Matrix {
	return &Matrix{City: city, pairs: make(map[pairKey]Entry)}
}

// Lookup returns the cached entry for an ordered pair, or ErrMiss.
func (m *Matrix) Lookup(origin, dest string, mode geo.Mode) (Entry, error) {
	if origin == dest {
		return Entry{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.pairs[pairKey{origin, dest, mode}]
	if !ok {
		return Entry{}, fmt.Errorf("%s -> %s (%s): %w", origin, dest, mode, ErrMiss)
	}
	return e, nil
}

// Has reports whether the ordered pair is cached.
func (m *Matrix) Has(origin, dest string, mode geo.Mode) bool {
	if origin == dest {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pairs[pairKey{origin, dest, mode}]
	return ok
}

// Len returns the number of cached pairs across all modes.
func (m *Matrix) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pairs)
}

func (m *Matrix) put(origin, dest string, mode geo.Mode, e Entry) {
	m.mu.Lock()
	m.pairs[pairKey{origin, dest, mode}] = e
	m.mu.Unlock()
}

// Entries returns a snapshot of all walking pairs, for bundling into a tour.
func (m *Matrix) Entries() []model.DistanceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.DistanceEntry, 0, len(m.pairs))
	for k, e := range m.pairs {
		if k.mode != geo.ModeWalking {
			continue
		}
		out = append(out, model.DistanceEntry{
			Origin:          k.origin,
			Dest:            k.dest,
			Mode:            string(k.mode),
			DurationMinutes: e.DurationMinutes,
			DistanceKm:      e.DistanceKm,
		})
	}
	return out
}

// Seed merges pre-known walking pairs, typically the bundle stored with a
// tour, without touching the provider.
func (m *Matrix) Seed(entries []model.DistanceEntry) {
	for _, e := range entries {
		mode := geo.Mode(e.Mode)
		if mode == "" {
			mode = geo.ModeWalking
		}
		m.put(e.Origin, e.Dest, mode, Entry{
			DurationMinutes: e.DurationMinutes,
			DistanceKm:      e.DistanceKm,
		})
	}
}

// Cache coordinates matrix computation and sqlite persistence. Access is
// serialized per city.
type Cache struct {
	db *db.DB

	mu     sync.Mutex
	cities map[string]*sync.Mutex
}

// New creates a Cache backed by the given database. db may be nil, in which
// case load and persist become no-ops and the cache is memory-only.
func New(database *db.DB) *Cache {
	return &Cache{db: database, cities: make(map[string]*sync.Mutex)}
}

func (c *Cache) cityLock(city string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.cities[city]
	if !ok {
		l = &sync.Mutex{}
		c.cities[city] = l
	}
	return l
}

// Load reads the persisted matrix for a city. A city with no rows yields an
// empty matrix, not an error.
func (c *Cache) Load(city string) (*Matrix, error) {
	m := NewMatrix(city)
	if c.db == nil {
		return m, nil
	}
	lock := c.cityLock(city)
	lock.Lock()
	defer lock.Unlock()

	rows, err := c.db.Query(
		`SELECT origin, dest, mode, duration_min, distance_km FROM distance_pair WHERE city = ?`, city)
	if err != nil {
		return nil, fmt.Errorf("failed to load distance pairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var origin, dest, mode string
		var e Entry
		if err := rows.Scan(&origin, &dest, &mode, &e.DurationMinutes, &e.DistanceKm); err != nil {
			return nil, fmt.Errorf("failed to scan distance pair: %w", err)
		}
		m.put(origin, dest, geo.Mode(mode), e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var generatedAt sql.NullTime
	var count sql.NullInt64
	err = c.db.QueryRow(
		`SELECT generated_at, poi_count FROM distance_matrix_meta WHERE city = ?`, city).
		Scan(&generatedAt, &count)
	if err == nil {
		if generatedAt.Valid {
			m.GeneratedAt = generatedAt.Time
		}
		m.POICount = int(count.Int64)
	}
	return m, nil
}

// ComputeAll fills the full N×N walking matrix for the POI set, batching
// provider calls at geo.MaxBatch per dimension. POIs without coordinates are
// skipped; their pairs stay missing.
func (c *Cache) ComputeAll(ctx context.Context, city string, pois []*model.POI, provider geo.Provider) (*Matrix, error) {
	m := NewMatrix(city)
	located := locatedOnly(pois)
	if err := c.compute(ctx, m, located, located, provider); err != nil {
		return nil, err
	}
	m.GeneratedAt = time.Now().UTC()
	m.POICount = len(located)
	return m, nil
}

// Extend computes only newPOI ↔ existing pairs and merges them into the
// matrix. Pairs already present are not re-queried, so repeated calls with
// the same POI are cheap and the matrix converges.
func (c *Cache) Extend(ctx context.Context, m *Matrix, newPOI *model.POI, existing []*model.POI, provider geo.Provider) error {
	if newPOI.Location == nil || !newPOI.Location.Valid() {
		slog.Warn("cannot extend distance matrix, poi has no coordinates", "poi", newPOI.Slug)
		return nil
	}

	var missing []*model.POI
	for _, p := range existing {
		if p.Slug == newPOI.Slug || p.Location == nil || !p.Location.Valid() {
			continue
		}
		if !m.Has(newPOI.Slug, p.Slug, geo.ModeWalking) || !m.Has(p.Slug, newPOI.Slug, geo.ModeWalking) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	one := []*model.POI{newPOI}
	if err := c.compute(ctx, m, one, missing, provider); err != nil {
		return err
	}
	if err := c.compute(ctx, m, missing, one, provider); err != nil {
		return err
	}
	m.POICount++
	return nil
}

// compute fills origins×destinations in chunks of at most geo.MaxBatch.
func (c *Cache) compute(ctx context.Context, m *Matrix, origins, destinations []*model.POI, provider geo.Provider) error {
	for oi := 0; oi < len(origins); oi += geo.MaxBatch {
		oEnd := min(oi+geo.MaxBatch, len(origins))
		oChunk := origins[oi:oEnd]
		for di := 0; di < len(destinations); di += geo.MaxBatch {
			dEnd := min(di+geo.MaxBatch, len(destinations))
			dChunk := destinations[di:dEnd]

			elements, err := provider.DistanceMatrix(ctx, points(oChunk), points(dChunk), geo.ModeWalking)
			if err != nil {
				return fmt.Errorf("distance matrix chunk failed: %w", err)
			}
			for i, row := range elements {
				for j, el := range row {
					if oChunk[i].Slug == dChunk[j].Slug {
						continue
					}
					if !el.OK() {
						slog.Warn("distance pair unavailable",
							"origin", oChunk[i].Slug, "dest", dChunk[j].Slug, "status", el.Status)
						continue
					}
					m.put(oChunk[i].Slug, dChunk[j].Slug, geo.ModeWalking, Entry{
						DurationMinutes: el.DurationSeconds / 60.0,
						DistanceKm:      el.DistanceMeters / 1000.0,
					})
				}
			}
		}
	}
	return nil
}

// Persist writes the matrix to sqlite, replacing prior rows per pair.
func (c *Cache) Persist(city string, m *Matrix) error {
	if c.db == nil {
		return nil
	}
	lock := c.cityLock(city)
	lock.Lock()
	defer lock.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO distance_pair (city, origin, dest, mode, duration_min, distance_km)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	m.mu.RLock()
	for k, e := range m.pairs {
		if _, err := stmt.Exec(city, k.origin, k.dest, string(k.mode), e.DurationMinutes, e.DistanceKm); err != nil {
			m.mu.RUnlock()
			return fmt.Errorf("failed to insert pair: %w", err)
		}
	}
	m.mu.RUnlock()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO distance_matrix_meta (city, generated_at, poi_count) VALUES (?, ?, ?)`,
		city, m.GeneratedAt, m.POICount); err != nil {
		return fmt.Errorf("failed to update matrix meta: %w", err)
	}
	return tx.Commit()
}

func locatedOnly(pois []*model.POI) []*model.POI {
	out := make([]*model.POI, 0, len(pois))
	for _, p := range pois {
		if p.Location != nil && p.Location.Valid() {
			out = append(out, p)
		} else {
			slog.Warn("poi excluded from distance matrix, no coordinates", "poi", p.Slug)
		}
	}
	return out
}

func points(pois []*model.POI) []model.GeoPoint {
	out := make([]model.GeoPoint, len(pois))
	for i, p := range pois {
		out[i] = *p.Location
	}
	return out
}
