package distcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/pkg/db"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/model"
)

// countingProvider wraps the haversine estimator and counts matrix calls.
type countingProvider struct {
	inner geo.Provider
	calls atomic.Int32
}

func (c *countingProvider) PlaceDetails(ctx context.Context, name, city string) (*geo.PlaceDetails, error) {
	return c.inner.PlaceDetails(ctx, name, city)
}

func (c *countingProvider) Geocode(ctx context.Context, name, city string) (*model.GeoPoint, error) {
	return c.inner.Geocode(ctx, name, city)
}

func (c *countingProvider) DistanceMatrix(ctx context.Context, origins, destinations []model.GeoPoint, mode geo.Mode) ([][]geo.MatrixElement, error) {
	c.calls.Add(1)
	return c.inner.DistanceMatrix(ctx, origins, destinations, mode)
}

func testPOIs(n int) []*model.POI {
	pois := make([]*model.POI, n)
	for i := range pois {
		pois[i] = &model.POI{
			Slug: fmt.Sprintf("poi-%02d", i),
			Name: fmt.Sprintf("POI %02d", i),
			Location: &model.GeoPoint{
				Lat: 41.89 + float64(i)*0.003,
				Lon: 12.49 + float64(i)*0.002,
			},
		}
	}
	return pois
}

func TestComputeAll(t *testing.T) {
	pois := testPOIs(5)
	cache := New(nil)
	m, err := cache.ComputeAll(context.Background(), "rome", pois, geo.NewHaversineProvider())
	require.NoError(t, err)

	// All ordered pairs of distinct POIs.
	assert.Equal(t, 5*4, m.Len())
	assert.Equal(t, 5, m.POICount)

	e, err := m.Lookup("poi-00", "poi-01", geo.ModeWalking)
	require.NoError(t, err)
	assert.Greater(t, e.DistanceKm, 0.0)
	assert.Greater(t, e.DurationMinutes, 0.0)

	// Identical POIs are always zero, never a miss.
	e, err = m.Lookup("poi-00", "poi-00", geo.ModeWalking)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.DistanceKm)
}

func TestComputeAllSkipsUnlocated(t *testing.T) {
	pois := testPOIs(3)
	pois[1].Location = nil

	m, err := New(nil).ComputeAll(context.Background(), "rome", pois, geo.NewHaversineProvider())
	require.NoError(t, err)
	assert.Equal(t, 2, m.POICount)

	_, err = m.Lookup("poi-00", "poi-01", geo.ModeWalking)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestComputeAllBatches(t *testing.T) {
	pois := testPOIs(30) // forces 2x2 chunking at batch size 25
	cp := &countingProvider{inner: geo.NewHaversineProvider()}

	m, err := New(nil).ComputeAll(context.Background(), "rome", pois, cp)
	require.NoError(t, err)
	assert.Equal(t, 30*29, m.Len())
	assert.Equal(t, int32(4), cp.calls.Load())
}

func TestExtend(t *testing.T) {
	pois := testPOIs(4)
	cache := New(nil)
	m, err := cache.ComputeAll(context.Background(), "rome", pois[:3], geo.NewHaversineProvider())
	require.NoError(t, err)
	require.Equal(t, 3*2, m.Len())

	err = cache.Extend(context.Background(), m, pois[3], pois[:3], geo.NewHaversineProvider())
	require.NoError(t, err)
	assert.Equal(t, 4*3, m.Len())

	for _, p := range pois[:3] {
		_, err := m.Lookup(pois[3].Slug, p.Slug, geo.ModeWalking)
		assert.NoError(t, err)
		_, err = m.Lookup(p.Slug, pois[3].Slug, geo.ModeWalking)
		assert.NoError(t, err)
	}
}

func TestExtendIdempotent(t *testing.T) {
	pois := testPOIs(4)
	cache := New(nil)
	m, err := cache.ComputeAll(context.Background(), "rome", pois[:3], geo.NewHaversineProvider())
	require.NoError(t, err)

	cp := &countingProvider{inner: geo.NewHaversineProvider()}
	require.NoError(t, cache.Extend(context.Background(), m, pois[3], pois[:3], cp))
	after := m.Len()
	firstCalls := cp.calls.Load()
	assert.Positive(t, firstCalls)

	// Second extend with the same POI finds nothing missing.
	require.NoError(t, cache.Extend(context.Background(), m, pois[3], pois[:3], cp))
	assert.Equal(t, after, m.Len())
	assert.Equal(t, firstCalls, cp.calls.Load(), "no provider calls on repeat extend")
}

func TestPersistAndLoad(t *testing.T) {
	database, err := db.InitMemory()
	require.NoError(t, err)
	defer database.Close()

	cache := New(database)
	pois := testPOIs(4)
	m, err := cache.ComputeAll(context.Background(), "rome", pois, geo.NewHaversineProvider())
	require.NoError(t, err)
	require.NoError(t, cache.Persist("rome", m))

	loaded, err := cache.Load("rome")
	require.NoError(t, err)
	assert.Equal(t, m.Len(), loaded.Len())
	assert.Equal(t, 4, loaded.POICount)

	want, err := m.Lookup("poi-00", "poi-03", geo.ModeWalking)
	require.NoError(t, err)
	got, err := loaded.Lookup("poi-00", "poi-03", geo.ModeWalking)
	require.NoError(t, err)
	assert.InDelta(t, want.DistanceKm, got.DistanceKm, 1e-9)

	// Unknown city loads empty, not an error.
	empty, err := cache.Load("atlantis")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestSeedAndEntries(t *testing.T) {
	m := NewMatrix("rome")
	m.Seed([]model.DistanceEntry{
		{Origin: "a", Dest: "b", DurationMinutes: 10, DistanceKm: 0.8},
		{Origin: "b", Dest: "a", DurationMinutes: 11, DistanceKm: 0.8},
	})
	assert.Equal(t, 2, m.Len())

	e, err := m.Lookup("a", "b", geo.ModeWalking)
	require.NoError(t, err)
	assert.Equal(t, 0.8, e.DistanceKm)

	entries := m.Entries()
	assert.Len(t, entries, 2)
}
