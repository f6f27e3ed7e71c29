package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/pkg/model"
)

var (
	colosseum = model.GeoPoint{Lat: 41.8902, Lon: 12.4922}
	forum     = model.GeoPoint{Lat: 41.8925, Lon: 12.4853}
)

func TestHaversineMatrix(t *testing.T) {
	p := NewHaversineProvider()
	m, err := p.DistanceMatrix(context.Background(), []model.GeoPoint{colosseum, forum}, []model.GeoPoint{colosseum, forum}, ModeWalking)
	require.NoError(t, err)
	require.Len(t, m, 2)

	assert.Equal(t, 0.0, m[0][0].DistanceMeters)
	assert.True(t, m[0][1].OK())
	// Colosseum to Forum Romanum is roughly 600m as the crow flies.
	assert.InDelta(t, 620, m[0][1].DistanceMeters, 80)
	// Walking pace 4.5 km/h.
	assert.InDelta(t, m[0][1].DistanceMeters/1.25, m[0][1].DurationSeconds, 1)
	// Great-circle distance is symmetric.
	assert.InDelta(t, m[0][1].DistanceMeters, m[1][0].DistanceMeters, 0.01)
}

func TestHaversineBatchLimit(t *testing.T) {
	pts := make([]model.GeoPoint, MaxBatch+1)
	_, err := NewHaversineProvider().DistanceMatrix(context.Background(), pts, pts[:1], ModeWalking)
	assert.Error(t, err)
}

func TestHaversineNoLookups(t *testing.T) {
	p := NewHaversineProvider()
	_, err := p.PlaceDetails(context.Background(), "Colosseum", "rome")
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = p.Geocode(context.Background(), "Colosseum", "rome")
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestEncodeCoords(t *testing.T) {
	s := encodeCoords([]model.GeoPoint{colosseum, forum})
	assert.Equal(t, "41.890200,12.492200|41.892500,12.485300", s)
}

func TestCheckStatus(t *testing.T) {
	assert.NoError(t, checkStatus("OK"))
	assert.NoError(t, checkStatus("ZERO_RESULTS"))
	assert.Error(t, checkStatus("OVER_QUERY_LIMIT"))
}
