package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1.5h", 90 * time.Minute},
		{"2d", 48 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDuration("5parsecs")
	assert.Error(t, err)
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"5km", 5000},
		{"750m", 750},
		{"1200", 1200},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := ParseDistance(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "wayfarer.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 540, cfg.Planner.StartMinutes)
	assert.Equal(t, 150, cfg.Planner.AvgSlotMinutes)
	assert.Equal(t, Duration(30*time.Second), cfg.Planner.SolverTimeout)
	assert.Equal(t, 5.0, cfg.Planner.DayWalkLimit.Km())
	assert.Equal(t, 25, cfg.Geo.BatchSize)

	// The file was written and loads back identically.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Planner, again.Planner)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayfarer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
planner:
  distance_weight: 0
  coherence_weight: 0
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvFallbackForSecrets(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("GOOGLE_MAPS_API_KEY", "test-maps-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "wayfarer.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-gemini-key", cfg.LLM.Key)
	assert.Equal(t, "test-maps-key", cfg.Geo.Key)
}
