package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	DB      DBConfig      `yaml:"db"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Request RequestConfig `yaml:"request"`
	Geo     GeoConfig     `yaml:"geo"`
	LLM     LLMConfig     `yaml:"llm"`
	Planner PlannerConfig `yaml:"planner"`
}

// DataConfig locates the on-disk stores.
type DataConfig struct {
	POIDir  string `yaml:"poi_dir"`  // data/pois/<city>/
	TourDir string `yaml:"tour_dir"` // tours/<city>/<tour-id>/
}

// DBConfig holds the distance-cache database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// RequestConfig holds outbound HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// GeoConfig holds GeoProvider settings.
type GeoConfig struct {
	Provider  string   `yaml:"provider"` // "google", "haversine"
	Key       string   `yaml:"key"`
	Timeout   Duration `yaml:"timeout"`
	BatchSize int      `yaml:"batch_size"` // max origins/destinations per matrix call
}

// LLMConfig holds settings for the selector's LLM provider.
type LLMConfig struct {
	Provider string   `yaml:"provider"` // "gemini", "mock"
	Model    string   `yaml:"model"`
	Key      string   `yaml:"key"`
	Timeout  Duration `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

// PlannerConfig holds sequencing parameters.
type PlannerConfig struct {
	DistanceWeight  float64  `yaml:"distance_weight"`
	CoherenceWeight float64  `yaml:"coherence_weight"`
	PenaltyWeight   float64  `yaml:"penalty_weight"`
	StartMinutes    int      `yaml:"start_minutes"`    // minutes since midnight, default 540 (09:00)
	AvgSlotMinutes  int      `yaml:"avg_slot_minutes"` // expected slot pitch, default 150
	SolverTimeout   Duration `yaml:"solver_timeout"`
	SolverWorkers   int      `yaml:"solver_workers"`
	RelativeGap     float64  `yaml:"relative_gap"`
	DayWalkLimit    Distance `yaml:"day_walk_limit"` // soft threshold per day
	WalkSpeedKmh    float64  `yaml:"walk_speed_kmh"`
	UnknownPairKm   float64  `yaml:"unknown_pair_km"` // conservative default for missing pairs
	TwoOptPasses    int      `yaml:"two_opt_passes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			POIDir:  "./data/pois",
			TourDir: "./tours",
		},
		DB: DBConfig{
			Path: "./data/wayfarer.db",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		Server: ServerConfig{
			Address: "localhost:1873",
		},
		Request: RequestConfig{
			Retries: 5,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Geo: GeoConfig{
			Provider:  "google",
			Timeout:   Duration(30 * time.Second),
			BatchSize: 25,
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  Duration(120 * time.Second),
			Retries:  5,
		},
		Planner: PlannerConfig{
			DistanceWeight:  0.5,
			CoherenceWeight: 0.5,
			PenaltyWeight:   0.3,
			StartMinutes:    540,
			AvgSlotMinutes:  150,
			SolverTimeout:   Duration(30 * time.Second),
			SolverWorkers:   4,
			RelativeGap:     0.05,
			DayWalkLimit:    Distance(5000),
			WalkSpeedKmh:    4.0,
			UnknownPairKm:   2.0,
			TwoOptPasses:    10,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Secrets left empty in the file fall back to the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() {
	if c.LLM.Key == "" {
		c.LLM.Key = os.Getenv("GEMINI_API_KEY")
	}
	if c.Geo.Key == "" {
		c.Geo.Key = os.Getenv("GOOGLE_MAPS_API_KEY")
	}
}

func (c *Config) validate() error {
	if c.Planner.DistanceWeight < 0 || c.Planner.CoherenceWeight < 0 {
		return fmt.Errorf("planner weights must be non-negative")
	}
	if c.Planner.DistanceWeight+c.Planner.CoherenceWeight == 0 {
		return fmt.Errorf("planner weights must not both be zero")
	}
	if c.Geo.BatchSize <= 0 || c.Geo.BatchSize > 25 {
		return fmt.Errorf("geo batch_size must be in 1..25, got %d", c.Geo.BatchSize)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Wayfarer Configuration
# ----------------------
# Supported units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
