// Package app builds the planning pipeline from configuration. The CLI and
// the daemon share this construction path.
package app

import (
	"log/slog"
	"path/filepath"
	"strings"

	"wayfarer/pkg/catalog"
	"wayfarer/pkg/config"
	"wayfarer/pkg/db"
	"wayfarer/pkg/distcache"
	"wayfarer/pkg/geo"
	"wayfarer/pkg/llm/gemini"
	"wayfarer/pkg/planner"
	"wayfarer/pkg/reopt"
	"wayfarer/pkg/request"
	"wayfarer/pkg/selector"
	"wayfarer/pkg/tourstore"
)

// App holds the wired services.
type App struct {
	Cfg      *config.Config
	DB       *db.DB
	Catalogs *catalog.Store
	Tours    *tourstore.Store
	Planner  *planner.Planner
	Reopt    *reopt.Service
}

// Build wires every service from the configuration. The database is optional:
// when it cannot be opened the distance cache degrades to memory-only.
func Build(cfg *config.Config) (*App, error) {
	database, err := db.Init(cfg.DB.Path)
	if err != nil {
		slog.Warn("distance cache database unavailable, running memory-only", "path", cfg.DB.Path, "error", err)
		database = nil
	}

	catalogs := catalog.NewStore(dataRoot(cfg))
	tours := tourstore.NewStore(cfg.Data.TourDir)
	dist := distcache.New(database)
	provider := geoProvider(cfg)
	primary, fallback := selectors(cfg)

	return &App{
		Cfg:      cfg,
		DB:       database,
		Catalogs: catalogs,
		Tours:    tours,
		Planner:  planner.New(cfg, catalogs, primary, fallback, dist, provider, tours),
		Reopt:    reopt.New(cfg, catalogs, dist, provider, tours),
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// dataRoot strips the trailing pois segment so catalog.NewStore can append it.
func dataRoot(cfg *config.Config) string {
	return strings.TrimSuffix(filepath.ToSlash(cfg.Data.POIDir), "/pois")
}

func geoProvider(cfg *config.Config) geo.Provider {
	if cfg.Geo.Provider == "google" && cfg.Geo.Key != "" {
		return geo.NewGoogleProvider(cfg.Geo.Key, request.New(cfg.Request))
	}
	if cfg.Geo.Provider == "google" {
		slog.Warn("no Google Maps key configured, falling back to haversine estimates")
	}
	return geo.NewHaversineProvider()
}

// selectors builds the primary selector and its fallback. With a working LLM
// the heuristic selector backs it up; without one it serves alone.
func selectors(cfg *config.Config) (primary, fallback *selector.Service) {
	heuristic := selector.NewService(selector.NewHeuristicSelector())
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Key == "" {
		slog.Warn("no LLM configured, using heuristic POI selection")
		return heuristic, nil
	}
	client, err := gemini.NewClient(cfg.LLM)
	if err != nil {
		slog.Warn("LLM client initialization failed, using heuristic POI selection", "error", err)
		return heuristic, nil
	}
	return selector.NewService(selector.NewLLMSelector(client)), heuristic
}
