// Package api exposes the planning pipeline over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewServer wires the router and returns a configured HTTP server.
func NewServer(addr string, tours *TourHandler, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(StructuredLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(5 * time.Minute)) // planning calls block on the solver and the LLM

	r.Get("/health", handleHealth)

	r.Route("/api/tours", func(r chi.Router) {
		r.Post("/", tours.HandlePlan)
		r.Get("/", tours.HandleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", tours.HandleGet)
			r.Get("/versions", tours.HandleVersions)
			r.Post("/languages", tours.HandleAddLanguage)
			r.Post("/replace-poi", tours.HandleReplace)
			r.Post("/replace-pois-batch", tours.HandleReplaceBatch)
		})
	})
	r.Get("/api/cities/{city}/validate", tours.HandleValidateCity)

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("failed to write health response", "error", err)
	}
}
