// Package server exposes the HTTP request surface for pyramid ingestion
// and tile serving.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/MeKo-Tech/tilepyramid/internal/ingest"
	"github.com/MeKo-Tech/tilepyramid/internal/metrics"
	"github.com/MeKo-Tech/tilepyramid/internal/storage"
)

// Config configures the HTTP surface.
type Config struct {
	MaxBodyBytes   int64
	IngestDeadline time.Duration
}

// Server binds the ingest service, registry and blob store to HTTP
// endpoints.
type Server struct {
	ingest   *ingest.Service
	registry *storage.Registry
	blobs    *storage.BlobStore
	logger   *slog.Logger
	cfg      Config
}

// New creates the server.
func New(ingestSvc *ingest.Service, registry *storage.Registry, blobs *storage.BlobStore, cfg Config, logger *slog.Logger) *Server {
	return &Server{
		ingest:   ingestSvc,
		registry: registry,
		blobs:    blobs,
		logger:   logger,
		cfg:      cfg,
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /pyramid", s.handleIngest)
	mux.HandleFunc("GET /pyramid/{uuid}", s.handleGetPyramid)
	mux.HandleFunc("DELETE /pyramid/{uuid}", s.handleDeletePyramid)
	mux.HandleFunc("GET /pyramids", s.handleListPyramids)
	mux.HandleFunc("GET /image/{name}", s.handleGetImage)
	mux.HandleFunc("GET /tile/{name}", s.handleGetTile)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	})
	return c.Handler(mux)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log().Error("failed to write response", "error", err)
	}
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// mediaType strips parameters from a Content-Type or Accept entry.
func mediaType(v string) string {
	if i := strings.Index(v, ";"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
