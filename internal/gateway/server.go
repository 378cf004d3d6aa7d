// SPDX-License-Identifier: MIT

// Package gateway implements the streaming gateway HTTP surface: the signed
// origin endpoint serving rewritten manifests and media from the object
// store, and the stream-metadata API minting signed playback URLs.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MusicSocial/streaming/internal/config"
	xlog "github.com/MusicSocial/streaming/internal/log"
	"github.com/MusicSocial/streaming/internal/middleware"
	"github.com/MusicSocial/streaming/internal/playlist"
	"github.com/MusicSocial/streaming/internal/signing"
	"github.com/MusicSocial/streaming/internal/storage"
)

// Server holds the gateway's dependencies. Tests construct it with an
// in-memory storage.Reader and a fixed-clock signer.
type Server struct {
	cfg    config.GatewayConfig
	signer *signing.Signer
	store  storage.Reader
	logger zerolog.Logger
}

// New creates a gateway server.
func New(cfg config.GatewayConfig, signer *signing.Signer, store storage.Reader) *Server {
	return &Server{
		cfg:    cfg,
		signer: signer,
		store:  store,
		logger: xlog.WithComponent("gateway"),
	}
}

// ttlPolicy derives the rewrite TTL policy from config.
func (s *Server) ttlPolicy() playlist.TTLPolicy {
	return playlist.TTLPolicy{
		Playlist: s.cfg.PlaylistTTL,
		Segment:  s.cfg.SegmentTTL,
	}
}

// Router builds the gateway's HTTP routes with the canonical middleware stack.
func (s *Server) Router() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/origin/*", s.handleOrigin)

	r.Group(func(api chi.Router) {
		api.Use(middleware.APIRateLimit(600))
		api.Get("/api/stream/{trackID}", s.handleGetStream)
		api.Post("/api/stream/refresh", s.handleRefreshStream)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "streaming-gateway",
	})
}

// HTTPServer wraps the router in an http.Server with streaming-friendly
// timeouts. WriteTimeout stays zero so long media responses are not cut off.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDetail mirrors the API's error body shape: {"detail": "..."}.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
