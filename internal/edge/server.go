// SPDX-License-Identifier: MIT

package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MusicSocial/streaming/internal/config"
	xlog "github.com/MusicSocial/streaming/internal/log"
	"github.com/MusicSocial/streaming/internal/metrics"
	"github.com/MusicSocial/streaming/internal/middleware"
)

const statsLogInterval = 5 * time.Minute

// Server is the CDN edge node: one shared HTTP client toward the origin and
// an LRU cache in front of it.
type Server struct {
	cfg    config.EdgeConfig
	cache  *Cache
	client *http.Client
	logger zerolog.Logger
}

// New creates an edge server with a long-lived origin client.
func New(cfg config.EdgeConfig) *Server {
	return &Server{
		cfg:   cfg,
		cache: NewCache(cfg.CacheMaxSize),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: xlog.WithComponent("edge"),
	}
}

// Router builds the edge's HTTP routes with the canonical middleware stack.
func (s *Server) Router() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         s.cfg.LogRequests,
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/origin/*", s.handleResource)

	r.Group(func(api chi.Router) {
		api.Use(middleware.APIRateLimit(s.cfg.RateLimitRPM))
		api.Get("/api/stream/{trackID}", s.handleStreamPassthrough)
		api.Post("/api/stream/refresh", s.handleRefreshPassthrough)
	})

	r.Get("/stats", s.handleStats)
	r.Get("/cache/entries", s.handleCacheEntries)
	// Cache IDs are canonical resource paths, so the route takes a wildcard.
	r.Get("/cache/entries/*", s.handleCacheEntry)
	r.Get("/cache/summary", s.handleCacheSummary)
	r.Delete("/cache", s.handleCacheClear)

	return r
}

// HTTPServer wraps the router in an http.Server.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// LogStatsPeriodically emits a cache stats line every five minutes until the
// context is cancelled. Callers run it in its own goroutine.
func (s *Server) LogStatsPeriodically(ctx context.Context) {
	if !s.cfg.LogCacheStats {
		return
	}
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.cache.Stats()
			s.logger.Info().
				Int("hits", stats.Hits).
				Int("misses", stats.Misses).
				Float64("hit_rate", stats.HitRate).
				Int("items", stats.Items).
				Float64("mb", stats.MB).
				Msg("cache stats")
		}
	}
}

// handleResource serves a signed resource from cache or forwards it to the
// origin. The original query string, signature included, travels with the
// forwarded request; the origin performs all verification.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	requestURL := r.URL.Path
	if r.URL.RawQuery != "" {
		requestURL += "?" + r.URL.RawQuery
	}

	if entry := s.cache.Get(requestURL); entry != nil {
		s.writeCached(w, entry)
		return
	}

	s.fetchAndCache(w, r, requestURL)
}

func (s *Server) writeCached(w http.ResponseWriter, entry *Entry) {
	remaining := entry.TTLRemaining(time.Now())
	h := w.Header()
	h.Set("Content-Type", entry.ContentType)
	h.Set("Cache-Control", "public, max-age="+strconv.Itoa(remaining))
	h.Set("X-CDN-Cache", "HIT")
	h.Set("X-CDN-TTL-Remaining", strconv.Itoa(remaining))
	h.Set("X-CDN-Resource", entry.Resource)
	h.Set("X-CDN-Resource-Type", classifyResource(entry.Resource))
	h.Set("X-CDN-Hit-Count", strconv.Itoa(entry.HitCount))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Content)
}

func (s *Server) fetchAndCache(w http.ResponseWriter, r *http.Request, requestURL string) {
	originURL := strings.TrimRight(s.cfg.OriginBaseURL, "/") + requestURL

	start := time.Now()
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, originURL, nil)
	if err != nil {
		s.writeOriginError(w, err)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ObserveOriginFetch("error", time.Since(start))
		s.writeOriginError(w, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Origin rejections (403, 404) pass through uncached so a rejected
		// capability never poisons the cache.
		metrics.ObserveOriginFetch("rejected", time.Since(start))
		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
		return
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveOriginFetch("error", time.Since(start))
		s.writeOriginError(w, err)
		return
	}
	metrics.ObserveOriginFetch("ok", time.Since(start))

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFor(r.URL.Path)
	}

	ttl := s.classTTL(r.URL.Path)
	entry := s.cache.Set(requestURL, content, contentType, ttl)

	ttlSeconds := int(ttl.Seconds())
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "public, max-age="+strconv.Itoa(ttlSeconds))
	h.Set("X-CDN-Cache", "MISS")
	h.Set("X-CDN-TTL", strconv.Itoa(ttlSeconds))
	h.Set("X-CDN-Resource", entry.Resource)
	h.Set("X-CDN-Resource-Type", classifyResource(entry.Resource))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) writeOriginError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("origin fetch failed")
	writeDetail(w, http.StatusBadGateway, "CDN Error: failed to reach streaming API")
}

// classTTL maps a resource path to its cache lifetime. Manifests turn over
// quickly, segments are immutable once transcoded, everything else is static
// metadata.
func (s *Server) classTTL(resourcePath string) time.Duration {
	switch {
	case strings.HasSuffix(resourcePath, ".m3u8"):
		return s.cfg.CachePlaylistTTL
	case strings.HasSuffix(resourcePath, ".m4s"), strings.HasSuffix(resourcePath, ".mp4"):
		return s.cfg.CacheSegmentTTL
	default:
		return s.cfg.CacheStaticTTL
	}
}

// handleStreamPassthrough proxies metadata requests to the origin API without
// caching, so freshly minted signatures always reach the client.
func (s *Server) handleStreamPassthrough(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	target := strings.TrimRight(s.cfg.OriginAPIBaseURL, "/") + "/api/stream/" + trackID
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	s.forwardAPI(w, r, http.MethodGet, target, nil)
}

func (s *Server) handleRefreshPassthrough(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	target := strings.TrimRight(s.cfg.OriginAPIBaseURL, "/") + "/api/stream/refresh"
	s.forwardAPI(w, r, http.MethodPost, target, body)
}

func (s *Server) forwardAPI(w http.ResponseWriter, r *http.Request, method, target string, body []byte) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(r.Context(), method, target, reader)
	if err != nil {
		s.writeOriginError(w, err)
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.writeOriginError(w, err)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "streaming-edge",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache":   s.cache.Stats(),
		"service": "streaming-edge",
	})
}

func (s *Server) handleCacheEntries(w http.ResponseWriter, _ *http.Request) {
	entries := s.cache.Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleCacheEntry(w http.ResponseWriter, r *http.Request) {
	cacheID := chi.URLParam(r, "*")
	includeContent, _ := strconv.ParseBool(r.URL.Query().Get("include_content"))

	md, ok := s.cache.Entry(cacheID, includeContent)
	if !ok {
		// Digest-form IDs have no leading slash; canonical path IDs do.
		md, ok = s.cache.Entry("/"+cacheID, includeContent)
	}
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cache entry not found")
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleCacheSummary(w http.ResponseWriter, _ *http.Request) {
	stats := s.cache.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_entries": stats.Items,
		"total_bytes":   stats.Bytes,
		"total_mb":      stats.MB,
		"by_type":       s.cache.Summary(),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	dropped := s.cache.Clear()
	s.logger.Info().Int("dropped", dropped).Msg("cache cleared")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cleared",
		"dropped": dropped,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// contentTypeFor infers a fallback media type when the origin response
// carries none.
func contentTypeFor(resourcePath string) string {
	switch {
	case strings.HasSuffix(resourcePath, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(resourcePath, ".m4s"):
		return "video/iso.segment"
	case strings.HasSuffix(resourcePath, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(resourcePath, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
