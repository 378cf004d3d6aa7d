// SPDX-License-Identifier: MIT

package gateway

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MusicSocial/streaming/internal/metrics"
	"github.com/MusicSocial/streaming/internal/playlist"
	"github.com/MusicSocial/streaming/internal/storage"
)

// streamChunkSize is the copy buffer for media responses.
const streamChunkSize = 1 << 20

// handleOrigin serves a signed resource: manifests are rewritten with fresh
// child signatures, everything else streams straight from the object store.
// Every request re-verifies its capability; nothing is cached here.
func (s *Server) handleOrigin(w http.ResponseWriter, r *http.Request) {
	resourcePath := chi.URLParam(r, "*")
	signedPath := "/" + resourcePath

	if !s.verifyRequest(w, r, signedPath) {
		return
	}

	if strings.HasSuffix(resourcePath, ".m3u8") {
		s.servePlaylist(w, r, resourcePath, signedPath)
		return
	}
	s.serveMedia(w, r, resourcePath)
}

// verifyRequest checks the exp/sig query parameters against the signed path.
// All failure modes are 403; adversarial input is expected here, so nothing
// is logged above debug.
func (s *Server) verifyRequest(w http.ResponseWriter, r *http.Request, signedPath string) bool {
	sig := r.URL.Query().Get("sig")
	exp := r.URL.Query().Get("exp")

	if sig == "" || exp == "" {
		metrics.IncSignatureVerification(metrics.VerifyMissing)
		writeDetail(w, http.StatusForbidden, "Missing signature parameters")
		return false
	}

	expiresAt, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		metrics.IncSignatureVerification(metrics.VerifyMissing)
		writeDetail(w, http.StatusForbidden, "Invalid expiration value")
		return false
	}

	if !s.signer.Verify(signedPath, expiresAt, sig) {
		outcome := metrics.VerifyMismatch
		if expiresAt <= time.Now().Unix() {
			outcome = metrics.VerifyExpired
		}
		metrics.IncSignatureVerification(outcome)
		s.logger.Debug().
			Str("path", signedPath).
			Str("outcome", outcome).
			Msg("signature verification failed")
		writeDetail(w, http.StatusForbidden, "Signature verification failed")
		return false
	}

	metrics.IncSignatureVerification(metrics.VerifyOK)
	return true
}

func (s *Server) servePlaylist(w http.ResponseWriter, r *http.Request, objectKey, resourcePath string) {
	body, err := s.store.ReadText(r.Context(), objectKey)
	if err != nil {
		s.writeStorageError(w, objectKey, err)
		return
	}

	rewritten := playlist.Rewrite(body, resourcePath, s.signer, s.ttlPolicy())

	metrics.IncOriginRequest("playlist", http.StatusOK)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rewritten)
}

func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request, objectKey string) {
	rc, err := s.store.Stream(r.Context(), objectKey)
	if err != nil {
		s.writeStorageError(w, objectKey, err)
		return
	}
	// The reader must be released on every exit path, including a client
	// disconnect mid-stream, so the backing connection is not leaked.
	defer rc.Close()

	metrics.IncOriginRequest("media", http.StatusOK)
	w.Header().Set("Content-Type", contentTypeFor(objectKey))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, streamChunkSize)
	if _, err := io.CopyBuffer(&flushWriter{w: w}, rc, buf); err != nil {
		// Usually the client went away; the deferred Close releases the
		// object reader either way.
		s.logger.Debug().Err(err).Str("key", objectKey).Msg("media stream aborted")
	}
}

func (s *Server) writeStorageError(w http.ResponseWriter, objectKey string, err error) {
	if errors.Is(err, storage.ErrObjectNotFound) {
		metrics.IncOriginRequest("media", http.StatusNotFound)
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error().Err(err).Str("key", objectKey).Msg("object store read failed")
	metrics.IncOriginRequest("media", http.StatusBadGateway)
	writeDetail(w, http.StatusBadGateway, "storage backend unavailable")
}

// flushWriter flushes after every chunk so media bytes reach the client as
// they arrive from the store.
type flushWriter struct {
	w http.ResponseWriter
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if f, ok := fw.w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

// contentTypeFor infers the media type from the resource suffix.
func contentTypeFor(resourcePath string) string {
	switch {
	case strings.HasSuffix(resourcePath, ".m4s"):
		return "video/iso.segment"
	case strings.HasSuffix(resourcePath, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(resourcePath, ".json"):
		return "application/json"
	case strings.HasSuffix(resourcePath, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	}
	if t := mime.TypeByExtension(path.Ext(resourcePath)); t != "" {
		return t
	}
	return "application/octet-stream"
}
