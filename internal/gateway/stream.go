// SPDX-License-Identifier: MIT

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MusicSocial/streaming/internal/metrics"
)

// VariantStream is one signed variant playlist URL.
type VariantStream struct {
	Bitrate int    `json:"bitrate"`
	URL     string `json:"url"`
}

// StreamResponse is the payload of both stream-metadata operations.
type StreamResponse struct {
	MasterURL string          `json:"master_url"`
	Variants  []VariantStream `json:"variants"`
	ExpiresIn int             `json:"expires_in"`
}

// RefreshRequest asks for freshly signed URLs for a track.
type RefreshRequest struct {
	TrackID           string `json:"track_id"`
	ArtistID          string `json:"artist_id"`
	AvailableBitrates []int  `json:"available_bitrates,omitempty"`
}

// handleGetStream mints signed playback URLs for a (artist, track) pair.
func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	artistID := r.URL.Query().Get("artist_id")
	if artistID == "" {
		writeDetail(w, http.StatusBadRequest, "artist_id is required")
		return
	}

	bitrates := parseBitrates(r.URL.Query().Get("available_bitrates"))
	writeJSON(w, http.StatusOK, s.streamURLs(trackID, artistID, bitrates))
}

// handleRefreshStream re-mints signed URLs; clients call it when the
// previous capability set approaches expiry.
func (s *Server) handleRefreshStream(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TrackID == "" || req.ArtistID == "" {
		writeDetail(w, http.StatusBadRequest, "track_id and artist_id are required")
		return
	}

	writeJSON(w, http.StatusOK, s.streamURLs(req.TrackID, req.ArtistID, req.AvailableBitrates))
}

// streamURLs signs the master and variant playlists for the requested
// bitrates. The signature covers the true resource path (/tracks/...) while
// the emitted URL carries the /origin endpoint prefix; the origin handler
// strips that prefix before verification.
func (s *Server) streamURLs(trackID, artistID string, bitrates []int) StreamResponse {
	if len(bitrates) == 0 {
		bitrates = s.cfg.AvailableBitrates
	}

	basePath := fmt.Sprintf("/tracks/%s/%s/transcoded", artistID, trackID)
	serviceBase := s.cfg.ServiceBaseURL()

	masterPath := basePath + "/master.m3u8"
	expiresAt, sig := s.signer.Sign(masterPath, s.cfg.PlaylistTTL)
	metrics.IncSignatureMinted("playlist")
	masterURL := s.signer.BuildURL(serviceBase, "/origin"+masterPath, expiresAt, sig)

	variants := make([]VariantStream, 0, len(bitrates))
	for _, bitrate := range bitrates {
		variantPath := fmt.Sprintf("%s/aac_%d/index.m3u8", basePath, bitrate/1000)
		expiresAt, sig := s.signer.Sign(variantPath, s.cfg.PlaylistTTL)
		metrics.IncSignatureMinted("playlist")
		variants = append(variants, VariantStream{
			Bitrate: bitrate,
			URL:     s.signer.BuildURL(serviceBase, "/origin"+variantPath, expiresAt, sig),
		})
	}

	return StreamResponse{
		MasterURL: masterURL,
		Variants:  variants,
		ExpiresIn: int(s.cfg.PlaylistTTL.Seconds()),
	}
}

// parseBitrates parses a comma-separated bitrate list. Malformed lists fall
// back to the configured default set.
func parseBitrates(csv string) []int {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil
		}
		out = append(out, n)
	}
	return out
}
