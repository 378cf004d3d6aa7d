// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadGateway_Defaults(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "integration-secret")

	cfg, err := NewLoader("").LoadGateway()
	require.NoError(t, err)

	require.Equal(t, ":8000", cfg.ListenAddr)
	require.Equal(t, 300*time.Second, cfg.PlaylistTTL)
	require.Equal(t, 60*time.Second, cfg.SegmentTTL)
	require.Equal(t, []int{256000, 160000, 96000}, cfg.AvailableBitrates)
	require.Equal(t, "tracks", cfg.Minio.Bucket)
	require.Equal(t, "http://localhost:8000", cfg.ServiceBaseURL())
}

func TestLoadGateway_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  signingSecret: file-secret-value
  baseUrl: http://file:8000
  playlistTtlSeconds: 120
`), 0o600))

	t.Setenv("BASE_URL", "http://env:8000")
	t.Setenv("PLAYLIST_TTL_SECONDS", "600")

	cfg, err := NewLoader(path).LoadGateway()
	require.NoError(t, err)

	require.Equal(t, "file-secret-value", cfg.SigningSecret)
	require.Equal(t, "http://env:8000", cfg.BaseURL)
	require.Equal(t, 600*time.Second, cfg.PlaylistTTL)
}

func TestLoadGateway_CDNBaseURLWins(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "integration-secret")
	t.Setenv("CDN_BASE_URL", "https://cdn.test")

	cfg, err := NewLoader("").LoadGateway()
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test", cfg.ServiceBaseURL())
}

func TestLoadGateway_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"SIGNING_SECRET": "short"}},
		{"playlist ttl too low", map[string]string{
			"SIGNING_SECRET": "integration-secret", "PLAYLIST_TTL_SECONDS": "30",
		}},
		{"playlist ttl too high", map[string]string{
			"SIGNING_SECRET": "integration-secret", "PLAYLIST_TTL_SECONDS": "7200",
		}},
		{"segment ttl too low", map[string]string{
			"SIGNING_SECRET": "integration-secret", "SEGMENT_TTL_SECONDS": "5",
		}},
		{"segment ttl too high", map[string]string{
			"SIGNING_SECRET": "integration-secret", "SEGMENT_TTL_SECONDS": "900",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewLoader("").LoadGateway()
			require.Error(t, err)
		})
	}
}

func TestLoadGateway_Bitrates(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "integration-secret")
	t.Setenv("AVAILABLE_BITRATES", "128000, 64000")

	cfg, err := NewLoader("").LoadGateway()
	require.NoError(t, err)
	require.Equal(t, []int{128000, 64000}, cfg.AvailableBitrates)
}

func TestLoadGateway_MalformedBitratesFallBack(t *testing.T) {
	t.Setenv("SIGNING_SECRET", "integration-secret")
	t.Setenv("AVAILABLE_BITRATES", "128000,abc")

	cfg, err := NewLoader("").LoadGateway()
	require.NoError(t, err)
	require.Equal(t, []int{256000, 160000, 96000}, cfg.AvailableBitrates)
}

func TestLoadEdge_Defaults(t *testing.T) {
	cfg, err := NewLoader("").LoadEdge()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 60*time.Second, cfg.CachePlaylistTTL)
	require.Equal(t, 3600*time.Second, cfg.CacheSegmentTTL)
	require.Equal(t, 86400*time.Second, cfg.CacheStaticTTL)
	require.Equal(t, 1000, cfg.CacheMaxSize)
	require.True(t, cfg.LogRequests)
}

func TestLoadEdge_Validation(t *testing.T) {
	t.Setenv("CDN_CACHE_MAX_SIZE", "50")
	_, err := NewLoader("").LoadEdge()
	require.Error(t, err)
}

func TestLoadEdge_Env(t *testing.T) {
	t.Setenv("CDN_ORIGIN_BASE_URL", "http://origin:9000")
	t.Setenv("CDN_CACHE_PLAYLIST_TTL", "30")
	t.Setenv("CDN_LOG_REQUESTS", "false")

	cfg, err := NewLoader("").LoadEdge()
	require.NoError(t, err)
	require.Equal(t, "http://origin:9000", cfg.OriginBaseURL)
	require.Equal(t, 30*time.Second, cfg.CachePlaylistTTL)
	require.False(t, cfg.LogRequests)
}

func TestLoadEdge_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
edge:
  originBaseUrl: http://file-origin:8000
  cachePlaylistTtlSeconds: 30
  logRequests: false
`), 0o600))

	cfg, err := NewLoader(path).LoadEdge()
	require.NoError(t, err)
	require.Equal(t, "http://file-origin:8000", cfg.OriginBaseURL)
	require.Equal(t, 30*time.Second, cfg.CachePlaylistTTL)
	require.False(t, cfg.LogRequests)
}

func TestLoadFile_UnknownKeysRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  bogusKey: 1\n"), 0o600))

	t.Setenv("SIGNING_SECRET", "integration-secret")
	_, err := NewLoader(path).LoadGateway()
	require.Error(t, err)
}
