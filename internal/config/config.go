// SPDX-License-Identifier: MIT

// Package config provides configuration management for the streaming services.
// Precedence: environment > config file > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinioConfig holds object-store connection settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region,omitempty"`
}

// GatewayConfig holds the streaming gateway settings.
type GatewayConfig struct {
	ListenAddr string
	LogLevel   string

	// BaseURL is embedded in minted URLs. CDNBaseURL wins when set.
	BaseURL    string
	CDNBaseURL string

	SigningSecret string

	PlaylistTTL time.Duration
	SegmentTTL  time.Duration

	// AvailableBitrates is the default bitrate set (bps) when a client
	// omits its own list.
	AvailableBitrates []int

	Minio MinioConfig
}

// ServiceBaseURL returns the URL prefix minted into signed URLs.
func (c *GatewayConfig) ServiceBaseURL() string {
	if c.CDNBaseURL != "" {
		return c.CDNBaseURL
	}
	return c.BaseURL
}

// EdgeConfig holds the CDN edge settings.
type EdgeConfig struct {
	ListenAddr string
	LogLevel   string

	OriginBaseURL    string
	OriginAPIBaseURL string

	// Per-class cache TTLs.
	CachePlaylistTTL time.Duration
	CacheSegmentTTL  time.Duration
	CacheStaticTTL   time.Duration

	// CacheMaxSize bounds the LRU entry count.
	CacheMaxSize int

	LogRequests   bool
	LogCacheStats bool

	// RateLimitRPM bounds per-IP requests to the metadata passthrough API.
	RateLimitRPM int
}

// fileConfig is the YAML layout wrapping both services, so one file can
// configure a whole deployment. Durations are expressed in integer seconds,
// matching the environment variable scheme.
type fileConfig struct {
	Gateway *fileGateway `yaml:"gateway,omitempty"`
	Edge    *fileEdge    `yaml:"edge,omitempty"`
}

type fileGateway struct {
	ListenAddr         string      `yaml:"listenAddr,omitempty"`
	LogLevel           string      `yaml:"logLevel,omitempty"`
	BaseURL            string      `yaml:"baseUrl,omitempty"`
	CDNBaseURL         string      `yaml:"cdnBaseUrl,omitempty"`
	SigningSecret      string      `yaml:"signingSecret,omitempty"`
	PlaylistTTLSeconds int         `yaml:"playlistTtlSeconds,omitempty"`
	SegmentTTLSeconds  int         `yaml:"segmentTtlSeconds,omitempty"`
	AvailableBitrates  []int       `yaml:"availableBitrates,omitempty"`
	Minio              MinioConfig `yaml:"minio,omitempty"`
}

type fileEdge struct {
	ListenAddr              string `yaml:"listenAddr,omitempty"`
	LogLevel                string `yaml:"logLevel,omitempty"`
	OriginBaseURL           string `yaml:"originBaseUrl,omitempty"`
	OriginAPIBaseURL        string `yaml:"originApiBaseUrl,omitempty"`
	CachePlaylistTTLSeconds int    `yaml:"cachePlaylistTtlSeconds,omitempty"`
	CacheSegmentTTLSeconds  int    `yaml:"cacheSegmentTtlSeconds,omitempty"`
	CacheStaticTTLSeconds   int    `yaml:"cacheStaticTtlSeconds,omitempty"`
	CacheMaxSize            int    `yaml:"cacheMaxSize,omitempty"`
	LogRequests             *bool  `yaml:"logRequests,omitempty"`
	LogCacheStats           *bool  `yaml:"logCacheStats,omitempty"`
	RateLimitRPM            int    `yaml:"rateLimitRpm,omitempty"`
}

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader. configPath may be empty.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

func defaultGateway() GatewayConfig {
	return GatewayConfig{
		ListenAddr:        ":8000",
		BaseURL:           "http://localhost:8000",
		PlaylistTTL:       300 * time.Second,
		SegmentTTL:        60 * time.Second,
		AvailableBitrates: []int{256000, 160000, 96000},
		Minio: MinioConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Bucket:    "tracks",
		},
	}
}

func defaultEdge() EdgeConfig {
	return EdgeConfig{
		ListenAddr:       ":8080",
		OriginBaseURL:    "http://streaming:8000",
		OriginAPIBaseURL: "http://streaming:8000",
		CachePlaylistTTL: 60 * time.Second,
		CacheSegmentTTL:  3600 * time.Second,
		CacheStaticTTL:   86400 * time.Second,
		CacheMaxSize:     1000,
		LogRequests:      true,
		LogCacheStats:    true,
		RateLimitRPM:     600,
	}
}

// LoadGateway loads the gateway configuration.
func (l *Loader) LoadGateway() (GatewayConfig, error) {
	cfg := defaultGateway()

	file, err := l.loadFile()
	if err != nil {
		return cfg, err
	}
	if file != nil && file.Gateway != nil {
		mergeGateway(&cfg, file.Gateway)
	}

	cfg.ListenAddr = envString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.BaseURL = envString("BASE_URL", cfg.BaseURL)
	cfg.CDNBaseURL = envString("CDN_BASE_URL", cfg.CDNBaseURL)
	cfg.SigningSecret = envString("SIGNING_SECRET", cfg.SigningSecret)
	cfg.PlaylistTTL = envSeconds("PLAYLIST_TTL_SECONDS", cfg.PlaylistTTL)
	cfg.SegmentTTL = envSeconds("SEGMENT_TTL_SECONDS", cfg.SegmentTTL)
	cfg.AvailableBitrates = envInts("AVAILABLE_BITRATES", cfg.AvailableBitrates)
	cfg.Minio.Endpoint = envString("MINIO_ENDPOINT", cfg.Minio.Endpoint)
	cfg.Minio.AccessKey = envString("MINIO_ACCESS_KEY", cfg.Minio.AccessKey)
	cfg.Minio.SecretKey = envString("MINIO_SECRET_KEY", cfg.Minio.SecretKey)
	cfg.Minio.Bucket = envString("MINIO_BUCKET", cfg.Minio.Bucket)
	cfg.Minio.Secure = envBool("MINIO_SECURE", cfg.Minio.Secure)
	cfg.Minio.Region = envString("MINIO_REGION", cfg.Minio.Region)

	if err := validateGateway(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEdge loads the CDN edge configuration. Env keys carry the CDN_ prefix.
func (l *Loader) LoadEdge() (EdgeConfig, error) {
	cfg := defaultEdge()

	file, err := l.loadFile()
	if err != nil {
		return cfg, err
	}
	if file != nil && file.Edge != nil {
		mergeEdge(&cfg, file.Edge)
	}

	cfg.ListenAddr = envString("CDN_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = envString("CDN_LOG_LEVEL", cfg.LogLevel)
	cfg.OriginBaseURL = envString("CDN_ORIGIN_BASE_URL", cfg.OriginBaseURL)
	cfg.OriginAPIBaseURL = envString("CDN_ORIGIN_API_BASE_URL", cfg.OriginAPIBaseURL)
	cfg.CachePlaylistTTL = envSeconds("CDN_CACHE_PLAYLIST_TTL", cfg.CachePlaylistTTL)
	cfg.CacheSegmentTTL = envSeconds("CDN_CACHE_SEGMENT_TTL", cfg.CacheSegmentTTL)
	cfg.CacheStaticTTL = envSeconds("CDN_CACHE_STATIC_TTL", cfg.CacheStaticTTL)
	cfg.CacheMaxSize = envInt("CDN_CACHE_MAX_SIZE", cfg.CacheMaxSize)
	cfg.LogRequests = envBool("CDN_LOG_REQUESTS", cfg.LogRequests)
	cfg.LogCacheStats = envBool("CDN_LOG_CACHE_STATS", cfg.LogCacheStats)
	cfg.RateLimitRPM = envInt("CDN_RATE_LIMIT_RPM", cfg.RateLimitRPM)

	if err := validateEdge(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) loadFile() (*fileConfig, error) {
	if l.configPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}
	return &fc, nil
}

func mergeGateway(dst *GatewayConfig, src *fileGateway) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.CDNBaseURL != "" {
		dst.CDNBaseURL = src.CDNBaseURL
	}
	if src.SigningSecret != "" {
		dst.SigningSecret = src.SigningSecret
	}
	if src.PlaylistTTLSeconds != 0 {
		dst.PlaylistTTL = time.Duration(src.PlaylistTTLSeconds) * time.Second
	}
	if src.SegmentTTLSeconds != 0 {
		dst.SegmentTTL = time.Duration(src.SegmentTTLSeconds) * time.Second
	}
	if len(src.AvailableBitrates) > 0 {
		dst.AvailableBitrates = src.AvailableBitrates
	}
	if src.Minio.Endpoint != "" {
		dst.Minio.Endpoint = src.Minio.Endpoint
	}
	if src.Minio.AccessKey != "" {
		dst.Minio.AccessKey = src.Minio.AccessKey
	}
	if src.Minio.SecretKey != "" {
		dst.Minio.SecretKey = src.Minio.SecretKey
	}
	if src.Minio.Bucket != "" {
		dst.Minio.Bucket = src.Minio.Bucket
	}
	if src.Minio.Secure {
		dst.Minio.Secure = true
	}
	if src.Minio.Region != "" {
		dst.Minio.Region = src.Minio.Region
	}
}

func mergeEdge(dst *EdgeConfig, src *fileEdge) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.OriginBaseURL != "" {
		dst.OriginBaseURL = src.OriginBaseURL
	}
	if src.OriginAPIBaseURL != "" {
		dst.OriginAPIBaseURL = src.OriginAPIBaseURL
	}
	if src.CachePlaylistTTLSeconds != 0 {
		dst.CachePlaylistTTL = time.Duration(src.CachePlaylistTTLSeconds) * time.Second
	}
	if src.CacheSegmentTTLSeconds != 0 {
		dst.CacheSegmentTTL = time.Duration(src.CacheSegmentTTLSeconds) * time.Second
	}
	if src.CacheStaticTTLSeconds != 0 {
		dst.CacheStaticTTL = time.Duration(src.CacheStaticTTLSeconds) * time.Second
	}
	if src.CacheMaxSize != 0 {
		dst.CacheMaxSize = src.CacheMaxSize
	}
	if src.LogRequests != nil {
		dst.LogRequests = *src.LogRequests
	}
	if src.LogCacheStats != nil {
		dst.LogCacheStats = *src.LogCacheStats
	}
	if src.RateLimitRPM != 0 {
		dst.RateLimitRPM = src.RateLimitRPM
	}
}

func validateGateway(cfg *GatewayConfig) error {
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return fmt.Errorf("SIGNING_SECRET is required")
	}
	if len(cfg.SigningSecret) < 8 {
		return fmt.Errorf("SIGNING_SECRET must be at least 8 characters")
	}
	if cfg.PlaylistTTL < 60*time.Second || cfg.PlaylistTTL > 3600*time.Second {
		return fmt.Errorf("playlist TTL %s outside [60s, 3600s]", cfg.PlaylistTTL)
	}
	if cfg.SegmentTTL < 10*time.Second || cfg.SegmentTTL > 600*time.Second {
		return fmt.Errorf("segment TTL %s outside [10s, 600s]", cfg.SegmentTTL)
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	if len(cfg.AvailableBitrates) == 0 {
		return fmt.Errorf("AVAILABLE_BITRATES must not be empty")
	}
	for _, b := range cfg.AvailableBitrates {
		if b <= 0 {
			return fmt.Errorf("invalid bitrate %d", b)
		}
	}
	if cfg.Minio.Endpoint == "" || cfg.Minio.Bucket == "" {
		return fmt.Errorf("minio endpoint and bucket are required")
	}
	return nil
}

func validateEdge(cfg *EdgeConfig) error {
	if cfg.OriginBaseURL == "" {
		return fmt.Errorf("CDN_ORIGIN_BASE_URL is required")
	}
	if cfg.OriginAPIBaseURL == "" {
		return fmt.Errorf("CDN_ORIGIN_API_BASE_URL is required")
	}
	if cfg.CacheMaxSize < 100 {
		return fmt.Errorf("cache max size %d below minimum 100", cfg.CacheMaxSize)
	}
	if cfg.CachePlaylistTTL < 10*time.Second || cfg.CachePlaylistTTL > 300*time.Second {
		return fmt.Errorf("cache playlist TTL %s outside [10s, 300s]", cfg.CachePlaylistTTL)
	}
	if cfg.CacheSegmentTTL < 300*time.Second || cfg.CacheSegmentTTL > 86400*time.Second {
		return fmt.Errorf("cache segment TTL %s outside [300s, 86400s]", cfg.CacheSegmentTTL)
	}
	if cfg.CacheStaticTTL < 300*time.Second || cfg.CacheStaticTTL > 604800*time.Second {
		return fmt.Errorf("cache static TTL %s outside [300s, 604800s]", cfg.CacheStaticTTL)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// envSeconds reads an integer env value expressed in seconds.
func envSeconds(key string, defaultVal time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return defaultVal
}

// envInts reads a comma-separated integer list; malformed lists fall back to
// the default set.
func envInts(key string, defaultVal []int) []int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return defaultVal
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
