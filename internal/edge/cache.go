// SPDX-License-Identifier: MIT

// Package edge implements the CDN edge node: an in-memory LRU response cache
// keyed on signature-stripped URLs, fronting the streaming gateway.
package edge

import (
	"container/list"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MusicSocial/streaming/internal/metrics"
)

// maxCanonicalKeyLen is the longest canonical form stored verbatim as a cache
// ID. Anything longer is replaced by its SHA-256 hex digest.
const maxCanonicalKeyLen = 500

// previewLimit caps the inline content preview returned by entry inspection.
const previewLimit = 512

// Resource classes as exposed in headers and the summary endpoint.
const (
	ClassMasterPlaylist  = "master_playlist"
	ClassVariantPlaylist = "variant_playlist"
	ClassInitSegment     = "init_segment"
	ClassMediaSegment    = "media_segment"
	ClassStaticAsset     = "static_asset"
	ClassOther           = "other"
)

// Entry is one cached origin response.
type Entry struct {
	CacheID        string
	Resource       string
	OriginHost     string
	Content        []byte
	ContentType    string
	StoredAt       time.Time
	ExpiresAt      time.Time
	Size           int
	HitCount       int
	LastAccessedAt time.Time
}

// TTLRemaining reports the whole seconds until expiry, never negative.
func (e *Entry) TTLRemaining(now time.Time) int {
	remaining := int(e.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EntryMetadata is the inspection view of a cache entry.
type EntryMetadata struct {
	CacheID        string `json:"cache_id"`
	Resource       string `json:"resource"`
	ResourceType   string `json:"resource_type"`
	OriginHost     string `json:"origin_host"`
	ContentType    string `json:"content_type"`
	SizeBytes      int    `json:"size_bytes"`
	StoredAt       string `json:"stored_at"`
	ExpiresAt      string `json:"expires_at"`
	TTLRemaining   int    `json:"ttl_remaining"`
	HitCount       int    `json:"hit_count"`
	LastAccessedAt string `json:"last_accessed_at"`
	ContentPreview string `json:"content_preview,omitempty"`
}

func (e *Entry) metadata(now time.Time, includeContent bool) EntryMetadata {
	md := EntryMetadata{
		CacheID:        e.CacheID,
		Resource:       e.Resource,
		ResourceType:   classifyResource(e.Resource),
		OriginHost:     e.OriginHost,
		ContentType:    e.ContentType,
		SizeBytes:      e.Size,
		StoredAt:       e.StoredAt.UTC().Format(time.RFC3339),
		ExpiresAt:      e.ExpiresAt.UTC().Format(time.RFC3339),
		TTLRemaining:   e.TTLRemaining(now),
		HitCount:       e.HitCount,
		LastAccessedAt: e.LastAccessedAt.UTC().Format(time.RFC3339),
	}
	if includeContent {
		preview := e.Content
		if len(preview) > previewLimit {
			preview = preview[:previewLimit]
		}
		md.ContentPreview = base64.StdEncoding.EncodeToString(preview)
	}
	return md
}

// Stats is the aggregate counter snapshot served by /stats.
type Stats struct {
	Hits     int     `json:"hits"`
	Misses   int     `json:"misses"`
	Total    int     `json:"total_requests"`
	HitRate  float64 `json:"hit_rate"`
	Items    int     `json:"cached_items"`
	Bytes    int     `json:"cached_bytes"`
	MB       float64 `json:"cached_mb"`
	MaxItems int     `json:"max_items"`
}

// TypeSummary aggregates the cached entries of one resource class.
type TypeSummary struct {
	Count int `json:"count"`
	Bytes int `json:"bytes"`
	Hits  int `json:"hits"`
}

// Cache is a bounded in-memory LRU keyed on signature-stripped URLs. Expired
// entries are purged on read. All operations are safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	totalBytes int
	hits       int
	misses     int
	now        func() time.Time
}

// NewCache creates a cache bounded to maxEntries entries.
func NewCache(maxEntries int) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// normalizeURL strips the exp and sig query parameters so every client
// fetching the same resource shares one cache entry regardless of who signed
// its URL. Other query parameters are preserved. Overly long canonical forms
// collapse to a SHA-256 digest.
func normalizeURL(rawURL string) (cacheID, resource, originHost string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, rawURL, ""
	}

	q := u.Query()
	q.Del("exp")
	q.Del("sig")

	canonical := u.Path
	if encoded := q.Encode(); encoded != "" {
		canonical += "?" + encoded
	}

	cacheID = canonical
	if len(canonical) > maxCanonicalKeyLen {
		sum := sha256.Sum256([]byte(canonical))
		cacheID = hex.EncodeToString(sum[:])
	}
	return cacheID, u.Path, u.Host
}

// Get returns the cached entry for the URL, or nil on a miss. An expired
// entry is purged and reported as a miss.
func (c *Cache) Get(rawURL string) *Entry {
	cacheID, _, _ := normalizeURL(rawURL)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[cacheID]
	if !ok {
		c.misses++
		metrics.IncCacheLookup(metrics.CacheMiss)
		return nil
	}

	entry := el.Value.(*Entry)
	if !now.Before(entry.ExpiresAt) {
		c.removeLocked(el)
		c.misses++
		metrics.IncCacheLookup(metrics.CacheExpired)
		c.publishSizeLocked()
		return nil
	}

	c.order.MoveToFront(el)
	entry.HitCount++
	entry.LastAccessedAt = now
	c.hits++
	metrics.IncCacheLookup(metrics.CacheHit)
	return entry
}

// Set stores a response under the URL's normalized key, replacing any
// previous entry and evicting from the LRU tail while over capacity.
func (c *Cache) Set(rawURL string, content []byte, contentType string, ttl time.Duration) *Entry {
	cacheID, resource, host := normalizeURL(rawURL)
	now := c.now()

	entry := &Entry{
		CacheID:        cacheID,
		Resource:       resource,
		OriginHost:     host,
		Content:        content,
		ContentType:    contentType,
		StoredAt:       now,
		ExpiresAt:      now.Add(ttl),
		Size:           len(content),
		LastAccessedAt: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[cacheID]; ok {
		c.removeLocked(el)
	}
	for c.order.Len() >= c.maxEntries {
		c.evictOldestLocked()
	}

	el := c.order.PushFront(entry)
	c.entries[cacheID] = el
	c.totalBytes += entry.Size
	c.publishSizeLocked()
	return entry
}

// Clear drops every entry and resets the hit and miss counters.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.order.Len()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.totalBytes = 0
	c.hits = 0
	c.misses = 0
	c.publishSizeLocked()
	return n
}

// Stats returns a consistent snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Total:    total,
		HitRate:  rate,
		Items:    c.order.Len(),
		Bytes:    c.totalBytes,
		MB:       float64(c.totalBytes) / (1024 * 1024),
		MaxItems: c.maxEntries,
	}
}

// Entries lists metadata for every cached entry, most recently used first.
func (c *Cache) Entries() []EntryMetadata {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EntryMetadata, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Entry).metadata(now, false))
	}
	return out
}

// Entry returns the metadata of one entry by cache ID; includeContent adds a
// base64 preview of the first bytes of the body. The lookup does not count as
// a hit and does not touch LRU order.
func (c *Cache) Entry(cacheID string, includeContent bool) (EntryMetadata, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[cacheID]
	if !ok {
		return EntryMetadata{}, false
	}
	return el.Value.(*Entry).metadata(now, includeContent), true
}

// Summary aggregates the cache contents per resource class.
func (c *Cache) Summary() map[string]TypeSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]TypeSummary)
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*Entry)
		class := classifyResource(entry.Resource)
		agg := out[class]
		agg.Count++
		agg.Bytes += entry.Size
		agg.Hits += entry.HitCount
		out[class] = agg
	}
	return out
}

func (c *Cache) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
	metrics.EdgeCacheEvictions.Inc()
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*Entry)
	c.order.Remove(el)
	delete(c.entries, entry.CacheID)
	c.totalBytes -= entry.Size
}

func (c *Cache) publishSizeLocked() {
	metrics.SetCacheSize(c.order.Len(), int64(c.totalBytes))
}

// classifyResource maps a resource path to its class by suffix.
func classifyResource(resource string) string {
	switch {
	case strings.HasSuffix(resource, "master.m3u8"):
		return ClassMasterPlaylist
	case strings.HasSuffix(resource, ".m3u8"):
		return ClassVariantPlaylist
	case strings.HasSuffix(resource, "init.mp4"):
		return ClassInitSegment
	case strings.HasSuffix(resource, ".m4s"):
		return ClassMediaSegment
	case strings.HasSuffix(resource, ".json"):
		return ClassStaticAsset
	default:
		return ClassOther
	}
}
