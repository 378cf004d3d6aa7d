// SPDX-License-Identifier: MIT

package edge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache(maxEntries int, now *time.Time) *Cache {
	c := NewCache(maxEntries)
	c.now = func() time.Time { return *now }
	return c
}

func TestCacheKeyStripsSignatureOnly(t *testing.T) {
	cases := []struct {
		name    string
		a, b    string
		sameKey bool
	}{
		{
			name:    "different signatures share a key",
			a:       "http://gw/origin/tracks/a/t/transcoded/master.m3u8?exp=111&sig=aaa",
			b:       "http://gw/origin/tracks/a/t/transcoded/master.m3u8?exp=222&sig=bbb",
			sameKey: true,
		},
		{
			name:    "other query params are preserved",
			a:       "http://gw/origin/tracks/a/t/x.json?v=1&exp=111&sig=aaa",
			b:       "http://gw/origin/tracks/a/t/x.json?v=2&exp=111&sig=aaa",
			sameKey: false,
		},
		{
			name:    "different paths differ",
			a:       "http://gw/origin/tracks/a/t/transcoded/seg_0.m4s?exp=1&sig=s",
			b:       "http://gw/origin/tracks/a/t/transcoded/seg_1.m4s?exp=1&sig=s",
			sameKey: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keyA, _, _ := normalizeURL(tc.a)
			keyB, _, _ := normalizeURL(tc.b)
			require.Equal(t, tc.sameKey, keyA == keyB)
		})
	}
}

func TestCacheKeyHashesLongCanonicalForms(t *testing.T) {
	long := "http://gw/origin/" + strings.Repeat("d/", 300) + "x.m4s?exp=1&sig=s"
	key, resource, host := normalizeURL(long)

	require.Len(t, key, 64, "long keys collapse to a sha256 hex digest")
	require.Equal(t, "gw", host)
	require.True(t, strings.HasSuffix(resource, "x.m4s"))

	sum := sha256.Sum256([]byte("/origin/" + strings.Repeat("d/", 300) + "x.m4s"))
	require.Equal(t, hex.EncodeToString(sum[:]), key)
}

func TestCacheGetIsIdempotentAndCountsHits(t *testing.T) {
	now := time.Unix(2_000_000, 0)
	c := newTestCache(10, &now)

	url := "http://gw/origin/tracks/a/t/transcoded/master.m3u8?exp=1&sig=s"
	c.Set(url, []byte("#EXTM3U\n"), "application/vnd.apple.mpegurl", 60*time.Second)

	first := c.Get(url)
	require.NotNil(t, first)
	second := c.Get(url)
	require.NotNil(t, second)
	require.Equal(t, first.Content, second.Content)
	require.Equal(t, 2, second.HitCount)

	stats := c.Stats()
	require.Equal(t, 2, stats.Hits)
	require.Equal(t, 0, stats.Misses)
	require.Equal(t, 1.0, stats.HitRate)
}

func TestCacheExpiryOnRead(t *testing.T) {
	now := time.Unix(2_000_000, 0)
	c := newTestCache(10, &now)

	url := "http://gw/origin/tracks/a/t/transcoded/seg_0.m4s?exp=1&sig=s"
	c.Set(url, []byte("media"), "video/iso.segment", 30*time.Second)

	now = now.Add(29 * time.Second)
	require.NotNil(t, c.Get(url))

	// At exactly the expiry instant the entry is dead and purged.
	now = now.Add(1 * time.Second)
	require.Nil(t, c.Get(url))
	require.Equal(t, 0, c.Stats().Items)
	require.Equal(t, 0, c.Stats().Bytes)

	stats := c.Stats()
	require.Equal(t, 1, stats.Hits)
	require.Equal(t, 1, stats.Misses, "expired reads count as misses")
}

func TestCacheLRUEviction(t *testing.T) {
	now := time.Unix(2_000_000, 0)
	c := newTestCache(2, &now)

	urlFor := func(n string) string {
		return fmt.Sprintf("http://gw/origin/tracks/a/t/transcoded/%s.m4s?exp=1&sig=s", n)
	}

	c.Set(urlFor("a"), []byte("aaaa"), "video/iso.segment", time.Minute)
	c.Set(urlFor("b"), []byte("bbbb"), "video/iso.segment", time.Minute)
	require.NotNil(t, c.Get(urlFor("a"))) // a becomes most recently used

	c.Set(urlFor("c"), []byte("cccc"), "video/iso.segment", time.Minute)

	require.NotNil(t, c.Get(urlFor("a")))
	require.Nil(t, c.Get(urlFor("b")), "least recently used entry is evicted")
	require.NotNil(t, c.Get(urlFor("c")))
	require.Equal(t, 2, c.Stats().Items)
}

func TestCacheByteAccounting(t *testing.T) {
	now := time.Unix(2_000_000, 0)
	c := newTestCache(3, &now)

	urlFor := func(n string) string {
		return fmt.Sprintf("http://gw/origin/tracks/a/t/transcoded/%s.m4s?exp=1&sig=s", n)
	}

	c.Set(urlFor("a"), make([]byte, 100), "video/iso.segment", time.Minute)
	c.Set(urlFor("b"), make([]byte, 200), "video/iso.segment", time.Minute)
	require.Equal(t, 300, c.Stats().Bytes)

	// Replacement releases the old entry's bytes.
	c.Set(urlFor("a"), make([]byte, 50), "video/iso.segment", time.Minute)
	require.Equal(t, 250, c.Stats().Bytes)

	c.Set(urlFor("c"), make([]byte, 10), "video/iso.segment", time.Minute)
	c.Set(urlFor("d"), make([]byte, 20), "video/iso.segment", time.Minute)
	require.Equal(t, 3, c.Stats().Items)

	// Invariant: total bytes equals the sum over live entries.
	sum := 0
	for _, md := range c.Entries() {
		sum += md.SizeBytes
	}
	require.Equal(t, sum, c.Stats().Bytes)

	c.Clear()
	require.Equal(t, 0, c.Stats().Items)
	require.Equal(t, 0, c.Stats().Bytes)
}

func TestClassifyResource(t *testing.T) {
	cases := []struct {
		resource string
		class    string
	}{
		{"/origin/tracks/a/t/transcoded/master.m3u8", ClassMasterPlaylist},
		{"/origin/tracks/a/t/transcoded/aac_128/index.m3u8", ClassVariantPlaylist},
		{"/origin/tracks/a/t/transcoded/aac_128/init.mp4", ClassInitSegment},
		{"/origin/tracks/a/t/transcoded/aac_128/segment_003.m4s", ClassMediaSegment},
		{"/origin/tracks/a/t/metadata.json", ClassStaticAsset},
		{"/origin/tracks/a/t/cover.jpg", ClassOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.class, classifyResource(tc.resource), tc.resource)
	}
}

func TestCacheEntryInspection(t *testing.T) {
	now := time.Unix(2_000_000, 0)
	c := newTestCache(10, &now)

	url := "http://gw/origin/tracks/a/t/transcoded/master.m3u8?exp=1&sig=s"
	entry := c.Set(url, []byte("#EXTM3U\nbody"), "application/vnd.apple.mpegurl", 60*time.Second)

	md, ok := c.Entry(entry.CacheID, false)
	require.True(t, ok)
	require.Equal(t, ClassMasterPlaylist, md.ResourceType)
	require.Equal(t, 60, md.TTLRemaining)
	require.Empty(t, md.ContentPreview)

	md, ok = c.Entry(entry.CacheID, true)
	require.True(t, ok)
	require.NotEmpty(t, md.ContentPreview)

	// Inspection does not count as a cache hit.
	require.Equal(t, 0, c.Stats().Hits)

	_, ok = c.Entry("no-such-id", false)
	require.False(t, ok)
}

func TestCacheSummary(t *testing.T) {
	now := time.Unix(2_000_000, 0)
	c := newTestCache(10, &now)

	c.Set("http://gw/origin/t/master.m3u8?exp=1&sig=s", make([]byte, 10), "x", time.Minute)
	c.Set("http://gw/origin/t/aac_128/index.m3u8?exp=1&sig=s", make([]byte, 20), "x", time.Minute)
	c.Set("http://gw/origin/t/aac_128/seg_0.m4s?exp=1&sig=s", make([]byte, 30), "x", time.Minute)
	c.Set("http://gw/origin/t/aac_128/seg_1.m4s?exp=1&sig=s", make([]byte, 40), "x", time.Minute)
	c.Get("http://gw/origin/t/aac_128/seg_0.m4s?exp=9&sig=zz")

	summary := c.Summary()
	require.Equal(t, TypeSummary{Count: 1, Bytes: 10}, summary[ClassMasterPlaylist])
	require.Equal(t, TypeSummary{Count: 1, Bytes: 20}, summary[ClassVariantPlaylist])
	require.Equal(t, TypeSummary{Count: 2, Bytes: 70, Hits: 1}, summary[ClassMediaSegment])
}
