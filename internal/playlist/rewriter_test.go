// SPDX-License-Identifier: MIT

package playlist

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MusicSocial/streaming/internal/signing"
)

var testPolicy = TTLPolicy{
	Playlist: 300 * time.Second,
	Segment:  60 * time.Second,
}

func testSigner(unix int64) *signing.Signer {
	return signing.New("integration-secret", signing.WithClock(func() time.Time {
		return time.Unix(unix, 0)
	}))
}

func signedQuery(s *signing.Signer, resource string, ttl time.Duration) string {
	expiresAt, sig := s.Sign(resource, ttl)
	return signing.Query(expiresAt, sig)
}

func TestRewrite_Master(t *testing.T) {
	s := testSigner(1_000_000)
	input := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-STREAM-INF:BANDWIDTH=256000",
		"aac_256/index.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=96000",
		"aac_96/index.m3u8",
		"",
	}, "\n")

	got := Rewrite(input, "/tracks/1/1/transcoded/master.m3u8", s, testPolicy)

	want := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-STREAM-INF:BANDWIDTH=256000",
		"aac_256/index.m3u8?" + signedQuery(s, "/tracks/1/1/transcoded/aac_256/index.m3u8", testPolicy.Playlist),
		"#EXT-X-STREAM-INF:BANDWIDTH=96000",
		"aac_96/index.m3u8?" + signedQuery(s, "/tracks/1/1/transcoded/aac_96/index.m3u8", testPolicy.Playlist),
		"",
	}, "\n")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("master rewrite mismatch (-want +got):\n%s", diff)
	}
}

func TestRewrite_VariantWithMap(t *testing.T) {
	s := testSigner(1_000_000)
	input := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-TARGETDURATION:4",
		`#EXT-X-MAP:URI="init.mp4"`,
		"#EXTINF:4.0,",
		"chunk_0001.m4s",
		"#EXTINF:4.0,",
		"chunk_0002.m4s",
		"",
	}, "\n")

	got := Rewrite(input, "/tracks/1/1/transcoded/aac_256/index.m3u8", s, testPolicy)

	base := "/tracks/1/1/transcoded/aac_256"
	want := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-TARGETDURATION:4",
		`#EXT-X-MAP:URI="init.mp4?` + signedQuery(s, base+"/init.mp4", testPolicy.Segment) + `"`,
		"#EXTINF:4.0,",
		"chunk_0001.m4s?" + signedQuery(s, base+"/chunk_0001.m4s", testPolicy.Segment),
		"#EXTINF:4.0,",
		"chunk_0002.m4s?" + signedQuery(s, base+"/chunk_0002.m4s", testPolicy.Segment),
		"",
	}, "\n")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("variant rewrite mismatch (-want +got):\n%s", diff)
	}
}

func TestRewrite_PreservesStructure(t *testing.T) {
	s := testSigner(1_000_000)
	input := strings.Join([]string{
		"#EXTM3U",
		"",
		"#EXT-X-VERSION:7",
		"#EXTINF:4.0,",
		"chunk_0001.m4s",
		"",
	}, "\n")

	got := Rewrite(input, "/tracks/1/1/transcoded/aac_256/index.m3u8", s, testPolicy)

	inLines := strings.Split(input, "\n")
	outLines := strings.Split(got, "\n")
	if len(inLines) != len(outLines) {
		t.Fatalf("line count changed: in=%d out=%d", len(inLines), len(outLines))
	}
	for i, line := range inLines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			if outLines[i] != line {
				t.Fatalf("line %d changed: %q → %q", i, line, outLines[i])
			}
			continue
		}
		if !strings.HasPrefix(outLines[i], stripped+"?exp=") {
			t.Fatalf("URI line %d = %q, want prefix %q", i, outLines[i], stripped+"?exp=")
		}
		if !strings.Contains(outLines[i], "&sig=") {
			t.Fatalf("URI line %d missing signature: %q", i, outLines[i])
		}
	}

	if !strings.HasSuffix(got, "\n") {
		t.Fatal("trailing newline was dropped")
	}
}

func TestRewrite_NoTrailingNewline(t *testing.T) {
	s := testSigner(1_000_000)
	got := Rewrite("#EXTM3U\nchunk_0001.m4s", "/tracks/1/1/transcoded/aac_256/index.m3u8", s, testPolicy)
	if strings.HasSuffix(got, "\n") {
		t.Fatal("trailing newline was invented")
	}
}

func TestRewrite_MapRetainsSurroundingBytes(t *testing.T) {
	s := testSigner(1_000_000)
	line := `#EXT-X-MAP:URI="init.mp4",BYTERANGE="720@0"`

	got := Rewrite(line, "/tracks/1/1/transcoded/aac_256/index.m3u8", s, testPolicy)

	wantSuffix := `,BYTERANGE="720@0"`
	if !strings.HasSuffix(got, wantSuffix) {
		t.Fatalf("attributes after URI lost: %q", got)
	}
	wantPrefix := `#EXT-X-MAP:URI="init.mp4?`
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("URI not rewritten in place: %q", got)
	}
}

func TestRewrite_MapWithoutURIPassesThrough(t *testing.T) {
	s := testSigner(1_000_000)
	line := "#EXT-X-MAP:BYTERANGE=\"720@0\""
	if got := Rewrite(line, "/tracks/1/1/transcoded/aac_256/index.m3u8", s, testPolicy); got != line {
		t.Fatalf("MAP tag without URI attribute must pass through, got %q", got)
	}
}

func TestRewrite_EmptyManifest(t *testing.T) {
	s := testSigner(1_000_000)
	if got := Rewrite("", "/tracks/1/1/transcoded/master.m3u8", s, testPolicy); got != "" {
		t.Fatalf("empty manifest must stay empty, got %q", got)
	}
}
