// SPDX-License-Identifier: MIT

// Package playlist rewrites HLS manifests in flight so every referenced
// child resource carries a fresh capability signature. The transcoder emits
// relative, unsigned manifests exactly once; signatures are applied here on
// every read.
package playlist

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/MusicSocial/streaming/internal/metrics"
	"github.com/MusicSocial/streaming/internal/signing"
)

// TTLPolicy carries the capability lifetimes per resource class. Each child
// URI inherits the TTL of its own class, not the parent manifest's.
type TTLPolicy struct {
	Playlist time.Duration // master and variant playlists
	Segment  time.Duration // init and media segments
}

var mapURIPattern = regexp.MustCompile(`URI="([^"]+)"`)

// Rewrite signs every child URI of the manifest at resourcePath. Line
// structure, ordering, comments, blank lines and the trailing newline are
// preserved; only plain URI lines and the URI attribute of EXT-X-MAP tags
// are touched.
func Rewrite(content, resourcePath string, signer *signing.Signer, policy TTLPolicy) string {
	isMaster := strings.HasSuffix(resourcePath, "master.m3u8")
	dir := path.Dir(resourcePath)

	childTTL := policy.Segment
	childClass := "segment"
	if isMaster {
		// Master manifests reference variant playlists.
		childTTL = policy.Playlist
		childClass = "playlist"
	}

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		switch {
		case !isMaster && strings.HasPrefix(stripped, "#EXT-X-MAP:"):
			out = append(out, rewriteMapLine(line, dir, signer, policy.Segment))
		case stripped != "" && !strings.HasPrefix(stripped, "#"):
			out = append(out, signURI(stripped, dir, signer, childTTL, childClass))
		default:
			out = append(out, line)
		}
	}

	kind := "variant"
	if isMaster {
		kind = "master"
	}
	metrics.IncPlaylistRewrite(kind)

	return strings.Join(out, "\n")
}

// signURI resolves uri against dir, signs the absolute resource path, and
// returns the relative URI with the signature query appended.
func signURI(uri, dir string, signer *signing.Signer, ttl time.Duration, class string) string {
	resource := joinResourcePath(dir, uri)
	expiresAt, sig := signer.Sign(resource, ttl)
	metrics.IncSignatureMinted(class)
	return uri + "?" + signing.Query(expiresAt, sig)
}

func rewriteMapLine(line, dir string, signer *signing.Signer, ttl time.Duration) string {
	match := mapURIPattern.FindStringSubmatch(line)
	if match == nil {
		return line
	}
	signed := signURI(match[1], dir, signer, ttl, "segment")
	return strings.Replace(line, `URI="`+match[1]+`"`, `URI="`+signed+`"`, 1)
}

func joinResourcePath(dir, relative string) string {
	joined := path.Join(dir, relative)
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}
