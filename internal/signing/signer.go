// SPDX-License-Identifier: MIT

// Package signing mints and verifies short-lived HMAC capability signatures
// for resource paths. A signed URL is transferable for its lifetime; replay
// within the TTL is accepted by design of the capability scheme.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer generates and verifies signatures under a shared secret. Changing
// the secret invalidates every in-flight capability.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// New creates a Signer for the given secret.
func New(secret string, opts ...Option) *Signer {
	s := &Signer{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign computes the expiry for the given TTL and the hex-encoded
// HMAC-SHA-256 of resourcePath followed by the decimal expiry.
func (s *Signer) Sign(resourcePath string, ttl time.Duration) (expiresAt int64, signature string) {
	expiresAt = s.now().Unix() + int64(ttl/time.Second)
	return expiresAt, s.compute(resourcePath, expiresAt)
}

// Verify reports whether the signature is valid for the resource path and
// not yet expired. Expiry is strict: a capability is dead at exactly
// expiresAt. The comparison is constant time.
func (s *Signer) Verify(resourcePath string, expiresAt int64, signature string) bool {
	if expiresAt <= s.now().Unix() {
		return false
	}
	expected := s.compute(resourcePath, expiresAt)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// BuildURL concatenates base (trailing slash stripped), the resource path and
// the signature query parameters.
func (s *Signer) BuildURL(base, resourcePath string, expiresAt int64, signature string) string {
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(base, "/"), resourcePath, Query(expiresAt, signature))
}

// Query renders the exp/sig query string carried by every signed URL.
func Query(expiresAt int64, signature string) string {
	return "exp=" + strconv.FormatInt(expiresAt, 10) + "&sig=" + signature
}

func (s *Signer) compute(resourcePath string, expiresAt int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(resourcePath))
	mac.Write([]byte(strconv.FormatInt(expiresAt, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
