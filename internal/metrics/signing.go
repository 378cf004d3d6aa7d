// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the streaming services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignaturesMinted counts capability signatures minted by purpose.
	SignaturesMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_signatures_minted_total",
		Help: "Total number of capability signatures minted",
	}, []string{"class"})

	// SignatureVerifications counts verification attempts by outcome.
	SignatureVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streaming_signature_verifications_total",
		Help: "Total number of signature verification attempts by outcome",
	}, []string{"outcome"})
)

// Verification outcomes.
const (
	VerifyOK       = "ok"
	VerifyExpired  = "expired"
	VerifyMismatch = "mismatch"
	VerifyMissing  = "missing_params"
)

// IncSignatureMinted records a minted signature for the given resource class.
func IncSignatureMinted(class string) {
	SignaturesMinted.WithLabelValues(class).Inc()
}

// IncSignatureVerification records a verification attempt outcome.
func IncSignatureVerification(outcome string) {
	SignatureVerifications.WithLabelValues(outcome).Inc()
}
