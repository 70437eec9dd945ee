// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values for auth metrics.
const (
	ResultSuccess = "success"
)

// LoginAttempts is the counter for login attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_auth_logins_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// Registrations is the counter for registration attempts by result.
var Registrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_auth_registrations_total",
		Help: "Total number of registration attempts by result",
	},
	[]string{"result"},
)

// TokensIssued counts access tokens minted.
var TokensIssued = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "warden_auth_tokens_issued_total",
		Help: "Total number of access tokens issued",
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(Registrations)
	reg.MustRegister(TokensIssued)
}

func resultLabel(err error) string {
	if err == nil {
		return ResultSuccess
	}
	return KindOf(err).String()
}

func recordLogin(err error) {
	LoginAttempts.WithLabelValues(resultLabel(err)).Inc()
}

func recordRegistration(err error) {
	Registrations.WithLabelValues(resultLabel(err)).Inc()
}

func recordTokenIssued() {
	TokensIssued.Inc()
}
