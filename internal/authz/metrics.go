// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthzClassificationsTotal counts classification decisions by class and outcome.
	AuthzClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_classifications_total",
			Help: "Total number of request classification decisions",
		},
		[]string{"class", "matched"},
	)

	AuthzCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_cache_hits_total",
			Help: "Total number of classification cache hits",
		},
	)

	AuthzCacheResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_cache_resets_total",
			Help: "Times the classification cache was cleared because it was full",
		},
	)

	AuthzErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_errors_total",
			Help: "Total number of classification errors",
		},
	)
)

func recordClassification(class string, matched bool) {
	label := "false"
	if matched {
		label = "true"
	}
	AuthzClassificationsTotal.WithLabelValues(class, label).Inc()
}
