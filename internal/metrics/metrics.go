// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values of ParsedTotal.
const (
	ResultOK        = "ok"
	ResultDuplicate = "duplicate"
)

var (
	// ParsedTotal counts envelopes by source and outcome. Failures use the
	// error kind as result (malformed, unrecognized_field, ...).
	ParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_parsed_total",
			Help: "Total number of envelopes processed",
		},
		[]string{"source", "result"},
	)

	// ParseDurationSeconds measures parse latency
	ParseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "envelope_parse_duration_seconds",
			Help:    "Time spent parsing one envelope in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
		[]string{"source"},
	)

	// DuplicatesTotal counts envelopes dropped by deduplication
	DuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_duplicates_total",
			Help: "Total number of duplicate envelopes dropped",
		},
		[]string{"source"},
	)

	// HeadersPerMessage tracks header count distribution
	HeadersPerMessage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "envelope_headers_per_message",
			Help:    "Number of headers per parsed message",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1, 2, 4, ..., 128
		},
		[]string{"source"},
	)
)
