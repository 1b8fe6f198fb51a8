// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts successfully opened sessions.
	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kidcheck_checkins_total",
		Help: "Number of successful child check-ins.",
	})

	// CheckOuts counts closed sessions, including each session closed by
	// a close-all-for-parent call.
	CheckOuts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kidcheck_checkouts_total",
		Help: "Number of successful child check-outs.",
	})

	// ScanRejections counts QR payloads rejected at resolution.
	ScanRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kidcheck_scan_rejections_total",
		Help: "Number of QR scans rejected by the resolver.",
	})

	// EnvelopeFailures counts request bodies that could not be opened.
	EnvelopeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kidcheck_envelope_failures_total",
		Help: "Number of request envelopes that failed to decrypt.",
	})
)
