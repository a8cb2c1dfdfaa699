package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts payment submissions by rail and whether
	// they hit an existing transaction (idempotent replay)
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payswitch_submissions_total",
			Help: "Total number of payment submissions",
		},
		[]string{"rail", "replay"},
	)

	// AuthorizationsTotal counts card authorizations by terminal outcome
	AuthorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payswitch_authorizations_total",
			Help: "Total number of card authorizations by outcome",
		},
		[]string{"outcome"},
	)

	// ForwardAttemptsTotal counts individual forward attempts to issuers
	ForwardAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payswitch_forward_attempts_total",
			Help: "Total number of forward attempts to issuer gateways",
		},
		[]string{"issuer", "result"},
	)

	// ForwardDuration observes issuer round-trip time
	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payswitch_forward_duration_seconds",
			Help:    "Duration of issuer authorization round trips",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"issuer"},
	)

	// InvoiceRefreshesTotal counts crypto invoice status refreshes by result
	InvoiceRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payswitch_invoice_refreshes_total",
			Help: "Total number of crypto invoice status refreshes",
		},
		[]string{"result"},
	)

	// CorrelationDiscardsTotal counts callbacks/polls referencing an
	// unknown external id, which are logged and discarded
	CorrelationDiscardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payswitch_correlation_discards_total",
			Help: "Total number of discarded responses with unknown external ids",
		},
	)
)
