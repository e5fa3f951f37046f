package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Transfers counts transfer attempts by stage (build, submit, sponsor) and outcome.
	Transfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sponsorpay",
		Subsystem: "transfer",
		Name:      "total",
		Help:      "Transfer requests by stage and outcome",
	}, []string{"stage", "outcome"})

	SponsoredLamports = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sponsorpay",
		Subsystem: "transfer",
		Name:      "lamports_total",
		Help:      "Lamports moved by confirmed sponsored transfers",
	})

	ConfirmDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sponsorpay",
		Subsystem: "transfer",
		Name:      "confirm_duration_seconds",
		Help:      "Time from submission to the requested commitment",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sponsorpay",
		Subsystem: "rpc",
		Name:      "duration_seconds",
		Help:      "Solana RPC call latency",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"method", "outcome"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sponsorpay",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	Reconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sponsorpay",
		Subsystem: "reconcile",
		Name:      "records_total",
		Help:      "Pending transfer records resolved by the reconciler",
	}, []string{"status"})
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Transfers,
			SponsoredLamports,
			ConfirmDuration,
			RPCDuration,
			HTTPRequests,
			Reconciled,
		)
	})
}

// Outcome maps an error to the label used on every outcome dimension.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
