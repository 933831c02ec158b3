// Package metrics exposes the Prometheus instruments used across the
// service.  Everything here is fire-and-forget: recording never sits on
// a correctness-critical path and failures to scrape are invisible to
// request handling.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionOutcomes counts reservation intake results by outcome
	// (admitted, slot_full, ineligible, error).
	AdmissionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_admission_outcomes_total",
		Help: "Reservation intake outcomes.",
	}, []string{"outcome"})

	// ConfirmOutcomes counts confirmation worker results by outcome
	// (confirmed, slot_full, duplicate, team_duplicate, lock_conflict,
	// slot_missing, skipped_terminal).
	ConfirmOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_confirm_outcomes_total",
		Help: "Confirmation worker outcomes.",
	}, []string{"outcome"})

	// LockConflicts counts optimistic-lock conflicts on the capacity row,
	// split by the path that hit them (confirm, cancel).
	LockConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slot_capacity_lock_conflicts_total",
		Help: "Optimistic lock conflicts on slot_capacities.",
	}, []string{"path"})

	// QueueDepth tracks waiting-room size per event, updated on enter
	// and status polls.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "waiting_room_depth",
		Help: "Number of users currently waiting per event.",
	}, []string{"event_id"})

	// SweeperEvictions counts waiting-room entries removed for heartbeat expiry.
	SweeperEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waiting_room_evictions_total",
		Help: "Queue entries evicted by the cleanup sweeper.",
	})

	ledgerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_ledger_op_duration_seconds",
		Help:    "Latency of stock ledger Lua operations.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"op", "result"})
)

// ObserveLedgerOp records the duration of one ledger script execution.
func ObserveLedgerOp(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ledgerOpDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}
