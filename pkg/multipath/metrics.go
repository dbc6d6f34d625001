// SPDX-License-Identifier: Apache-2.0

package multipath

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stop reasons
const (
	stopInterrupted = "interrupted"
	stopGone        = "gone"
	stopUnpaired    = "unpaired"
	stopError       = "error"
	stopPanic       = "panic"
)

// Reconciliation results
const (
	resultOK    = "ok"
	resultGone  = "gone"
	resultError = "error"
)

type metrics struct {
	waitersActive   prometheus.Gauge
	events          *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	reschedules     prometheus.Counter
	stops           *prometheus.CounterVec
}

// newMetrics creates the waiter collectors on reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		waitersActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "mpathd_waiters_active",
			Help: "Number of running devmap event waiters",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mpathd_waiter_events_total",
			Help: "Devmap events observed per map",
		}, []string{"map"}),
		reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mpathd_reconciliations_total",
			Help: "Map reconciliations by result",
		}, []string{"result"}),
		reschedules: f.NewCounter(prometheus.CounterOpts{
			Name: "mpathd_waiter_reschedules_total",
			Help: "Reconciliations followed by a delayed re-wait",
		}),
		stops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mpathd_waiter_stops_total",
			Help: "Event waiter exits by reason",
		}, []string{"reason"}),
	}
}
