// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

// Metrics exposes Prometheus collectors for transfer activity.
type Metrics struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	running   prometheus.Gauge
	duration  *prometheus.HistogramVec
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same names. Other registration errors
// panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	started := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dhtransfer",
			Subsystem: "engine",
			Name:      "transfers_started_total",
			Help:      "Transfers started, by URL scheme.",
		},
		[]string{"scheme"},
	)
	completed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dhtransfer",
			Subsystem: "engine",
			Name:      "transfers_completed_total",
			Help:      "Transfers completed, by result code.",
		},
		[]string{"code"},
	)
	running := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dhtransfer",
			Subsystem: "engine",
			Name:      "transfers_running",
			Help:      "Transfers with an open connection.",
		},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dhtransfer",
			Subsystem: "engine",
			Name:      "transfer_duration_seconds",
			Help:      "Wall time from start to completion of a transfer.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	collectors := []prometheus.Collector{started, completed, running, duration}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch target := collector.(type) {
				case *prometheus.CounterVec:
					switch target { //nolint:exhaustive
					case started:
						started = already.ExistingCollector.(*prometheus.CounterVec)
					case completed:
						completed = already.ExistingCollector.(*prometheus.CounterVec)
					}
				case *prometheus.HistogramVec:
					duration = already.ExistingCollector.(*prometheus.HistogramVec)
				case prometheus.Gauge:
					running = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		started:   started,
		completed: completed,
		running:   running,
		duration:  duration,
	}
}

func (m *Metrics) transferStarted(scheme string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(scheme).Inc()
	m.running.Inc()
}

func (m *Metrics) transferFinished(scheme string, code errs.Code, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.completed.WithLabelValues(code.String()).Inc()
	m.duration.WithLabelValues(scheme).Observe(elapsed.Seconds())
}
