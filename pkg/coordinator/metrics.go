// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coordinator

import (
	m "github.com/penguintop/pkarr/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Requests           *prometheus.CounterVec
	Inflight           prometheus.Gauge
	InflightRejections prometheus.Counter
	PutErrors          prometheus.Counter
	InvalidCandidates  prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "coordinator"

	return metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Number of processed requests by kind.",
		}, []string{"kind"}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "inflight_puts",
			Help:      "Number of running put queries.",
		}),
		InflightRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "inflight_rejections_total",
			Help:      "Number of publish requests refused because a put for the address was running.",
		}),
		PutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "put_errors_total",
			Help:      "Number of failed put queries.",
		}),
		InvalidCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "invalid_candidates_total",
			Help:      "Number of skipped get responses that did not carry a valid packet.",
		}),
	}
}

func (c *Coordinator) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(c.metrics)
}
