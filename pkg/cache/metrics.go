// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	m "github.com/penguintop/pkarr/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Puts      prometheus.Counter
	Discarded prometheus.Counter
	Evictions prometheus.Counter
	Entries   prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "cache"

	return metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "hits_total",
			Help:      "Number of lookups that found a packet.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "misses_total",
			Help:      "Number of lookups that found nothing.",
		}),
		Puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "puts_total",
			Help:      "Number of stored packets.",
		}),
		Discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "discarded_total",
			Help:      "Number of writes discarded because a packet at least as new was stored.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "evictions_total",
			Help:      "Number of packets dropped to stay within capacity.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "entries",
			Help:      "Number of cached packets.",
		}),
	}
}

func (c *LRU) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(c.metrics)
}
