// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"strconv"

	pkarr "github.com/penguintop/pkarr"
	"github.com/penguintop/pkarr/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func newMetricsRegistry() (r *prometheus.Registry) {
	r = prometheus.NewRegistry()

	// Register standard metrics
	r.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{
			Namespace: metrics.Namespace,
		}),
		prometheus.NewGoCollector(),
		prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "info",
			Help:      "Pkarr information.",
			ConstLabels: prometheus.Labels{
				"version": pkarr.Version,
			},
		}),
	)

	return r
}

// newNodeCollectors returns gauges that read the state of a configured
// node at scrape time.
func newNodeCollectors(c Client, o Options) []prometheus.Collector {
	subsystem := "node"

	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "cached_packets",
			Help:      "Number of packets in the record cache.",
		}, func() float64 {
			return float64(c.Cache().Len())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "relays",
			Help:      "Number of configured relays.",
		}, func() float64 {
			return float64(len(o.Relays))
		}),
		prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "ttl_bounds_seconds",
			Help:      "Bounds of the time a packet is served from the cache.",
			ConstLabels: prometheus.Labels{
				"min": strconv.FormatUint(uint64(o.MinimumTTL), 10),
				"max": strconv.FormatUint(uint64(o.MaximumTTL), 10),
			},
		}),
	}
	if hr, ok := c.Cache().(interface{ HitRatio() float64 }); ok {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: subsystem,
			Name:      "cache_hit_ratio",
			Help:      "Ratio of cache lookups that found a packet.",
		}, hr.HitRatio))
	}
	return cs
}

func (s *Service) MustRegisterMetrics(cs ...prometheus.Collector) {
	s.metricsRegistry.MustRegister(cs...)
}
