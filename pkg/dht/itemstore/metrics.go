// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package itemstore

import (
	m "github.com/penguintop/pkarr/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Stored   prometheus.Counter
	Rejected prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "itemstore"

	return metrics{
		Stored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "stored_total",
			Help:      "Number of mutable items written.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "rejected_total",
			Help:      "Number of mutable items refused.",
		}),
	}
}

func (s *Store) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(s.metrics)
}
