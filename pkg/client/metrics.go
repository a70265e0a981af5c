// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"

	m "github.com/penguintop/pkarr/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Publish        *prometheus.CounterVec
	Resolve        *prometheus.CounterVec
	CacheServed    prometheus.Counter
	SharedResolves prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "client"

	return metrics{
		Publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "publish_total",
			Help:      "Number of publish calls by result.",
		}, []string{"result"}),
		Resolve: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "resolve_total",
			Help:      "Number of resolve calls by result.",
		}, []string{"result"}),
		CacheServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "cache_served_total",
			Help:      "Number of resolve calls answered from a fresh cache entry.",
		}),
		SharedResolves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "shared_resolves_total",
			Help:      "Number of resolve calls that joined a running lookup.",
		}),
	}
}

func resultLabel(err error) string {
	var (
		fe *FailedToPublishError
		me *MainlineError
		ne *NotFoundError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDhtIsShutdown):
		return "shutdown"
	case errors.Is(err, ErrPublishInflight):
		return "inflight"
	case errors.As(err, &fe):
		return "failed"
	case errors.As(err, &me):
		return "mainline"
	case errors.As(err, &ne):
		return "not_found"
	default:
		return "error"
	}
}
