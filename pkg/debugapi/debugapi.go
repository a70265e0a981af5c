// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugapi exposes the debug API used to
// inspect the record cache and the runtime
// state of a pkarr node.
package debugapi

import (
	"net/http"
	"sync"

	"github.com/penguintop/pkarr/pkg/cache"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/tracing"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
)

// Client is the part of client.Client the debug API reads from.
type Client interface {
	Cache() cache.Cache
	LocalAddr() ma.Multiaddr
}

// Service implements http.Handler interface to be used in HTTP server.
type Service struct {
	client             Client
	relays             []string
	minTTL             uint32
	maxTTL             uint32
	logger             logging.Logger
	tracer             *tracing.Tracer
	corsAllowedOrigins []string
	metricsRegistry    *prometheus.Registry
	// handler is changed in the Configure method
	handler   http.Handler
	handlerMu sync.RWMutex
}

// Options are the parameters of the routes added by Configure.
type Options struct {
	Relays     []string
	MinimumTTL uint32
	MaximumTTL uint32
}

// New creates a new Debug API Service with only basic routers enabled in order
// to expose /health, /readiness and Go metrics. It is useful to expose
// these endpoints before all dependencies are configured and injected to have
// access to basic debugging tools and /health endpoint.
func New(logger logging.Logger, tracer *tracing.Tracer, corsAllowedOrigins []string) *Service {
	s := new(Service)
	s.logger = logger
	s.tracer = tracer
	s.corsAllowedOrigins = corsAllowedOrigins
	s.metricsRegistry = newMetricsRegistry()

	s.setRouter(s.newBasicRouter())

	return s
}

// Configure injects required dependencies and configuration parameters and
// constructs HTTP routes that depend on them. It is intended and safe to call
// this method only once.
func (s *Service) Configure(c Client, o Options) {
	s.client = c
	s.relays = o.Relays
	s.minTTL = o.MinimumTTL
	s.maxTTL = o.MaximumTTL
	s.metricsRegistry.MustRegister(newNodeCollectors(c, o)...)

	s.setRouter(s.newRouter())
}

// ServeHTTP implements http.Handler interface.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// protect handler as it is changed by the Configure method
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	h.ServeHTTP(w, r)
}
