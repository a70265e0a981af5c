// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node defines the concept of a pkarr node
// by bootstrapping and injecting all necessary
// dependencies.
package node

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/penguintop/pkarr/pkg/client"
	"github.com/penguintop/pkarr/pkg/debugapi"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/dht/localnet"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/metrics"
	"github.com/penguintop/pkarr/pkg/relay"
	"github.com/penguintop/pkarr/pkg/tracing"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Pkarr struct {
	client           *client.Client
	apiServer        *http.Server
	apiAddr          net.Addr
	debugAPIServer   *http.Server
	debugAPIAddr     net.Addr
	errorLogWriter   *io.PipeWriter
	tracerCloser     io.Closer
	stateStoreCloser io.Closer
}

type Options struct {
	DataDir            string
	CacheCapacity      int
	MinimumTTL         uint32
	MaximumTTL         uint32
	RequestBuffer      int
	QueryTimeout       time.Duration
	Relays             []string
	RelayTimeout       time.Duration
	APIAddr            string
	DebugAPIAddr       string
	CORSAllowedOrigins []string
	RateLimit          float64
	RateBurst          int
	TrustProxyHeaders  bool
	Logger             logging.Logger
	TracingEnabled     bool
	TracingEndpoint    string
	TracingServiceName string
}

func NewPkarr(o Options) (_ *Pkarr, err error) {
	logger := o.Logger

	tracer, tracerCloser, err := tracing.NewTracer(&tracing.Options{
		Enabled:     o.TracingEnabled,
		Endpoint:    o.TracingEndpoint,
		ServiceName: o.TracingServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}

	p := &Pkarr{
		errorLogWriter: logger.WriterLevel(logrus.ErrorLevel),
		tracerCloser:   tracerCloser,
	}
	defer func() {
		// release what was started if the node
		// could not be fully constructed
		if err != nil {
			_ = p.Shutdown(context.Background())
		}
	}()

	var debugAPIService *debugapi.Service
	if o.DebugAPIAddr != "" {
		// set up basic debug api endpoints for debugging and /health endpoint
		debugAPIService = debugapi.New(logger, tracer, o.CORSAllowedOrigins)

		p.debugAPIServer, p.debugAPIAddr, err = p.serve("debug api", o.DebugAPIAddr, debugAPIService, logger)
		if err != nil {
			return nil, err
		}
	}

	var (
		gateway dht.Gateway
		network *localnet.Network
	)
	if len(o.Relays) > 0 {
		gateway, err = relay.NewGateway(o.Relays, &http.Client{Timeout: o.RelayTimeout}, logger, tracer)
		if err != nil {
			return nil, fmt.Errorf("relay gateway: %w", err)
		}
		logger.Infof("using relays %v", o.Relays)
	} else {
		stateStore, err := InitStateStore(logger, o.DataDir)
		if err != nil {
			return nil, err
		}
		p.stateStoreCloser = stateStore

		network, err = localnet.New(logger, localnet.WithStores(stateStore))
		if err != nil {
			return nil, fmt.Errorf("local network: %w", err)
		}
		g, err := network.Gateway()
		if err != nil {
			return nil, fmt.Errorf("local network gateway: %w", err)
		}
		gateway = g
		logger.Infof("using local storage node %s", g.LocalAddr())
	}

	pkarrClient, err := client.New(gateway, client.Options{
		CacheCapacity: o.CacheCapacity,
		MinimumTTL:    o.MinimumTTL,
		MaximumTTL:    o.MaximumTTL,
		RequestBuffer: o.RequestBuffer,
		QueryTimeout:  o.QueryTimeout,
		Logger:        logger,
		Tracer:        tracer,
	})
	if err != nil {
		_ = gateway.Close()
		return nil, fmt.Errorf("client: %w", err)
	}
	p.client = pkarrClient

	var apiService *relay.Server
	if o.APIAddr != "" {
		apiService, err = relay.NewServer(pkarrClient, logger, tracer, relay.Options{
			RateLimit:          rate.Limit(o.RateLimit),
			RateBurst:          o.RateBurst,
			TrustProxyHeaders:  o.TrustProxyHeaders,
			CORSAllowedOrigins: o.CORSAllowedOrigins,
			MinimumTTL:         o.MinimumTTL,
			MaximumTTL:         o.MaximumTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("relay server: %w", err)
		}

		p.apiServer, p.apiAddr, err = p.serve("api", o.APIAddr, apiService, logger)
		if err != nil {
			return nil, err
		}
	}

	if debugAPIService != nil {
		// register metrics from components
		debugAPIService.MustRegisterMetrics(pkarrClient.Metrics()...)
		if apiService != nil {
			debugAPIService.MustRegisterMetrics(apiService.Metrics()...)
		}
		if network != nil {
			for _, s := range network.Stores() {
				debugAPIService.MustRegisterMetrics(s.Metrics()...)
			}
		}
		if l, ok := logger.(metrics.Collector); ok {
			debugAPIService.MustRegisterMetrics(l.Metrics()...)
		}

		// inject dependencies and configure full debug api http path routes
		debugAPIService.Configure(pkarrClient, debugapi.Options{
			Relays:     o.Relays,
			MinimumTTL: minimumTTL(o),
			MaximumTTL: maximumTTL(o),
		})
	}

	return p, nil
}

func (p *Pkarr) serve(name, addr string, h http.Handler, logger logging.Logger) (*http.Server, net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%s listener: %w", name, err)
	}

	server := &http.Server{
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Handler:           h,
		ErrorLog:          log.New(p.errorLogWriter, "", 0),
	}

	go func() {
		logger.Infof("%s address: %s", name, listener.Addr())

		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Debugf("%s server: %v", name, err)
			logger.Errorf("unable to serve %s", name)
		}
	}()

	return server, listener.Addr(), nil
}

// Client returns the client publishing and resolving through the node.
func (p *Pkarr) Client() *client.Client {
	return p.client
}

// APIAddr returns the address the relay API listens on, or nil.
func (p *Pkarr) APIAddr() net.Addr {
	return p.apiAddr
}

// DebugAPIAddr returns the address the debug API listens on, or nil.
func (p *Pkarr) DebugAPIAddr() net.Addr {
	return p.debugAPIAddr
}

func (p *Pkarr) Shutdown(ctx context.Context) error {
	var mErr error

	// tryClose is a convenient closure which decrease
	// repetitive io.Closer tryClose procedure.
	tryClose := func(c io.Closer, errMsg string) {
		if c == nil {
			return
		}
		if err := c.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", errMsg, err))
		}
	}

	var eg errgroup.Group
	if p.apiServer != nil {
		eg.Go(func() error {
			if err := p.apiServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}
	if p.debugAPIServer != nil {
		eg.Go(func() error {
			if err := p.debugAPIServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("debug api server: %w", err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		mErr = multierror.Append(mErr, err)
	}

	if p.client != nil {
		if err := p.client.Shutdown(ctx); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("client: %w", err))
		}
	}

	tryClose(p.tracerCloser, "tracer")
	tryClose(p.stateStoreCloser, "statestore")
	tryClose(p.errorLogWriter, "error log writer")

	return mErr
}

func minimumTTL(o Options) uint32 {
	if o.MinimumTTL == 0 {
		return client.DefaultMinimumTTL
	}
	return o.MinimumTTL
}

func maximumTTL(o Options) uint32 {
	if o.MaximumTTL == 0 {
		return client.DefaultMaximumTTL
	}
	return o.MaximumTTL
}

// statestorePath returns the directory of the persisted storage node.
func statestorePath(dataDir string) string {
	return filepath.Join(dataDir, "statestore")
}
