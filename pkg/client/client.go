// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client publishes and resolves signed packets. Packets are
// served from the record cache while fresh and looked up in the DHT
// otherwise, through a coordinator that owns the DHT gateway.
package client

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"sync"
	"time"

	"github.com/penguintop/pkarr/pkg/cache"
	"github.com/penguintop/pkarr/pkg/coordinator"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/logging"
	m "github.com/penguintop/pkarr/pkg/metrics"
	"github.com/penguintop/pkarr/pkg/packet"
	"github.com/penguintop/pkarr/pkg/tracing"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"resenje.org/singleflight"
)

const (
	// DefaultMinimumTTL is the lower bound in seconds of the time a packet
	// is served from the cache.
	DefaultMinimumTTL = 300
	// DefaultMaximumTTL is the upper bound in seconds of the time a packet
	// is served from the cache.
	DefaultMaximumTTL = 24 * 60 * 60
)

// Options configure a Client. Zero values select the defaults.
type Options struct {
	Cache         cache.Cache
	CacheCapacity int
	MinimumTTL    uint32
	MaximumTTL    uint32
	RequestBuffer int
	QueryTimeout  time.Duration
	Logger        logging.Logger
	Tracer        *tracing.Tracer
}

// Client is safe for concurrent use.
type Client struct {
	coordinator *coordinator.Coordinator
	cache       cache.Cache
	minTTL      uint32
	maxTTL      uint32
	logger      logging.Logger
	tracer      *tracing.Tracer
	resolving   singleflight.Group
	metrics     metrics

	addrMu    sync.RWMutex
	localAddr ma.Multiaddr
}

// New starts a client on gateway. The client owns the gateway from now
// on and closes it on Shutdown.
func New(gateway dht.Gateway, o Options) (*Client, error) {
	if o.MinimumTTL == 0 {
		o.MinimumTTL = DefaultMinimumTTL
	}
	if o.MaximumTTL == 0 {
		o.MaximumTTL = DefaultMaximumTTL
	}
	if o.MinimumTTL > o.MaximumTTL {
		return nil, fmt.Errorf("minimum ttl %d greater than maximum ttl %d", o.MinimumTTL, o.MaximumTTL)
	}
	if o.Logger == nil {
		o.Logger = logging.New(ioutil.Discard, logrus.PanicLevel)
	}

	c := o.Cache
	if c == nil {
		lru, err := cache.New(o.CacheCapacity)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		c = lru
	}

	var localAddr ma.Multiaddr
	if g, ok := gateway.(dht.AddrGetter); ok {
		localAddr = g.LocalAddr()
	}

	co := coordinator.New(gateway, c, o.Logger, coordinator.Options{
		RequestBuffer: o.RequestBuffer,
		QueryTimeout:  o.QueryTimeout,
	})
	go co.Run()

	return &Client{
		coordinator: co,
		cache:       c,
		minTTL:      o.MinimumTTL,
		maxTTL:      o.MaximumTTL,
		logger:      o.Logger,
		tracer:      o.Tracer,
		metrics:     newMetrics(),
		localAddr:   localAddr,
	}, nil
}

// Publish stores p in the cache and in the DHT. The cache is written
// before the DHT is contacted, so p is resolved locally even if the
// publish fails.
func (c *Client) Publish(ctx context.Context, p *packet.SignedPacket) (err error) {
	span, logger, ctx := c.tracer.StartSpanFromContext(ctx, "pkarr-publish", c.logger)
	defer span.Finish()
	defer func() {
		c.metrics.Publish.WithLabelValues(resultLabel(err)).Inc()
	}()

	if c.isShutdown() {
		return ErrDhtIsShutdown
	}

	c.cache.Put(p.Address(), p)

	reply := make(chan coordinator.PublishResult, 1)
	if err := c.send(ctx, coordinator.PublishRequest{Item: p.MutableItem(), Reply: reply}); err != nil {
		return err
	}

	var r coordinator.PublishResult
	select {
	case r = <-reply:
	case <-c.coordinator.Done():
		select {
		case r = <-reply:
		default:
			return ErrDhtIsShutdown
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	switch {
	case r.Err == nil:
		logger.Debugf("client: published %s id %s", p.PublicKey(), r.ID)
		return nil
	case errors.Is(r.Err, dht.ErrPutQueryIsInflight):
		return ErrPublishInflight
	default:
		logger.Debugf("client: publish %s: %v", p.PublicKey(), r.Err)
		var qe *dht.QueryError
		if errors.As(r.Err, &qe) {
			return &FailedToPublishError{Err: r.Err}
		}
		return &MainlineError{Err: r.Err}
	}
}

// Resolve returns the packet published by key. A fresh cached packet is
// returned without contacting the DHT. Concurrent lookups of the same key
// share one DHT query.
func (c *Client) Resolve(ctx context.Context, key crypto.PublicKey) (p *packet.SignedPacket, err error) {
	span, logger, ctx := c.tracer.StartSpanFromContext(ctx, "pkarr-resolve", c.logger)
	defer span.Finish()
	defer func() {
		c.metrics.Resolve.WithLabelValues(resultLabel(err)).Inc()
	}()

	if c.isShutdown() {
		return nil, ErrDhtIsShutdown
	}

	addr := dht.AddressFromKey(key, nil)

	cached := c.cache.Get(addr)
	if cached != nil && cache.IsFresh(cached, c.minTTL, c.maxTTL) {
		logger.Tracef("client: fresh packet for %s in cache", key)
		c.metrics.CacheServed.Inc()
		return cached, nil
	}

	v, shared, err := c.resolving.Do(ctx, addr.String(), func(ctx context.Context) (interface{}, error) {
		return c.resolve(ctx, key, addr, cached)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.metrics.SharedResolves.Inc()
	}
	return v.(*packet.SignedPacket), nil
}

func (c *Client) resolve(ctx context.Context, key crypto.PublicKey, addr dht.Address, cached *packet.SignedPacket) (*packet.SignedPacket, error) {
	var seq *int64
	if cached != nil {
		ts := cached.Timestamp()
		seq = &ts
	}

	reply := make(chan *packet.SignedPacket, 1)
	if err := c.send(ctx, coordinator.ResolveRequest{Address: addr, PublicKey: &key, Seq: seq, Reply: reply}); err != nil {
		return nil, err
	}

	var (
		p  *packet.SignedPacket
		ok bool
	)
	select {
	case p, ok = <-reply:
	case <-c.coordinator.Done():
		select {
		case p, ok = <-reply:
		default:
			return nil, ErrDhtIsShutdown
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !ok || p == nil {
		return nil, &NotFoundError{PublicKey: key}
	}
	return p, nil
}

// Shutdown stops the coordinator and closes the DHT gateway. Calls made
// after Shutdown fail with ErrDhtIsShutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.isShutdown() {
		return ErrDhtIsShutdown
	}

	reply := make(chan struct{}, 1)
	if err := c.send(ctx, coordinator.ShutdownRequest{Reply: reply}); err != nil {
		return err
	}

	select {
	case <-reply:
	case <-c.coordinator.Done():
		select {
		case <-reply:
		default:
			return ErrDhtIsShutdown
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	c.addrMu.Lock()
	c.localAddr = nil
	c.addrMu.Unlock()
	return nil
}

// Cache returns the record cache.
func (c *Client) Cache() cache.Cache {
	return c.cache
}

// LocalAddr returns the local address of the DHT gateway. It is nil after
// Shutdown or when the gateway has none.
func (c *Client) LocalAddr() ma.Multiaddr {
	c.addrMu.RLock()
	defer c.addrMu.RUnlock()
	return c.localAddr
}

// Metrics returns the client, cache and coordinator metrics.
func (c *Client) Metrics() []prometheus.Collector {
	cs := m.PrometheusCollectorsFromFields(c.metrics)
	cs = append(cs, c.coordinator.Metrics()...)
	if mc, ok := c.cache.(m.Collector); ok {
		cs = append(cs, mc.Metrics()...)
	}
	return cs
}

func (c *Client) send(ctx context.Context, r coordinator.Request) error {
	select {
	case c.coordinator.Requests() <- r:
		return nil
	case <-c.coordinator.Done():
		return ErrDhtIsShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) isShutdown() bool {
	select {
	case <-c.coordinator.Done():
		return true
	default:
		return false
	}
}
