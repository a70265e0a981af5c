// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coordinator runs the loop that owns the DHT gateway. Callers
// talk to it only through requests sent on its channel, each carrying
// its own reply channel.
package coordinator

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/penguintop/pkarr/pkg/cache"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/packet"
)

const (
	DefaultRequestBuffer = 32
	DefaultQueryTimeout  = 10 * time.Second
)

// Request is one of PublishRequest, ResolveRequest or ShutdownRequest.
type Request interface {
	kind() string
}

// PublishRequest stores Item in the DHT. Reply must have capacity 1. A put
// that fails because of a shutdown sends no reply.
type PublishRequest struct {
	Item  *dht.MutableItem
	Reply chan PublishResult
}

// PublishResult is the outcome of a put query.
type PublishResult struct {
	ID  dht.ID
	Err error
}

// ResolveRequest looks up the packet stored at Address. PublicKey, when
// set, is the key Address was derived from. Seq is the timestamp of the
// packet already known to the caller, if any. Reply must have capacity 1.
// It receives at most one packet and is closed when the lookup is over.
// A lookup cut short by a shutdown leaves Reply open; callers observe Done.
type ResolveRequest struct {
	Address   dht.Address
	PublicKey *crypto.PublicKey
	Seq       *int64
	Reply     chan *packet.SignedPacket
}

// ShutdownRequest stops the coordinator. Reply must have capacity 1.
type ShutdownRequest struct {
	Reply chan struct{}
}

func (PublishRequest) kind() string  { return "publish" }
func (ResolveRequest) kind() string  { return "resolve" }
func (ShutdownRequest) kind() string { return "shutdown" }

// Options configure a Coordinator.
type Options struct {
	RequestBuffer int
	QueryTimeout  time.Duration
}

// Coordinator serializes access to a DHT gateway.
//
// Publish requests are admitted in arrival order and at most one put per
// address runs at a time. Queries run in goroutines tracked by the
// coordinator, so that a slow query never blocks the loop.
type Coordinator struct {
	gateway  dht.Gateway
	cache    cache.Cache
	logger   logging.Logger
	timeout  time.Duration
	requests chan Request
	inflight mapset.Set
	metrics  metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	once   sync.Once
}

// New returns a coordinator that owns gateway and writes resolved
// packets to c. Run must be called to start processing requests.
func New(gateway dht.Gateway, c cache.Cache, logger logging.Logger, o Options) *Coordinator {
	if o.RequestBuffer <= 0 {
		o.RequestBuffer = DefaultRequestBuffer
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		gateway:  gateway,
		cache:    c,
		logger:   logger,
		timeout:  o.QueryTimeout,
		requests: make(chan Request, o.RequestBuffer),
		inflight: mapset.NewSet(),
		metrics:  newMetrics(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Requests returns the channel to send requests on.
func (c *Coordinator) Requests() chan<- Request {
	return c.requests
}

// Done is closed when the coordinator stopped and released the gateway.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Run processes requests until a ShutdownRequest is received or the
// request channel is closed.
func (c *Coordinator) Run() {
	for r := range c.requests {
		c.metrics.Requests.WithLabelValues(r.kind()).Inc()

		switch r := r.(type) {
		case PublishRequest:
			c.publish(r)
		case ResolveRequest:
			c.resolve(r)
		case ShutdownRequest:
			c.stop(r.Reply)
			return
		}
	}
	c.stop(nil)
}

func (c *Coordinator) publish(r PublishRequest) {
	addr := r.Item.Address()
	if !c.inflight.Add(addr) {
		c.metrics.InflightRejections.Inc()
		c.logger.Debugf("coordinator: put %s: %v", addr, dht.ErrPutQueryIsInflight)
		r.Reply <- PublishResult{Err: dht.ErrPutQueryIsInflight}
		return
	}
	c.metrics.Inflight.Inc()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()

		id, err := c.gateway.Put(ctx, r.Item)
		if err != nil {
			c.metrics.PutErrors.Inc()
			c.logger.Debugf("coordinator: put %s: %v", addr, err)
		}

		c.inflight.Remove(addr)
		c.metrics.Inflight.Dec()
		if err != nil && c.stopping() {
			return
		}
		r.Reply <- PublishResult{ID: id, Err: err}
	}()
}

func (c *Coordinator) resolve(r ResolveRequest) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var replied bool
		defer func() {
			if !replied && c.stopping() {
				return
			}
			close(r.Reply)
		}()

		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()
		if r.PublicKey != nil {
			ctx = dht.WithPublicKey(ctx, *r.PublicKey)
		}

		reply := func(p *packet.SignedPacket) {
			if replied {
				return
			}
			r.Reply <- p
			replied = true
		}

		for resp := range c.gateway.Get(ctx, r.Address, r.Seq) {
			if resp.Item == nil {
				// The responder holds nothing newer than the known
				// packet, which is then current again.
				if r.Seq == nil || resp.Seq != *r.Seq || !c.cache.Touch(r.Address, resp.Seq) {
					continue
				}
				if p := c.cache.Get(r.Address); p != nil && p.Timestamp() == resp.Seq {
					reply(p)
				}
				continue
			}

			p, err := packet.FromMutableItem(resp.Item)
			if err != nil {
				c.metrics.InvalidCandidates.Inc()
				c.logger.Debugf("coordinator: resolve %s: invalid packet from %s: %v", r.Address, resp.From, err)
				continue
			}
			if p.Address() != r.Address {
				c.metrics.InvalidCandidates.Inc()
				c.logger.Debugf("coordinator: resolve %s: packet for %s from %s", r.Address, p.Address(), resp.From)
				continue
			}

			if !c.cache.Put(r.Address, p) {
				// The cached packet is current again if it has the same
				// timestamp.
				c.cache.Touch(r.Address, p.Timestamp())
			}
			if r.Seq == nil || p.Timestamp() >= *r.Seq {
				reply(p)
			}
		}
	}()
}

// stopping reports whether stop cancelled the running queries.
func (c *Coordinator) stopping() bool {
	return c.ctx.Err() != nil
}

// stop cancels running queries, waits for them to return and closes
// the gateway.
func (c *Coordinator) stop(reply chan struct{}) {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
		if err := c.gateway.Close(); err != nil {
			c.logger.Debugf("coordinator: close gateway: %v", err)
			c.logger.Error("coordinator: failed to close dht gateway")
		}
		if reply != nil {
			reply <- struct{}{}
		}
		close(c.done)
	})
}
