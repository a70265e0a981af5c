// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mock

import (
	"context"
	"sync"

	"github.com/penguintop/pkarr/pkg/dht"
	ma "github.com/multiformats/go-multiaddr"
)

var (
	_ dht.Gateway    = (*Gateway)(nil)
	_ dht.AddrGetter = (*Gateway)(nil)
)

// Gateway is a dht.Gateway that records calls and delegates to the
// configured functions.
type Gateway struct {
	putFunc   func(ctx context.Context, item *dht.MutableItem) (dht.ID, error)
	getFunc   func(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse
	localAddr ma.Multiaddr

	mtx      sync.Mutex
	putCalls int
	getCalls int
	getSeqs  []*int64
	closed   bool
}

// New returns a gateway that accepts every put and finds nothing.
func New(opts ...Option) *Gateway {
	g := new(Gateway)
	for _, o := range opts {
		o.apply(g)
	}
	return g
}

func (g *Gateway) Put(ctx context.Context, item *dht.MutableItem) (dht.ID, error) {
	g.mtx.Lock()
	g.putCalls++
	g.mtx.Unlock()

	if g.putFunc != nil {
		return g.putFunc(ctx, item)
	}
	return dht.ID(item.Address()), nil
}

func (g *Gateway) Get(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
	g.mtx.Lock()
	g.getCalls++
	g.getSeqs = append(g.getSeqs, seq)
	g.mtx.Unlock()

	if g.getFunc != nil {
		return g.getFunc(ctx, addr, seq)
	}
	c := make(chan dht.GetResponse)
	close(c)
	return c
}

func (g *Gateway) LocalAddr() ma.Multiaddr {
	return g.localAddr
}

func (g *Gateway) Close() error {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.closed = true
	return nil
}

// PutCalls returns the number of Put calls.
func (g *Gateway) PutCalls() int {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.putCalls
}

// GetCalls returns the number of Get calls.
func (g *Gateway) GetCalls() int {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.getCalls
}

// GetSeqs returns the known sequence numbers passed to Get, in call order.
func (g *Gateway) GetSeqs() []*int64 {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return append([]*int64(nil), g.getSeqs...)
}

// Closed reports whether Close was called.
func (g *Gateway) Closed() bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.closed
}

// Option is the option passed to the mock gateway.
type Option interface {
	apply(*Gateway)
}

type optionFunc func(*Gateway)

func (f optionFunc) apply(g *Gateway) { f(g) }

func WithPutFunc(f func(ctx context.Context, item *dht.MutableItem) (dht.ID, error)) Option {
	return optionFunc(func(g *Gateway) {
		g.putFunc = f
	})
}

func WithGetFunc(f func(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse) Option {
	return optionFunc(func(g *Gateway) {
		g.getFunc = f
	})
}

func WithLocalAddr(addr ma.Multiaddr) Option {
	return optionFunc(func(g *Gateway) {
		g.localAddr = addr
	})
}

// Responses returns a get function that streams the given responses and
// closes the channel.
func Responses(rs ...dht.GetResponse) func(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
	return func(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
		c := make(chan dht.GetResponse)
		go func() {
			defer close(c)
			for _, r := range rs {
				select {
				case c <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
		return c
	}
}
