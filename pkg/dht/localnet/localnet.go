// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package localnet provides an in-process DHT: a set of storage nodes
// reachable by any number of gateways without sockets or routing. Every
// gateway queries every node.
package localnet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/dht/itemstore"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/statestore/mock"
	"github.com/penguintop/pkarr/pkg/storage"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const basePort = 6881

// Network is a set of storage nodes.
type Network struct {
	nodes   []*node
	latency time.Duration
	logger  logging.Logger
	ports   atomic.Uint32
}

type node struct {
	addr  ma.Multiaddr
	store *itemstore.Store
}

type options struct {
	nodes   int
	stores  []storage.StateStorer
	latency time.Duration
}

// Option configures a Network.
type Option func(*options)

// WithNodes sets the number of in-memory nodes. It is ignored when
// stores are given with WithStores.
func WithNodes(n int) Option {
	return func(o *options) {
		o.nodes = n
	}
}

// WithStores backs one node by each of the given state stores.
func WithStores(stores ...storage.StateStorer) Option {
	return func(o *options) {
		o.stores = stores
	}
}

// WithLatency delays every node response by d.
func WithLatency(d time.Duration) Option {
	return func(o *options) {
		o.latency = d
	}
}

// New creates a network of one in-memory node unless configured
// otherwise.
func New(logger logging.Logger, opts ...Option) (*Network, error) {
	o := options{nodes: 1}
	for _, opt := range opts {
		opt(&o)
	}

	stores := o.stores
	if len(stores) == 0 {
		for i := 0; i < o.nodes; i++ {
			stores = append(stores, mock.NewStateStore())
		}
	}

	n := &Network{
		latency: o.latency,
		logger:  logger,
	}
	for _, s := range stores {
		addr, err := n.nextAddr()
		if err != nil {
			return nil, err
		}
		n.nodes = append(n.nodes, &node{
			addr:  addr,
			store: itemstore.New(s, logger),
		})
	}
	return n, nil
}

// Stores returns the item stores of all nodes.
func (n *Network) Stores() []*itemstore.Store {
	stores := make([]*itemstore.Store, 0, len(n.nodes))
	for _, nd := range n.nodes {
		stores = append(stores, nd.store)
	}
	return stores
}

func (n *Network) nextAddr() (ma.Multiaddr, error) {
	port := basePort + n.ports.Inc() - 1
	return ma.NewMultiaddr(fmt.Sprintf("/ip4/127.0.0.1/udp/%d", port))
}

// Gateway returns a new gateway bound to its own local address.
func (n *Network) Gateway() (*Gateway, error) {
	addr, err := n.nextAddr()
	if err != nil {
		return nil, err
	}
	return &Gateway{
		network: n,
		addr:    addr,
		quit:    make(chan struct{}),
	}, nil
}

var (
	_ dht.Gateway    = (*Gateway)(nil)
	_ dht.AddrGetter = (*Gateway)(nil)
)

// Gateway is a dht.Gateway on a Network.
type Gateway struct {
	network *Network
	addr    ma.Multiaddr

	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// Put stores item on every node. It succeeds if at least one node
// accepted the item.
func (g *Gateway) Put(ctx context.Context, item *dht.MutableItem) (dht.ID, error) {
	if g.closed.Load() {
		return dht.ID{}, dht.ErrClosed
	}
	nodes := g.network.nodes
	if len(nodes) == 0 {
		return dht.ID{}, dht.ErrNoNodes
	}

	var (
		mu       sync.Mutex
		errs     []error
		accepted int
	)
	var eg errgroup.Group
	for _, nd := range nodes {
		nd := nd
		eg.Go(func() error {
			err := g.delay(ctx)
			if err == nil {
				err = nd.store.Put(item)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.network.logger.Debugf("localnet: put %s to %s: %v", item.Address(), nd.addr, err)
				errs = append(errs, fmt.Errorf("%s: %w", nd.addr, err))
				return nil
			}
			accepted++
			return nil
		})
	}
	_ = eg.Wait()

	if accepted == 0 {
		return dht.ID{}, &dht.QueryError{Errors: errs}
	}
	return dht.ID(item.Address()), nil
}

// Get asks every node for the item at addr. Nodes holding an item with a
// sequence number not above seq respond with a confirmation only.
func (g *Gateway) Get(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
	c := make(chan dht.GetResponse)
	if g.closed.Load() {
		close(c)
		return c
	}

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	for _, nd := range g.network.nodes {
		nd := nd
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := g.delay(ctx); err != nil {
				return
			}
			item, err := nd.store.Get(addr)
			if err != nil {
				if !errors.Is(err, itemstore.ErrNotFound) {
					g.network.logger.Debugf("localnet: get %s from %s: %v", addr, nd.addr, err)
				}
				return
			}

			r := dht.GetResponse{From: nd.addr.String(), Seq: item.Seq}
			if seq == nil || item.Seq > *seq {
				r.Item = item
			}
			select {
			case c <- r:
			case <-ctx.Done():
			case <-g.quit:
			}
		}()
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		wg.Wait()
		close(c)
	}()
	return c
}

func (g *Gateway) delay(ctx context.Context) error {
	if g.network.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.network.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.quit:
		return dht.ErrClosed
	}
}

func (g *Gateway) LocalAddr() ma.Multiaddr {
	return g.addr
}

// Close stops all running queries. Nodes keep their items.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		close(g.quit)
	})
	g.wg.Wait()
	return nil
}
