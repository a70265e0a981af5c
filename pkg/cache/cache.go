// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache provides the record cache: the latest known signed packet
// per address, replaced only by packets with a newer timestamp.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/packet"
	"go.uber.org/atomic"
)

// DefaultCapacity is the number of packets kept when no capacity is set.
const DefaultCapacity = 1000

var timeNow = time.Now

// Cache maps addresses to signed packets.
//
// Put is last-writer-wins by packet timestamp: a packet is stored only if
// no packet with an equal or newer timestamp is stored for its address.
// Stored packets are stamped with the time of insertion.
type Cache interface {
	Get(addr dht.Address) *packet.SignedPacket
	Put(addr dht.Address, p *packet.SignedPacket) (stored bool)
	// Touch marks the packet with timestamp ts as seen now. It reports
	// false if a packet with a different timestamp, or none, is stored.
	Touch(addr dht.Address, ts int64) bool
	Len() int
}

// IsFresh reports whether p has not outlived its TTL clamped to
// [min, max] seconds.
func IsFresh(p *packet.SignedPacket, min, max uint32) bool {
	return p.ExpiresInAt(timeNow(), min, max) > 0
}

var _ Cache = (*LRU)(nil)

// LRU is an in-memory Cache bounded by capacity. The least recently used
// address is dropped when the capacity is reached.
type LRU struct {
	mu      sync.Mutex
	entries *simplelru.LRU
	hits    atomic.Uint64
	misses  atomic.Uint64
	metrics metrics
}

// New returns an empty LRU cache holding at most capacity packets.
func New(capacity int) (*LRU, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &LRU{
		metrics: newMetrics(),
	}
	entries, err := simplelru.NewLRU(capacity, func(interface{}, interface{}) {
		c.metrics.Evictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("lru: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *LRU) Get(addr dht.Address) *packet.SignedPacket {
	c.mu.Lock()
	v, ok := c.entries.Get(addr)
	c.mu.Unlock()

	if !ok {
		c.misses.Inc()
		c.metrics.Misses.Inc()
		return nil
	}
	c.hits.Inc()
	c.metrics.Hits.Inc()
	return v.(*packet.SignedPacket)
}

func (c *LRU) Put(addr dht.Address, p *packet.SignedPacket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries.Peek(addr); ok {
		if v.(*packet.SignedPacket).Timestamp() >= p.Timestamp() {
			c.metrics.Discarded.Inc()
			return false
		}
	}
	c.entries.Add(addr, p.WithLastSeen(timeNow()))
	c.metrics.Puts.Inc()
	c.metrics.Entries.Set(float64(c.entries.Len()))
	return true
}

func (c *LRU) Touch(addr dht.Address, ts int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Peek(addr)
	if !ok {
		return false
	}
	p := v.(*packet.SignedPacket)
	if p.Timestamp() != ts {
		return false
	}
	c.entries.Add(addr, p.WithLastSeen(timeNow()))
	return true
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Addresses returns the cached addresses from the oldest to the most
// recently used.
func (c *LRU) Addresses() []dht.Address {
	c.mu.Lock()
	keys := c.entries.Keys()
	c.mu.Unlock()

	addrs := make([]dht.Address, 0, len(keys))
	for _, k := range keys {
		addrs = append(addrs, k.(dht.Address))
	}
	return addrs
}

// HitRatio returns the share of Get calls that found a packet.
func (c *LRU) HitRatio() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
