// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client_test

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/penguintop/pkarr/pkg/cache"
	"github.com/penguintop/pkarr/pkg/client"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/dht/localnet"
	"github.com/penguintop/pkarr/pkg/dht/mock"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/packet"
	"github.com/penguintop/pkarr/pkg/packet/packettest"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

func newClient(t *testing.T, g dht.Gateway, o client.Options) *client.Client {
	t.Helper()

	if o.Logger == nil {
		o.Logger = logging.New(ioutil.Discard, logrus.ErrorLevel)
	}
	c, err := client.New(g, o)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := c.Shutdown(context.Background())
		if err != nil && !errors.Is(err, client.ErrDhtIsShutdown) {
			t.Error(err)
		}
	})
	return c
}

func TestPublishResolveNetwork(t *testing.T) {
	network, err := localnet.New(logging.New(ioutil.Discard, logrus.ErrorLevel), localnet.WithNodes(10))
	if err != nil {
		t.Fatal(err)
	}
	gateway := func() dht.Gateway {
		g, err := network.Gateway()
		if err != nil {
			t.Fatal(err)
		}
		return g
	}

	publisher := newClient(t, gateway(), client.Options{})
	resolver := newClient(t, gateway(), client.Options{})

	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 30 IN A 127.0.0.1", "foo. 30 IN TXT \"bar\"")

	if err := publisher.Publish(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	got, err := resolver.Resolve(context.Background(), signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload(), p.Payload()) {
		t.Fatal("resolved payload differs from the published one")
	}
	if !got.Equal(p) {
		t.Fatalf("got %s, want %s", got, p)
	}

	cached := resolver.Cache().Get(p.Address())
	if cached == nil {
		t.Fatal("resolved packet not cached")
	}

	again, err := resolver.Resolve(context.Background(), signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(got) {
		t.Fatalf("got %s, want %s", again, got)
	}
	if !again.LastSeen().Equal(cached.LastSeen()) {
		t.Fatalf("got last seen %v, want %v", again.LastSeen(), cached.LastSeen())
	}
}

func TestPublishThenResolveFromCache(t *testing.T) {
	g := mock.New()
	c := newClient(t, g, client.Options{})

	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 300 IN TXT \"bar\"")

	if err := c.Publish(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	got, err := c.Resolve(context.Background(), signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload(), p.Payload()) {
		t.Fatal("resolved payload differs from the published one")
	}
	if calls := g.GetCalls(); calls != 0 {
		t.Fatalf("got %v get calls, want none", calls)
	}
}

func TestResolveFreshCacheHit(t *testing.T) {
	g := mock.New()
	lru, err := cache.New(10)
	if err != nil {
		t.Fatal(err)
	}
	c := newClient(t, g, client.Options{Cache: lru})

	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 1 IN TXT \"bar\"")
	lru.Put(p.Address(), p)

	for i := 0; i < 10; i++ {
		if _, err := c.Resolve(context.Background(), signer.PublicKey()); err != nil {
			t.Fatal(err)
		}
	}
	if calls := g.GetCalls(); calls != 0 {
		t.Fatalf("got %v get calls, want none", calls)
	}
}

// staleCache keeps packets with their last seen time as given.
type staleCache struct {
	mu sync.Mutex
	m  map[dht.Address]*packet.SignedPacket
}

func newStaleCache() *staleCache {
	return &staleCache{m: make(map[dht.Address]*packet.SignedPacket)}
}

func (c *staleCache) Get(addr dht.Address) *packet.SignedPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[addr]
}

func (c *staleCache) Put(addr dht.Address, p *packet.SignedPacket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.m[addr]; ok && e.Timestamp() >= p.Timestamp() {
		return false
	}
	c.m[addr] = p
	return true
}

func (c *staleCache) Touch(addr dht.Address, ts int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[addr]
	if !ok || e.Timestamp() != ts {
		return false
	}
	c.m[addr] = e.WithLastSeen(time.Now())
	return true
}

func (c *staleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func TestResolveStaleSendsKnownTimestamp(t *testing.T) {
	signer := packettest.NewSigner(t)
	old := packettest.NewWithTimestamp(t, signer, 100, "foo. 300 IN TXT \"old\"")
	newer := packettest.NewWithTimestamp(t, signer, 200, "foo. 300 IN TXT \"new\"")

	g := mock.New(mock.WithGetFunc(mock.Responses(
		dht.GetResponse{From: "a", Seq: old.Timestamp() - 1},
		dht.GetResponse{From: "b", Item: newer.MutableItem(), Seq: newer.Timestamp()},
	)))
	sc := newStaleCache()
	sc.Put(old.Address(), old.WithLastSeen(time.Now().Add(-time.Hour)))
	c := newClient(t, g, client.Options{Cache: sc})

	got, err := c.Resolve(context.Background(), signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(newer) {
		t.Fatalf("got %s, want %s", got, newer)
	}

	seqs := g.GetSeqs()
	if len(seqs) != 1 || seqs[0] == nil || *seqs[0] != old.Timestamp() {
		t.Fatalf("got known timestamps %v, want %v", seqs, old.Timestamp())
	}
}

func TestResolveStaleConfirmed(t *testing.T) {
	signer := packettest.NewSigner(t)
	p := packettest.NewWithTimestamp(t, signer, 100, "foo. 300 IN TXT \"bar\"")

	g := mock.New(mock.WithGetFunc(mock.Responses(
		dht.GetResponse{From: "a", Seq: p.Timestamp()},
	)))
	sc := newStaleCache()
	sc.Put(p.Address(), p.WithLastSeen(time.Now().Add(-time.Hour)))
	c := newClient(t, g, client.Options{Cache: sc})

	got, err := c.Resolve(context.Background(), signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(p) {
		t.Fatalf("got %s, want %s", got, p)
	}
	if !cache.IsFresh(sc.Get(p.Address()), client.DefaultMinimumTTL, client.DefaultMaximumTTL) {
		t.Fatal("confirmed packet is not fresh")
	}
}

func TestResolveNotFound(t *testing.T) {
	c := newClient(t, mock.New(), client.Options{})
	signer := packettest.NewSigner(t)

	_, err := c.Resolve(context.Background(), signer.PublicKey())
	var nf *client.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("got error %v, want not found", err)
	}
	if nf.PublicKey != signer.PublicKey() {
		t.Fatalf("got key %s, want %s", nf.PublicKey, signer.PublicKey())
	}
}

func TestResolveShared(t *testing.T) {
	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 300 IN TXT \"bar\"")

	release := make(chan struct{})
	respond := mock.Responses(dht.GetResponse{From: "a", Item: p.MutableItem(), Seq: p.Timestamp()})
	g := mock.New(mock.WithGetFunc(func(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
		<-release
		return respond(ctx, addr, seq)
	}))
	c := newClient(t, g, client.Options{})

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Resolve(context.Background(), signer.PublicKey())
			if err == nil && !got.Equal(p) {
				err = errors.New("unexpected packet")
			}
			errs <- err
		}()
	}

	for g.GetCalls() == 0 {
		time.Sleep(time.Millisecond)
	}
	// give the other callers the time to join the running lookup
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if calls := g.GetCalls(); calls != 1 {
		t.Fatalf("got %v get calls, want 1", calls)
	}
}

func TestConcurrentPublish(t *testing.T) {
	release := make(chan struct{})
	g := mock.New(mock.WithPutFunc(func(ctx context.Context, item *dht.MutableItem) (dht.ID, error) {
		<-release
		return dht.ID(item.Address()), nil
	}))
	c := newClient(t, g, client.Options{})

	signer := packettest.NewSigner(t)
	first := packettest.New(t, signer, "foo. 300 IN TXT \"first\"")
	second := packettest.New(t, signer, "foo. 300 IN TXT \"second\"")

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- c.Publish(context.Background(), first)
	}()
	for g.PutCalls() == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := c.Publish(context.Background(), second); !errors.Is(err, client.ErrPublishInflight) {
		t.Fatalf("got error %v, want %v", err, client.ErrPublishInflight)
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatal(err)
	}

	if err := c.Publish(context.Background(), second); err != nil {
		t.Fatal(err)
	}
}

func TestPublishErrors(t *testing.T) {
	cause := errors.New("cause")

	for _, tc := range []struct {
		name   string
		putErr error
		check  func(error) bool
	}{
		{
			name:   "rejected",
			putErr: &dht.QueryError{Errors: []error{cause}},
			check: func(err error) bool {
				var e *client.FailedToPublishError
				return errors.As(err, &e) && errors.Is(err, cause)
			},
		},
		{
			name:   "transport",
			putErr: cause,
			check: func(err error) bool {
				var e *client.MainlineError
				return errors.As(err, &e) && errors.Is(err, cause)
			},
		},
		{
			name:   "inflight",
			putErr: dht.ErrPutQueryIsInflight,
			check: func(err error) bool {
				return errors.Is(err, client.ErrPublishInflight)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := mock.New(mock.WithPutFunc(func(context.Context, *dht.MutableItem) (dht.ID, error) {
				return dht.ID{}, tc.putErr
			}))
			c := newClient(t, g, client.Options{})

			signer := packettest.NewSigner(t)
			p := packettest.New(t, signer, "foo. 300 IN TXT \"bar\"")

			err := c.Publish(context.Background(), p)
			if !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			// the packet is cached even when the publish failed
			if c.Cache().Get(p.Address()) == nil {
				t.Fatal("packet not cached")
			}
		})
	}
}

func TestShutdown(t *testing.T) {
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/udp/6881")
	if err != nil {
		t.Fatal(err)
	}
	g := mock.New(mock.WithLocalAddr(addr))
	c := newClient(t, g, client.Options{})

	if !c.LocalAddr().Equal(addr) {
		t.Fatalf("got local address %v, want %v", c.LocalAddr(), addr)
	}

	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 300 IN TXT \"bar\"")
	if err := c.Publish(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.LocalAddr() != nil {
		t.Fatalf("got local address %v after shutdown", c.LocalAddr())
	}
	if !g.Closed() {
		t.Fatal("gateway not closed")
	}

	if err := c.Publish(context.Background(), p); !errors.Is(err, client.ErrDhtIsShutdown) {
		t.Fatalf("publish: got error %v, want %v", err, client.ErrDhtIsShutdown)
	}
	if _, err := c.Resolve(context.Background(), signer.PublicKey()); !errors.Is(err, client.ErrDhtIsShutdown) {
		t.Fatalf("resolve: got error %v, want %v", err, client.ErrDhtIsShutdown)
	}
	if err := c.Shutdown(context.Background()); !errors.Is(err, client.ErrDhtIsShutdown) {
		t.Fatalf("shutdown: got error %v, want %v", err, client.ErrDhtIsShutdown)
	}
}

func TestShutdownOutstandingCalls(t *testing.T) {
	g := mock.New(
		mock.WithPutFunc(func(ctx context.Context, item *dht.MutableItem) (dht.ID, error) {
			<-ctx.Done()
			return dht.ID{}, ctx.Err()
		}),
		mock.WithGetFunc(func(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
			c := make(chan dht.GetResponse)
			go func() {
				defer close(c)
				<-ctx.Done()
			}()
			return c
		}),
	)
	c := newClient(t, g, client.Options{})

	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 300 IN TXT \"bar\"")

	publishErr := make(chan error, 1)
	go func() {
		publishErr <- c.Publish(context.Background(), p)
	}()
	other := packettest.NewSigner(t).PublicKey()
	resolveErr := make(chan error, 1)
	go func() {
		_, err := c.Resolve(context.Background(), other)
		resolveErr <- err
	}()

	for g.PutCalls() == 0 || g.GetCalls() == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	for name, errs := range map[string]chan error{"publish": publishErr, "resolve": resolveErr} {
		select {
		case err := <-errs:
			if !errors.Is(err, client.ErrDhtIsShutdown) {
				t.Fatalf("%s: got error %v, want %v", name, err, client.ErrDhtIsShutdown)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s did not return", name)
		}
	}
}

func TestConcurrentShutdown(t *testing.T) {
	c, err := client.New(mock.New(), client.Options{})
	if err != nil {
		t.Fatal(err)
	}

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- c.Shutdown(context.Background())
		}()
	}

	var ok int
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			switch {
			case err == nil:
				ok++
			case errors.Is(err, client.ErrDhtIsShutdown):
			default:
				t.Fatal(err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("shutdown did not return")
		}
	}
	if ok != 1 {
		t.Fatalf("got %v successful shutdowns, want 1", ok)
	}
}

func TestAbandonedResolve(t *testing.T) {
	release := make(chan struct{})
	g := mock.New(mock.WithGetFunc(func(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
		c := make(chan dht.GetResponse)
		go func() {
			defer close(c)
			select {
			case <-release:
			case <-ctx.Done():
			}
		}()
		return c
	}))
	c := newClient(t, g, client.Options{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	signer := packettest.NewSigner(t)
	if _, err := c.Resolve(ctx, signer.PublicKey()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got error %v, want %v", err, context.DeadlineExceeded)
	}

	// the coordinator keeps serving other callers
	p := packettest.New(t, signer, "foo. 300 IN TXT \"bar\"")
	if err := c.Publish(context.Background(), p); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidTTLBounds(t *testing.T) {
	if _, err := client.New(mock.New(), client.Options{MinimumTTL: 100, MaximumTTL: 10}); err == nil {
		t.Fatal("expected error")
	}
}
