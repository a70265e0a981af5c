// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package localnet_test

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"
	"time"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/dht/itemstore"
	"github.com/penguintop/pkarr/pkg/dht/localnet"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/sirupsen/logrus"
)

func newItem(t *testing.T, seq int64, value string) *dht.MutableItem {
	t.Helper()

	seed := make([]byte, crypto.SecretSize)
	seed[0] = 1
	kp, err := crypto.KeypairFromSecret(seed)
	if err != nil {
		t.Fatal(err)
	}
	signer := crypto.NewDefaultSigner(kp)
	sig, err := signer.Sign(dht.Signable(seq, []byte(value), nil))
	if err != nil {
		t.Fatal(err)
	}
	return &dht.MutableItem{Key: signer.PublicKey(), Value: []byte(value), Seq: seq, Signature: sig}
}

func newNetwork(t *testing.T, opts ...localnet.Option) *localnet.Network {
	t.Helper()

	n, err := localnet.New(logging.New(ioutil.Discard, logrus.ErrorLevel), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func newGateway(t *testing.T, n *localnet.Network) *localnet.Gateway {
	t.Helper()

	g, err := n.Gateway()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func collect(c <-chan dht.GetResponse) (rs []dht.GetResponse) {
	for r := range c {
		rs = append(rs, r)
	}
	return rs
}

func TestPutGet(t *testing.T) {
	n := newNetwork(t, localnet.WithNodes(3), localnet.WithLatency(time.Millisecond))
	publisher := newGateway(t, n)
	resolver := newGateway(t, n)

	if publisher.LocalAddr().Equal(resolver.LocalAddr()) {
		t.Fatal("gateways share a local address")
	}

	item := newItem(t, 10, "value")
	id, err := publisher.Put(context.Background(), item)
	if err != nil {
		t.Fatal(err)
	}
	if id != dht.ID(item.Address()) {
		t.Fatalf("got id %s, want %s", id, item.Address())
	}

	rs := collect(resolver.Get(context.Background(), item.Address(), nil))
	if len(rs) != 3 {
		t.Fatalf("got %v responses, want %v", len(rs), 3)
	}
	for _, r := range rs {
		if r.Item == nil || !r.Item.Equal(item) {
			t.Fatalf("got response %+v, want item", r)
		}
	}
}

func TestGetKnownSeq(t *testing.T) {
	n := newNetwork(t, localnet.WithNodes(2))
	g := newGateway(t, n)

	item := newItem(t, 10, "value")
	if _, err := g.Put(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	known := int64(10)
	for _, r := range collect(g.Get(context.Background(), item.Address(), &known)) {
		if r.Item != nil {
			t.Fatal("item sent for a known sequence number")
		}
		if r.Seq != 10 {
			t.Fatalf("got seq %v, want %v", r.Seq, 10)
		}
	}

	older := int64(9)
	rs := collect(g.Get(context.Background(), item.Address(), &older))
	if len(rs) != 2 || rs[0].Item == nil {
		t.Fatalf("got %+v, want two items", rs)
	}
}

func TestGetMissing(t *testing.T) {
	n := newNetwork(t, localnet.WithNodes(2))
	g := newGateway(t, n)

	if rs := collect(g.Get(context.Background(), dht.Address{1}, nil)); len(rs) != 0 {
		t.Fatalf("got %v responses, want none", len(rs))
	}
}

func TestPutRejected(t *testing.T) {
	n := newNetwork(t, localnet.WithNodes(2))
	g := newGateway(t, n)

	if _, err := g.Put(context.Background(), newItem(t, 10, "value")); err != nil {
		t.Fatal(err)
	}

	_, err := g.Put(context.Background(), newItem(t, 5, "older"))
	var qe *dht.QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("got error %v, want query error", err)
	}
	if len(qe.Errors) != 2 {
		t.Fatalf("got %v node errors, want %v", len(qe.Errors), 2)
	}
	if !errors.Is(err, itemstore.ErrSeqTooLow) {
		t.Fatalf("got error %v, want %v", err, itemstore.ErrSeqTooLow)
	}
}

func TestNoNodes(t *testing.T) {
	n := newNetwork(t, localnet.WithNodes(0))
	g := newGateway(t, n)

	if _, err := g.Put(context.Background(), newItem(t, 1, "v")); !errors.Is(err, dht.ErrNoNodes) {
		t.Fatalf("got error %v, want %v", err, dht.ErrNoNodes)
	}
}

func TestClose(t *testing.T) {
	n := newNetwork(t, localnet.WithLatency(time.Hour))
	g := newGateway(t, n)

	c := g.Get(context.Background(), dht.Address{1}, nil)
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case _, ok := <-c:
		if ok {
			t.Fatal("got response after close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("query not stopped by close")
	}

	if _, err := g.Put(context.Background(), newItem(t, 1, "v")); !errors.Is(err, dht.ErrClosed) {
		t.Fatalf("got error %v, want %v", err, dht.ErrClosed)
	}
}

func TestCancel(t *testing.T) {
	n := newNetwork(t, localnet.WithLatency(time.Hour))
	g := newGateway(t, n)

	ctx, cancel := context.WithCancel(context.Background())
	c := g.Get(ctx, dht.Address{1}, nil)
	cancel()

	select {
	case <-c:
	case <-time.After(5 * time.Second):
		t.Fatal("query not stopped by cancel")
	}
}
