// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node_test

import (
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"os"
	"testing"

	"github.com/penguintop/pkarr/pkg/client"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/node"
	"github.com/penguintop/pkarr/pkg/packet/packettest"
	"github.com/sirupsen/logrus"
)

func newNode(t *testing.T, o node.Options) *node.Pkarr {
	t.Helper()

	if o.Logger == nil {
		o.Logger = logging.New(ioutil.Discard, logrus.ErrorLevel)
	}
	p, err := node.NewPkarr(o)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNodeRelayRoundTrip(t *testing.T) {
	server := newNode(t, node.Options{
		APIAddr:      "127.0.0.1:0",
		DebugAPIAddr: "127.0.0.1:0",
	})
	defer server.Shutdown(context.Background())

	relayURL := "http://" + server.APIAddr().String()
	publisher := newNode(t, node.Options{
		Relays: []string{relayURL},
	})
	defer publisher.Shutdown(context.Background())

	if publisher.APIAddr() != nil || publisher.DebugAPIAddr() != nil {
		t.Fatal("node without api addresses is listening")
	}

	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 300 IN A 127.0.0.1")
	if err := publisher.Client().Publish(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	got, err := server.Client().Resolve(context.Background(), signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(p) {
		t.Errorf("got packet %s, want %s", got, p)
	}

	resp, err := http.Get("http://" + server.DebugAPIAddr().String() + "/cache/" + signer.PublicKey().String())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got debug api status %v, want %v", resp.StatusCode, http.StatusOK)
	}
}

func TestNodePersistence(t *testing.T) {
	dir, err := ioutil.TempDir("", "pkarr-node-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	signer := packettest.NewSigner(t)
	p := packettest.New(t, signer, "foo. 300 IN TXT \"bar\"")

	first := newNode(t, node.Options{DataDir: dir})
	if err := first.Client().Publish(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if err := first.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := newNode(t, node.Options{DataDir: dir})
	defer second.Shutdown(context.Background())

	got, err := second.Client().Resolve(context.Background(), signer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(p) {
		t.Errorf("got packet %s, want %s", got, p)
	}
}

func TestNodeShutdown(t *testing.T) {
	n := newNode(t, node.Options{})
	if err := n.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	signer := packettest.NewSigner(t)
	_, err := n.Client().Resolve(context.Background(), signer.PublicKey())
	if !errors.Is(err, client.ErrDhtIsShutdown) {
		t.Fatalf("got error %v, want %v", err, client.ErrDhtIsShutdown)
	}
}

func TestNodeInvalidOptions(t *testing.T) {
	_, err := node.NewPkarr(node.Options{
		Logger:     logging.New(ioutil.Discard, logrus.ErrorLevel),
		MinimumTTL: 600,
		MaximumTTL: 60,
	})
	if err == nil {
		t.Fatal("expected error for minimum ttl above maximum ttl")
	}

	_, err = node.NewPkarr(node.Options{
		Logger: logging.New(ioutil.Discard, logrus.ErrorLevel),
		Relays: []string{"ftp://relay.example.com"},
	})
	if err == nil {
		t.Fatal("expected error for unsupported relay url")
	}
}
