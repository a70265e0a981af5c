// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/penguintop/pkarr/pkg/debugapi"
	"github.com/penguintop/pkarr/pkg/dht/mock"
	"github.com/penguintop/pkarr/pkg/jsonhttp/jsonhttptest"
	ma "github.com/multiformats/go-multiaddr"
)

func TestAddresses(t *testing.T) {
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/udp/6881")
	if err != nil {
		t.Fatal(err)
	}
	relays := []string{"https://relay.example.com"}
	testServer := newTestServer(t, testServerOptions{
		Gateway:   mock.New(mock.WithLocalAddr(addr)),
		Configure: true,
		Relays:    relays,
	})

	jsonhttptest.Request(t, testServer.Client, http.MethodGet, "/addresses", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse(debugapi.AddressesResponse{
			LocalAddress: addr.String(),
			Relays:       relays,
		}),
	)

	if err := testServer.Pkarr.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	jsonhttptest.Request(t, testServer.Client, http.MethodGet, "/addresses", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse(debugapi.AddressesResponse{
			Relays: relays,
		}),
	)
}
