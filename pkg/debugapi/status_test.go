// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi_test

import (
	"net/http"
	"strings"
	"testing"

	pkarr "github.com/penguintop/pkarr"
	"github.com/penguintop/pkarr/pkg/debugapi"
	"github.com/penguintop/pkarr/pkg/jsonhttp/jsonhttptest"
)

func TestHealth(t *testing.T) {
	testServer := newTestServer(t, testServerOptions{})

	jsonhttptest.Request(t, testServer.Client, http.MethodGet, "/health", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse(debugapi.StatusResponse{
			Status:  "ok",
			Version: pkarr.Version,
		}),
	)
}

func TestReadiness(t *testing.T) {
	testServer := newTestServer(t, testServerOptions{})

	jsonhttptest.Request(t, testServer.Client, http.MethodGet, "/readiness", http.StatusOK,
		jsonhttptest.WithExpectedJSONResponse(debugapi.StatusResponse{
			Status:  "ok",
			Version: pkarr.Version,
		}),
	)
}

func TestMetrics(t *testing.T) {
	testServer := newTestServer(t, testServerOptions{})

	jsonhttptest.Request(t, testServer.Client, http.MethodGet, "/metrics", http.StatusOK)
}

func TestNodeMetrics(t *testing.T) {
	testServer := newTestServer(t, testServerOptions{
		Configure: true,
		Relays:    []string{"http://relay-a", "http://relay-b"},
	})

	var body []byte
	jsonhttptest.Request(t, testServer.Client, http.MethodGet, "/metrics", http.StatusOK,
		jsonhttptest.WithPutResponseBody(&body),
	)
	for _, want := range []string{
		"pkarr_node_cached_packets 0",
		"pkarr_node_relays 2",
		`pkarr_node_ttl_bounds_seconds{max="86400",min="300"} 0`,
		"pkarr_node_cache_hit_ratio",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics do not contain %q", want)
		}
	}
}

func TestUnconfiguredRoutes(t *testing.T) {
	testServer := newTestServer(t, testServerOptions{})

	for _, path := range []string{"/addresses", "/cache"} {
		jsonhttptest.Request(t, testServer.Client, http.MethodGet, path, http.StatusNotFound)
	}
}
