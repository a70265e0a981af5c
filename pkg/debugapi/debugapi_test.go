// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi_test

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/penguintop/pkarr/pkg/client"
	"github.com/penguintop/pkarr/pkg/debugapi"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/dht/mock"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/sirupsen/logrus"
	"resenje.org/web"
)

type testServerOptions struct {
	Gateway            dht.Gateway
	Configure          bool
	Relays             []string
	CORSAllowedOrigins []string
}

type testServer struct {
	Client *http.Client
	Pkarr  *client.Client
}

func newTestServer(t *testing.T, o testServerOptions) *testServer {
	t.Helper()

	logger := logging.New(ioutil.Discard, logrus.ErrorLevel)
	if o.Gateway == nil {
		o.Gateway = mock.New()
	}
	c, err := client.New(o.Gateway, client.Options{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	s := debugapi.New(logger, nil, o.CORSAllowedOrigins)
	if o.Configure {
		s.Configure(c, debugapi.Options{
			Relays:     o.Relays,
			MinimumTTL: client.DefaultMinimumTTL,
			MaximumTTL: client.DefaultMaximumTTL,
		})
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	httpClient := &http.Client{
		Transport: web.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			u, err := url.Parse(ts.URL + r.URL.String())
			if err != nil {
				return nil, err
			}
			r.URL = u
			return ts.Client().Transport.RoundTrip(r)
		}),
	}
	return &testServer{Client: httpClient, Pkarr: c}
}
