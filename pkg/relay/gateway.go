// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/packet"
	"github.com/penguintop/pkarr/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

var _ dht.Gateway = (*Gateway)(nil)

// ErrNoPublicKey is reported for get queries whose context does not carry
// the public key of the address.
var ErrNoPublicKey = errors.New("relay: public key of the address is unknown")

// StatusError is a non successful response of a relay.
type StatusError struct {
	Relay string
	Code  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s: %d %s", e.Relay, e.Code, http.StatusText(e.Code))
}

// Gateway is a dht.Gateway that stores packets on a set of HTTP relays.
// Every query is sent to every relay.
type Gateway struct {
	relays []string
	client *http.Client
	logger logging.Logger
	tracer *tracing.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewGateway returns a gateway to the relays at the given base URLs.
func NewGateway(relays []string, client *http.Client, logger logging.Logger, tracer *tracing.Tracer) (*Gateway, error) {
	if len(relays) == 0 {
		return nil, dht.ErrNoNodes
	}
	rs := make([]string, 0, len(relays))
	for _, r := range relays {
		u, err := url.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("relay url %q: %w", r, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("relay url %q: unsupported scheme", r)
		}
		rs = append(rs, strings.TrimSuffix(u.String(), "/"))
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		relays: rs,
		client: client,
		logger: logger,
		tracer: tracer,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Put publishes the packet carried by item to every relay. It succeeds if
// any relay stored it.
func (g *Gateway) Put(ctx context.Context, item *dht.MutableItem) (dht.ID, error) {
	if !g.enter() {
		return dht.ID{}, dht.ErrClosed
	}
	defer g.wg.Done()

	p, err := packet.FromMutableItem(item)
	if err != nil {
		return dht.ID{}, err
	}
	body := Body(p)
	path := "/" + p.PublicKey().String()

	ctx, cancel := g.mergeContext(ctx)
	defer cancel()

	var (
		mu           sync.Mutex
		stored       bool
		inflight     int
		statusErrs   []error
		transportErr *multierror.Error
	)
	var eg errgroup.Group
	for _, relay := range g.relays {
		relay := relay
		eg.Go(func() error {
			code, err := g.do(ctx, http.MethodPut, relay+path, bytes.NewReader(body), nil, nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				transportErr = multierror.Append(transportErr, fmt.Errorf("relay %s: %w", relay, err))
			case code >= 200 && code < 300:
				stored = true
			case code == http.StatusConflict:
				inflight++
				statusErrs = append(statusErrs, &StatusError{Relay: relay, Code: code})
			default:
				statusErrs = append(statusErrs, &StatusError{Relay: relay, Code: code})
			}
			return nil
		})
	}
	_ = eg.Wait()

	switch {
	case stored:
		return dht.ID(item.Address()), nil
	case inflight == len(g.relays):
		return dht.ID{}, dht.ErrPutQueryIsInflight
	case len(statusErrs) > 0:
		return dht.ID{}, &dht.QueryError{Errors: statusErrs}
	default:
		return dht.ID{}, transportErr.ErrorOrNil()
	}
}

// Get asks every relay for the packet of the public key carried by ctx.
// A relay answering Not Modified to a known timestamp yields a
// confirmation.
func (g *Gateway) Get(ctx context.Context, addr dht.Address, seq *int64) <-chan dht.GetResponse {
	c := make(chan dht.GetResponse)

	key, ok := dht.PublicKeyFromContext(ctx)
	if !ok || dht.AddressFromKey(key, nil) != addr {
		g.logger.Debugf("relay: get %s: %v", addr, ErrNoPublicKey)
		close(c)
		return c
	}
	if !g.enter() {
		close(c)
		return c
	}

	ctx, cancel := g.mergeContext(ctx)
	path := "/" + key.String()

	var header http.Header
	if seq != nil {
		header = http.Header{"If-Modified-Since": {lastModified(*seq).Format(http.TimeFormat)}}
	}

	go func() {
		defer g.wg.Done()
		defer cancel()
		defer close(c)

		eg, ctx := errgroup.WithContext(ctx)
		for _, relay := range g.relays {
			relay := relay
			eg.Go(func() error {
				var body []byte
				code, err := g.do(ctx, http.MethodGet, relay+path, nil, header, &body)
				if err != nil {
					g.logger.Debugf("relay: get %s from %s: %v", key, relay, err)
					return nil
				}

				var r dht.GetResponse
				switch code {
				case http.StatusOK:
					p, err := ParseBody(key, body)
					if err != nil {
						g.logger.Debugf("relay: get %s from %s: %v", key, relay, err)
						return nil
					}
					r = dht.GetResponse{From: relay, Item: p.MutableItem(), Seq: p.Timestamp()}
				case http.StatusNotModified:
					if seq == nil {
						return nil
					}
					r = dht.GetResponse{From: relay, Seq: *seq}
				case http.StatusNotFound:
					return nil
				default:
					g.logger.Debugf("relay: get %s from %s: %v", key, relay, &StatusError{Relay: relay, Code: code})
					return nil
				}

				select {
				case c <- r:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = eg.Wait()
	}()
	return c
}

// Close cancels running queries and waits for them to return.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
	return nil
}

func (g *Gateway) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

// mergeContext returns a context cancelled with ctx or on Close.
func (g *Gateway) mergeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-g.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (g *Gateway) do(ctx context.Context, method, url string, body io.Reader, header http.Header, respBody *[]byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", ContentType)
	}
	if err := g.tracer.AddContextHTTPHeader(ctx, req.Header); err != nil && !errors.Is(err, tracing.ErrContextNotFound) {
		g.logger.Debugf("relay: tracing header: %v", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if respBody != nil && resp.StatusCode == http.StatusOK {
		b, err := ioutil.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
		if err != nil {
			return 0, err
		}
		*respBody = b
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(ioutil.Discard, resp.Body)
	return resp.StatusCode, nil
}
