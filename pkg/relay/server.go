// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru"
	"github.com/penguintop/pkarr/pkg/client"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/jsonhttp"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/logging/httpaccess"
	"github.com/penguintop/pkarr/pkg/packet"
	"github.com/penguintop/pkarr/pkg/tracing"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"resenje.org/web"
)

// Service publishes and resolves packets. It is implemented by
// client.Client.
type Service interface {
	Publish(ctx context.Context, p *packet.SignedPacket) error
	Resolve(ctx context.Context, key crypto.PublicKey) (*packet.SignedPacket, error)
}

// Options configure a Server.
type Options struct {
	// RateLimit is the number of publish requests per second allowed
	// from a single client address. Zero disables rate limiting.
	RateLimit rate.Limit
	RateBurst int
	// TrustProxyHeaders takes the client address from the
	// X-Forwarded-For and X-Real-IP headers.
	TrustProxyHeaders  bool
	CORSAllowedOrigins []string
	MinimumTTL         uint32
	MaximumTTL         uint32
}

const limitersCapacity = 10000

// Server is the HTTP handler of a relay.
type Server struct {
	http.Handler

	service  Service
	logger   logging.Logger
	tracer   *tracing.Tracer
	limiters *lru.Cache
	limit    rate.Limit
	burst    int
	minTTL   uint32
	maxTTL   uint32
	metrics  metrics
}

// NewServer returns a relay serving packets from s.
func NewServer(s Service, logger logging.Logger, tracer *tracing.Tracer, o Options) (*Server, error) {
	if o.MinimumTTL == 0 {
		o.MinimumTTL = client.DefaultMinimumTTL
	}
	if o.MaximumTTL == 0 {
		o.MaximumTTL = client.DefaultMaximumTTL
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	if len(o.CORSAllowedOrigins) == 0 {
		o.CORSAllowedOrigins = []string{"*"}
	}

	limiters, err := lru.New(limitersCapacity)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		service:  s,
		logger:   logger,
		tracer:   tracer,
		limiters: limiters,
		limit:    o.RateLimit,
		burst:    o.RateBurst,
		minTTL:   o.MinimumTTL,
		maxTTL:   o.MaximumTTL,
		metrics:  newMetrics(),
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(jsonhttp.NotFoundHandler)
	router.Handle("/{key}", jsonhttp.MethodHandler{
		"GET": http.HandlerFunc(srv.getHandler),
		"PUT": web.ChainHandlers(
			srv.rateLimitHandler,
			web.FinalHandlerFunc(srv.putHandler),
		),
	})

	chain := []func(http.Handler) http.Handler{
		httpaccess.NewHTTPAccessLogHandler(logger, logrus.InfoLevel, tracer, "relay access"),
		srv.responseCodeMetricsHandler,
		handlers.CORS(
			handlers.AllowedOrigins(o.CORSAllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "If-Modified-Since"}),
			handlers.ExposedHeaders([]string{"Last-Modified", "Cache-Control"}),
		),
	}
	if o.TrustProxyHeaders {
		chain = append([]func(http.Handler) http.Handler{handlers.ProxyHeaders}, chain...)
	}
	chain = append(chain, web.FinalHandler(router))
	srv.Handler = web.ChainHandlers(chain...)

	return srv, nil
}

func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) {
	key, err := crypto.ParsePublicKey(mux.Vars(r)["key"])
	if err != nil {
		jsonhttp.BadRequest(w, "invalid public key")
		return
	}

	span, logger, ctx := s.tracer.FromHTTPHeaders(r.Context(), "relay-get", r.Header, s.logger)
	defer span.Finish()

	p, err := s.service.Resolve(ctx, key)
	if err != nil {
		var nf *client.NotFoundError
		switch {
		case errors.As(err, &nf):
			jsonhttp.NotFound(w, nil)
		case errors.Is(err, client.ErrDhtIsShutdown):
			jsonhttp.ServiceUnavailable(w, nil)
		default:
			logger.Debugf("relay: resolve %s: %v", key, err)
			logger.Error("relay: resolve failed")
			jsonhttp.InternalServerError(w, nil)
		}
		return
	}

	modified := lastModified(p.Timestamp())
	if v := r.Header.Get("If-Modified-Since"); v != "" {
		if since, err := http.ParseTime(v); err == nil && !modified.After(since) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "public, max-age="+strconv.FormatUint(uint64(p.ExpiresIn(s.minTTL, s.maxTTL)), 10))
	if _, err := w.Write(Body(p)); err != nil {
		logger.Debugf("relay: write %s: %v", key, err)
	}
}

func (s *Server) putHandler(w http.ResponseWriter, r *http.Request) {
	key, err := crypto.ParsePublicKey(mux.Vars(r)["key"])
	if err != nil {
		jsonhttp.BadRequest(w, "invalid public key")
		return
	}

	span, logger, ctx := s.tracer.FromHTTPHeaders(r.Context(), "relay-put", r.Header, s.logger)
	defer span.Finish()

	body, err := ioutil.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		logger.Debugf("relay: read body: %v", err)
		jsonhttp.BadRequest(w, "read body")
		return
	}
	if len(body) > MaxBodySize {
		jsonhttp.RequestEntityTooLarge(w, nil)
		return
	}

	p, err := ParseBody(key, body)
	if err != nil {
		logger.Debugf("relay: put %s: %v", key, err)
		jsonhttp.BadRequest(w, "invalid signed packet")
		return
	}

	if err := s.service.Publish(ctx, p); err != nil {
		var (
			fe *client.FailedToPublishError
			me *client.MainlineError
		)
		switch {
		case errors.Is(err, client.ErrPublishInflight):
			jsonhttp.Conflict(w, client.ErrPublishInflight)
		case errors.Is(err, client.ErrDhtIsShutdown):
			jsonhttp.ServiceUnavailable(w, nil)
		case errors.As(err, &fe), errors.As(err, &me):
			logger.Debugf("relay: publish %s: %v", key, err)
			jsonhttp.BadGateway(w, nil)
		default:
			logger.Debugf("relay: publish %s: %v", key, err)
			logger.Error("relay: publish failed")
			jsonhttp.InternalServerError(w, nil)
		}
		return
	}
	jsonhttp.OK(w, nil)
}

func (s *Server) rateLimitHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limit > 0 && !s.allow(clientIP(r)) {
			s.metrics.RateLimited.Inc()
			jsonhttp.TooManyRequests(w, nil)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) allow(ip string) bool {
	if v, ok := s.limiters.Get(ip); ok {
		return v.(*rate.Limiter).Allow()
	}
	l := rate.NewLimiter(s.limit, s.burst)
	if found, _ := s.limiters.ContainsOrAdd(ip, l); found {
		if v, ok := s.limiters.Get(ip); ok {
			l = v.(*rate.Limiter)
		}
	}
	return l.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) responseCodeMetricsHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h.ServeHTTP(rw, r)
		s.metrics.Requests.WithLabelValues(r.Method, strconv.Itoa(rw.code)).Inc()
		s.metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.code = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}
