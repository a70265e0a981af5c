// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracing helps with the propagation of the tracing span through
// context and HTTP headers, and with the logging of the trace id.
package tracing

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"
)

var (
	// ErrContextNotFound is returned when tracing context is not present
	// in HTTP headers.
	ErrContextNotFound = errors.New("tracing context not found")

	// noopTracer is the tracer that does nothing to handle a nil Tracer usage.
	noopTracer = &Tracer{tracer: new(opentracing.NoopTracer)}
)

// LogField is the key in log message field that holds tracing id value.
const LogField = "traceid"

// Tracer connect to a tracing server and handles tracing spans and contexts
// by using opentracing Tracer.
type Tracer struct {
	tracer opentracing.Tracer
}

// Options are optional parameters for Tracer constructor.
type Options struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// NewTracer creates a new Tracer and returns a closer which needs to be closed
// when the Tracer is no longer used to flush remaining traces.
func NewTracer(o *Options) (*Tracer, io.Closer, error) {
	if o == nil {
		o = new(Options)
	}

	cfg := config.Configuration{
		Disabled:    !o.Enabled,
		ServiceName: o.ServiceName,
		Sampler: &config.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &config.ReporterConfig{
			LocalAgentHostPort: o.Endpoint,
		},
	}

	t, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, nil, err
	}

	return &Tracer{tracer: t}, closer, nil
}

// StartSpanFromContext starts a new tracing span that is either a root one or
// a child of existing one from the provided Context. If logger is provided, a new
// log Entry will be returned with "traceid" log field.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operationName string, l logging.Logger, opts ...opentracing.StartSpanOption) (opentracing.Span, *logrus.Entry, context.Context) {
	if t == nil {
		t = noopTracer
	}

	var span opentracing.Span
	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		opts = append(opts, opentracing.ChildOf(parent.Context()))
	}
	span = t.tracer.StartSpan(operationName, opts...)
	return span, loggerWithTraceID(span.Context(), l), opentracing.ContextWithSpan(ctx, span)
}

// AddContextHTTPHeader adds a tracing span context to provided HTTP headers
// from the span found in the Context.
func (t *Tracer) AddContextHTTPHeader(ctx context.Context, headers http.Header) error {
	if t == nil {
		t = noopTracer
	}

	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return ErrContextNotFound
	}
	return t.tracer.Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
}

// FromHTTPHeaders starts a span named operationName as a child of the span
// context carried by headers. A root span is started when headers carry
// none.
func (t *Tracer) FromHTTPHeaders(ctx context.Context, operationName string, headers http.Header, l logging.Logger) (opentracing.Span, *logrus.Entry, context.Context) {
	if t == nil {
		t = noopTracer
	}

	var opts []opentracing.StartSpanOption
	if sc, err := t.tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers)); err == nil {
		opts = append(opts, opentracing.ChildOf(sc))
	}
	span := t.tracer.StartSpan(operationName, opts...)
	return span, loggerWithTraceID(span.Context(), l), opentracing.ContextWithSpan(ctx, span)
}

// NewLoggerWithTraceID returns a new log Entry with "traceid" field
// based on the tracing span found in the Context.
func NewLoggerWithTraceID(ctx context.Context, l logging.Logger) *logrus.Entry {
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		if l == nil {
			return nil
		}
		return l.NewEntry()
	}
	return loggerWithTraceID(span.Context(), l)
}

func loggerWithTraceID(sc opentracing.SpanContext, l logging.Logger) *logrus.Entry {
	if l == nil {
		return nil
	}
	jsc, ok := sc.(jaeger.SpanContext)
	if !ok {
		return l.NewEntry()
	}
	traceID := jsc.TraceID()
	if !traceID.IsValid() {
		return l.NewEntry()
	}
	return l.WithField(LogField, traceID)
}
