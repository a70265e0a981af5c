// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracing_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/tracing"
	"github.com/sirupsen/logrus"
	"github.com/uber/jaeger-client-go"
)

func newTracer(t *testing.T) *tracing.Tracer {
	t.Helper()

	tracer, closer, err := tracing.NewTracer(&tracing.Options{
		Enabled:     true,
		ServiceName: "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = closer.Close() })
	return tracer
}

func TestSpanFromContext(t *testing.T) {
	tracer := newTracer(t)

	span, _, ctx := tracer.StartSpanFromContext(context.Background(), "parent", nil)
	defer span.Finish()

	child, _, _ := tracer.StartSpanFromContext(ctx, "child", nil)
	defer child.Finish()

	parentID := span.Context().(jaeger.SpanContext).TraceID()
	childID := child.Context().(jaeger.SpanContext).TraceID()
	if parentID != childID {
		t.Fatalf("got trace id %s, want %s", childID, parentID)
	}
}

func TestHTTPHeaders(t *testing.T) {
	tracer := newTracer(t)

	span, _, ctx := tracer.StartSpanFromContext(context.Background(), "request", nil)
	defer span.Finish()

	headers := make(http.Header)
	if err := tracer.AddContextHTTPHeader(ctx, headers); err != nil {
		t.Fatal(err)
	}

	server, _, _ := tracer.FromHTTPHeaders(context.Background(), "handler", headers, nil)
	defer server.Finish()

	want := span.Context().(jaeger.SpanContext).TraceID()
	if got := server.Context().(jaeger.SpanContext).TraceID(); got != want {
		t.Fatalf("got trace id %s, want %s", got, want)
	}

	if err := tracer.AddContextHTTPHeader(context.Background(), make(http.Header)); !errors.Is(err, tracing.ErrContextNotFound) {
		t.Fatalf("got error %v, want %v", err, tracing.ErrContextNotFound)
	}
}

func TestLoggerWithTraceID(t *testing.T) {
	tracer := newTracer(t)
	buf := new(bytes.Buffer)
	logger := logging.New(buf, logrus.InfoLevel)

	span, entry, ctx := tracer.StartSpanFromContext(context.Background(), "op", logger)
	defer span.Finish()

	entry.Info("hello")
	traceID := span.Context().(jaeger.SpanContext).TraceID().String()
	if !strings.Contains(buf.String(), tracing.LogField+"="+traceID) {
		t.Fatalf("log %q has no trace id %s", buf.String(), traceID)
	}

	buf.Reset()
	tracing.NewLoggerWithTraceID(ctx, logger).Info("again")
	if !strings.Contains(buf.String(), traceID) {
		t.Fatalf("log %q has no trace id %s", buf.String(), traceID)
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *tracing.Tracer

	span, entry, ctx := tracer.StartSpanFromContext(context.Background(), "op", logging.New(io.Discard, logrus.InfoLevel))
	defer span.Finish()

	if entry == nil {
		t.Fatal("no log entry")
	}
	if opentracing.SpanFromContext(ctx) == nil {
		t.Fatal("span not in context")
	}
}
