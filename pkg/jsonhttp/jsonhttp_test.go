// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jsonhttp_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/penguintop/pkarr/pkg/jsonhttp"
)

func TestRespond(t *testing.T) {
	for _, tc := range []struct {
		name     string
		code     int
		response interface{}
		want     jsonhttp.StatusResponse
	}{
		{name: "default message", code: http.StatusNotFound, want: jsonhttp.StatusResponse{Message: "Not Found", Code: 404}},
		{name: "string", code: http.StatusBadRequest, response: "bad key", want: jsonhttp.StatusResponse{Message: "bad key", Code: 400}},
		{name: "error", code: http.StatusConflict, response: errors.New("inflight"), want: jsonhttp.StatusResponse{Message: "inflight", Code: 409}},
		{name: "zero code", response: nil, want: jsonhttp.StatusResponse{Message: "OK", Code: 200}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			jsonhttp.Respond(w, tc.code, tc.response)

			wantCode := tc.code
			if wantCode == 0 {
				wantCode = http.StatusOK
			}
			if w.Code != wantCode {
				t.Fatalf("got status %v, want %v", w.Code, wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != jsonhttp.DefaultContentTypeHeader {
				t.Fatalf("got content type %q, want %q", ct, jsonhttp.DefaultContentTypeHeader)
			}
			var got jsonhttp.StatusResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRespondStruct(t *testing.T) {
	type payload struct {
		Value string `json:"value"`
	}

	w := httptest.NewRecorder()
	jsonhttp.OK(w, payload{Value: "<b>"})

	if got := w.Body.String(); got != "{\"value\":\"<b>\"}\n\n" {
		t.Fatalf("got body %q", got)
	}
}
