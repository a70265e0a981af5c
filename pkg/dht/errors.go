// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dht

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrPutQueryIsInflight is returned when a put for the same address
	// has not completed yet.
	ErrPutQueryIsInflight = errors.New("dht: put query is already inflight")
	// ErrClosed is returned by a gateway that has been closed.
	ErrClosed = errors.New("dht: closed")
	// ErrNoNodes is returned when there is nobody to query.
	ErrNoNodes = errors.New("dht: no nodes to query")
)

// QueryError is returned when every contacted node responded with an
// error.
type QueryError struct {
	Errors []error
}

func (e *QueryError) Error() string {
	if len(e.Errors) == 0 {
		return "dht: query failed"
	}
	return fmt.Sprintf("dht: query failed: %s", multierror.ListFormatFunc(e.Errors))
}

// Unwrap returns the first node error.
func (e *QueryError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}
