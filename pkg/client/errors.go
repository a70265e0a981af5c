// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"fmt"

	"github.com/penguintop/pkarr/pkg/crypto"
)

var (
	// ErrDhtIsShutdown is returned when the coordinator is no longer
	// reachable.
	ErrDhtIsShutdown = errors.New("dht is shutdown")
	// ErrPublishInflight is returned when a publish for the same public
	// key has not completed yet. The caller may retry later.
	ErrPublishInflight = errors.New("publish query is already inflight for the same public key")
)

// FailedToPublishError is returned when every contacted node rejected the
// packet.
type FailedToPublishError struct {
	Err error
}

func (e *FailedToPublishError) Error() string {
	return fmt.Sprintf("failed to publish: %v", e.Err)
}

func (e *FailedToPublishError) Unwrap() error {
	return e.Err
}

// MainlineError wraps any other error reported by the DHT.
type MainlineError struct {
	Err error
}

func (e *MainlineError) Error() string {
	return fmt.Sprintf("dht: %v", e.Err)
}

func (e *MainlineError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when no packet was found for a public key,
// neither in the cache nor in the DHT.
type NotFoundError struct {
	PublicKey crypto.PublicKey
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("packet not found for %s", e.PublicKey)
}
