// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storage defines the persistence interfaces shared by the
// state store implementations.
package storage

import (
	"errors"
	"io"
)

// ErrNotFound is returned when a key is not present in the store.
var ErrNotFound = errors.New("storage: not found")

// StateIterFunc is called for every key/value pair visited by Iterate.
// Returning stop true ends the iteration.
type StateIterFunc func(key, value []byte) (stop bool, err error)

// StateStorer is a key/value store for node state. Values implementing
// encoding.BinaryMarshaler are stored in their binary form, every other
// value is encoded as JSON.
type StateStorer interface {
	Get(key string, i interface{}) (err error)
	Put(key string, i interface{}) (err error)
	Delete(key string) (err error)
	Iterate(prefix string, iterFunc StateIterFunc) (err error)
	io.Closer
}
