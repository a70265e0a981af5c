// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package itemstore implements the storage side of a DHT node: it keeps
// the latest mutable item per address and applies the acceptance rules
// for signed, sequenced writes.
package itemstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/storage"
)

const keyPrefix = "mutable_item_"

var (
	ErrNotFound         = errors.New("itemstore: not found")
	ErrInvalidSignature = errors.New("itemstore: invalid signature")
	ErrSeqTooLow        = errors.New("itemstore: sequence number less than current")
	ErrSeqConflict      = errors.New("itemstore: sequence number equal to current with a different value")
	ErrValueTooLarge    = errors.New("itemstore: value too large")
)

// Store holds mutable items on top of a state store.
type Store struct {
	store   storage.StateStorer
	logger  logging.Logger
	metrics metrics

	// mu serializes the read-compare-write of Put.
	mu sync.Mutex
}

// New returns a Store persisting items in store.
func New(store storage.StateStorer, logger logging.Logger) *Store {
	return &Store{
		store:   store,
		logger:  logger,
		metrics: newMetrics(),
	}
}

// Put stores item if its signature is valid and its sequence number is
// not lower than the stored one. Storing the identical item again is
// accepted.
func (s *Store) Put(item *dht.MutableItem) error {
	if len(item.Value) > dht.MaxValueSize {
		s.metrics.Rejected.Inc()
		return ErrValueTooLarge
	}
	if !item.Verify() {
		s.metrics.Rejected.Inc()
		return ErrInvalidSignature
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(item.Address())

	var current record
	err := s.store.Get(key, &current)
	switch {
	case err == nil:
		if item.Seq < current.Seq {
			s.metrics.Rejected.Inc()
			return ErrSeqTooLow
		}
		if item.Seq == current.Seq {
			if !item.Equal((*dht.MutableItem)(&current)) {
				s.metrics.Rejected.Inc()
				return ErrSeqConflict
			}
			return nil
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("get item: %w", err)
	}

	if err := s.store.Put(key, (*record)(item)); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	s.metrics.Stored.Inc()
	s.logger.Tracef("itemstore: stored item %s seq %d", item.Address(), item.Seq)
	return nil
}

// Get returns the item stored under addr.
func (s *Store) Get(addr dht.Address) (*dht.MutableItem, error) {
	var r record
	if err := s.store.Get(storeKey(addr), &r); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return (*dht.MutableItem)(&r), nil
}

// Count returns the number of stored items.
func (s *Store) Count() (n int, err error) {
	err = s.store.Iterate(keyPrefix, func(key, _ []byte) (bool, error) {
		if !strings.HasPrefix(string(key), keyPrefix) {
			return true, nil
		}
		n++
		return false, nil
	})
	return n, err
}

func storeKey(addr dht.Address) string {
	return keyPrefix + addr.String()
}

// record is the stored form of a mutable item:
// key | signature | seq | salt length | salt | value.
type record dht.MutableItem

const recordHeaderSize = crypto.PublicKeySize + crypto.SignatureSize + 8 + 1

func (r *record) MarshalBinary() ([]byte, error) {
	if len(r.Salt) > 255 {
		return nil, errors.New("salt too long")
	}
	b := make([]byte, recordHeaderSize, recordHeaderSize+len(r.Salt)+len(r.Value))
	copy(b, r.Key[:])
	copy(b[crypto.PublicKeySize:], r.Signature)
	binary.BigEndian.PutUint64(b[crypto.PublicKeySize+crypto.SignatureSize:], uint64(r.Seq))
	b[recordHeaderSize-1] = byte(len(r.Salt))
	b = append(b, r.Salt...)
	return append(b, r.Value...), nil
}

func (r *record) UnmarshalBinary(data []byte) error {
	if len(data) < recordHeaderSize {
		return errors.New("record too short")
	}
	saltLen := int(data[recordHeaderSize-1])
	if len(data) < recordHeaderSize+saltLen {
		return errors.New("record too short")
	}
	copy(r.Key[:], data[:crypto.PublicKeySize])
	r.Signature = append([]byte(nil), data[crypto.PublicKeySize:crypto.PublicKeySize+crypto.SignatureSize]...)
	r.Seq = int64(binary.BigEndian.Uint64(data[crypto.PublicKeySize+crypto.SignatureSize:]))
	r.Salt = nil
	if saltLen > 0 {
		r.Salt = append([]byte(nil), data[recordHeaderSize:recordHeaderSize+saltLen]...)
	}
	r.Value = append([]byte(nil), data[recordHeaderSize+saltLen:]...)
	return nil
}
