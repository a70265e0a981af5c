// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dht defines the boundary to the distributed hash table used to
// store signed mutable items. The routing and query algorithms live behind
// the Gateway interface.
package dht

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/penguintop/pkarr/pkg/crypto"
	ma "github.com/multiformats/go-multiaddr"
)

// AddressSize is the length of a DHT address in bytes.
const AddressSize = sha1.Size

// MaxValueSize is the largest value a mutable item may carry.
const MaxValueSize = 1000

var ErrInvalidAddress = errors.New("dht: invalid address")

// Address is the DHT lookup key of a mutable item.
type Address [AddressSize]byte

// AddressFromKey derives the address of the mutable items signed by key,
// optionally namespaced by salt.
func AddressFromKey(key crypto.PublicKey, salt []byte) Address {
	h := sha1.New()
	_, _ = h.Write(key[:])
	_, _ = h.Write(salt)
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// ParseHexAddress decodes a hex encoded address.
func ParseHexAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// ID identifies a completed query.
type ID [AddressSize]byte

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MutableItem is a signed, sequenced value stored under the address of
// its signing key.
type MutableItem struct {
	Key       crypto.PublicKey
	Value     []byte
	Seq       int64
	Signature []byte
	Salt      []byte
}

// Address returns the address the item is stored under.
func (m *MutableItem) Address() Address {
	return AddressFromKey(m.Key, m.Salt)
}

// Signable returns the bencoded bytes covered by the signature.
func (m *MutableItem) Signable() []byte {
	return Signable(m.Seq, m.Value, m.Salt)
}

// Verify reports whether the item carries a valid signature of its key.
func (m *MutableItem) Verify() bool {
	if len(m.Value) > MaxValueSize {
		return false
	}
	return crypto.Verify(m.Key, m.Signable(), m.Signature)
}

// Equal reports whether both items carry the same signed content.
func (m *MutableItem) Equal(o *MutableItem) bool {
	return m.Key == o.Key &&
		m.Seq == o.Seq &&
		bytes.Equal(m.Value, o.Value) &&
		bytes.Equal(m.Salt, o.Salt) &&
		bytes.Equal(m.Signature, o.Signature)
}

// Signable encodes seq, value and salt as the bencoded dictionary
// fragment that mutable item signatures are computed over.
func Signable(seq int64, value, salt []byte) []byte {
	var b bytes.Buffer
	if len(salt) > 0 {
		b.WriteString("4:salt")
		b.WriteString(strconv.Itoa(len(salt)))
		b.WriteByte(':')
		b.Write(salt)
	}
	b.WriteString("3:seqi")
	b.WriteString(strconv.FormatInt(seq, 10))
	b.WriteString("e1:v")
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.Write(value)
	return b.Bytes()
}

// GetResponse is a single answer to a mutable get query. Item is nil when
// the responding node only confirmed that it holds no item newer than the
// requested sequence number, which is then reported in Seq.
type GetResponse struct {
	From string
	Item *MutableItem
	Seq  int64
}

// Gateway is a handle to the DHT.
//
// Get returns immediately. The returned channel yields responses from
// remote nodes as they arrive, in no particular order, and is closed when
// the query is over. Cancelling ctx abandons the query. When seq is not
// nil, nodes holding an item with that sequence number or lower are not
// expected to transmit the value.
//
// Implementations must be safe for concurrent use.
type Gateway interface {
	Put(ctx context.Context, item *MutableItem) (ID, error)
	Get(ctx context.Context, addr Address, seq *int64) <-chan GetResponse
	io.Closer
}

// AddrGetter is implemented by gateways bound to a local network address.
type AddrGetter interface {
	LocalAddr() ma.Multiaddr
}
