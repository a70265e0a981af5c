// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet provides the signed packet: a DNS record set signed by
// the key that owns it, stamped with a strictly increasing timestamp.
package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
	"go.uber.org/atomic"
)

const (
	timestampSize = 8
	// HeaderSize is the length of the wire form without the payload.
	HeaderSize = crypto.PublicKeySize + crypto.SignatureSize + timestampSize
	// MaxPayloadSize is the largest encoded record set a packet may carry.
	MaxPayloadSize = dht.MaxValueSize
)

var (
	ErrInvalidSignature = errors.New("packet: invalid signature")
	ErrTooShort         = errors.New("packet: data is shorter than the packet header")
	ErrPayloadTooLarge  = errors.New("packet: payload too large")
	ErrInvalidPayload   = errors.New("packet: invalid dns payload")
	ErrSalted           = errors.New("packet: salted items are not packets")
)

var lastTimestamp atomic.Int64

// SignedPacket is an immutable signed record set. It is safe to share
// between goroutines.
type SignedPacket struct {
	publicKey crypto.PublicKey
	signature []byte
	timestamp int64
	payload   []byte
	msg       *dns.Msg
	lastSeen  time.Time
}

// New signs payload, a wire format DNS message, with a fresh timestamp.
func New(signer crypto.Signer, payload []byte) (*SignedPacket, error) {
	return NewWithTimestamp(signer, payload, nextTimestamp())
}

// NewWithTimestamp signs payload with the given timestamp in microseconds
// since the unix epoch.
func NewWithTimestamp(signer crypto.Signer, payload []byte, timestamp int64) (*SignedPacket, error) {
	msg, err := parsePayload(payload)
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(dht.Signable(timestamp, payload, nil))
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return &SignedPacket{
		publicKey: signer.PublicKey(),
		signature: signature,
		timestamp: timestamp,
		payload:   append([]byte(nil), payload...),
		msg:       msg,
		lastSeen:  time.Now(),
	}, nil
}

// FromMsg packs msg and signs it.
func FromMsg(signer crypto.Signer, msg *dns.Msg) (*SignedPacket, error) {
	m := msg.Copy()
	m.Compress = true
	payload, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return New(signer, payload)
}

// FromBytes parses and verifies the wire form produced by Bytes.
func FromBytes(b []byte) (*SignedPacket, error) {
	if len(b) < HeaderSize {
		return nil, ErrTooShort
	}

	key, err := crypto.NewPublicKey(b[:crypto.PublicKeySize])
	if err != nil {
		return nil, err
	}
	cursor := crypto.PublicKeySize

	signature := b[cursor : cursor+crypto.SignatureSize]
	cursor += crypto.SignatureSize

	timestamp := int64(binary.BigEndian.Uint64(b[cursor : cursor+timestampSize]))
	cursor += timestampSize

	return fromParts(key, signature, timestamp, b[cursor:])
}

// FromMutableItem verifies a DHT item and recreates the packet it carries.
func FromMutableItem(item *dht.MutableItem) (*SignedPacket, error) {
	if len(item.Salt) > 0 {
		return nil, ErrSalted
	}
	return fromParts(item.Key, item.Signature, item.Seq, item.Value)
}

func fromParts(key crypto.PublicKey, signature []byte, timestamp int64, payload []byte) (*SignedPacket, error) {
	msg, err := parsePayload(payload)
	if err != nil {
		return nil, err
	}
	if !crypto.Verify(key, dht.Signable(timestamp, payload, nil), signature) {
		return nil, ErrInvalidSignature
	}
	return &SignedPacket{
		publicKey: key,
		signature: append([]byte(nil), signature...),
		timestamp: timestamp,
		payload:   append([]byte(nil), payload...),
		msg:       msg,
		lastSeen:  time.Now(),
	}, nil
}

func parsePayload(payload []byte) (*dns.Msg, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return msg, nil
}

// nextTimestamp returns the current time in microseconds, strictly greater
// than any timestamp previously handed out by this process.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano() / int64(time.Microsecond)
		last := lastTimestamp.Load()
		if now <= last {
			now = last + 1
		}
		if lastTimestamp.CAS(last, now) {
			return now
		}
	}
}

// MutableItem returns the DHT item that stores the packet.
func (p *SignedPacket) MutableItem() *dht.MutableItem {
	return &dht.MutableItem{
		Key:       p.publicKey,
		Value:     append([]byte(nil), p.payload...),
		Seq:       p.timestamp,
		Signature: append([]byte(nil), p.signature...),
	}
}

// Address returns the DHT address of the packet owner.
func (p *SignedPacket) Address() dht.Address {
	return dht.AddressFromKey(p.publicKey, nil)
}

func (p *SignedPacket) PublicKey() crypto.PublicKey {
	return p.publicKey
}

func (p *SignedPacket) Signature() []byte {
	return append([]byte(nil), p.signature...)
}

// Timestamp returns the signed write time in microseconds since the
// unix epoch.
func (p *SignedPacket) Timestamp() int64 {
	return p.timestamp
}

// Payload returns the wire format DNS message.
func (p *SignedPacket) Payload() []byte {
	return append([]byte(nil), p.payload...)
}

// Msg returns a copy of the parsed DNS message.
func (p *SignedPacket) Msg() *dns.Msg {
	return p.msg.Copy()
}

// LastSeen returns the local time the packet was created, parsed or
// stored in a cache.
func (p *SignedPacket) LastSeen() time.Time {
	return p.lastSeen
}

// WithLastSeen returns a copy of the packet with a different last seen
// time. Byte slices are shared, they are never written to.
func (p *SignedPacket) WithLastSeen(t time.Time) *SignedPacket {
	c := *p
	c.lastSeen = t
	return &c
}

// Bytes returns the wire form: key, signature, big endian timestamp
// and payload.
func (p *SignedPacket) Bytes() []byte {
	b := make([]byte, HeaderSize+len(p.payload))
	copy(b, p.publicKey[:])
	copy(b[crypto.PublicKeySize:], p.signature)
	binary.BigEndian.PutUint64(b[crypto.PublicKeySize+crypto.SignatureSize:], uint64(p.timestamp))
	copy(b[HeaderSize:], p.payload)
	return b
}

// Equal reports whether both packets have the same wire form.
func (p *SignedPacket) Equal(o *SignedPacket) bool {
	return p.publicKey == o.publicKey &&
		p.timestamp == o.timestamp &&
		bytes.Equal(p.signature, o.signature) &&
		bytes.Equal(p.payload, o.payload)
}

// TTL returns the smallest answer TTL clamped to [min, max], in seconds.
// Packets without answers get min.
func (p *SignedPacket) TTL(min, max uint32) uint32 {
	if len(p.msg.Answer) == 0 {
		return min
	}
	ttl := p.msg.Answer[0].Header().Ttl
	for _, rr := range p.msg.Answer[1:] {
		if t := rr.Header().Ttl; t < ttl {
			ttl = t
		}
	}
	if ttl < min {
		return min
	}
	if ttl > max {
		return max
	}
	return ttl
}

// ExpiresIn returns the number of seconds the packet stays fresh, counted
// from its last seen time.
func (p *SignedPacket) ExpiresIn(min, max uint32) uint32 {
	return p.ExpiresInAt(time.Now(), min, max)
}

// ExpiresInAt is ExpiresIn evaluated at the given time.
func (p *SignedPacket) ExpiresInAt(now time.Time, min, max uint32) uint32 {
	ttl := int64(p.TTL(min, max))
	elapsed := int64(now.Sub(p.lastSeen) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= ttl {
		return 0
	}
	return uint32(ttl - elapsed)
}

func (p *SignedPacket) String() string {
	return fmt.Sprintf("[PublicKey: %s, Timestamp: %d, Answers: %d]", p.publicKey, p.timestamp, len(p.msg.Answer))
}
