// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package relay publishes and resolves packets through HTTP relays.
//
// A relay stores packets under the path of their z-base-32 public key.
// The request and response body is the packet wire form without the
// public key: signature, big endian timestamp and payload.
package relay

import (
	"fmt"
	"time"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/packet"
)

// ContentType is the media type of relay bodies.
const ContentType = "application/pkarr.org/relays#payload"

// MaxBodySize is the largest body a relay accepts.
const MaxBodySize = packet.HeaderSize - crypto.PublicKeySize + packet.MaxPayloadSize

// Body returns the relay body of p.
func Body(p *packet.SignedPacket) []byte {
	return p.Bytes()[crypto.PublicKeySize:]
}

// ParseBody verifies and parses a relay body published by key.
func ParseBody(key crypto.PublicKey, body []byte) (*packet.SignedPacket, error) {
	if len(body) > MaxBodySize {
		return nil, packet.ErrPayloadTooLarge
	}
	b := make([]byte, 0, crypto.PublicKeySize+len(body))
	b = append(b, key[:]...)
	b = append(b, body...)
	p, err := packet.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("relay body: %w", err)
	}
	return p, nil
}

// lastModified is the HTTP date of a packet timestamp, truncated to
// seconds.
func lastModified(timestamp int64) time.Time {
	return time.Unix(timestamp/int64(time.Second/time.Microsecond), 0).UTC()
}
