// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packettest provides helpers to build signed packets in tests.
package packettest

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/packet"
)

// NewSigner returns a signer with a random keypair.
func NewSigner(t testing.TB) crypto.Signer {
	t.Helper()

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	return crypto.NewDefaultSigner(kp)
}

// Msg builds a response message answering with the records given in
// presentation format, for example "foo. 30 IN TXT bar".
func Msg(t testing.TB, rrs ...string) *dns.Msg {
	t.Helper()

	msg := new(dns.Msg)
	msg.Response = true
	msg.Authoritative = true
	for _, s := range rrs {
		rr, err := dns.NewRR(s)
		if err != nil {
			t.Fatal(err)
		}
		msg.Answer = append(msg.Answer, rr)
	}
	return msg
}

// New signs a packet with the given records.
func New(t testing.TB, signer crypto.Signer, rrs ...string) *packet.SignedPacket {
	t.Helper()

	p, err := packet.FromMsg(signer, Msg(t, rrs...))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// NewWithTimestamp signs a packet with the given records and timestamp.
func NewWithTimestamp(t testing.TB, signer crypto.Signer, timestamp int64, rrs ...string) *packet.SignedPacket {
	t.Helper()

	payload, err := Msg(t, rrs...).Pack()
	if err != nil {
		t.Fatal(err)
	}
	p, err := packet.NewWithTimestamp(signer, payload, timestamp)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
