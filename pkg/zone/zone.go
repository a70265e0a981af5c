// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zone converts simplified zone files into DNS messages that can
// be signed into packets.
//
// A simplified zone file is a zone file without $ORIGIN, $TTL and SOA:
// the origin is the z-base-32 public key of the owner and records
// without a TTL live for DefaultTTL seconds.
package zone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"github.com/penguintop/pkarr/pkg/crypto"
)

// DefaultTTL applies to records that do not set their own TTL.
const DefaultTTL = 3600

// ErrUnsupportedRecord is returned for record types that can not be
// published.
var ErrUnsupportedRecord = errors.New("zone: unsupported record type")

var supported = map[uint16]bool{
	dns.TypeA:     true,
	dns.TypeAAAA:  true,
	dns.TypeNS:    true,
	dns.TypeTXT:   true,
	dns.TypeMX:    true,
	dns.TypeCNAME: true,
}

func header(origin string) string {
	return fmt.Sprintf(`$ORIGIN %s
$TTL %d
@	IN	SOA	127.0.0.1. hostmaster.example.com. (
	2001062501 ; serial
	21600      ; refresh
	3600       ; retry
	604800     ; expire
	86400 )    ; minimum
`, origin, DefaultTTL)
}

// Parse reads a simplified zone file for the records of origin. The
// result is a response message answering with every record.
func Parse(text string, origin crypto.PublicKey) (*dns.Msg, error) {
	o := dns.Fqdn(origin.String())

	zp := dns.NewZoneParser(strings.NewReader(header(o)+text+"\n"), o, "")

	msg := new(dns.Msg)
	msg.Response = true
	msg.Authoritative = true
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		t := rr.Header().Rrtype
		if t == dns.TypeSOA {
			continue
		}
		if !supported[t] {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedRecord, dns.TypeToString[t])
		}
		msg.Answer = append(msg.Answer, rr)
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("zone: %w", err)
	}
	return msg, nil
}

// Pack returns the compressed wire form of msg.
func Pack(msg *dns.Msg) ([]byte, error) {
	m := msg.Copy()
	m.Compress = true
	return m.Pack()
}

// Format writes the answers of msg in zone file presentation format, one
// record per line.
func Format(msg *dns.Msg) string {
	var b strings.Builder
	for _, rr := range msg.Answer {
		b.WriteString(rr.String())
		b.WriteByte('\n')
	}
	return b.String()
}
