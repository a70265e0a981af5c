// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/packet"
)

var (
	// ErrInvalidName is returned when the last label of a name is not a
	// public key.
	ErrInvalidName = errors.New("name is not rooted at a public key")
	// ErrNoRecords is returned when the resolved packet has no record of
	// the queried name and type.
	ErrNoRecords = errors.New("no records")
)

// maxCNAMEChain bounds how many CNAME records are followed within
// a single packet.
const maxCNAMEChain = 8

// PacketResolver resolves the packet published by a public key. It is
// implemented by client.Client.
type PacketResolver interface {
	Resolve(ctx context.Context, key crypto.PublicKey) (*packet.SignedPacket, error)
}

// Interface can resolve a name into the records published for it.
type Interface interface {
	Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error)
}

var _ Interface = (*Service)(nil)

// Service looks records up in resolved packets.
type Service struct {
	client PacketResolver
	logger logging.Logger
}

// New returns a Service resolving packets with c.
func New(c PacketResolver, logger logging.Logger) *Service {
	return &Service{
		client: c,
		logger: logger,
	}
}

// Lookup returns the records of type qtype published for name. A qtype of
// dns.TypeANY matches every type. CNAME records pointing to other names
// under the same key are followed.
func (s *Service) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	key, err := PublicKeyFromName(name)
	if err != nil {
		return nil, err
	}

	p, err := s.client.Resolve(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", key, err)
	}

	rrs := Records(p.Msg(), name, qtype)
	if len(rrs) == 0 {
		s.logger.Tracef("resolver: no %s records for %s", dns.TypeToString[qtype], name)
		return nil, ErrNoRecords
	}
	return rrs, nil
}

// PublicKeyFromName parses the public key from the last label of name.
func PublicKeyFromName(name string) (crypto.PublicKey, error) {
	labels := dns.SplitDomainName(name)
	if len(labels) == 0 {
		return crypto.PublicKey{}, ErrInvalidName
	}
	key, err := crypto.ParsePublicKey(strings.ToLower(labels[len(labels)-1]))
	if err != nil {
		return crypto.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return key, nil
}

// Records returns the answers of msg matching name and qtype.
func Records(msg *dns.Msg, name string, qtype uint16) []dns.RR {
	name = dns.CanonicalName(name)

	var rrs []dns.RR
	for i := 0; i < maxCNAMEChain; i++ {
		var target string
		for _, rr := range msg.Answer {
			h := rr.Header()
			if dns.CanonicalName(h.Name) != name {
				continue
			}
			if qtype == dns.TypeANY || h.Rrtype == qtype {
				rrs = append(rrs, rr)
				continue
			}
			if c, ok := rr.(*dns.CNAME); ok && target == "" {
				rrs = append(rrs, rr)
				target = dns.CanonicalName(c.Target)
			}
		}
		if target == "" || qtype == dns.TypeCNAME || qtype == dns.TypeANY {
			break
		}
		name = target
	}

	if !hasType(rrs, qtype) {
		return nil
	}
	return rrs
}

func hasType(rrs []dns.RR, qtype uint16) bool {
	for _, rr := range rrs {
		if qtype == dns.TypeANY || rr.Header().Rrtype == qtype {
			return true
		}
	}
	return false
}

// ParseType returns the record type named by s, case insensitive.
func ParseType(s string) (uint16, error) {
	t, ok := dns.StringToType[strings.ToUpper(s)]
	if !ok {
		return 0, fmt.Errorf("unknown record type %q", s)
	}
	return t, nil
}
