// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/jsonhttp"
)

type cacheResponse struct {
	Entries   int      `json:"entries"`
	HitRatio  float64  `json:"hitRatio"`
	Addresses []string `json:"addresses,omitempty"`
}

type cacheEntryResponse struct {
	PublicKey string    `json:"publicKey"`
	Address   string    `json:"address"`
	Timestamp int64     `json:"timestamp"`
	LastSeen  time.Time `json:"lastSeen"`
	TTL       uint32    `json:"ttl"`
	ExpiresIn uint32    `json:"expiresIn"`
	Records   []string  `json:"records"`
}

func (s *Service) cacheHandler(w http.ResponseWriter, r *http.Request) {
	c := s.client.Cache()
	resp := cacheResponse{
		Entries: c.Len(),
	}
	if st, ok := c.(interface {
		HitRatio() float64
		Addresses() []dht.Address
	}); ok {
		resp.HitRatio = st.HitRatio()
		for _, a := range st.Addresses() {
			resp.Addresses = append(resp.Addresses, a.String())
		}
	}
	jsonhttp.OK(w, resp)
}

func (s *Service) cacheEntryHandler(w http.ResponseWriter, r *http.Request) {
	key, err := crypto.ParsePublicKey(mux.Vars(r)["key"])
	if err != nil {
		s.logger.Debugf("debug api: cache entry: parse key %s: %v", mux.Vars(r)["key"], err)
		jsonhttp.BadRequest(w, "invalid public key")
		return
	}

	addr := dht.AddressFromKey(key, nil)
	p := s.client.Cache().Get(addr)
	if p == nil {
		jsonhttp.NotFound(w, nil)
		return
	}

	records := make([]string, 0)
	for _, rr := range p.Msg().Answer {
		records = append(records, strings.ReplaceAll(rr.String(), "\t", " "))
	}
	jsonhttp.OK(w, cacheEntryResponse{
		PublicKey: key.String(),
		Address:   addr.String(),
		Timestamp: p.Timestamp(),
		LastSeen:  p.LastSeen(),
		TTL:       p.TTL(s.minTTL, s.maxTTL),
		ExpiresIn: p.ExpiresIn(s.minTTL, s.maxTTL),
		Records:   records,
	})
}
