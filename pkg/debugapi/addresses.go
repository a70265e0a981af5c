// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"net/http"

	"github.com/penguintop/pkarr/pkg/jsonhttp"
)

type addressesResponse struct {
	LocalAddress string   `json:"localAddress"`
	Relays       []string `json:"relays"`
}

func (s *Service) addressesHandler(w http.ResponseWriter, r *http.Request) {
	resp := addressesResponse{
		Relays: s.relays,
	}
	if resp.Relays == nil {
		resp.Relays = []string{}
	}
	if addr := s.client.LocalAddr(); addr != nil {
		resp.LocalAddress = addr.String()
	}
	jsonhttp.OK(w, resp)
}
