// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

type (
	StatusResponse     = statusResponse
	AddressesResponse  = addressesResponse
	CacheResponse      = cacheResponse
	CacheEntryResponse = cacheEntryResponse
)
