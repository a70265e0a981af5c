// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dht

import (
	"context"

	"github.com/penguintop/pkarr/pkg/crypto"
)

type publicKeyKey struct{}

// WithPublicKey returns a context carrying the public key a get query
// address was derived from. Gateways that address items by key rather
// than by hash read it with PublicKeyFromContext.
func WithPublicKey(ctx context.Context, key crypto.PublicKey) context.Context {
	return context.WithValue(ctx, publicKeyKey{}, key)
}

// PublicKeyFromContext returns the public key set by WithPublicKey.
func PublicKeyFromContext(ctx context.Context) (crypto.PublicKey, bool) {
	key, ok := ctx.Value(publicKeyKey{}).(crypto.PublicKey)
	return key, ok
}
