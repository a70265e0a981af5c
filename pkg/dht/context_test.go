// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dht_test

import (
	"context"
	"testing"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
)

func TestPublicKeyContext(t *testing.T) {
	if _, ok := dht.PublicKeyFromContext(context.Background()); ok {
		t.Fatal("public key found in empty context")
	}

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	ctx := dht.WithPublicKey(context.Background(), kp.PublicKey())

	got, ok := dht.PublicKeyFromContext(ctx)
	if !ok {
		t.Fatal("public key not found")
	}
	if got != kp.PublicKey() {
		t.Errorf("got public key %s, want %s", got, kp.PublicKey())
	}
}
