// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crypto

import "crypto/ed25519"

type Signer interface {
	// Sign signs data with the private key of the signer.
	Sign(data []byte) ([]byte, error)
	// PublicKey returns the public key this signer uses.
	PublicKey() PublicKey
}

type defaultSigner struct {
	keypair *Keypair
}

// NewDefaultSigner returns a Signer that signs with the given keypair.
func NewDefaultSigner(keypair *Keypair) Signer {
	return &defaultSigner{
		keypair: keypair,
	}
}

func (d *defaultSigner) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(d.keypair.private, data), nil
}

func (d *defaultSigner) PublicKey() PublicKey {
	return d.keypair.PublicKey()
}
