// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crypto holds the key material used to own and sign records.
// Keys are ed25519; public keys are displayed in z-base-32.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

const (
	// PublicKeySize is the length of a public key in bytes.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the length of a signature in bytes.
	SignatureSize = ed25519.SignatureSize
	// SecretSize is the length of the secret seed of a keypair.
	SecretSize = ed25519.SeedSize

	publicKeyPrefix = "pk:"
)

var (
	ErrInvalidLength    = errors.New("invalid key length")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

var zbase32 = base32.NewEncoding("ybndrfg8ejkmcpqxot1uwisza345h769").WithPadding(base32.NoPadding)

// PublicKey identifies the owner of a record set.
type PublicKey [PublicKeySize]byte

// NewPublicKey copies b into a PublicKey.
func NewPublicKey(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != PublicKeySize {
		return k, ErrInvalidLength
	}
	copy(k[:], b)
	return k, nil
}

// ParsePublicKey decodes a z-base-32 public key, with or without
// the "pk:" prefix.
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), publicKeyPrefix)
	b, err := zbase32.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	k, err := NewPublicKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return k, nil
}

// Bytes returns a copy of the key bytes.
func (k PublicKey) Bytes() []byte {
	return append([]byte(nil), k[:]...)
}

// String returns the z-base-32 form of the key.
func (k PublicKey) String() string {
	return zbase32.EncodeToString(k[:])
}

// URI returns the key with the "pk:" prefix.
func (k PublicKey) URI() string {
	return publicKeyPrefix + k.String()
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PublicKey) UnmarshalText(b []byte) error {
	p, err := ParsePublicKey(string(b))
	if err != nil {
		return err
	}
	*k = p
	return nil
}

// Keypair holds an ed25519 private key.
type Keypair struct {
	private ed25519.PrivateKey
}

// GenerateKeypair creates a random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{private: private}, nil
}

// KeypairFromSecret derives the keypair from its 32 byte secret seed.
func KeypairFromSecret(secret []byte) (*Keypair, error) {
	if len(secret) != SecretSize {
		return nil, ErrInvalidLength
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(secret)}, nil
}

// PublicKey returns the public half of the keypair.
func (k *Keypair) PublicKey() PublicKey {
	var p PublicKey
	copy(p[:], k.private.Public().(ed25519.PublicKey))
	return p
}

// Secret returns the secret seed the keypair was derived from.
func (k *Keypair) Secret() []byte {
	return k.private.Seed()
}

// Verify reports whether sig is a valid signature of msg by key.
func Verify(key PublicKey, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key[:]), msg, sig)
}
