// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keystore stores the signing keys of a node.
package keystore

import (
	"errors"

	"github.com/penguintop/pkarr/pkg/crypto"
)

// ErrInvalidPassword is returned when the password for decrypting content where
// private key is stored is not valid.
var ErrInvalidPassword = errors.New("invalid password")

// Service for managing keystore private keys.
type Service interface {
	// Key returns the keypair for a specified name that is encrypted with the
	// provided password. If the keypair does not exist, it creates a new one
	// with a provided password, and returns true for the created flag.
	Key(name, password string) (k *crypto.Keypair, created bool, err error)
	// Exists returns true if the key with specified name exists.
	Exists(name string) (bool, error)
	// Import stores a keypair derived from secret under name, replacing
	// an existing one.
	Import(name, password string, secret []byte) (*crypto.Keypair, error)
}
