// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/penguintop/pkarr/pkg/keystore"
)

// Service is a utility testing function that can be used to test
// implementations of the keystore.Service interface.
func Service(t *testing.T, s keystore.Service) {
	exists, err := s.Exists("pkarr")
	if err != nil {
		t.Fatal(err)
	}

	if exists {
		t.Fatal("should not exist")
	}

	// create a new pkarr key
	k1, created, err := s.Key("pkarr", "pass123456")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("key is not created")
	}

	exists, err = s.Exists("pkarr")
	if err != nil {
		t.Fatal(err)
	}

	if !exists {
		t.Fatal("should exist")
	}

	// get existing key
	k2, created, err := s.Key("pkarr", "pass123456")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("key is created, but should not be")
	}
	if k1.PublicKey() != k2.PublicKey() {
		t.Fatal("two keys are not equal")
	}
	if !bytes.Equal(k1.Secret(), k2.Secret()) {
		t.Fatal("two secrets are not equal")
	}

	// invalid password
	_, _, err = s.Key("pkarr", "invalid password")
	if !errors.Is(err, keystore.ErrInvalidPassword) {
		t.Fatal(err)
	}

	// create a new publishing key
	k3, created, err := s.Key("publisher", "pass123456")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("key is not created")
	}
	if k1.PublicKey() == k3.PublicKey() {
		t.Fatal("two keys are equal, but should not be")
	}

	// import a known secret over an existing key
	secret := bytes.Repeat([]byte{7}, 32)
	k4, err := s.Import("publisher", "other pass", secret)
	if err != nil {
		t.Fatal(err)
	}
	k5, created, err := s.Key("publisher", "other pass")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("key is created, but should not be")
	}
	if k4.PublicKey() != k5.PublicKey() {
		t.Fatal("imported key is not returned")
	}
	if !bytes.Equal(k5.Secret(), secret) {
		t.Fatal("imported secret is not returned")
	}

	if _, err := s.Import("short", "pass", []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error importing a short secret")
	}
}
