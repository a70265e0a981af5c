// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package itemstore_test

import (
	"errors"
	"io/ioutil"
	"testing"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/dht"
	"github.com/penguintop/pkarr/pkg/dht/itemstore"
	"github.com/penguintop/pkarr/pkg/logging"
	"github.com/penguintop/pkarr/pkg/statestore/mock"
	"github.com/sirupsen/logrus"
)

func newItem(t *testing.T, signer crypto.Signer, seq int64, value string, salt []byte) *dht.MutableItem {
	t.Helper()

	sig, err := signer.Sign(dht.Signable(seq, []byte(value), salt))
	if err != nil {
		t.Fatal(err)
	}
	return &dht.MutableItem{
		Key:       signer.PublicKey(),
		Value:     []byte(value),
		Seq:       seq,
		Signature: sig,
		Salt:      salt,
	}
}

func newSigner(t *testing.T) crypto.Signer {
	t.Helper()

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	return crypto.NewDefaultSigner(kp)
}

func newStore() *itemstore.Store {
	return itemstore.New(mock.NewStateStore(), logging.New(ioutil.Discard, logrus.ErrorLevel))
}

func TestPutGet(t *testing.T) {
	s := newStore()
	signer := newSigner(t)

	for _, salt := range [][]byte{nil, []byte("salt")} {
		item := newItem(t, signer, 1, "value", salt)
		if err := s.Put(item); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(item.Address())
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(item) {
			t.Fatalf("got %+v, want %+v", got, item)
		}
	}

	n, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("got count %v, want %v", n, 2)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newStore()
	if _, err := s.Get(dht.Address{1}); !errors.Is(err, itemstore.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, itemstore.ErrNotFound)
	}
}

func TestPutRules(t *testing.T) {
	signer := newSigner(t)
	current := newItem(t, signer, 5, "current", nil)

	badSignature := newItem(t, signer, 6, "newer", nil)
	badSignature.Signature[0] ^= 0xff

	for _, tc := range []struct {
		name string
		item *dht.MutableItem
		err  error
		want *dht.MutableItem
	}{
		{name: "newer", item: newItem(t, signer, 6, "newer", nil), want: newItem(t, signer, 6, "newer", nil)},
		{name: "same", item: newItem(t, signer, 5, "current", nil), want: current},
		{name: "older", item: newItem(t, signer, 4, "older", nil), err: itemstore.ErrSeqTooLow, want: current},
		{name: "conflict", item: newItem(t, signer, 5, "other", nil), err: itemstore.ErrSeqConflict, want: current},
		{name: "bad signature", item: badSignature, err: itemstore.ErrInvalidSignature, want: current},
		{name: "too large", item: newItem(t, signer, 6, string(make([]byte, dht.MaxValueSize+1)), nil), err: itemstore.ErrValueTooLarge, want: current},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore()
			if err := s.Put(current); err != nil {
				t.Fatal(err)
			}

			if err := s.Put(tc.item); !errors.Is(err, tc.err) {
				t.Fatalf("got error %v, want %v", err, tc.err)
			}

			got, err := s.Get(current.Address())
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got seq %v value %q, want seq %v value %q", got.Seq, got.Value, tc.want.Seq, tc.want.Value)
			}
		})
	}
}
