// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mock

import (
	"github.com/penguintop/pkarr/pkg/crypto"
)

type signerMock struct {
	signFunc  func([]byte) ([]byte, error)
	publicKey crypto.PublicKey
}

func (m *signerMock) Sign(data []byte) ([]byte, error) {
	if m.signFunc != nil {
		return m.signFunc(data)
	}
	return make([]byte, crypto.SignatureSize), nil
}

func (m *signerMock) PublicKey() crypto.PublicKey {
	return m.publicKey
}

func New(opts ...Option) crypto.Signer {
	mock := new(signerMock)
	for _, o := range opts {
		o.apply(mock)
	}
	return mock
}

// Option is the option passed to the mock signer
type Option interface {
	apply(*signerMock)
}

type optionFunc func(*signerMock)

func (f optionFunc) apply(r *signerMock) { f(r) }

func WithSignFunc(f func(data []byte) ([]byte, error)) Option {
	return optionFunc(func(s *signerMock) {
		s.signFunc = f
	})
}

func WithPublicKey(k crypto.PublicKey) Option {
	return optionFunc(func(s *signerMock) {
		s.publicKey = k
	})
}
