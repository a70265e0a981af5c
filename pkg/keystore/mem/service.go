// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"fmt"
	"sync"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/keystore"
)

var _ keystore.Service = (*Service)(nil)

// Service is the memory-based keystore.Service implementation.
//
// Keys are stored in the in-memory map, where the key is the name of the
// keypair, and the value is the structure where the actual keypair and the
// password are stored.
type Service struct {
	m  map[string]key
	mu sync.Mutex
}

// New creates new memory-based keystore.Service implementation.
func New() *Service {
	return &Service{
		m: make(map[string]key),
	}
}

func (s *Service) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.m[name]
	return ok, nil
}

func (s *Service) Key(name, password string) (*crypto.Keypair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.m[name]
	if !ok {
		kp, err := crypto.GenerateKeypair()
		if err != nil {
			return nil, false, fmt.Errorf("generate keypair: %w", err)
		}
		s.m[name] = key{
			keypair:  kp,
			password: password,
		}
		return kp, true, nil
	}

	if k.password != password {
		return nil, false, keystore.ErrInvalidPassword
	}

	return k.keypair, false, nil
}

func (s *Service) Import(name, password string, secret []byte) (*crypto.Keypair, error) {
	kp, err := crypto.KeypairFromSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[name] = key{
		keypair:  kp,
		password: password,
	}
	return kp, nil
}

type key struct {
	keypair  *crypto.Keypair
	password string
}
