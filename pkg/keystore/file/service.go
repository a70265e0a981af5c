// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package file implements keystore.Service with keys encrypted
// in JSON files on the filesystem.
package file

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/keystore"
)

var _ keystore.Service = (*Service)(nil)

// Service is the file-based keystore.Service implementation.
//
// Keys are stored in directory where each private key is stored in a file,
// which is encrypted with symmetric key using some password.
type Service struct {
	dir string
}

// New creates new file-based keystore.Service implementation.
func New(dir string) *Service {
	return &Service{dir: dir}
}

func (s *Service) Exists(name string) (bool, error) {
	filename := s.keyFilename(name)

	data, err := ioutil.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read private key: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}

	return true, nil
}

func (s *Service) Key(name, password string) (*crypto.Keypair, bool, error) {
	filename := s.keyFilename(name)

	data, err := ioutil.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("read private key: %w", err)
	}
	if len(data) == 0 {
		kp, err := crypto.GenerateKeypair()
		if err != nil {
			return nil, false, fmt.Errorf("generate keypair: %w", err)
		}
		if err := s.write(filename, kp, password); err != nil {
			return nil, false, err
		}
		return kp, true, nil
	}

	kp, err := decryptKey(data, password)
	if err != nil {
		return nil, false, err
	}
	return kp, false, nil
}

func (s *Service) Import(name, password string, secret []byte) (*crypto.Keypair, error) {
	kp, err := crypto.KeypairFromSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	if err := s.write(s.keyFilename(name), kp, password); err != nil {
		return nil, err
	}
	return kp, nil
}

func (s *Service) write(filename string, kp *crypto.Keypair, password string) error {
	d, err := encryptKey(kp, password)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return err
	}

	if err := ioutil.WriteFile(filename, d, 0600); err != nil {
		return err
	}
	return nil
}

func (s *Service) keyFilename(name string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.key", name))
}
