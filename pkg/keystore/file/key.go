// Copyright 2021 The Penguin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package file

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/penguintop/pkarr/pkg/crypto"
	"github.com/penguintop/pkarr/pkg/keystore"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	keyHeaderKDF = "scrypt"
	keyVersion   = 1

	scryptN     = 1 << 15
	scryptR     = 8
	scryptP     = 1
	scryptDKLen = 32

	nonceSize = 24
)

type encryptedKey struct {
	PublicKey crypto.PublicKey `json:"publicKey"`
	Crypto    keyCripto        `json:"crypto"`
	Version   int              `json:"version"`
}

type keyCripto struct {
	Cipher     string    `json:"cipher"`
	CipherText string    `json:"ciphertext"`
	Nonce      string    `json:"nonce"`
	KDF        string    `json:"kdf"`
	KDFParams  kdfParams `json:"kdfparams"`
}

type kdfParams struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

func encryptKey(kp *crypto.Keypair, password string) ([]byte, error) {
	kc, err := encryptData(kp.Secret(), []byte(password))
	if err != nil {
		return nil, err
	}
	return json.Marshal(encryptedKey{
		PublicKey: kp.PublicKey(),
		Crypto:    *kc,
		Version:   keyVersion,
	})
}

func decryptKey(data []byte, password string) (*crypto.Keypair, error) {
	var k encryptedKey
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, err
	}
	if k.Version != keyVersion {
		return nil, fmt.Errorf("unsupported key version: %v", k.Version)
	}
	secret, err := decryptData(k.Crypto, password)
	if err != nil {
		return nil, err
	}
	kp, err := crypto.KeypairFromSecret(secret)
	if err != nil {
		return nil, err
	}
	if kp.PublicKey() != k.PublicKey {
		return nil, fmt.Errorf("public key mismatch")
	}
	return kp, nil
}

func encryptData(data, password []byte) (*keyCripto, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("read random data: %w", err)
	}
	derivedKey, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read random data: %w", err)
	}
	var key [32]byte
	copy(key[:], derivedKey)

	cipherText := secretbox.Seal(nil, data, &nonce, &key)

	return &keyCripto{
		Cipher:     "xsalsa20-poly1305",
		CipherText: hex.EncodeToString(cipherText),
		Nonce:      hex.EncodeToString(nonce[:]),
		KDF:        keyHeaderKDF,
		KDFParams: kdfParams{
			N:     scryptN,
			R:     scryptR,
			P:     scryptP,
			DKLen: scryptDKLen,
			Salt:  hex.EncodeToString(salt),
		},
	}, nil
}

func decryptData(v keyCripto, password string) ([]byte, error) {
	if v.KDF != keyHeaderKDF {
		return nil, fmt.Errorf("unsupported key derivation function: %s", v.KDF)
	}
	if v.KDFParams.DKLen != 32 {
		return nil, fmt.Errorf("unsupported derived key length: %v", v.KDFParams.DKLen)
	}

	cipherText, err := hex.DecodeString(v.CipherText)
	if err != nil {
		return nil, fmt.Errorf("hex decode cipher text: %w", err)
	}
	nonceBytes, err := hex.DecodeString(v.Nonce)
	if err != nil {
		return nil, fmt.Errorf("hex decode nonce: %w", err)
	}
	if len(nonceBytes) != nonceSize {
		return nil, fmt.Errorf("invalid nonce length: %v", len(nonceBytes))
	}
	salt, err := hex.DecodeString(v.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("hex decode salt: %w", err)
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, v.KDFParams.N, v.KDFParams.R, v.KDFParams.P, v.KDFParams.DKLen)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	copy(nonce[:], nonceBytes)
	var key [32]byte
	copy(key[:], derivedKey)

	data, ok := secretbox.Open(nil, cipherText, &nonce, &key)
	if !ok {
		return nil, keystore.ErrInvalidPassword
	}
	return data, nil
}
