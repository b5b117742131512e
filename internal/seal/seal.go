// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package seal

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// SaltLen is the length in bytes of the per-field salt stored alongside
// ciphertext.
const SaltLen = 16

// DefaultScryptN, DefaultScryptR, and DefaultScryptP are the scrypt cost
// parameters used to derive a sealing key from a passphrase. Tests may
// pass a Params with a smaller N to keep suites fast; the
// defaults are the values a long-lived vault file should be created with.
const (
	DefaultScryptN = 1 << 18
	DefaultScryptR = 8
	DefaultScryptP = 1
)

// ErrEmptyPassphrase is returned by Seal/Unseal when given an empty
// passphrase; an empty passphrase would derive a key from salt alone,
// silently producing a vault anyone could decrypt.
var ErrEmptyPassphrase = errors.New("seal: passphrase must not be empty")

// Params controls the scrypt cost parameters used to derive a sealing key.
// The zero value is not valid; use DefaultParams().
type Params struct {
	N, R, P int
}

// DefaultParams returns the scrypt cost parameters a vault should be
// created with.
func DefaultParams() Params {
	return Params{N: DefaultScryptN, R: DefaultScryptR, P: DefaultScryptP}
}

func deriveKey(passphrase []byte, salt []byte, p Params) ([]byte, error) {
	return scrypt.Key(passphrase, salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
}

// Sealed is a ciphertext plus the salt used to derive its key, ready to be
// persisted.
type Sealed struct {
	Salt       []byte
	Ciphertext []byte
}

// Seal encrypts plaintext under a key derived from passphrase and a fresh
// random salt, authenticating aad (additional context, e.g. the keychain
// hash, so a ciphertext can't be silently swapped onto a different
// keychain's row).
func Seal(plaintext, passphrase, aad []byte, p Params) (*Sealed, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("seal: generating salt: %w", err)
	}

	key, err := deriveKey(passphrase, salt, p)
	if err != nil {
		return nil, fmt.Errorf("seal: deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("seal: constructing AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal: generating nonce: %w", err)
	}

	ciphertext := aead.Seal(nonce, nonce, plaintext, aad)
	return &Sealed{Salt: salt, Ciphertext: ciphertext}, nil
}

// Unseal decrypts a Sealed value produced by Seal. It returns
// ErrEmptyPassphrase for an empty passphrase and an authentication error
// (wrapped, unexported by chacha20poly1305) for a wrong passphrase or
// tampered ciphertext/aad — both map to verr.BadPassphrase at the keychain
// layer, since a caller cannot distinguish the two without help.
func Unseal(sealed *Sealed, passphrase, aad []byte, p Params) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	key, err := deriveKey(passphrase, sealed.Salt, p)
	if err != nil {
		return nil, fmt.Errorf("seal: deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("seal: constructing AEAD: %w", err)
	}

	if len(sealed.Ciphertext) < aead.NonceSize() {
		return nil, errors.New("seal: ciphertext too short")
	}
	nonce, ct := sealed.Ciphertext[:aead.NonceSize()], sealed.Ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("seal: decrypting: %w", err)
	}
	return plaintext, nil
}
