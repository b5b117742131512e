// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"github.com/ciphrex/vaultd/internal/seal"
	"github.com/ciphrex/vaultd/internal/verr"
)

// field holds one independently lockable secret (a chain code or a private
// key scalar). "Locked" means plain is nil but sealed ciphertext is still
// held, matching spec §3: chain code and private key independently
// lockable, "locked" meaning the plaintext is absent in memory but
// ciphertext is persisted.
type field struct {
	plain  *seal.SecureBytes
	sealed *seal.Sealed
}

func newPlainField(b []byte) *field {
	if b == nil {
		return nil
	}
	return &field{plain: seal.New(b)}
}

func newSealedField(s *seal.Sealed) *field {
	if s == nil {
		return nil
	}
	return &field{sealed: s}
}

// present reports whether any form (plaintext or ciphertext) of the secret
// exists, i.e. whether this field is populated at all.
func (f *field) present() bool {
	return f != nil && (f.plain != nil || f.sealed != nil)
}

// locked reports whether the field is populated but its plaintext is
// currently unavailable in memory.
func (f *field) locked() bool {
	return f != nil && f.plain == nil && f.sealed != nil
}

func (f *field) bytes() []byte {
	if f == nil || f.plain == nil {
		return nil
	}
	return f.plain.Bytes()
}

// lock discards the plaintext, retaining the sealed ciphertext. It is a
// no-op if the field has no ciphertext to fall back to (the keychain layer
// refuses to reach that state; Encrypt must precede the first Lock).
func (f *field) lock() {
	if f == nil || f.sealed == nil {
		return
	}
	if f.plain != nil {
		f.plain.Destroy()
		f.plain = nil
	}
}

// unlock decrypts the sealed ciphertext into plaintext using passphrase and
// aad (the owning keychain's hash, binding the ciphertext to its row).
func (f *field) unlock(passphrase, aad []byte, params seal.Params) error {
	if f == nil || f.sealed == nil {
		return verr.New(verr.NotFound)
	}
	if f.plain != nil {
		return nil // already unlocked
	}
	pt, err := seal.Unseal(f.sealed, passphrase, aad, params)
	if err != nil {
		return verr.WrapSubject(verr.BadPassphrase, "keychain", err)
	}
	f.plain = seal.New(pt)
	for i := range pt {
		pt[i] = 0
	}
	return nil
}

// encrypt seals the current plaintext under passphrase, replacing any
// previous ciphertext. The plaintext is retained (still unlocked) after
// this call; callers wanting it cleared from memory immediately should
// follow with lock().
func (f *field) encrypt(passphrase, aad []byte, params seal.Params) error {
	if f == nil || f.plain == nil {
		return verr.New(verr.NotFound)
	}
	sealed, err := seal.Seal(f.plain.Bytes(), passphrase, aad, params)
	if err != nil {
		return verr.Wrap(verr.IOError, err)
	}
	f.sealed = sealed
	return nil
}

func (f *field) destroy() {
	if f == nil {
		return
	}
	if f.plain != nil {
		f.plain.Destroy()
	}
}
