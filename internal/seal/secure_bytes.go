// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package seal implements at-rest encryption for keychain secrets (chain
// codes and private keys). The original source this spec was distilled
// from stored these fields as plaintext behind a comment reading "TODO:
// encrypt"; this package is the real implementation spec §9 requires:
// scrypt-derived keys sealing the plaintext with an AEAD cipher, never
// persisting anything but ciphertext and a per-field salt.
package seal

import (
	"runtime"
)

// SecureBytes is a byte buffer intended to hold plaintext secrets (an
// unlocked private key or chain code) for as short a time as possible. It
// best-effort mlocks its backing array so the OS is less likely to swap it
// to disk, and Destroy zeroizes it. A finalizer is a safety net only: code
// that unlocks a SecureBytes must call Destroy explicitly rather than rely
// on the garbage collector's timing.
type SecureBytes struct {
	b      []byte
	locked bool
}

// New allocates a SecureBytes copying buf, which the caller may discard
// afterward.
func New(buf []byte) *SecureBytes {
	s := &SecureBytes{b: make([]byte, len(buf))}
	copy(s.b, buf)
	s.locked = mlock(s.b)
	runtime.SetFinalizer(s, (*SecureBytes).Destroy)
	return s
}

// Bytes returns the underlying plaintext. The returned slice aliases
// SecureBytes' storage and must not outlive a call to Destroy.
func (s *SecureBytes) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Destroy zeroizes the buffer and releases its memory lock. Safe to call
// more than once.
func (s *SecureBytes) Destroy() {
	if s == nil || s.b == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	if s.locked {
		munlock(s.b)
	}
	s.b = nil
	runtime.SetFinalizer(s, nil)
}
