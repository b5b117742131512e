// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hdkeychain

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160"
)

// hash160 computes RIPEMD160(SHA256(buf)), used for BIP32 fingerprints.
func hash160(buf []byte) []byte {
	sum := sha256.Sum256(buf)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

// doubleHash computes SHA256(SHA256(buf)), used for extended-key checksums.
func doubleHash(buf []byte) []byte {
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return second[:]
}
