// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2020 The Decred developers
// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sigcache implements a bounded verification cache for ECDSA
// signatures over SIGHASH_ALL digests.
//
// The signing protocol re-validates every signature slot of a redeem script
// each time a partially-signed transaction is merged with another copy
// carrying additional signatures (§4.6): co-signers round-trip the same
// unsigned_hash back and forth, so the same (sighash, pubkey, signature)
// triple is re-verified repeatedly. SigCache trades that repeated elliptic
// curve verification for a single map lookup after the first check.
package sigcache

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// entry represents one verified (sighash, signature, pubkey) triple.
type entry struct {
	sig    *ecdsa.Signature
	pubKey *secp256k1.PublicKey
}

// SigCache is an ECDSA signature verification cache with a randomized entry
// eviction policy. Only signatures that have already been proven to verify
// are ever added to it, so a cache hit can always skip the curve operation
// entirely.
type SigCache struct {
	mu         sync.RWMutex
	validSigs  map[chainhash.Hash]entry
	maxEntries uint
}

// New creates a SigCache that holds at most maxEntries verified signatures.
// Once full, Add evicts a random existing entry to make room; the order of
// Go's map iteration supplies the randomness, which is adequate here since
// an adversary able to choose what gets evicted would first need a preimage
// attack on sigHash.
func New(maxEntries uint) *SigCache {
	return &SigCache{
		validSigs:  make(map[chainhash.Hash]entry, maxEntries),
		maxEntries: maxEntries,
	}
}

// Exists reports whether sig over sigHash by pubKey has already been proven
// to verify.
func (s *SigCache) Exists(sigHash chainhash.Hash, sig *ecdsa.Signature, pubKey *secp256k1.PublicKey) bool {
	s.mu.RLock()
	e, ok := s.validSigs[sigHash]
	s.mu.RUnlock()

	return ok && e.pubKey.IsEqual(pubKey) && e.sig.IsEqual(sig)
}

// Add records that sig over sigHash by pubKey has verified. Callers must
// only call Add after an actual ecdsa.Verify success; SigCache performs no
// verification of its own.
func (s *SigCache) Add(sigHash chainhash.Hash, sig *ecdsa.Signature, pubKey *secp256k1.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxEntries == 0 {
		return
	}

	if uint(len(s.validSigs)+1) > s.maxEntries {
		for k := range s.validSigs {
			delete(s.validSigs, k)
			break
		}
	}
	s.validSigs[sigHash] = entry{sig: sig, pubKey: pubKey}
}

// Len returns the number of entries currently cached.
func (s *SigCache) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.validSigs)
}
