// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package signingscript implements the pool of P2SH multisig signing
// scripts an account bin issues (spec §3, §4.4): deterministic pubkey
// derivation from each participating keychain, OP_M ... OP_N
// OP_CHECKMULTISIG redeem-script construction, and the lookahead refill
// algorithm that keeps a bin stocked with unused scripts.
package signingscript

import (
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160"

	"crypto/sha256"

	"github.com/ciphrex/vaultd/internal/verr"
)

// Status is this script's position in the UNUSED -> ISSUED -> {CHANGE,
// USED} lattice (spec §4.4): a script starts UNUSED, becomes ISSUED when
// handed out as a receiving address, then transitions to either CHANGE (if
// the first transaction observed paying it looks like this vault's own
// change) or USED (once any transaction pays or spends it).
type Status uint8

const (
	StatusUnused Status = iota
	StatusIssued
	StatusChange
	StatusUsed
)

func (s Status) String() string {
	switch s {
	case StatusUnused:
		return "unused"
	case StatusIssued:
		return "issued"
	case StatusChange:
		return "change"
	case StatusUsed:
		return "used"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether the lattice allows moving from s to next.
// UNUSED can go anywhere; ISSUED can resolve to CHANGE or USED; CHANGE and
// USED are terminal (a script already observed on-chain never reverts to
// merely ISSUED).
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusUnused:
		return true
	case StatusIssued:
		return next == StatusChange || next == StatusUsed
	default:
		return false
	}
}

// Script is one P2SH multisig signing script issued by an account bin.
type Script struct {
	AccountID uint64
	BinID     uint32
	Index     uint32

	// PubKeys is the ordered list of public keys used to build
	// RedeemScript, sorted lexicographically so redeem-script bytes (and
	// therefore Hash) are independent of keychain participation order, per
	// spec §8's determinism property.
	PubKeys [][]byte
	MinSigs int

	RedeemScript []byte

	// Hash160 is RIPEMD160(SHA256(RedeemScript)), the P2SH script hash.
	Hash160 [20]byte

	Status Status
}

// sortPubKeys returns pubKeys lexicographically sorted, the canonical order
// this package always stores and builds a redeem script in, per spec §8's
// determinism property.
func sortPubKeys(pubKeys [][]byte) [][]byte {
	sorted := make([][]byte, len(pubKeys))
	copy(sorted, pubKeys)
	sort.Slice(sorted, func(i, j int) bool {
		for k := 0; k < len(sorted[i]) && k < len(sorted[j]); k++ {
			if sorted[i][k] != sorted[j][k] {
				return sorted[i][k] < sorted[j][k]
			}
		}
		return len(sorted[i]) < len(sorted[j])
	})
	return sorted
}

// BuildRedeemScript constructs the `OP_M <pubkeys...> OP_N OP_CHECKMULTISIG`
// redeem script for the given public keys and signature threshold. pubKeys
// must already be in the canonical order sortPubKeys produces — callers
// (New, below) are responsible for sorting once and reusing that order for
// both the script and the Script.PubKeys field that Finalize later walks.
func BuildRedeemScript(pubKeys [][]byte, minSigs int) ([]byte, error) {
	n := len(pubKeys)
	if n == 0 || n > 16 || minSigs < 1 || minSigs > n {
		return nil, verr.Newf(verr.AccountPolicyInvalid, "minSigs=%d of %d pubkeys", minSigs, n)
	}

	b := txscript.NewScriptBuilder()
	b.AddInt64(int64(minSigs))
	for _, pk := range pubKeys {
		b.AddData(pk)
	}
	b.AddInt64(int64(n))
	b.AddOp(txscript.OP_CHECKMULTISIG)
	return b.Script()
}

func hash160(buf []byte) [20]byte {
	sum := sha256.Sum256(buf)
	r := ripemd160.New()
	r.Write(sum[:])
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

// New builds a Script for the given bin at index from pubKeys, one
// already derived from each of the account's keychains at the bin's
// derivation path. Callers
// (the account/vault layer) are responsible for deriving pubKeys via
// keychain.Keychain.SigningPubKey for every participating keychain before
// calling this.
func New(accountID uint64, binID, index uint32, pubKeys [][]byte, minSigs int) (*Script, error) {
	sorted := sortPubKeys(pubKeys)
	redeem, err := BuildRedeemScript(sorted, minSigs)
	if err != nil {
		return nil, err
	}
	return &Script{
		AccountID:    accountID,
		BinID:        binID,
		Index:        index,
		PubKeys:      sorted,
		MinSigs:      minSigs,
		RedeemScript: redeem,
		Hash160:      hash160(redeem),
		Status:       StatusUnused,
	}, nil
}

// MarkIssued transitions an UNUSED script to ISSUED, the state it enters
// when handed out by get_new_signingscript. Returns verr.ScriptPoolExhausted
// if the script is not currently UNUSED — the lookahead refill algorithm in
// pool.go is responsible for guaranteeing an UNUSED script is always
// available before this is called.
func (s *Script) MarkIssued() error {
	if s.Status != StatusUnused {
		return verr.Newf(verr.ScriptPoolExhausted, "script at index %d is %s, not unused", s.Index, s.Status)
	}
	s.Status = StatusIssued
	return nil
}

// Observe transitions the script to CHANGE or USED on first on-chain
// observation. It is idempotent: observing the same terminal status twice
// (e.g. two transactions paying the same address) is not an error.
func (s *Script) Observe(asChange bool) error {
	next := StatusUsed
	if asChange {
		next = StatusChange
	}
	if s.Status == next {
		return nil
	}
	if !s.Status.CanTransitionTo(next) {
		return verr.Newf(verr.SerializationError, "script at index %d cannot move from %s to %s", s.Index, s.Status, next)
	}
	s.Status = next
	return nil
}
