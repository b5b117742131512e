// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signingscript

import (
	"github.com/ciphrex/vaultd/account"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/keychain"
	"github.com/ciphrex/vaultd/store"
)

// DefaultLookahead is how many UNUSED scripts a bin keeps in reserve ahead
// of its next-to-issue index, so a burst of get_new_signingscript calls (or
// an SPV rescan discovering a gap) never blocks on derivation. This is the
// fallback used when an account's own unused_pool_size (account.Account.
// PoolSize) is unset; callers normally pass that value instead.
const DefaultLookahead = account.DefaultPoolSize

// BinPath returns the derivation path below each participating keychain
// that this bin's scripts are derived along: a single extra level keyed by
// the bin's ID, so "@default" and "@change" (and any user-created bin)
// occupy disjoint, deterministic subtrees of every keychain.
func BinPath(bin *account.Bin) []uint32 { return []uint32{bin.ID} }

// deriveScript builds the Script at (a, bin, index) by deriving a pubkey
// from every keychain in a along bin's path.
func deriveScript(a *account.Account, bin *account.Bin, index uint32, keychains []*keychain.Keychain) (*Script, error) {
	if len(keychains) != len(a.KeychainHashes) {
		return nil, verr.Newf(verr.AccountPolicyInvalid, "account %q needs %d keychains, got %d", a.Name, len(a.KeychainHashes), len(keychains))
	}
	path := BinPath(bin)
	pubKeys := make([][]byte, len(keychains))
	for i, kc := range keychains {
		pk, err := kc.SigningPubKey(path, index)
		if err != nil {
			return nil, err
		}
		pubKeys[i] = pk
	}
	return New(a.ID, bin.ID, index, pubKeys, a.MinSigs)
}

// EnsureLookahead issues and persists UNUSED scripts for bin until at least
// lookahead of them exist past the highest already-issued (non-UNUSED)
// index, without disturbing any script already issued. It is idempotent:
// calling it repeatedly with nothing new to do is a cheap no-op.
func EnsureLookahead(tx *store.Tx, a *account.Account, bin *account.Bin, keychains []*keychain.Keychain, lookahead int) error {
	existing, err := ListByBin(tx, a.ID, bin.ID)
	if err != nil {
		return err
	}

	nextIndex := uint32(0)
	pastIssued := uint32(0) // one past the highest non-UNUSED index
	for _, s := range existing {
		if s.Status != StatusUnused && s.Index >= pastIssued {
			pastIssued = s.Index + 1
		}
		if s.Index >= nextIndex {
			nextIndex = s.Index + 1
		}
	}
	unusedCount := int(nextIndex - pastIssued)

	for unusedCount < lookahead {
		s, err := deriveScript(a, bin, nextIndex, keychains)
		if err != nil {
			return err
		}
		if err := Put(tx, s); err != nil {
			return err
		}
		nextIndex++
		unusedCount++
	}
	return nil
}

// GetNew issues the lowest-index UNUSED script in bin, marks it ISSUED,
// persists it, tops the lookahead back up, and returns it. Returns
// verr.ScriptPoolExhausted if, surprisingly, no UNUSED script is available
// (EnsureLookahead should always be called first to prevent this).
func GetNew(tx *store.Tx, a *account.Account, bin *account.Bin, keychains []*keychain.Keychain, lookahead int) (*Script, error) {
	existing, err := ListByBin(tx, a.ID, bin.ID)
	if err != nil {
		return nil, err
	}

	var issue *Script
	for _, s := range existing {
		if s.Status == StatusUnused && (issue == nil || s.Index < issue.Index) {
			issue = s
		}
	}
	if issue == nil {
		return nil, verr.New(verr.ScriptPoolExhausted)
	}

	if err := issue.MarkIssued(); err != nil {
		return nil, err
	}
	if err := Put(tx, issue); err != nil {
		return nil, err
	}
	if err := EnsureLookahead(tx, a, bin, keychains, lookahead); err != nil {
		return nil, err
	}
	return issue, nil
}
