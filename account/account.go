// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package account implements the Account and AccountBin entities (spec §3,
// §4.3): an M-of-N multisig policy over a set of keychains, subdivided into
// named bins (each bin owning its own signing-script derivation index
// space, e.g. "@default" for receiving and "@change" for change outputs).
package account

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"strings"

	"golang.org/x/crypto/ripemd160"

	"github.com/ciphrex/vaultd/internal/framing"
	"github.com/ciphrex/vaultd/internal/verr"
)

// DefaultBinName and ChangeBinName are the two bins every account is
// created with, matching the original vault's convention of a reserved
// receiving and change bin (original_source CoinQ_vault.h's
// DEFAULT_BIN_NAME/CHANGE_BIN_NAME). Bin index 0 is forbidden; @change
// occupies index 1 and @default index 2, so any custom bin starts at 3.
const (
	ChangeBinName  = "@change"
	DefaultBinName = "@default"

	changeBinID  = 1
	defaultBinID = 2
)

// DefaultPoolSize is how many UNUSED signing scripts a bin is kept stocked
// with when an account doesn't request a different unused_pool_size.
const DefaultPoolSize = 25

// Bin is one derivation-index subspace within an Account.
type Bin struct {
	ID   uint32
	Name string

	// NextScriptIndex is the lookahead cursor: the next derivation index
	// this bin will issue a signing script at.
	NextScriptIndex uint32
}

// Account is an M-of-N multisig policy over an ordered set of keychain
// hashes, subdivided into Bins.
type Account struct {
	ID      uint64
	Name    string
	MinSigs int

	// KeychainHashes is kept sorted lexicographically so Hash (and
	// redeem-script pubkey ordering, see signingscript.BuildRedeemScript)
	// never depends on the order keychains were added in, per spec §8's
	// "account hash is order-independent" testable property.
	KeychainHashes [][20]byte

	Bins []*Bin

	// PoolSize is this account's unused_pool_size: how many UNUSED signing
	// scripts the lookahead refill algorithm (signingscript.EnsureLookahead)
	// keeps in reserve per bin.
	PoolSize int

	// Hash identifies this account's policy independent of Name, the same
	// way keychain.Keychain.Hash does for a keychain. Computed as
	// RIPEMD160(SHA256(minsigs_byte || sort(keychain_hashes))) — derived
	// from policy only, never from Name, per spec §3/§8.2.
	Hash [20]byte

	// TimeCreated is the Unix time this account was created, the basis for
	// HorizonTimestampView: the earliest time any of this vault's accounts
	// could have received a payment, and so how far back a client needs to
	// rescan the chain.
	TimeCreated int64
}

func isReservedBinName(name string) bool { return strings.HasPrefix(name, "@") }

func validateAccountName(name string) error {
	if name == "" {
		return verr.Newf(verr.NameInvalid, "account name must not be empty")
	}
	return nil
}

func validateBinName(name string, allowReserved bool) error {
	if name == "" {
		return verr.Newf(verr.NameInvalid, "bin name must not be empty")
	}
	if !allowReserved && isReservedBinName(name) {
		return verr.Newf(verr.NameInvalid, "bin name %q must not start with '@'", name)
	}
	return nil
}

func sortedHashes(hashes [][20]byte) [][20]byte {
	out := make([][20]byte, len(hashes))
	copy(out, hashes)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// computeHash derives an account's policy hash as
// RIPEMD160(SHA256(minsigs_byte || sort(keychain_hashes))), independent of
// name so two accounts naming the same cosigner set are recognized as the
// same policy regardless of display name or the order keychains were added
// in (spec §3, §8.2). hashes must already be sorted.
func computeHash(minSigs int, hashes [][20]byte) [20]byte {
	sha := sha256.New()
	sha.Write([]byte{byte(minSigs)})
	for _, hh := range hashes {
		sha.Write(hh[:])
	}

	r := ripemd160.New()
	r.Write(sha.Sum(nil))
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

// New creates a new Account with the given M-of-N multisig policy over
// keychainHashes (the identity hashes of each participating keychain's
// root, from keychain.Keychain.Hash), pre-populated with the two reserved
// bins every account gets. minSigs must be between 1 and len(keychainHashes)
// inclusive. timeCreated is the Unix time of creation (the caller's clock,
// not this package's — see tx.Insert's firstSeen parameter for the same
// convention), recorded for HorizonTimestampView. poolSize is this
// account's unused_pool_size; pass 0 to use DefaultPoolSize.
func New(name string, keychainHashes [][20]byte, minSigs int, timeCreated int64, poolSize int) (*Account, error) {
	if err := validateAccountName(name); err != nil {
		return nil, err
	}
	n := len(keychainHashes)
	if n == 0 || minSigs < 1 || minSigs > n {
		return nil, verr.Newf(verr.AccountPolicyInvalid, "minSigs=%d of %d keychains", minSigs, n)
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	sorted := sortedHashes(keychainHashes)
	a := &Account{
		Name:           name,
		MinSigs:        minSigs,
		KeychainHashes: sorted,
		Bins: []*Bin{
			{ID: changeBinID, Name: ChangeBinName},
			{ID: defaultBinID, Name: DefaultBinName},
		},
		PoolSize:    poolSize,
		TimeCreated: timeCreated,
	}
	a.Hash = computeHash(minSigs, sorted)
	return a, nil
}

// AddBin creates a new, non-reserved bin in this account, returning
// verr.NameAlreadyExists if one with this name already exists.
func (a *Account) AddBin(name string) (*Bin, error) {
	if err := validateBinName(name, false); err != nil {
		return nil, err
	}
	for _, b := range a.Bins {
		if b.Name == name {
			return nil, verr.Newf(verr.NameAlreadyExists, "bin %q", name)
		}
	}
	maxID := uint32(0)
	for _, b := range a.Bins {
		if b.ID >= maxID {
			maxID = b.ID + 1
		}
	}
	bin := &Bin{ID: maxID, Name: name}
	a.Bins = append(a.Bins, bin)
	return bin, nil
}

// Bin looks up a bin by name.
func (a *Account) Bin(name string) (*Bin, error) {
	for _, b := range a.Bins {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, verr.Newf(verr.NotFound, "bin %q", name)
}

// Rename changes this account's display name. The account's Hash, being
// derived from policy rather than name, is unaffected — two Account values
// with the same keychains/minSigs but different names are still recognized
// as the same underlying policy via Hash, mirroring keychain.Keychain.
func (a *Account) Rename(name string) error {
	if err := validateAccountName(name); err != nil {
		return err
	}
	a.Name = name
	return nil
}

// Encode serializes an Account (without its bins' runtime cursors, which
// the store package tracks separately) to the framed binary format used
// for both store persistence and account export (spec §6).
func (a *Account) Encode() []byte {
	w := framing.NewWriter()
	w.PutString(a.Name)
	w.PutUint32(uint32(a.MinSigs))
	w.PutUint32(uint32(len(a.KeychainHashes)))
	for _, h := range a.KeychainHashes {
		w.PutFixed(h[:])
	}
	w.PutFixed(a.Hash[:])
	w.PutUint32(uint32(len(a.Bins)))
	for _, b := range a.Bins {
		w.PutUint32(b.ID)
		w.PutString(b.Name)
		w.PutUint32(b.NextScriptIndex)
	}
	w.PutInt64(a.TimeCreated)
	w.PutUint32(uint32(a.PoolSize))
	return w.Bytes()
}

// Decode parses an Account previously produced by Encode.
func Decode(buf []byte) (*Account, error) {
	r := framing.NewReader(buf)
	name, err := r.String()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	minSigs, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	nHashes, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	hashes := make([][20]byte, nHashes)
	for i := range hashes {
		h, err := r.Fixed(20)
		if err != nil {
			return nil, verr.Wrap(verr.SerializationError, err)
		}
		copy(hashes[i][:], h)
	}
	hash, err := r.Fixed(20)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	nBins, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	bins := make([]*Bin, nBins)
	for i := range bins {
		id, err := r.Uint32()
		if err != nil {
			return nil, verr.Wrap(verr.SerializationError, err)
		}
		bname, err := r.String()
		if err != nil {
			return nil, verr.Wrap(verr.SerializationError, err)
		}
		next, err := r.Uint32()
		if err != nil {
			return nil, verr.Wrap(verr.SerializationError, err)
		}
		bins[i] = &Bin{ID: id, Name: bname, NextScriptIndex: next}
	}
	timeCreated, err := r.Int64()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	poolSize, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	if !r.Done() {
		return nil, verr.Wrap(verr.SerializationError, framing.ErrTrailingData)
	}

	a := &Account{
		Name:           name,
		MinSigs:        int(minSigs),
		KeychainHashes: hashes,
		Bins:           bins,
		PoolSize:       int(poolSize),
		TimeCreated:    timeCreated,
	}
	copy(a.Hash[:], hash)
	return a, nil
}
