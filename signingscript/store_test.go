// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signingscript

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciphrex/vaultd/account"
	"github.com/ciphrex/vaultd/chaincfg"
	"github.com/ciphrex/vaultd/keychain"
	"github.com/ciphrex/vaultd/store"
)

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testKeychain(t *testing.T, seedByte byte) *keychain.Keychain {
	t.Helper()
	entropy := make([]byte, 32)
	for i := range entropy {
		entropy[i] = seedByte
	}
	kc, err := keychain.NewRoot("m", entropy, chaincfg.MainNetParams())
	require.NoError(t, err)
	return kc
}

func TestPutGetByHashAndBinIndex(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	s, err := New(1, 0, 0, [][]byte{testPubKey(1), testPubKey(2)}, 1)
	require.NoError(t, err)
	require.NoError(t, Put(storeTx, s))

	byHash, err := GetByHash(storeTx, s.Hash160)
	require.NoError(t, err)
	require.Equal(t, s.Hash160, byHash.Hash160)

	byIndex, err := GetByBinIndex(storeTx, 1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, s.Hash160, byIndex.Hash160)
}

func TestEnsureLookaheadThenGetNewRefills(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	kcs := []*keychain.Keychain{testKeychain(t, 1), testKeychain(t, 2)}
	hashes := [][20]byte{kcs[0].Hash, kcs[1].Hash}
	a, err := account.New("a", hashes, 2, 0, 0)
	require.NoError(t, err)
	bin, err := a.Bin(account.DefaultBinName)
	require.NoError(t, err)

	require.NoError(t, EnsureLookahead(storeTx, a, bin, kcs, 3))
	counts, err := Counts(storeTx, a.ID, bin.ID)
	require.NoError(t, err)
	require.Equal(t, 3, counts.Unused)

	issued, err := GetNew(storeTx, a, bin, kcs, 3)
	require.NoError(t, err)
	require.Equal(t, uint32(0), issued.Index)
	require.Equal(t, StatusIssued, issued.Status)

	counts, err = Counts(storeTx, a.ID, bin.ID)
	require.NoError(t, err)
	require.Equal(t, 3, counts.Unused) // topped back up
	require.Equal(t, 1, counts.Issued)

	scripts, err := ListByBin(storeTx, a.ID, bin.ID)
	require.NoError(t, err)
	require.Len(t, scripts, 4)
}

func TestGetNewExhaustedWithoutLookahead(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	kcs := []*keychain.Keychain{testKeychain(t, 3)}
	a, err := account.New("a", [][20]byte{kcs[0].Hash}, 1, 0, 0)
	require.NoError(t, err)
	bin, err := a.Bin(account.DefaultBinName)
	require.NoError(t, err)

	_, err = GetNew(storeTx, a, bin, kcs, 1)
	require.Error(t, err)
}
