// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package account

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciphrex/vaultd/store"
)

func testHashes(bs ...byte) [][20]byte {
	out := make([][20]byte, len(bs))
	for i, b := range bs {
		for j := range out[i] {
			out[i][j] = b
		}
	}
	return out
}

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestHashOrderIndependent is spec §8's Testable Property: two accounts
// naming the same cosigner set in a different order must hash identically.
func TestHashOrderIndependent(t *testing.T) {
	a, err := New("a", testHashes(1, 2, 3), 2, 1000, 0)
	require.NoError(t, err)
	b, err := New("a", testHashes(3, 1, 2), 2, 1000, 0)
	require.NoError(t, err)
	require.Equal(t, a.Hash, b.Hash)
}

func TestNewRejectsInvalidMinSigs(t *testing.T) {
	_, err := New("a", testHashes(1, 2), 0, 0, 0)
	require.Error(t, err)

	_, err = New("a", testHashes(1, 2), 3, 0, 0)
	require.Error(t, err)

	_, err = New("a", nil, 1, 0, 0)
	require.Error(t, err)
}

func TestNewHasReservedBins(t *testing.T) {
	a, err := New("a", testHashes(1), 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, a.Bins, 2)
	require.Equal(t, DefaultPoolSize, a.PoolSize)

	def, err := a.Bin(DefaultBinName)
	require.NoError(t, err)
	require.Equal(t, uint32(defaultBinID), def.ID)

	chg, err := a.Bin(ChangeBinName)
	require.NoError(t, err)
	require.Equal(t, uint32(changeBinID), chg.ID)
}

func TestNewHonorsCustomPoolSize(t *testing.T) {
	a, err := New("a", testHashes(1), 1, 0, 5)
	require.NoError(t, err)
	require.Equal(t, 5, a.PoolSize)
}

func TestAddBinRejectsDuplicateName(t *testing.T) {
	a, err := New("a", testHashes(1), 1, 0, 0)
	require.NoError(t, err)

	_, err = a.AddBin("savings")
	require.NoError(t, err)
	require.Equal(t, uint32(3), a.Bins[2].ID)

	_, err = a.AddBin("savings")
	require.Error(t, err)

	_, err = a.AddBin("@reserved")
	require.Error(t, err)
}

func TestRenameDoesNotChangeHash(t *testing.T) {
	a, err := New("a", testHashes(1, 2), 1, 0, 0)
	require.NoError(t, err)
	before := a.Hash

	require.NoError(t, a.Rename("b"))
	require.Equal(t, before, a.Hash)
	require.Equal(t, "b", a.Name)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a, err := New("a", testHashes(1, 2, 3), 2, 12345, 10)
	require.NoError(t, err)
	a.ID = 7
	_, err = a.AddBin("savings")
	require.NoError(t, err)

	decoded, err := Decode(a.Encode())
	require.NoError(t, err)
	require.Equal(t, a.Name, decoded.Name)
	require.Equal(t, a.MinSigs, decoded.MinSigs)
	require.Equal(t, a.KeychainHashes, decoded.KeychainHashes)
	require.Equal(t, a.Hash, decoded.Hash)
	require.Equal(t, a.PoolSize, decoded.PoolSize)
	require.Equal(t, a.TimeCreated, decoded.TimeCreated)
	require.Len(t, decoded.Bins, 3)
}

func TestCreateGetByNameAndRename(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	a, err := New("checking", testHashes(1, 2), 1, 500, 0)
	require.NoError(t, err)

	id, err := Create(storeTx, a)
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)

	dup, err := New("checking", testHashes(3), 1, 500, 0)
	require.NoError(t, err)
	_, err = Create(storeTx, dup)
	require.Error(t, err)

	fetched, err := GetByName(storeTx, "checking")
	require.NoError(t, err)
	require.Equal(t, a.Hash, fetched.Hash)

	require.NoError(t, Rename(storeTx, id, "savings"))
	_, err = GetByName(storeTx, "checking")
	require.Error(t, err)
	fetched, err = GetByName(storeTx, "savings")
	require.NoError(t, err)
	require.Equal(t, "savings", fetched.Name)
}

func TestHorizonTimestamp(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	_, ok, err := HorizonTimestamp(storeTx)
	require.NoError(t, err)
	require.False(t, ok)

	a1, err := New("a1", testHashes(1), 1, 2000, 0)
	require.NoError(t, err)
	_, err = Create(storeTx, a1)
	require.NoError(t, err)

	a2, err := New("a2", testHashes(2), 1, 1000, 0)
	require.NoError(t, err)
	_, err = Create(storeTx, a2)
	require.NoError(t, err)

	ts, ok, err := HorizonTimestamp(storeTx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1000), ts)
}
