// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tx

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/ciphrex/vaultd/store"
)

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func coinbaseLike(value int64) *wire.MsgTx {
	msgTx := wire.NewMsgTx(1)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, []byte{0x51}, nil))
	msgTx.AddTxOut(wire.NewTxOut(value, []byte{0x51}))
	return msgTx
}

func spending(prev *wire.MsgTx, outIndex uint32, value int64, pkScript []byte) *wire.MsgTx {
	prevHash := prev.TxHash()
	msgTx := wire.NewMsgTx(1)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: prevHash, Index: outIndex}, nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(value, pkScript))
	return msgTx
}

func TestInsertComputesFeeFromKnownInputs(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	funding := coinbaseLike(100000)
	fundRes, err := Insert(storeTx, funding, 1000, ConflictNewerLoses)
	require.NoError(t, err)
	require.True(t, fundRes.IsNew)
	require.Equal(t, int64(-1), fundRes.Record.Fee) // coinbase-like input is unknown to us

	spender := spending(funding, 0, 90000, []byte{0x51})
	spendRes, err := Insert(storeTx, spender, 1001, ConflictNewerLoses)
	require.NoError(t, err)
	require.Equal(t, int64(10000), spendRes.Record.Fee)
	require.Equal(t, StatusUnconfirmed, spendRes.Record.Status)
}

func TestInsertRejectsExactDuplicate(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	msgTx := coinbaseLike(1000)
	_, err = Insert(storeTx, msgTx, 1, ConflictNewerLoses)
	require.NoError(t, err)

	_, err = Insert(storeTx, msgTx, 2, ConflictNewerLoses)
	require.Error(t, err)
}

func TestInsertDetectsConflictNewerLoses(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	funding := coinbaseLike(100000)
	_, err = Insert(storeTx, funding, 1, ConflictNewerLoses)
	require.NoError(t, err)

	a := spending(funding, 0, 90000, []byte{0x51})
	resA, err := Insert(storeTx, a, 2, ConflictNewerLoses)
	require.NoError(t, err)
	require.Equal(t, StatusUnconfirmed, resA.Record.Status)

	b := spending(funding, 0, 80000, []byte{0x52}) // different output, same input -> conflicts with a
	resB, err := Insert(storeTx, b, 3, ConflictNewerLoses)
	require.NoError(t, err)
	require.Len(t, resB.Conflicts, 1)
	require.Equal(t, StatusConflicting, resB.Record.Status)

	reloadedA, err := Get(storeTx, a.TxHash())
	require.NoError(t, err)
	require.Equal(t, StatusUnconfirmed, reloadedA.Status) // a is untouched, newer (b) loses
}

func TestInsertDetectsConflictOlderLoses(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	funding := coinbaseLike(100000)
	_, err = Insert(storeTx, funding, 1, ConflictOlderLoses)
	require.NoError(t, err)

	a := spending(funding, 0, 90000, []byte{0x51})
	_, err = Insert(storeTx, a, 2, ConflictOlderLoses)
	require.NoError(t, err)

	b := spending(funding, 0, 80000, []byte{0x52})
	resB, err := Insert(storeTx, b, 3, ConflictOlderLoses)
	require.NoError(t, err)
	require.Equal(t, StatusUnconfirmed, resB.Record.Status)

	reloadedA, err := Get(storeTx, a.TxHash())
	require.NoError(t, err)
	require.Equal(t, StatusConflicting, reloadedA.Status) // a is older, it loses
}

func TestCancelThenResurrect(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	msgTx := coinbaseLike(1000)
	res, err := Insert(storeTx, msgTx, 1, ConflictNewerLoses)
	require.NoError(t, err)

	require.NoError(t, Cancel(storeTx, res.Record.Hash))
	cancelled, err := Get(storeTx, res.Record.Hash)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	require.NoError(t, Resurrect(storeTx, res.Record.Hash))
	resurrected, err := Get(storeTx, res.Record.Hash)
	require.NoError(t, err)
	require.Equal(t, StatusUnconfirmed, resurrected.Status)
}

func TestCancelRejectsConfirmed(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	msgTx := coinbaseLike(1000)
	res, err := Insert(storeTx, msgTx, 1, ConflictNewerLoses)
	require.NoError(t, err)

	r, err := Get(storeTx, res.Record.Hash)
	require.NoError(t, err)
	r.Status = StatusConfirmed
	require.NoError(t, Put(storeTx, r))

	require.Error(t, Cancel(storeTx, res.Record.Hash))
}

func TestDeleteCascadeRemovesDescendants(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	funding := coinbaseLike(100000)
	resF, err := Insert(storeTx, funding, 1, ConflictNewerLoses)
	require.NoError(t, err)

	spend := spending(funding, 0, 90000, []byte{0x51})
	resS, err := Insert(storeTx, spend, 2, ConflictNewerLoses)
	require.NoError(t, err)

	removed, err := DeleteCascade(storeTx, resF.Record.Hash)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{resS.Record.Hash.String(), resF.Record.Hash.String()},
		[]string{removed[0].String(), removed[1].String()})

	_, err = Get(storeTx, resF.Record.Hash)
	require.Error(t, err)
	_, err = Get(storeTx, resS.Record.Hash)
	require.Error(t, err)
}

func TestConfirmedTxsView(t *testing.T) {
	db := openTestStore(t)
	storeTx, err := db.Begin()
	require.NoError(t, err)
	defer storeTx.Discard()

	msgTx := coinbaseLike(1000)
	res, err := Insert(storeTx, msgTx, 1, ConflictNewerLoses)
	require.NoError(t, err)

	views, err := ConfirmedTxs(storeTx)
	require.NoError(t, err)
	require.Empty(t, views)

	r, err := Get(storeTx, res.Record.Hash)
	require.NoError(t, err)
	blockHash := r.Hash // any distinct 32-byte value stands in for a block hash here
	r.Status = StatusConfirmed
	r.BlockHash = &blockHash
	r.BlockHeight = 10
	require.NoError(t, Put(storeTx, r))

	views, err = ConfirmedTxs(storeTx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, int32(10), views[0].BlockHeight)
}
