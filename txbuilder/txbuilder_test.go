// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txbuilder

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func candidate(hashSeed byte, index uint32, value int64, blockHeight int32, txIndex int) Candidate {
	var h chainhash.Hash
	h[0] = hashSeed
	return Candidate{TxHash: h, Index: index, Value: value, BlockHeight: blockHeight, TxIndex: txIndex}
}

func TestSortForSelectionOrdersConfirmedOldestFirst(t *testing.T) {
	unconfirmed := candidate(1, 0, 1000, 0, 0)
	older := candidate(2, 0, 1000, 100, 0)
	newer := candidate(3, 0, 1000, 200, 0)

	sorted := sortForSelection([]Candidate{unconfirmed, newer, older})
	require.Equal(t, older.TxHash, sorted[0].TxHash)
	require.Equal(t, newer.TxHash, sorted[1].TxHash)
	require.Equal(t, unconfirmed.TxHash, sorted[2].TxHash)
}

func TestSelectAccumulatesUntilCoveringTotalPlusFee(t *testing.T) {
	candidates := []Candidate{
		candidate(1, 0, 50000, 100, 0),
		candidate(2, 0, 50000, 101, 0),
		candidate(3, 0, 50000, 102, 0),
	}
	recipients := []Recipient{{PkScript: []byte{0x51}, Value: 90000}}

	sel, err := Select(candidates, recipients, []byte{0x52}, RedeemScriptLenFor(2, 2), 2, 10, 0)
	require.NoError(t, err)
	require.Len(t, sel.Inputs, 2) // first two 50k inputs should cover 90k + fee
	require.Greater(t, sel.Fee, int64(0))
}

func TestSelectFoldsDustChangeIntoFee(t *testing.T) {
	candidates := []Candidate{candidate(1, 0, 90400, 100, 0)}
	recipients := []Recipient{{PkScript: []byte{0x51}, Value: 90000}}

	sel, err := Select(candidates, recipients, []byte{0x52}, RedeemScriptLenFor(2, 2), 2, 1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), sel.Change)
	require.Equal(t, int64(400), sel.Fee)
}

func TestSelectReturnsInsufficientFunds(t *testing.T) {
	candidates := []Candidate{candidate(1, 0, 100, 100, 0)}
	recipients := []Recipient{{PkScript: []byte{0x51}, Value: 90000}}

	_, err := Select(candidates, recipients, []byte{0x52}, RedeemScriptLenFor(2, 2), 2, 1, 0)
	require.Error(t, err)
}

func TestBuildUnsignedIncludesChangeOnlyWhenPositive(t *testing.T) {
	sel := &SelectionResult{
		Inputs: []Candidate{candidate(1, 0, 100000, 100, 0)},
		Change: 5000,
		Fee:    1000,
	}
	recipients := []Recipient{{PkScript: []byte{0x51}, Value: 94000}}

	msgTx := BuildUnsigned(sel, recipients, []byte{0x52}, 0)
	require.Len(t, msgTx.TxIn, 1)
	require.Len(t, msgTx.TxOut, 2)
	require.Equal(t, int64(5000), msgTx.TxOut[1].Value)

	sel.Change = 0
	msgTx = BuildUnsigned(sel, recipients, []byte{0x52}, 0)
	require.Len(t, msgTx.TxOut, 1)
}

func TestConsolidationBatchesSplitsOnSize(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 50; i++ {
		candidates = append(candidates, candidate(byte(i+1), 0, 1000, int32(100+i), 0))
	}

	batches := ConsolidationBatches(candidates, RedeemScriptLenFor(2, 2), 2, 2000)
	require.Greater(t, len(batches), 1)

	var total int
	for _, b := range batches {
		total += len(b)
		require.LessOrEqual(t, estimateSize(len(b), 1, RedeemScriptLenFor(2, 2), 2), int64(2000))
	}
	require.Equal(t, 50, total)
}
