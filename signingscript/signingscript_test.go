// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signingscript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testPubKey(b byte) []byte {
	pk := make([]byte, 33)
	pk[0] = 0x02
	for i := 1; i < 33; i++ {
		pk[i] = b
	}
	return pk
}

// TestNewDeterministicAcrossPubKeyOrder is spec §8's Testable Property:
// the same set of pubkeys produces the same redeem script (and hash)
// regardless of the order they're supplied in.
func TestNewDeterministicAcrossPubKeyOrder(t *testing.T) {
	pk1, pk2, pk3 := testPubKey(1), testPubKey(2), testPubKey(3)

	a, err := New(1, 0, 0, [][]byte{pk1, pk2, pk3}, 2)
	require.NoError(t, err)
	b, err := New(1, 0, 0, [][]byte{pk3, pk1, pk2}, 2)
	require.NoError(t, err)

	require.Equal(t, a.RedeemScript, b.RedeemScript)
	require.Equal(t, a.Hash160, b.Hash160)
	require.Equal(t, a.PubKeys, b.PubKeys)
}

func TestNewRejectsInvalidThreshold(t *testing.T) {
	pk := testPubKey(1)
	_, err := New(1, 0, 0, [][]byte{pk}, 0)
	require.Error(t, err)

	_, err = New(1, 0, 0, [][]byte{pk}, 2)
	require.Error(t, err)

	_, err = New(1, 0, 0, nil, 1)
	require.Error(t, err)
}

func TestStatusTransitionLattice(t *testing.T) {
	require.True(t, StatusUnused.CanTransitionTo(StatusIssued))
	require.True(t, StatusUnused.CanTransitionTo(StatusUsed))
	require.True(t, StatusIssued.CanTransitionTo(StatusChange))
	require.True(t, StatusIssued.CanTransitionTo(StatusUsed))
	require.False(t, StatusIssued.CanTransitionTo(StatusUnused))
	require.False(t, StatusChange.CanTransitionTo(StatusUsed))
	require.False(t, StatusUsed.CanTransitionTo(StatusChange))
}

func TestMarkIssuedThenExhausted(t *testing.T) {
	s, err := New(1, 0, 0, [][]byte{testPubKey(1), testPubKey(2)}, 1)
	require.NoError(t, err)

	require.NoError(t, s.MarkIssued())
	require.Equal(t, StatusIssued, s.Status)

	err = s.MarkIssued()
	require.Error(t, err)
}

func TestObserveIsIdempotentAndGuardsTerminal(t *testing.T) {
	s, err := New(1, 0, 0, [][]byte{testPubKey(1), testPubKey(2)}, 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkIssued())

	require.NoError(t, s.Observe(true))
	require.Equal(t, StatusChange, s.Status)
	require.NoError(t, s.Observe(true)) // idempotent

	err = s.Observe(false)
	require.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s, err := New(7, 2, 3, [][]byte{testPubKey(1), testPubKey(2), testPubKey(3)}, 2)
	require.NoError(t, err)
	require.NoError(t, s.MarkIssued())

	decoded, err := Decode(s.Encode())
	require.NoError(t, err)
	require.Equal(t, s.AccountID, decoded.AccountID)
	require.Equal(t, s.BinID, decoded.BinID)
	require.Equal(t, s.Index, decoded.Index)
	require.Equal(t, s.PubKeys, decoded.PubKeys)
	require.Equal(t, s.MinSigs, decoded.MinSigs)
	require.Equal(t, s.RedeemScript, decoded.RedeemScript)
	require.Equal(t, s.Hash160, decoded.Hash160)
	require.Equal(t, s.Status, decoded.Status)
}
