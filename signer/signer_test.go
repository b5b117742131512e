// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/ciphrex/vaultd/signingscript"
)

func testPrivKey(b byte) *secp256k1.PrivateKey {
	var scalar [32]byte
	scalar[31] = b + 1 // avoid the zero scalar
	priv := secp256k1.PrivKeyFromBytes(scalar[:])
	return priv
}

func twoOfTwoScript(t *testing.T) (*signingscript.Script, *secp256k1.PrivateKey, *secp256k1.PrivateKey) {
	t.Helper()
	priv1, priv2 := testPrivKey(1), testPrivKey(2)
	pub1 := priv1.PubKey().SerializeCompressed()
	pub2 := priv2.PubKey().SerializeCompressed()

	s, err := signingscript.New(1, 0, 0, [][]byte{pub1, pub2}, 2)
	require.NoError(t, err)
	return s, priv1, priv2
}

func testSpendTx(script *signingscript.Script) *wire.MsgTx {
	msgTx := wire.NewMsgTx(1)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}, nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	return msgTx
}

func TestSignThenVerifyRoundTrip(t *testing.T) {
	script, priv1, _ := twoOfTwoScript(t)
	msgTx := testSpendTx(script)

	sig, err := Sign(msgTx, 0, script.RedeemScript, DefaultHashType, priv1)
	require.NoError(t, err)

	ok, err := verify(nil, msgTx, 0, script.RedeemScript, sig, priv1.PubKey().SerializeCompressed())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSessionCompleteAndFinalize(t *testing.T) {
	script, priv1, priv2 := twoOfTwoScript(t)
	msgTx := testSpendTx(script)
	unsignedHash := msgTx.TxHash()

	session := NewSession(unsignedHash, []*signingscript.Script{script})
	require.False(t, session.Complete())

	sig1, err := Sign(msgTx, 0, script.RedeemScript, DefaultHashType, priv1)
	require.NoError(t, err)
	require.NoError(t, session.AddSignature(nil, msgTx, 0, priv1.PubKey().SerializeCompressed(), sig1))
	require.False(t, session.Complete())

	sig2, err := Sign(msgTx, 0, script.RedeemScript, DefaultHashType, priv2)
	require.NoError(t, err)
	require.NoError(t, session.AddSignature(nil, msgTx, 0, priv2.PubKey().SerializeCompressed(), sig2))
	require.True(t, session.Complete())

	require.NoError(t, session.Finalize(msgTx))
	require.NotEmpty(t, msgTx.TxIn[0].SignatureScript)

	// the assembled scriptSig must push OP_0 (OP_CHECKMULTISIG's quirk),
	// exactly MinSigs signatures each verifying against the redeem script,
	// then the redeem script itself.
	pushes, err := txscript.PushedData(msgTx.TxIn[0].SignatureScript)
	require.NoError(t, err)
	require.Len(t, pushes, 1+script.MinSigs+1)
	require.Empty(t, pushes[0])
	require.Equal(t, script.RedeemScript, pushes[len(pushes)-1])

	pubKeys := []*secp256k1.PrivateKey{priv1, priv2}
	for i := 0; i < script.MinSigs; i++ {
		sig := pushes[1+i]
		verified := false
		for _, priv := range pubKeys {
			if ok, _ := verify(nil, msgTx, 0, script.RedeemScript, sig, priv.PubKey().SerializeCompressed()); ok {
				verified = true
				break
			}
		}
		require.True(t, verified, "signature %d must verify against one of the cosigners", i)
	}
}

func TestAddSignatureRejectsInvalidSig(t *testing.T) {
	script, priv1, _ := twoOfTwoScript(t)
	msgTx := testSpendTx(script)
	session := NewSession(msgTx.TxHash(), []*signingscript.Script{script})

	garbage := make([]byte, 65)
	garbage[64] = byte(DefaultHashType)
	err := session.AddSignature(nil, msgTx, 0, priv1.PubKey().SerializeCompressed(), garbage)
	require.Error(t, err)
}

func TestAddSignatureRejectsConflictingSlot(t *testing.T) {
	script, priv1, _ := twoOfTwoScript(t)
	msgTx := testSpendTx(script)
	session := NewSession(msgTx.TxHash(), []*signingscript.Script{script})

	sig1, err := Sign(msgTx, 0, script.RedeemScript, DefaultHashType, priv1)
	require.NoError(t, err)

	// plant a different signature bytes in this pubkey's slot directly,
	// standing in for whatever a co-signer might have already recorded
	// there, then try to record a genuinely different signature over it.
	key := hex.EncodeToString(priv1.PubKey().SerializeCompressed())
	planted := append([]byte{}, sig1...)
	planted[0] ^= 0xff
	session.Inputs[0].Sigs[key] = planted

	err = session.AddSignature(nil, msgTx, 0, priv1.PubKey().SerializeCompressed(), sig1)
	require.Error(t, err)
}

func TestMergeRejectsDifferentTransaction(t *testing.T) {
	script, _, _ := twoOfTwoScript(t)
	a := NewSession(chainhash.Hash{1}, []*signingscript.Script{script})
	b := NewSession(chainhash.Hash{2}, []*signingscript.Script{script})
	require.Error(t, a.Merge(b))
}

func TestFinalizeRejectsInsufficientSignatures(t *testing.T) {
	script, priv1, _ := twoOfTwoScript(t)
	msgTx := testSpendTx(script)
	session := NewSession(msgTx.TxHash(), []*signingscript.Script{script})

	sig1, err := Sign(msgTx, 0, script.RedeemScript, DefaultHashType, priv1)
	require.NoError(t, err)
	require.NoError(t, session.AddSignature(nil, msgTx, 0, priv1.PubKey().SerializeCompressed(), sig1))

	require.Error(t, session.Finalize(msgTx))
}
