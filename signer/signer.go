// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package signer implements the multi-party P2SH multisig signing protocol
// (spec §4.6): computing the SIGHASH_ALL digest for each input against its
// redeem script, signing with a locally-held private key, and merging
// signatures collected from independent co-signers (each holding a
// different subset of the account's keychains) into a single valid
// scriptSig once enough signatures exist to satisfy a script's M-of-N
// threshold.
package signer

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/ciphrex/vaultd/internal/sigcache"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/signingscript"
)

// DefaultHashType is the only sighash type this vault issues or accepts;
// spec §4.8 names SIGHASH_ALL as the sole supported type, so any other
// value observed while merging is rejected with
// verr.UnsupportedSigHashType.
const DefaultHashType = txscript.SigHashAll

// SigHash computes the signature digest for input idx of msgTx, signed
// over redeemScript (a P2SH input's sighash is computed against its
// redeem script standing in for a scriptPubKey, per BIP16).
func SigHash(msgTx *wire.MsgTx, idx int, redeemScript []byte, hashType txscript.SigHashType) (chainhash.Hash, error) {
	if hashType != DefaultHashType {
		return chainhash.Hash{}, verr.Newf(verr.UnsupportedSigHashType, "%d", hashType)
	}
	digest, err := txscript.CalcSignatureHash(redeemScript, hashType, msgTx, idx)
	if err != nil {
		return chainhash.Hash{}, verr.Wrap(verr.SerializationError, err)
	}
	var h chainhash.Hash
	copy(h[:], digest)
	return h, nil
}

// Sign computes one ECDSA signature for input idx of msgTx under redeemScript,
// appending the sighash type byte as required for inclusion in a
// scriptSig.
func Sign(msgTx *wire.MsgTx, idx int, redeemScript []byte, hashType txscript.SigHashType, priv *secp256k1.PrivateKey) ([]byte, error) {
	digest, err := SigHash(msgTx, idx, redeemScript, hashType)
	if err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(priv, digest[:])
	der := sig.Serialize()
	return append(der, byte(hashType)), nil
}

// verify checks sig (DER plus trailing sighash-type byte) against msgTx's
// input idx signed by pubKey, consulting and populating cache.
func verify(cache *sigcache.SigCache, msgTx *wire.MsgTx, idx int, redeemScript []byte, sig, pubKeyBytes []byte) (bool, error) {
	if len(sig) < 1 {
		return false, nil
	}
	hashType := txscript.SigHashType(sig[len(sig)-1])
	digest, err := SigHash(msgTx, idx, redeemScript, hashType)
	if err != nil {
		return false, err
	}

	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, verr.Wrap(verr.SignatureInvalid, err)
	}
	parsedSig, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return false, verr.Wrap(verr.SignatureInvalid, err)
	}

	if cache != nil && cache.Exists(digest, parsedSig, pubKey) {
		return true, nil
	}
	if !parsedSig.Verify(digest[:], pubKey) {
		return false, nil
	}
	if cache != nil {
		cache.Add(digest, parsedSig, pubKey)
	}
	return true, nil
}

// InputSigs accumulates signatures collected so far for one multisig
// input, keyed by the hex-encoded compressed pubkey that produced each.
type InputSigs struct {
	Script *signingscript.Script
	Sigs   map[string][]byte
}

// Session tracks in-progress signature collection across every input of a
// single unsigned transaction, identified by its unsigned hash so two
// Sessions for the same logical transaction (held by different co-signers)
// can be recognized and merged.
type Session struct {
	UnsignedHash chainhash.Hash
	Inputs       []*InputSigs
}

// NewSession starts a signing session for the transaction identified by
// unsignedHash, whose input i spends scripts[i].
func NewSession(unsignedHash chainhash.Hash, scripts []*signingscript.Script) *Session {
	s := &Session{UnsignedHash: unsignedHash}
	s.Inputs = make([]*InputSigs, len(scripts))
	for i, sc := range scripts {
		s.Inputs[i] = &InputSigs{Script: sc, Sigs: make(map[string][]byte)}
	}
	return s
}

// AddSignature verifies sig for input idx under pubKey and, if valid,
// records it. Returns verr.SignatureInvalid if the signature does not
// verify, and verr.SignatureSlotOccupied if a different signature was
// already recorded for this pubKey on this input (a co-signer should never
// produce two different signatures for the same digest and key).
func (s *Session) AddSignature(cache *sigcache.SigCache, msgTx *wire.MsgTx, idx int, pubKey, sig []byte) error {
	if idx < 0 || idx >= len(s.Inputs) {
		return verr.Newf(verr.NotFound, "input %d", idx)
	}
	in := s.Inputs[idx]

	ok, err := verify(cache, msgTx, idx, in.Script.RedeemScript, sig, pubKey)
	if err != nil {
		return err
	}
	if !ok {
		return verr.New(verr.SignatureInvalid)
	}

	key := hex.EncodeToString(pubKey)
	if existing, present := in.Sigs[key]; present && hex.EncodeToString(existing) != hex.EncodeToString(sig) {
		return verr.New(verr.SignatureSlotOccupied)
	}
	in.Sigs[key] = sig
	return nil
}

// Merge unions the signatures held by other into s, input by input.
// Returns an error if other is not a session for the same logical
// transaction.
func (s *Session) Merge(other *Session) error {
	if s.UnsignedHash != other.UnsignedHash {
		return verr.New(verr.TxConflict)
	}
	if len(s.Inputs) != len(other.Inputs) {
		return verr.New(verr.TxConflict)
	}
	for i, in := range s.Inputs {
		for pk, sig := range other.Inputs[i].Sigs {
			if existing, present := in.Sigs[pk]; present && hex.EncodeToString(existing) != hex.EncodeToString(sig) {
				return verr.New(verr.SignatureSlotOccupied)
			}
			in.Sigs[pk] = sig
		}
	}
	return nil
}

// Complete reports whether every input has collected at least its script's
// MinSigs signatures.
func (s *Session) Complete() bool {
	for _, in := range s.Inputs {
		if len(in.Sigs) < in.Script.MinSigs {
			return false
		}
	}
	return true
}

// Finalize builds the final scriptSig for every input and sets it on
// msgTx, returning verr.TxStillUnsigned if any input lacks enough
// signatures. Signatures are ordered to match the pubkey order baked into
// each input's redeem script, as OP_CHECKMULTISIG requires.
func (s *Session) Finalize(msgTx *wire.MsgTx) error {
	if len(msgTx.TxIn) != len(s.Inputs) {
		return verr.New(verr.TxConflict)
	}
	for i, in := range s.Inputs {
		if len(in.Sigs) < in.Script.MinSigs {
			return verr.Newf(verr.TxStillUnsigned, "input %d has %d/%d signatures", i, len(in.Sigs), in.Script.MinSigs)
		}

		b := txscript.NewScriptBuilder()
		b.AddOp(txscript.OP_0) // OP_CHECKMULTISIG's off-by-one extra-pop quirk
		used := 0
		for _, pk := range in.Script.PubKeys {
			sig, ok := in.Sigs[hex.EncodeToString(pk)]
			if !ok {
				continue
			}
			b.AddData(sig)
			used++
			if used == in.Script.MinSigs {
				break
			}
		}
		b.AddData(in.Script.RedeemScript)
		scriptSig, err := b.Script()
		if err != nil {
			return verr.Wrap(verr.SerializationError, err)
		}
		msgTx.TxIn[i].SignatureScript = scriptSig
	}
	return nil
}
