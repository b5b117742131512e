// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package tx implements transaction ingestion and classification (spec §4.5):
// insert_tx's matching of outpoints and signing scripts against what this
// vault already knows, conflict detection, fee computation, and the
// confirmed/unconfirmed/conflicting status lattice a tx moves through as
// merkle blocks attach and detach.
package tx

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ciphrex/vaultd/internal/verr"
)

// Status is where a transaction sits in spec §4.5's status lattice.
type Status uint8

const (
	// StatusUnconfirmed is the initial status of any newly inserted,
	// non-conflicting transaction: known to this vault, not yet linked to
	// a block.
	StatusUnconfirmed Status = iota
	// StatusConfirmed means a merkle block has attached this transaction
	// to the best chain.
	StatusConfirmed
	// StatusConflicting means this transaction spends an outpoint another,
	// surviving transaction also spends; see ConflictPolicy.
	StatusConflicting
	// StatusCancelled means a caller explicitly cancelled this
	// transaction via Cancel (see ops.go). Cancel changes only this status;
	// the signing scripts its outputs pay keep their own status.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusUnconfirmed:
		return "unconfirmed"
	case StatusConfirmed:
		return "confirmed"
	case StatusConflicting:
		return "conflicting"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ConflictPolicy controls what insert_tx does when a newly-seen transaction
// spends an outpoint a previously-stored, non-conflicting transaction also
// spends. See DESIGN.md's Open Question decision: the default is
// ConflictNewerLoses, "last writer loses".
type ConflictPolicy uint8

const (
	// ConflictNewerLoses keeps the previously stored transaction's status
	// and marks the newly inserted transaction StatusConflicting.
	ConflictNewerLoses ConflictPolicy = iota
	// ConflictOlderLoses marks the previously stored transaction
	// StatusConflicting and lets the new transaction stand.
	ConflictOlderLoses
)

// TxOut augments a wire.TxOut with what insert_tx learned about it: whether
// it pays one of this vault's own signing scripts, and if so which one.
type TxOut struct {
	Value      int64
	PkScript   []byte
	ScriptHash *[20]byte // non-nil if PkScript is P2SH to one of our scripts
	IsChange   bool      // true if ScriptHash resolves to a @change-bin script
}

// TxIn records the outpoint a wire.TxIn spends, for conflict detection and
// balance computation, together with its sequence number and the scriptSig
// (signatures included, if any) it carried when inserted.
type TxIn struct {
	PrevOutHash  chainhash.Hash
	PrevOutIndex uint32
	Sequence     uint32
	ScriptSig    []byte
}

// Record is a transaction as this vault has classified it.
type Record struct {
	Hash chainhash.Hash

	// UnsignedHash identifies this transaction independent of which
	// signatures (if any) have been attached to its inputs' scriptSigs, so
	// insert_tx can recognize a more-signed resubmission of a transaction
	// it already has as an update rather than a new, conflicting entry.
	UnsignedHash chainhash.Hash

	Version  int32
	LockTime uint32
	Inputs   []TxIn
	Outputs  []TxOut

	Status Status

	// BlockHash/BlockHeight are populated once Status == StatusConfirmed.
	BlockHash   *chainhash.Hash
	BlockHeight int32

	// Fee is the sum of input values minus output values, in satoshis, or
	// -1 if one or more inputs spend an outpoint this vault doesn't know
	// the value of (an external, non-wallet input).
	Fee int64

	// FirstSeen is a caller-supplied Unix timestamp recorded at insert
	// time.
	FirstSeen int64
}

// unsignedCopy returns tx with every input's SignatureScript and Witness
// cleared, the form whose hash identifies "this transaction" independent of
// how many of the required multisig signatures have been collected so far.
func unsignedCopy(msgTx *wire.MsgTx) *wire.MsgTx {
	cp := msgTx.Copy()
	for _, in := range cp.TxIn {
		in.SignatureScript = nil
		in.Witness = nil
	}
	return cp
}

// FromWire builds a Record from a wire.MsgTx, leaving Status,
// ScriptHash/IsChange annotations, and Fee for insert_tx to fill in.
func FromWire(msgTx *wire.MsgTx, firstSeen int64) *Record {
	r := &Record{
		Hash:         msgTx.TxHash(),
		UnsignedHash: unsignedCopy(msgTx).TxHash(),
		Version:      msgTx.Version,
		LockTime:     msgTx.LockTime,
		Status:       StatusUnconfirmed,
		Fee:          -1,
		FirstSeen:    firstSeen,
	}
	r.Inputs = make([]TxIn, len(msgTx.TxIn))
	for i, in := range msgTx.TxIn {
		r.Inputs[i] = TxIn{
			PrevOutHash:  in.PreviousOutPoint.Hash,
			PrevOutIndex: in.PreviousOutPoint.Index,
			Sequence:     in.Sequence,
			ScriptSig:    in.SignatureScript,
		}
	}
	r.Outputs = make([]TxOut, len(msgTx.TxOut))
	for i, out := range msgTx.TxOut {
		r.Outputs[i] = TxOut{Value: out.Value, PkScript: out.PkScript}
	}
	return r
}

// extractP2SHHash160 returns the 20-byte script hash if pkScript is exactly
// the standard P2SH pattern OP_HASH160 <20 bytes> OP_EQUAL, and ok=false
// otherwise. This vault only ever pays to its own P2SH multisig scripts, so
// it has no need of a general-purpose script classifier.
func extractP2SHHash160(pkScript []byte) (hash [20]byte, ok bool) {
	if len(pkScript) != 23 || pkScript[0] != 0xa9 || pkScript[1] != 0x14 || pkScript[22] != 0x87 {
		return hash, false
	}
	copy(hash[:], pkScript[2:22])
	return hash, true
}

// toWire reconstructs a wire.MsgTx from this Record's inputs and outputs.
func (r *Record) toWire() *wire.MsgTx {
	msgTx := wire.NewMsgTx(r.Version)
	msgTx.LockTime = r.LockTime
	for _, in := range r.Inputs {
		txIn := wire.NewTxIn(&wire.OutPoint{Hash: in.PrevOutHash, Index: in.PrevOutIndex}, in.ScriptSig, nil)
		txIn.Sequence = in.Sequence
		msgTx.AddTxIn(txIn)
	}
	for _, out := range r.Outputs {
		msgTx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}
	return msgTx
}

// SerializeSize returns this transaction's size in bytes as it would be
// broadcast.
func (r *Record) SerializeSize() int { return r.toWire().SerializeSize() }

func validateConflictPolicy(p ConflictPolicy) error {
	if p != ConflictNewerLoses && p != ConflictOlderLoses {
		return verr.Newf(verr.SerializationError, "unknown conflict policy %d", p)
	}
	return nil
}
