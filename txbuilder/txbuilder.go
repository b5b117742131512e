// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txbuilder implements coin selection and unsigned transaction
// construction (spec §4.7): create_tx's UTXO selection and change-output
// logic, and consolidate_tx_outs's batching of a bin's UTXOs into
// size-bounded sweep transactions.
package txbuilder

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/store"
	"github.com/ciphrex/vaultd/tx"
)

// Candidate is one spendable UTXO this vault controls, as coin selection
// sees it.
type Candidate struct {
	TxHash      chainhash.Hash
	Index       uint32
	Value       int64
	PkScript    []byte
	BlockHeight int32 // 0 if unconfirmed
	TxIndex     int   // position within its block, for deterministic ordering
}

// Recipient is one payment destination for create_tx.
type Recipient struct {
	PkScript []byte
	Value    int64
}

// SelectionResult is the outcome of coin selection: the inputs chosen, the
// change amount (0 if none), and the fee actually paid.
type SelectionResult struct {
	Inputs []Candidate
	Change int64
	Fee    int64
}

// sortForSelection orders candidates oldest-first by (block height, tx
// index), unconfirmed coins last, matching spec §4.7's
// consolidate_tx_outs ordering so selection is deterministic and prefers
// settling old coins first.
func sortForSelection(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i], out[j]
		iConfirmed, jConfirmed := ci.BlockHeight > 0, cj.BlockHeight > 0
		if iConfirmed != jConfirmed {
			return iConfirmed // confirmed coins sort before unconfirmed
		}
		if ci.BlockHeight != cj.BlockHeight {
			return ci.BlockHeight < cj.BlockHeight
		}
		if ci.TxIndex != cj.TxIndex {
			return ci.TxIndex < cj.TxIndex
		}
		return ci.Index < cj.Index
	})
	return out
}

// estimateSize approximates a transaction's serialized size for fee
// computation: a fixed overhead plus a conservative per-input cost for a
// P2SH multisig scriptSig (OP_0 <sig>*minSigs <redeemScript>) and a fixed
// per-output cost.
func estimateSize(numInputs, numOutputs int, redeemScriptLen, minSigs int) int64 {
	const overhead = 10
	const perOutput = 34
	perInput := 41 + 1 + minSigs*73 + redeemScriptLen + 3
	return int64(overhead + numInputs*perInput + numOutputs*perOutput)
}

// Select runs coin selection for a payment to recipients totaling their
// sum, from candidates (already filtered to one bin/account's UTXOs by the
// caller), paying changeScript (a freshly issued change signing script's
// P2SH output) for any leftover. feeRate is in satoshis per byte.
//
// Selection is oldest-first (see sortForSelection): candidates are added in
// that order until the accumulated value covers recipients' total plus the
// estimated fee, minimizing how many additional, potentially eventually
// timed-out UTXOs a later consolidation would need to deal with.
func Select(candidates []Candidate, recipients []Recipient, changeScript []byte, redeemScriptLen, minSigs int, feeRate int64, minFee int64) (*SelectionResult, error) {
	var total int64
	for _, r := range recipients {
		total += r.Value
	}

	ordered := sortForSelection(candidates)

	var chosen []Candidate
	var chosenTotal int64
	for _, c := range ordered {
		chosen = append(chosen, c)
		chosenTotal += c.Value

		numOutputs := len(recipients) + 1 // + change
		fee := estimateSize(len(chosen), numOutputs, redeemScriptLen, minSigs) * feeRate
		if fee < minFee {
			fee = minFee
		}
		if chosenTotal >= total+fee {
			change := chosenTotal - total - fee
			// Recompute fee without the change output if it would be dust,
			// folding the leftover into the fee instead of creating an
			// uneconomical output.
			if change > 0 && change < 546 {
				feeNoChange := estimateSize(len(chosen), numOutputs-1, redeemScriptLen, minSigs) * feeRate
				if feeNoChange < minFee {
					feeNoChange = minFee
				}
				if chosenTotal >= total+feeNoChange {
					return &SelectionResult{Inputs: chosen, Change: 0, Fee: chosenTotal - total}, nil
				}
				continue
			}
			return &SelectionResult{Inputs: chosen, Change: change, Fee: fee}, nil
		}
	}

	return nil, verr.New(verr.InsufficientFunds)
}

// BuildUnsigned assembles an unsigned wire.MsgTx from a SelectionResult and
// the recipient/change outputs, with empty SignatureScripts ready for the
// signer package to fill in.
func BuildUnsigned(sel *SelectionResult, recipients []Recipient, changeScript []byte, lockTime uint32) *wire.MsgTx {
	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.LockTime = lockTime
	for _, c := range sel.Inputs {
		txIn := wire.NewTxIn(&wire.OutPoint{Hash: c.TxHash, Index: c.Index}, nil, nil)
		msgTx.AddTxIn(txIn)
	}
	for _, r := range recipients {
		msgTx.AddTxOut(wire.NewTxOut(r.Value, r.PkScript))
	}
	if sel.Change > 0 {
		msgTx.AddTxOut(wire.NewTxOut(sel.Change, changeScript))
	}
	return msgTx
}

// maxStandardTxSize bounds a single consolidation transaction the same way
// spec §4.7's consolidate_tx_outs does, so a bin with thousands of tiny
// UTXOs is swept in several transactions rather than one oversized one.
const maxStandardTxSize = 100000

// ConsolidationBatches partitions candidates (oldest-first) into groups
// that each stay under maxTxSize once built into a sweep transaction paying
// a single destinationScript, for consolidate_tx_outs.
func ConsolidationBatches(candidates []Candidate, redeemScriptLen, minSigs int, maxTxSize int64) [][]Candidate {
	if maxTxSize <= 0 || maxTxSize > maxStandardTxSize {
		maxTxSize = maxStandardTxSize
	}
	ordered := sortForSelection(candidates)

	var batches [][]Candidate
	var cur []Candidate
	for _, c := range ordered {
		trial := append(append([]Candidate{}, cur...), c)
		if estimateSize(len(trial), 1, redeemScriptLen, minSigs) > maxTxSize && len(cur) > 0 {
			batches = append(batches, cur)
			cur = []Candidate{c}
			continue
		}
		cur = trial
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// CandidatesForScript loads every unspent, non-cancelled, non-conflicting
// output this vault recorded as paying scriptHash.
func CandidatesForScript(storeTx *store.Tx, scriptHash [20]byte) ([]Candidate, error) {
	outs, err := tx.OutputsByScript(storeTx, scriptHash)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, o := range outs {
		if _, spent, err := tx.SpenderOf(storeTx, o.TxHash, o.Index); err != nil {
			return nil, err
		} else if spent {
			continue
		}
		r, err := tx.Get(storeTx, o.TxHash)
		if err != nil {
			return nil, err
		}
		if r.Status == tx.StatusCancelled || r.Status == tx.StatusConflicting {
			continue
		}
		out = append(out, Candidate{
			TxHash:      o.TxHash,
			Index:       o.Index,
			Value:       r.Outputs[o.Index].Value,
			PkScript:    r.Outputs[o.Index].PkScript,
			BlockHeight: r.BlockHeight,
		})
	}
	return out, nil
}

// RedeemScriptLenFor reports the length of a freshly built M-of-N redeem
// script for estimating fees before any script has actually been derived:
// 1 (OP_m) + n*(1+33) (push + compressed pubkey) + 1 (OP_n) + 1
// (OP_CHECKMULTISIG).
func RedeemScriptLenFor(pubKeyCount, minSigs int) int {
	return 3 + pubKeyCount*34
}
