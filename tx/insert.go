// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tx

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/ciphrex/vaultd/account"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/signingscript"
	"github.com/ciphrex/vaultd/store"
)

// InsertResult reports what insert_tx did, for the vault facade's
// notification hooks (spec §6: subscribers are told when a tx is newly
// inserted, updated, or found conflicting).
type InsertResult struct {
	Record    *Record
	IsNew     bool // false if this replaced an existing less-signed version
	Conflicts []Record
}

// matchOutputs annotates r's outputs that pay a signing script this vault
// issued, and transitions each matched script to CHANGE if it belongs to
// the @change bin, or to USED otherwise.
func matchOutputs(storeTx *store.Tx, r *Record) error {
	for i := range r.Outputs {
		hash, ok := extractP2SHHash160(r.Outputs[i].PkScript)
		if !ok {
			continue
		}
		script, err := signingscript.GetByHash(storeTx, hash)
		if err != nil {
			if k, isVerr := verr.Of(err); isVerr && k == verr.NotFound {
				continue // pays an address we don't recognize
			}
			return err
		}

		hashCopy := hash
		r.Outputs[i].ScriptHash = &hashCopy

		bin, acct, err := lookupBin(storeTx, script.AccountID, script.BinID)
		if err != nil {
			return err
		}
		isChange := bin.Name == account.ChangeBinName
		r.Outputs[i].IsChange = isChange
		_ = acct

		if err := script.Observe(isChange); err != nil {
			return err
		}
		if err := signingscript.Put(storeTx, script); err != nil {
			return err
		}
	}
	return nil
}

func lookupBin(storeTx *store.Tx, accountID uint64, binID uint32) (*account.Bin, *account.Account, error) {
	a, err := account.Get(storeTx, accountID)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range a.Bins {
		if b.ID == binID {
			return b, a, nil
		}
	}
	return nil, nil, verr.Newf(verr.NotFound, "bin %d on account %q", binID, a.Name)
}

// computeFee sums known input values against output values, returning -1
// (meaning "unknown") if any input spends an outpoint this vault hasn't
// recorded the value of.
func computeFee(storeTx *store.Tx, r *Record) int64 {
	var inTotal int64
	for _, in := range r.Inputs {
		prev, err := Get(storeTx, in.PrevOutHash)
		if err != nil {
			return -1
		}
		if int(in.PrevOutIndex) >= len(prev.Outputs) {
			return -1
		}
		inTotal += prev.Outputs[in.PrevOutIndex].Value
	}
	var outTotal int64
	for _, out := range r.Outputs {
		outTotal += out.Value
	}
	fee := inTotal - outTotal
	if fee < 0 {
		return -1
	}
	return fee
}

// detectConflicts finds every already-stored, non-cancelled transaction
// that spends an outpoint r also spends, other than r itself (relevant on a
// re-insert of an already-known tx hash).
func detectConflicts(storeTx *store.Tx, r *Record) ([]Record, error) {
	var conflicts []Record
	seen := map[chainhash.Hash]bool{}
	for _, in := range r.Inputs {
		spenderHash, ok, err := SpenderOf(storeTx, in.PrevOutHash, in.PrevOutIndex)
		if err != nil {
			return nil, err
		}
		if !ok || spenderHash.IsEqual(&r.Hash) || seen[spenderHash] {
			continue
		}
		other, err := Get(storeTx, spenderHash)
		if err != nil {
			if k, isVerr := verr.Of(err); isVerr && k == verr.NotFound {
				continue
			}
			return nil, err
		}
		if other.Status == StatusCancelled {
			continue
		}
		seen[spenderHash] = true
		conflicts = append(conflicts, *other)
	}
	return conflicts, nil
}

// Insert runs the insert_tx pipeline (spec §4.5) against msgTx: dedupes
// against an existing less-signed version of the same logical transaction
// (matched by unsigned hash), matches outputs against this vault's signing
// scripts, detects and resolves conflicts per policy, computes fee, and
// persists the result.
func Insert(storeTx *store.Tx, msgTx *wire.MsgTx, firstSeen int64, policy ConflictPolicy) (*InsertResult, error) {
	if err := validateConflictPolicy(policy); err != nil {
		return nil, err
	}
	r := FromWire(msgTx, firstSeen)

	if existing, err := Get(storeTx, r.Hash); err == nil {
		_ = existing
		return nil, verr.Newf(verr.TxAlreadyExists, "%s", r.Hash)
	} else if k, isVerr := verr.Of(err); !isVerr || k != verr.NotFound {
		return nil, err
	}

	isNew := true
	if err := storeTx.ScanPrefix(store.BucketTx, nil, func(e store.Entry) (bool, error) {
		other, derr := Decode(e.Value)
		if derr != nil {
			return false, derr
		}
		if other.UnsignedHash == r.UnsignedHash && other.Hash != r.Hash {
			r.Status = other.Status
			r.BlockHash = other.BlockHash
			r.BlockHeight = other.BlockHeight
			r.FirstSeen = other.FirstSeen
			if err := Delete(storeTx, other); err != nil {
				return false, err
			}
			isNew = false
			return false, nil
		}
		return true, nil
	}); err != nil {
		return nil, err
	}

	if err := matchOutputs(storeTx, r); err != nil {
		return nil, err
	}

	conflicts, err := detectConflicts(storeTx, r)
	if err != nil {
		return nil, err
	}

	if len(conflicts) > 0 {
		switch policy {
		case ConflictNewerLoses:
			r.Status = StatusConflicting
		case ConflictOlderLoses:
			for i := range conflicts {
				conflicts[i].Status = StatusConflicting
				if err := Put(storeTx, &conflicts[i]); err != nil {
					return nil, err
				}
			}
		}
	}

	r.Fee = computeFee(storeTx, r)

	if err := Put(storeTx, r); err != nil {
		return nil, err
	}

	return &InsertResult{Record: r, IsNew: isNew, Conflicts: conflicts}, nil
}
