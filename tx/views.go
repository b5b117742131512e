// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tx

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ciphrex/vaultd/store"
)

// ConfirmedTxView is one row of spec §6's ConfirmedTxView: a transaction
// this vault knows about, joined with the block that confirms it.
type ConfirmedTxView struct {
	TxHash      chainhash.Hash
	BlockHash   chainhash.Hash
	BlockHeight int32
}

// ConfirmedTxs lists every StatusConfirmed transaction in the store, the
// ConfirmedTxView spec §6 describes.
func ConfirmedTxs(storeTx *store.Tx) ([]ConfirmedTxView, error) {
	var out []ConfirmedTxView
	err := storeTx.ScanBucket(store.BucketTx, func(e store.Entry) (bool, error) {
		r, err := Decode(e.Value)
		if err != nil {
			return false, err
		}
		if r.Status != StatusConfirmed || r.BlockHash == nil {
			return true, nil
		}
		out = append(out, ConfirmedTxView{
			TxHash:      r.Hash,
			BlockHash:   *r.BlockHash,
			BlockHeight: r.BlockHeight,
		})
		return true, nil
	})
	return out, err
}

// Balance computes BalanceView spec §6 describes over scriptHashes (every
// signing script belonging to one account, typically): the sum of
// StatusConfirmed outputs with at least minConf confirmations (using
// bestHeight, from merkle.BestHeight) goes to confirmed, everything else
// still spendable (StatusUnconfirmed outputs, or StatusConfirmed outputs
// short of minConf) goes to unconfirmed. Outputs already claimed by a
// recorded spend, or belonging to a StatusCancelled/StatusConflicting
// transaction, are excluded entirely.
func Balance(storeTx *store.Tx, scriptHashes [][20]byte, minConf int, bestHeight int32) (confirmed, unconfirmed int64, err error) {
	for _, sh := range scriptHashes {
		outs, err := OutputsByScript(storeTx, sh)
		if err != nil {
			return 0, 0, err
		}
		for _, o := range outs {
			if _, spent, err := SpenderOf(storeTx, o.TxHash, o.Index); err != nil {
				return 0, 0, err
			} else if spent {
				continue
			}

			r, err := Get(storeTx, o.TxHash)
			if err != nil {
				return 0, 0, err
			}
			if r.Status == StatusCancelled || r.Status == StatusConflicting {
				continue
			}
			value := r.Outputs[o.Index].Value

			if r.Status == StatusConfirmed && int(bestHeight-r.BlockHeight+1) >= minConf {
				confirmed += value
			} else {
				unconfirmed += value
			}
		}
	}
	return confirmed, unconfirmed, nil
}
