// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tx

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/store"
)

// Cancel marks a transaction StatusCancelled: it is kept in the store for
// historical reference but will never be considered when computing
// balances or conflicts again. Grounded on original_source CoinQ_vault.h's
// cancel_tx, which the distilled spec dropped; useful for a signed-but-
// never-broadcast transaction the user decided against.
func Cancel(storeTx *store.Tx, hash chainhash.Hash) error {
	r, err := Get(storeTx, hash)
	if err != nil {
		return err
	}
	if r.Status == StatusConfirmed {
		return verr.Newf(verr.TxConflict, "%s is already confirmed, cannot cancel", hash)
	}
	r.Status = StatusCancelled
	return Put(storeTx, r)
}

// Resurrect reverses Cancel, restoring a cancelled transaction to
// StatusUnconfirmed so it is considered again for balances and future
// conflict detection. Grounded on original_source CoinQ_vault.h's
// resurrect_tx.
func Resurrect(storeTx *store.Tx, hash chainhash.Hash) error {
	r, err := Get(storeTx, hash)
	if err != nil {
		return err
	}
	if r.Status != StatusCancelled {
		return verr.Newf(verr.TxConflict, "%s is not cancelled", hash)
	}
	r.Status = StatusUnconfirmed
	return Put(storeTx, r)
}

// DeleteCascade removes a transaction and, recursively, every other stored
// transaction that spends one of its outputs (since those would reference
// an outpoint that no longer exists). Returns the hashes of every
// transaction actually removed, descendants first and hash last.
func DeleteCascade(storeTx *store.Tx, hash chainhash.Hash) ([]chainhash.Hash, error) {
	r, err := Get(storeTx, hash)
	if err != nil {
		return nil, err
	}

	var removed []chainhash.Hash
	for i := range r.Outputs {
		spender, ok, err := SpenderOf(storeTx, hash, uint32(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		children, err := DeleteCascade(storeTx, spender)
		if err != nil {
			return nil, err
		}
		removed = append(removed, children...)
	}

	if err := Delete(storeTx, r); err != nil {
		return nil, err
	}
	removed = append(removed, hash)
	return removed, nil
}
