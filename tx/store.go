// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tx

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ciphrex/vaultd/internal/framing"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/store"
)

// Encode serializes a Record to the framed binary format for persistence.
func (r *Record) Encode() []byte {
	w := framing.NewWriter()
	w.PutFixed(r.Hash[:])
	w.PutFixed(r.UnsignedHash[:])
	w.PutUint32(uint32(r.Version))
	w.PutUint32(r.LockTime)

	w.PutUint32(uint32(len(r.Inputs)))
	for _, in := range r.Inputs {
		w.PutFixed(in.PrevOutHash[:])
		w.PutUint32(in.PrevOutIndex)
		w.PutUint32(in.Sequence)
		w.PutBytes(in.ScriptSig)
	}

	w.PutUint32(uint32(len(r.Outputs)))
	for _, out := range r.Outputs {
		w.PutInt64(out.Value)
		w.PutBytes(out.PkScript)
		w.PutBool(out.ScriptHash != nil)
		if out.ScriptHash != nil {
			w.PutFixed(out.ScriptHash[:])
		}
		w.PutBool(out.IsChange)
	}

	w.PutUint8(uint8(r.Status))
	w.PutBool(r.BlockHash != nil)
	if r.BlockHash != nil {
		w.PutFixed(r.BlockHash[:])
	}
	w.PutUint32(uint32(r.BlockHeight))
	w.PutInt64(r.Fee)
	w.PutInt64(r.FirstSeen)
	return w.Bytes()
}

// Decode parses a Record previously produced by Encode.
func Decode(buf []byte) (*Record, error) {
	r := framing.NewReader(buf)
	wrap := func(err error) error {
		if err != nil {
			return verr.Wrap(verr.SerializationError, err)
		}
		return nil
	}

	rec := &Record{}
	h, err := r.Fixed(32)
	if err := wrap(err); err != nil {
		return nil, err
	}
	copy(rec.Hash[:], h)
	uh, err := r.Fixed(32)
	if err := wrap(err); err != nil {
		return nil, err
	}
	copy(rec.UnsignedHash[:], uh)

	version, err := r.Uint32()
	if err := wrap(err); err != nil {
		return nil, err
	}
	rec.Version = int32(version)
	rec.LockTime, err = r.Uint32()
	if err := wrap(err); err != nil {
		return nil, err
	}

	nIn, err := r.Uint32()
	if err := wrap(err); err != nil {
		return nil, err
	}
	rec.Inputs = make([]TxIn, nIn)
	for i := range rec.Inputs {
		ph, err := r.Fixed(32)
		if err := wrap(err); err != nil {
			return nil, err
		}
		copy(rec.Inputs[i].PrevOutHash[:], ph)
		rec.Inputs[i].PrevOutIndex, err = r.Uint32()
		if err := wrap(err); err != nil {
			return nil, err
		}
		rec.Inputs[i].Sequence, err = r.Uint32()
		if err := wrap(err); err != nil {
			return nil, err
		}
		rec.Inputs[i].ScriptSig, err = r.Bytes()
		if err := wrap(err); err != nil {
			return nil, err
		}
	}

	nOut, err := r.Uint32()
	if err := wrap(err); err != nil {
		return nil, err
	}
	rec.Outputs = make([]TxOut, nOut)
	for i := range rec.Outputs {
		rec.Outputs[i].Value, err = r.Int64()
		if err := wrap(err); err != nil {
			return nil, err
		}
		rec.Outputs[i].PkScript, err = r.Bytes()
		if err := wrap(err); err != nil {
			return nil, err
		}
		hasHash, err := r.Bool()
		if err := wrap(err); err != nil {
			return nil, err
		}
		if hasHash {
			hb, err := r.Fixed(20)
			if err := wrap(err); err != nil {
				return nil, err
			}
			var sh [20]byte
			copy(sh[:], hb)
			rec.Outputs[i].ScriptHash = &sh
		}
		rec.Outputs[i].IsChange, err = r.Bool()
		if err := wrap(err); err != nil {
			return nil, err
		}
	}

	statusByte, err := r.Uint8()
	if err := wrap(err); err != nil {
		return nil, err
	}
	rec.Status = Status(statusByte)

	hasBlock, err := r.Bool()
	if err := wrap(err); err != nil {
		return nil, err
	}
	if hasBlock {
		bh, err := r.Fixed(32)
		if err := wrap(err); err != nil {
			return nil, err
		}
		var blockHash chainhash.Hash
		copy(blockHash[:], bh)
		rec.BlockHash = &blockHash
	}
	height, err := r.Uint32()
	if err := wrap(err); err != nil {
		return nil, err
	}
	rec.BlockHeight = int32(height)
	rec.Fee, err = r.Int64()
	if err := wrap(err); err != nil {
		return nil, err
	}
	rec.FirstSeen, err = r.Int64()
	if err := wrap(err); err != nil {
		return nil, err
	}
	if !r.Done() {
		return nil, verr.Wrap(verr.SerializationError, framing.ErrTrailingData)
	}
	return rec, nil
}

// Put persists r and updates the outpoint-spend index for each of its
// inputs, the tx-by-script index for each of its outputs that pays one of
// this vault's signing scripts, and the block index if confirmed.
func Put(tx *store.Tx, r *Record) error {
	if err := tx.Put(store.BucketTx, r.Hash[:], r.Encode()); err != nil {
		return err
	}
	for _, in := range r.Inputs {
		spendKey := outpointKey(in.PrevOutHash, in.PrevOutIndex)
		if err := tx.Put(store.BucketOutpointSpend, spendKey, r.Hash[:]); err != nil {
			return err
		}
	}
	for i, out := range r.Outputs {
		if out.ScriptHash == nil {
			continue
		}
		k := scriptTxOutKey(*out.ScriptHash, r.Hash, uint32(i))
		if err := tx.Put(store.BucketScriptTxOut, k, []byte{1}); err != nil {
			return err
		}
	}
	if r.BlockHash != nil {
		if err := tx.Put(store.BucketTxBlock, r.Hash[:], r.BlockHash[:]); err != nil {
			return err
		}
	}
	return nil
}

// Get loads the Record with the given hash.
func Get(tx *store.Tx, hash chainhash.Hash) (*Record, error) {
	buf, err := tx.Get(store.BucketTx, hash[:])
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Delete removes a Record and every index entry Put created for it.
func Delete(tx *store.Tx, r *Record) error {
	for _, in := range r.Inputs {
		spendKey := outpointKey(in.PrevOutHash, in.PrevOutIndex)
		spender, err := tx.Get(store.BucketOutpointSpend, spendKey)
		if err == nil && r.Hash.IsEqual(hashFromBytes(spender)) {
			if err := tx.Delete(store.BucketOutpointSpend, spendKey); err != nil {
				return err
			}
		}
	}
	for i, out := range r.Outputs {
		if out.ScriptHash == nil {
			continue
		}
		k := scriptTxOutKey(*out.ScriptHash, r.Hash, uint32(i))
		if err := tx.Delete(store.BucketScriptTxOut, k); err != nil {
			return err
		}
	}
	if err := tx.Delete(store.BucketTxBlock, r.Hash[:]); err != nil {
		return err
	}
	return tx.Delete(store.BucketTx, r.Hash[:])
}

func hashFromBytes(b []byte) *chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], b)
	return &h
}

func outpointKey(hash chainhash.Hash, index uint32) []byte {
	k := make([]byte, 36)
	copy(k[:32], hash[:])
	k[32] = byte(index >> 24)
	k[33] = byte(index >> 16)
	k[34] = byte(index >> 8)
	k[35] = byte(index)
	return k
}

func scriptTxOutKey(scriptHash [20]byte, txHash chainhash.Hash, index uint32) []byte {
	k := make([]byte, 56)
	copy(k[:20], scriptHash[:])
	copy(k[20:52], txHash[:])
	k[52] = byte(index >> 24)
	k[53] = byte(index >> 16)
	k[54] = byte(index >> 8)
	k[55] = byte(index)
	return k
}

// SpenderOf returns the hash of the transaction, if any, already recorded
// as spending (hash, index), and ok=false if no transaction spends it yet.
func SpenderOf(storeTx *store.Tx, hash chainhash.Hash, index uint32) (chainhash.Hash, bool, error) {
	buf, err := storeTx.Get(store.BucketOutpointSpend, outpointKey(hash, index))
	if err != nil {
		if k, ok := verr.Of(err); ok && k == verr.NotFound {
			return chainhash.Hash{}, false, nil
		}
		return chainhash.Hash{}, false, err
	}
	return *hashFromBytes(buf), true, nil
}

// OutputsByScript returns every (txHash, index) pair recorded as paying
// scriptHash, for BalanceView/TxOutView computation.
func OutputsByScript(storeTx *store.Tx, scriptHash [20]byte) ([]struct {
	TxHash chainhash.Hash
	Index  uint32
}, error) {
	var out []struct {
		TxHash chainhash.Hash
		Index  uint32
	}
	err := storeTx.ScanPrefix(store.BucketScriptTxOut, scriptHash[:], func(e store.Entry) (bool, error) {
		if len(e.Key) != 56 {
			return true, nil
		}
		var h chainhash.Hash
		copy(h[:], e.Key[20:52])
		idx := uint32(e.Key[52])<<24 | uint32(e.Key[53])<<16 | uint32(e.Key[54])<<8 | uint32(e.Key[55])
		out = append(out, struct {
			TxHash chainhash.Hash
			Index  uint32
		}{h, idx})
		return true, nil
	})
	return out, err
}
