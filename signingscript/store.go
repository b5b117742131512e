// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signingscript

import (
	"encoding/binary"

	"github.com/ciphrex/vaultd/internal/framing"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/store"
)

// Encode serializes a Script to the framed binary format for store
// persistence.
func (s *Script) Encode() []byte {
	w := framing.NewWriter()
	w.PutUint64(s.AccountID)
	w.PutUint32(s.BinID)
	w.PutUint32(s.Index)
	w.PutUint32(uint32(len(s.PubKeys)))
	for _, pk := range s.PubKeys {
		w.PutBytes(pk)
	}
	w.PutUint32(uint32(s.MinSigs))
	w.PutBytes(s.RedeemScript)
	w.PutFixed(s.Hash160[:])
	w.PutUint8(uint8(s.Status))
	return w.Bytes()
}

// Decode parses a Script previously produced by Encode.
func Decode(buf []byte) (*Script, error) {
	r := framing.NewReader(buf)
	accountID, err := r.Uint64()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	binID, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	index, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	nPubKeys, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	pubKeys := make([][]byte, nPubKeys)
	for i := range pubKeys {
		pk, err := r.Bytes()
		if err != nil {
			return nil, verr.Wrap(verr.SerializationError, err)
		}
		pubKeys[i] = pk
	}
	minSigs, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	redeem, err := r.Bytes()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	hashBuf, err := r.Fixed(20)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	statusByte, err := r.Uint8()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	if !r.Done() {
		return nil, verr.Wrap(verr.SerializationError, framing.ErrTrailingData)
	}

	s := &Script{
		AccountID: accountID,
		BinID:     binID,
		Index:     index,
		PubKeys:   pubKeys,
		MinSigs:   int(minSigs),
		RedeemScript: redeem,
		Status:    Status(statusByte),
	}
	copy(s.Hash160[:], hashBuf)
	return s, nil
}

func binKey(accountID uint64, binID, index uint32) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], accountID)
	binary.BigEndian.PutUint32(b[8:12], binID)
	binary.BigEndian.PutUint32(b[12:16], index)
	return b
}

// Put persists s, indexed both by its P2SH hash and by (account, bin,
// index) for lookahead scanning.
func Put(tx *store.Tx, s *Script) error {
	if err := tx.Put(store.BucketSigningScript, s.Hash160[:], s.Encode()); err != nil {
		return err
	}
	return tx.Put(store.BucketScriptByBin, binKey(s.AccountID, s.BinID, s.Index), s.Hash160[:])
}

// GetByHash looks up a Script by its P2SH hash160.
func GetByHash(tx *store.Tx, hash160 [20]byte) (*Script, error) {
	buf, err := tx.Get(store.BucketSigningScript, hash160[:])
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// GetByBinIndex looks up the Script issued at a specific (account, bin,
// index), or verr.NotFound if none has been issued there yet.
func GetByBinIndex(tx *store.Tx, accountID uint64, binID, index uint32) (*Script, error) {
	hashBuf, err := tx.Get(store.BucketScriptByBin, binKey(accountID, binID, index))
	if err != nil {
		return nil, err
	}
	var hash [20]byte
	copy(hash[:], hashBuf)
	return GetByHash(tx, hash)
}

// ListByBin returns every Script issued in (accountID, binID), ordered by
// index.
func ListByBin(tx *store.Tx, accountID uint64, binID uint32) ([]*Script, error) {
	prefix := make([]byte, 12)
	binary.BigEndian.PutUint64(prefix[0:8], accountID)
	binary.BigEndian.PutUint32(prefix[8:12], binID)

	var out []*Script
	err := tx.ScanPrefix(store.BucketScriptByBin, prefix, func(e store.Entry) (bool, error) {
		var hash [20]byte
		copy(hash[:], e.Value)
		s, err := GetByHash(tx, hash)
		if err != nil {
			return false, err
		}
		out = append(out, s)
		return true, nil
	})
	return out, err
}

// CountsByBin summarizes how many scripts in (accountID, binID) are in each
// Status, the ScriptCountView spec §6 describes.
type CountsByBin struct {
	Unused, Issued, Change, Used int
}

// Counts computes a CountsByBin for (accountID, binID).
func Counts(tx *store.Tx, accountID uint64, binID uint32) (CountsByBin, error) {
	scripts, err := ListByBin(tx, accountID, binID)
	if err != nil {
		return CountsByBin{}, err
	}
	var c CountsByBin
	for _, s := range scripts {
		switch s.Status {
		case StatusUnused:
			c.Unused++
		case StatusIssued:
			c.Issued++
		case StatusChange:
			c.Change++
		case StatusUsed:
			c.Used++
		}
	}
	return c, nil
}
