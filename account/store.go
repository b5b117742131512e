// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package account

import (
	"encoding/binary"

	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/store"
)

func idKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

// Put persists a (newly created or updated) account under its ID.
func Put(tx *store.Tx, a *Account) error {
	if err := tx.Put(store.BucketAccount, idKey(a.ID), a.Encode()); err != nil {
		return err
	}
	return tx.Put(store.BucketAccountName, []byte(a.Name), idKey(a.ID))
}

// Get loads the account with the given ID.
func Get(tx *store.Tx, id uint64) (*Account, error) {
	buf, err := tx.Get(store.BucketAccount, idKey(id))
	if err != nil {
		return nil, err
	}
	a, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

// GetByName loads the account with the given display name.
func GetByName(tx *store.Tx, name string) (*Account, error) {
	idBuf, err := tx.Get(store.BucketAccountName, []byte(name))
	if err != nil {
		return nil, err
	}
	return Get(tx, binary.BigEndian.Uint64(idBuf))
}

// NextID returns an ID one greater than the highest currently stored
// account ID (0 if the bucket is empty), for assigning a new account's ID.
func NextID(tx *store.Tx) (uint64, error) {
	var max uint64
	err := tx.ScanBucket(store.BucketAccount, func(e store.Entry) (bool, error) {
		id := binary.BigEndian.Uint64(e.Key)
		if id >= max {
			max = id + 1
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return max, nil
}

// Create assigns a.ID via NextID, persists it, and returns the assigned
// ID. Returns verr.NameAlreadyExists if the name is taken.
func Create(tx *store.Tx, a *Account) (uint64, error) {
	if _, err := GetByName(tx, a.Name); err == nil {
		return 0, verr.Newf(verr.NameAlreadyExists, "account %q", a.Name)
	}
	id, err := NextID(tx)
	if err != nil {
		return 0, err
	}
	a.ID = id
	if err := Put(tx, a); err != nil {
		return 0, err
	}
	return id, nil
}

// Rename updates an account's name in both the account record and the
// name index, failing with verr.NameAlreadyExists if newName is taken.
func Rename(tx *store.Tx, id uint64, newName string) error {
	a, err := Get(tx, id)
	if err != nil {
		return err
	}
	if _, err := GetByName(tx, newName); err == nil {
		return verr.Newf(verr.NameAlreadyExists, "account %q", newName)
	}
	if err := tx.Delete(store.BucketAccountName, []byte(a.Name)); err != nil {
		return err
	}
	if err := a.Rename(newName); err != nil {
		return err
	}
	return Put(tx, a)
}

// List returns every account in the store, ordered by ID.
func List(tx *store.Tx) ([]*Account, error) {
	var out []*Account
	err := tx.ScanBucket(store.BucketAccount, func(e store.Entry) (bool, error) {
		a, err := Decode(e.Value)
		if err != nil {
			return false, err
		}
		a.ID = binary.BigEndian.Uint64(e.Key)
		out = append(out, a)
		return true, nil
	})
	return out, err
}

// BinView is a read-only summary row for one bin, as listed by spec §6's
// AccountBinView: its identity plus NextIndex. Per-status signing script
// counts are not part of this row; signingscript.Counts reports them,
// outside this package, to avoid an import cycle between account and
// signingscript.
type BinView struct {
	AccountID   uint64
	AccountName string
	BinID       uint32
	BinName     string
	NextIndex   uint32
}

// BinViews lists every bin of every account as BinView rows.
func BinViews(tx *store.Tx) ([]BinView, error) {
	accounts, err := List(tx)
	if err != nil {
		return nil, err
	}
	var out []BinView
	for _, a := range accounts {
		for _, b := range a.Bins {
			out = append(out, BinView{
				AccountID:   a.ID,
				AccountName: a.Name,
				BinID:       b.ID,
				BinName:     b.Name,
				NextIndex:   b.NextScriptIndex,
			})
		}
	}
	return out, nil
}
