// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store implements the transactional key/value persistence layer
// every domain package (keychain, account, signingscript, tx, merkle)
// builds its records and views on top of. It wraps syndtr/goleveldb the
// same way the teacher wraps its own storage backend: a DB you Open once,
// and short-lived Tx values you Begin, use, and Commit or Discard — never a
// bare *leveldb.DB handed around for ad hoc reads and writes.
package store

import (
	"bytes"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ciphrex/vaultd/internal/verr"
)

// Bucket namespaces a key range. Each entity type in the domain packages
// above owns one bucket; keys within a bucket are whatever that package
// chooses (a hash, an 8-byte big-endian ID, a composite key).
type Bucket byte

// Buckets used by this module. New buckets must be appended, never
// renumbered, since the byte is persisted as the first byte of every key.
const (
	BucketSchema        Bucket = 0x01
	BucketKeychain       Bucket = 0x10
	BucketKeychainParent Bucket = 0x11 // child keychain name -> parent keychain name
	BucketAccount        Bucket = 0x20
	BucketAccountName    Bucket = 0x21 // name -> account id
	BucketBin            Bucket = 0x22 // (account id, bin id) -> bin record
	BucketSigningScript  Bucket = 0x30 // script hash -> record
	BucketScriptByBin    Bucket = 0x31 // (account id, bin id, index) -> script hash
	BucketTx             Bucket = 0x40 // tx hash -> record
	BucketTxOut          Bucket = 0x41 // (tx hash, vout) -> txout record
	BucketOutpointSpend  Bucket = 0x42 // (tx hash, vout) -> spending tx hash, for spent-output lookups
	BucketScriptTxOut    Bucket = 0x43 // (script hash, tx hash, vout) -> sentinel, for balance/view scans
	BucketMerkleBlock    Bucket = 0x50 // block hash -> record
	BucketBlockHeight    Bucket = 0x51 // height (4 BE) -> block hash, best-chain index
	BucketTxBlock        Bucket = 0x52 // tx hash -> block hash it is confirmed in
)

// schemaVersionKey is the single row recording the on-disk schema version.
var schemaVersionKey = []byte{byte(BucketSchema), 'v'}

// CurrentSchemaVersion is the schema version this build of the store
// package writes and expects to read.
const CurrentSchemaVersion uint32 = 1

// DB is an open store. The zero value is not usable; construct with Open.
type DB struct {
	ldb *leveldb.DB
}

// Open opens (creating if necessary) a store at path and checks its schema
// version, returning verr.SchemaMigrationNeeded or verr.SchemaFutureVersion
// if the on-disk version doesn't match CurrentSchemaVersion.
func Open(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, verr.Wrap(verr.IOError, err)
	}
	db := &DB{ldb: ldb}

	version, err := db.readSchemaVersion()
	if err != nil {
		ldb.Close()
		return nil, err
	}
	switch {
	case version == 0:
		if err := db.writeSchemaVersion(CurrentSchemaVersion); err != nil {
			ldb.Close()
			return nil, err
		}
	case version < CurrentSchemaVersion:
		ldb.Close()
		return nil, verr.Newf(verr.SchemaMigrationNeeded, "on-disk schema v%d, need v%d", version, CurrentSchemaVersion)
	case version > CurrentSchemaVersion:
		ldb.Close()
		return nil, verr.Newf(verr.SchemaFutureVersion, "on-disk schema v%d, this build knows v%d", version, CurrentSchemaVersion)
	}
	return db, nil
}

func (db *DB) readSchemaVersion() (uint32, error) {
	v, err := db.ldb.Get(schemaVersionKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, verr.Wrap(verr.IOError, err)
	}
	if len(v) != 4 {
		return 0, verr.Newf(verr.SerializationError, "malformed schema version row")
	}
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3]), nil
}

func (db *DB) writeSchemaVersion(v uint32) error {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	if err := db.ldb.Put(schemaVersionKey, b, nil); err != nil {
		return verr.Wrap(verr.IOError, err)
	}
	return nil
}

// Close releases the underlying goleveldb handle.
func (db *DB) Close() error {
	if err := db.ldb.Close(); err != nil {
		return verr.Wrap(verr.IOError, err)
	}
	return nil
}

// Tx is a single goleveldb transaction: every Put/Delete issued against it
// is invisible to other transactions and to direct DB reads until Commit.
// The vault package (see vault.go) wraps exactly one Tx per public
// operation, matching spec §6's "each operation is atomic" invariant.
type Tx struct {
	ltx *leveldb.Transaction
}

// Begin starts a new transaction. Callers must Commit or Discard it.
func (db *DB) Begin() (*Tx, error) {
	ltx, err := db.ldb.OpenTransaction()
	if err != nil {
		return nil, verr.Wrap(verr.IOError, err)
	}
	return &Tx{ltx: ltx}, nil
}

// Commit durably applies every write made through this Tx.
func (tx *Tx) Commit() error {
	if err := tx.ltx.Commit(); err != nil {
		return verr.Wrap(verr.IOError, err)
	}
	return nil
}

// Discard abandons this Tx, applying nothing. Safe to call after Commit
// (no-op) so callers can unconditionally `defer tx.Discard()`.
func (tx *Tx) Discard() {
	tx.ltx.Discard()
}

func key(b Bucket, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 1, n)
	out[0] = byte(b)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Key builds a store key from a bucket and its component parts (hashes,
// big-endian integers, etc), concatenated in order. Exported so domain
// packages can build composite keys consistently.
func Key(b Bucket, parts ...[]byte) []byte { return key(b, parts...) }

// Put writes value under key in bucket b.
func (tx *Tx) Put(b Bucket, k []byte, value []byte) error {
	if err := tx.ltx.Put(key(b, k), value, nil); err != nil {
		return verr.Wrap(verr.IOError, err)
	}
	return nil
}

// Get reads the value under key in bucket b. Returns verr.NotFound if
// absent.
func (tx *Tx) Get(b Bucket, k []byte) ([]byte, error) {
	v, err := tx.ltx.Get(key(b, k), nil)
	if err == leveldb.ErrNotFound {
		return nil, verr.New(verr.NotFound)
	}
	if err != nil {
		return nil, verr.Wrap(verr.IOError, err)
	}
	return v, nil
}

// Has reports whether key exists in bucket b.
func (tx *Tx) Has(b Bucket, k []byte) (bool, error) {
	ok, err := tx.ltx.Has(key(b, k), nil)
	if err != nil {
		return false, verr.Wrap(verr.IOError, err)
	}
	return ok, nil
}

// Delete removes key from bucket b. Deleting an absent key is not an
// error, matching goleveldb's own semantics.
func (tx *Tx) Delete(b Bucket, k []byte) error {
	if err := tx.ltx.Delete(key(b, k), nil); err != nil {
		return verr.Wrap(verr.IOError, err)
	}
	return nil
}

// Entry is one key/value pair yielded by a prefix scan, with the bucket
// prefix byte already stripped from Key.
type Entry struct {
	Key   []byte
	Value []byte
}

// ScanPrefix iterates every entry in bucket b whose key starts with prefix,
// in ascending key order, calling fn for each. Iteration stops early if fn
// returns false or a non-nil error.
func (tx *Tx) ScanPrefix(b Bucket, prefix []byte, fn func(Entry) (bool, error)) error {
	rng := util.BytesPrefix(key(b, prefix))
	it := tx.ltx.NewIterator(rng, nil)
	defer it.Release()
	return scan(it, byte(b), fn)
}

// ScanBucket iterates every entry in bucket b, in ascending key order.
func (tx *Tx) ScanBucket(b Bucket, fn func(Entry) (bool, error)) error {
	return tx.ScanPrefix(b, nil, fn)
}

func scan(it iterator.Iterator, prefixByte byte, fn func(Entry) (bool, error)) error {
	for it.Next() {
		k := it.Key()
		if len(k) == 0 || k[0] != prefixByte {
			continue
		}
		entry := Entry{
			Key:   bytes.Clone(k[1:]),
			Value: bytes.Clone(it.Value()),
		}
		cont, err := fn(entry)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	if err := it.Error(); err != nil {
		return verr.Wrap(verr.IOError, err)
	}
	return nil
}
