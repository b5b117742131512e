// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package vault is the single entry point this module exposes (spec §6): a
// Vault wraps one store.DB and serializes every public operation behind a
// mutex, exactly one store.Tx per call, and dispatches subscriber
// notifications synchronously after that transaction commits — matching
// the teacher's own top-level Server/wallet objects, which funnel every
// RPC through one lock around the underlying database handle.
package vault

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/slog"

	"github.com/ciphrex/vaultd/account"
	"github.com/ciphrex/vaultd/chaincfg"
	"github.com/ciphrex/vaultd/internal/seal"
	"github.com/ciphrex/vaultd/internal/sigcache"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/keychain"
	"github.com/ciphrex/vaultd/merkle"
	"github.com/ciphrex/vaultd/signingscript"
	"github.com/ciphrex/vaultd/store"
	"github.com/ciphrex/vaultd/tx"
)

// log is this package's subsystem logger, wired up by cmd/vaultd's
// UseLogger the same way every EXCCoin-exccd package exposes one (see
// EXCCoin-exccd/blockchain/log.go's pattern); it defaults to disabled so
// importing this package as a library produces no output unless the
// embedding application opts in.
var log = slog.Disabled

// UseLogger sets the logger this package writes to.
func UseLogger(l slog.Logger) { log = l }

// Event is published to subscribers after a committed operation changes
// vault state.
type Event struct {
	Kind    EventKind
	Account string
	TxHash  *chainhash.Hash
}

// EventKind identifies what changed.
type EventKind int

const (
	EventTxInserted EventKind = iota
	EventTxConflict
	EventBlockConfirmed
	EventBlockUnconfirmed
)

// Subscriber receives Events synchronously, in the goroutine that ran the
// triggering operation, immediately after that operation's transaction
// commits. A Subscriber must not block.
type Subscriber func(Event)

// Vault is this module's top-level handle: one open store plus whatever
// in-memory state (the sigcache, loaded keychains, subscriber list) a
// running process needs alongside it.
type Vault struct {
	mu   sync.Mutex
	db   *store.DB
	sigs *sigcache.SigCache

	params *chaincfg.Params
	seal   seal.Params

	subMu sync.RWMutex
	subs  []Subscriber

	// keychains mirrors, in memory, every keychain persisted in the store
	// (see keychain.Put/keychain.List), keyed by name. Open reloads this
	// map from disk; NewKeychain/ImportKeychain write through to the store
	// before updating it.
	keychains map[string]*keychain.Keychain
}

// Open opens (or creates) a vault backed by a store at path, reloading into
// memory every keychain previously persisted via NewKeychain/ImportKeychain.
func Open(path string, params *chaincfg.Params) (*Vault, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		db:        db,
		sigs:      sigcache.New(50000),
		params:    params,
		seal:      seal.DefaultParams(),
		keychains: make(map[string]*keychain.Keychain),
	}

	storeTx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, err
	}
	defer storeTx.Discard()

	names, err := keychain.List(storeTx)
	if err != nil {
		db.Close()
		return nil, err
	}
	for _, name := range names {
		kc, err := keychain.Get(storeTx, name)
		if err != nil {
			db.Close()
			return nil, err
		}
		v.keychains[name] = kc
	}
	return v, nil
}

// Close releases the underlying store.
func (v *Vault) Close() error { return v.db.Close() }

// Subscribe registers sub to receive every future Event.
func (v *Vault) Subscribe(sub Subscriber) {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	v.subs = append(v.subs, sub)
}

func (v *Vault) publish(ev Event) {
	v.subMu.RLock()
	subs := append([]Subscriber(nil), v.subs...)
	v.subMu.RUnlock()
	for _, s := range subs {
		s(ev)
	}
}

// withTx runs fn inside a single committed store.Tx, serialized against
// every other Vault operation.
func (v *Vault) withTx(fn func(*store.Tx) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	storeTx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer storeTx.Discard()

	if err := fn(storeTx); err != nil {
		return err
	}
	return storeTx.Commit()
}

// NewKeychain creates a new root keychain from entropy, persists it, and
// keeps it loaded in memory under name.
func (v *Vault) NewKeychain(name string, entropy []byte) (*keychain.Keychain, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.keychains[name]; exists {
		return nil, verr.Newf(verr.NameAlreadyExists, "keychain %q", name)
	}
	kc, err := keychain.NewRoot(name, entropy, v.params)
	if err != nil {
		return nil, err
	}
	if err := v.putKeychainLocked(kc); err != nil {
		return nil, err
	}
	v.keychains[name] = kc
	return kc, nil
}

// ImportKeychain loads a keychain from a BIP32 extended key string, persists
// it, and keeps it loaded in memory under name.
func (v *Vault) ImportKeychain(name, extKey string) (*keychain.Keychain, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.keychains[name]; exists {
		return nil, verr.Newf(verr.NameAlreadyExists, "keychain %q", name)
	}
	kc, err := keychain.ImportBIP32(name, extKey, v.params)
	if err != nil {
		return nil, err
	}
	if err := v.putKeychainLocked(kc); err != nil {
		return nil, err
	}
	v.keychains[name] = kc
	return kc, nil
}

// putKeychainLocked persists kc in its own store.Tx. Callers must already
// hold v.mu; it does not go through withTx, which takes that lock itself.
func (v *Vault) putKeychainLocked(kc *keychain.Keychain) error {
	storeTx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer storeTx.Discard()
	if err := keychain.Put(storeTx, kc, ""); err != nil {
		return err
	}
	return storeTx.Commit()
}

// Keychain returns a previously created/imported keychain by name.
func (v *Vault) Keychain(name string) (*keychain.Keychain, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	kc, ok := v.keychains[name]
	if !ok {
		return nil, verr.Newf(verr.NotFound, "keychain %q", name)
	}
	return kc, nil
}

// CreateAccount creates a new M-of-N account over the named keychains
// (which must already be loaded via NewKeychain/ImportKeychain). poolSize is
// the account's unused_pool_size (spec §3); pass 0 for account.DefaultPoolSize.
func (v *Vault) CreateAccount(name string, keychainNames []string, minSigs, poolSize int) (*account.Account, error) {
	v.mu.Lock()
	kcs := make([]*keychain.Keychain, len(keychainNames))
	hashes := make([][20]byte, len(keychainNames))
	for i, kn := range keychainNames {
		kc, ok := v.keychains[kn]
		if !ok {
			v.mu.Unlock()
			return nil, verr.Newf(verr.NotFound, "keychain %q", kn)
		}
		kcs[i] = kc
		hashes[i] = kc.Hash
	}
	v.mu.Unlock()

	a, err := account.New(name, hashes, minSigs, time.Now().Unix(), poolSize)
	if err != nil {
		return nil, err
	}

	err = v.withTx(func(storeTx *store.Tx) error {
		id, err := account.Create(storeTx, a)
		if err != nil {
			return err
		}
		a.ID = id
		for _, bin := range a.Bins {
			if err := signingscript.EnsureLookahead(storeTx, a, bin, kcs, a.PoolSize); err != nil {
				return err
			}
		}
		return account.Put(storeTx, a)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("created account %q (%d-of-%d)", name, minSigs, len(keychainNames))
	return a, nil
}

// NewAddress issues the next unused signing script in accountName's bin
// (DefaultBinName for receiving, ChangeBinName for change) and returns its
// P2SH address.
func (v *Vault) NewAddress(accountName, binName string, keychainNames []string) (string, error) {
	v.mu.Lock()
	kcs := make([]*keychain.Keychain, len(keychainNames))
	for i, kn := range keychainNames {
		kc, ok := v.keychains[kn]
		if !ok {
			v.mu.Unlock()
			return "", verr.Newf(verr.NotFound, "keychain %q", kn)
		}
		kcs[i] = kc
	}
	v.mu.Unlock()

	var addr string
	err := v.withTx(func(storeTx *store.Tx) error {
		a, err := account.GetByName(storeTx, accountName)
		if err != nil {
			return err
		}
		bin, err := a.Bin(binName)
		if err != nil {
			return err
		}
		s, err := signingscript.GetNew(storeTx, a, bin, kcs, a.PoolSize)
		if err != nil {
			return err
		}
		addr = addressFromHash160(s.Hash160, v.params)
		return nil
	})
	return addr, err
}

// InsertTx runs the insert_tx pipeline against a raw wire transaction and
// publishes the resulting Event(s).
func (v *Vault) InsertTx(msgTx *wire.MsgTx, firstSeen int64, policy tx.ConflictPolicy) (*tx.InsertResult, error) {
	var result *tx.InsertResult
	err := v.withTx(func(storeTx *store.Tx) error {
		res, err := tx.Insert(storeTx, msgTx, firstSeen, policy)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	hash := result.Record.Hash
	v.publish(Event{Kind: EventTxInserted, TxHash: &hash})
	for i := range result.Conflicts {
		h := result.Conflicts[i].Hash
		v.publish(Event{Kind: EventTxConflict, TxHash: &h})
	}
	return result, nil
}

// InsertBlock attaches a block header and confirms the given matched
// transaction hashes.
func (v *Vault) InsertBlock(header *merkle.Header, matchedTxHashes []chainhash.Hash) error {
	err := v.withTx(func(storeTx *store.Tx) error {
		return merkle.InsertBlock(storeTx, header, matchedTxHashes)
	})
	if err != nil {
		return err
	}
	v.publish(Event{Kind: EventBlockConfirmed})
	return nil
}

// UnconfirmBlock reverses InsertBlock for a reorged-out block hash.
func (v *Vault) UnconfirmBlock(blockHash chainhash.Hash) error {
	err := v.withTx(func(storeTx *store.Tx) error {
		return merkle.Unconfirm(storeTx, blockHash)
	})
	if err != nil {
		return err
	}
	v.publish(Event{Kind: EventBlockUnconfirmed})
	return nil
}

// SigCache exposes this vault's shared signature verification cache to
// callers driving a signer.Session directly (e.g. a co-signer merge
// workflow run outside any single store.Tx).
func (v *Vault) SigCache() *sigcache.SigCache { return v.sigs }

// Balance reports accountName's BalanceView (spec §6): the confirmed
// balance (outputs at least minConf deep) and everything else still
// eventually spendable, summed across every bin's issued signing scripts.
func (v *Vault) Balance(accountName string, minConf int) (confirmed, unconfirmed int64, err error) {
	err = v.withTx(func(storeTx *store.Tx) error {
		a, err := account.GetByName(storeTx, accountName)
		if err != nil {
			return err
		}
		bestHeight, ok, err := merkle.BestHeight(storeTx)
		if err != nil {
			return err
		}
		if !ok {
			bestHeight = 0
		}

		var scriptHashes [][20]byte
		for _, bin := range a.Bins {
			scripts, err := signingscript.ListByBin(storeTx, a.ID, bin.ID)
			if err != nil {
				return err
			}
			for _, s := range scripts {
				scriptHashes = append(scriptHashes, s.Hash160)
			}
		}

		confirmed, unconfirmed, err = tx.Balance(storeTx, scriptHashes, minConf, bestHeight)
		return err
	})
	return confirmed, unconfirmed, err
}
