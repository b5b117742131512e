// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package merkle implements SPV confirmation tracking (spec §4.6):
// attaching merkle blocks to transactions as proof of confirmation,
// unconfirming transactions on a reorg, and reporting which block hashes
// this vault has seen referenced (as a parent or a confirmation claim) but
// has not yet received a header for.
package merkle

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/lru"

	"github.com/ciphrex/vaultd/internal/framing"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/store"
	"github.com/ciphrex/vaultd/tx"
)

// recentCompleteCap bounds the in-memory set of recently-seen complete
// block hashes consulted by IncompleteBlockHashes so a repeated scan over a
// long run of already-known blocks doesn't have to touch the store.
const recentCompleteCap = 2000

// recentComplete is process-wide: putHeader adds a block hash when it
// stores that block's header, and Unconfirm removes the hash when it
// deletes the header.
var recentComplete = lru.NewCache(recentCompleteCap)

// Header is one block header this vault has recorded as a confirmation
// anchor, with just enough information to walk the chain and detect reorgs
// — this vault never validates proof-of-work or consensus rules itself
// (spec §1 Non-goals); the block-tree's validity is an external
// collaborator's responsibility.
type Header struct {
	Hash       chainhash.Hash
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Height     int32
	Timestamp  int64
}

func (h *Header) encode() []byte {
	w := framing.NewWriter()
	w.PutFixed(h.Hash[:])
	w.PutFixed(h.PrevBlock[:])
	w.PutFixed(h.MerkleRoot[:])
	w.PutUint32(uint32(h.Height))
	w.PutInt64(h.Timestamp)
	return w.Bytes()
}

func decodeHeader(buf []byte) (*Header, error) {
	r := framing.NewReader(buf)
	h := &Header{}
	hb, err := r.Fixed(32)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	copy(h.Hash[:], hb)
	pb, err := r.Fixed(32)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	copy(h.PrevBlock[:], pb)
	mr, err := r.Fixed(32)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	copy(h.MerkleRoot[:], mr)
	height, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	h.Height = int32(height)
	h.Timestamp, err = r.Int64()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	if !r.Done() {
		return nil, verr.Wrap(verr.SerializationError, framing.ErrTrailingData)
	}
	return h, nil
}

func heightKey(height int32) []byte {
	h := uint32(height)
	return []byte{byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h)}
}

// putHeader persists h and indexes it by height, marking it the best-chain
// block at that height.
func putHeader(storeTx *store.Tx, h *Header) error {
	if err := storeTx.Put(store.BucketMerkleBlock, h.Hash[:], h.encode()); err != nil {
		return err
	}
	if err := storeTx.Put(store.BucketBlockHeight, heightKey(h.Height), h.Hash[:]); err != nil {
		return err
	}
	recentComplete.Add(h.Hash)
	return nil
}

// GetHeader loads a previously stored Header by hash.
func GetHeader(storeTx *store.Tx, hash chainhash.Hash) (*Header, error) {
	buf, err := storeTx.Get(store.BucketMerkleBlock, hash[:])
	if err != nil {
		return nil, err
	}
	return decodeHeader(buf)
}

// BestHeight returns the height of the highest header this vault has
// stored, the BestHeightView spec §6 describes, and ok=false if no header
// has been stored yet.
func BestHeight(storeTx *store.Tx) (height int32, ok bool, err error) {
	best := int32(-1)
	found := false
	scanErr := storeTx.ScanBucket(store.BucketBlockHeight, func(e store.Entry) (bool, error) {
		if len(e.Key) != 4 {
			return true, nil
		}
		h := int32(uint32(e.Key[0])<<24 | uint32(e.Key[1])<<16 | uint32(e.Key[2])<<8 | uint32(e.Key[3]))
		if h > best {
			best = h
		}
		found = true
		return true, nil
	})
	if scanErr != nil {
		return 0, false, scanErr
	}
	return best, found, nil
}

// InsertBlock attaches header as a new best-chain tip (header.PrevBlock
// must be the current tip, or this is the very first header stored) and
// confirms every transaction hash in matchedTxHashes (the leaves a merkle
// proof demonstrated are included in header.MerkleRoot) by setting their
// Status to StatusConfirmed and linking BlockHash/BlockHeight.
func InsertBlock(storeTx *store.Tx, header *Header, matchedTxHashes []chainhash.Hash) error {
	if best, ok, err := BestHeight(storeTx); err != nil {
		return err
	} else if ok {
		tipHash, err := storeTx.Get(store.BucketBlockHeight, heightKey(best))
		if err != nil {
			return err
		}
		if header.Height != best+1 || string(tipHash) != string(header.PrevBlock[:]) {
			return verr.Newf(verr.MerkleProofInvalid, "block %s does not extend current tip", header.Hash)
		}
	} else if header.Height != 0 {
		return verr.Newf(verr.MerkleProofInvalid, "first stored block must be height 0, got %d", header.Height)
	}

	if err := putHeader(storeTx, header); err != nil {
		return err
	}

	for _, txHash := range matchedTxHashes {
		r, err := tx.Get(storeTx, txHash)
		if err != nil {
			if k, isVerr := verr.Of(err); isVerr && k == verr.NotFound {
				continue // SPV proof for a tx this vault doesn't (yet) know
			}
			return err
		}
		r.Status = tx.StatusConfirmed
		r.BlockHash = &header.Hash
		r.BlockHeight = header.Height
		if err := tx.Put(storeTx, r); err != nil {
			return err
		}
	}
	return nil
}

// Unconfirm reverses InsertBlock for a reorged-out block: every transaction
// confirmed in it reverts to StatusUnconfirmed, and the header and its
// height index entry are removed. The caller is responsible for calling
// this from the current tip backward, one block at a time, since InsertBlock
// only ever extends by exactly one header.
func Unconfirm(storeTx *store.Tx, blockHash chainhash.Hash) error {
	header, err := GetHeader(storeTx, blockHash)
	if err != nil {
		return err
	}

	var affected []chainhash.Hash
	if err := storeTx.ScanBucket(store.BucketTxBlock, func(e store.Entry) (bool, error) {
		if len(e.Value) != 32 {
			return true, nil
		}
		if string(e.Value) == string(blockHash[:]) {
			var h chainhash.Hash
			copy(h[:], e.Key)
			affected = append(affected, h)
		}
		return true, nil
	}); err != nil {
		return err
	}

	for _, h := range affected {
		r, err := tx.Get(storeTx, h)
		if err != nil {
			return err
		}
		r.Status = tx.StatusUnconfirmed
		r.BlockHash = nil
		r.BlockHeight = 0
		if err := tx.Put(storeTx, r); err != nil {
			return err
		}
		if err := storeTx.Delete(store.BucketTxBlock, h[:]); err != nil {
			return err
		}
	}

	if err := storeTx.Delete(store.BucketBlockHeight, heightKey(header.Height)); err != nil {
		return err
	}
	if err := storeTx.Delete(store.BucketMerkleBlock, blockHash[:]); err != nil {
		return err
	}
	recentComplete.Delete(blockHash)
	return nil
}

// IncompleteBlockHashes returns every block hash in candidates that this
// vault has not yet stored a Header for: a parent hash a stored header
// references, or a confirmation claim received for a transaction whose
// block this vault hasn't seen yet. An SPV client uses this list to know
// which headers/merkle blocks to request next.
func IncompleteBlockHashes(storeTx *store.Tx, candidates []chainhash.Hash) ([]chainhash.Hash, error) {
	var incomplete []chainhash.Hash
	for _, h := range candidates {
		if recentComplete.Contains(h) {
			continue
		}
		has, err := storeTx.Has(store.BucketMerkleBlock, h[:])
		if err != nil {
			return nil, err
		}
		if has {
			recentComplete.Add(h)
			continue
		}
		incomplete = append(incomplete, h)
	}
	return incomplete, nil
}
