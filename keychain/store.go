// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keychain

import (
	"github.com/ciphrex/vaultd/internal/framing"
	"github.com/ciphrex/vaultd/internal/seal"
	"github.com/ciphrex/vaultd/internal/verr"
	"github.com/ciphrex/vaultd/store"
)

// field tags, persisted as the first byte of a field's encoding.
const (
	fieldAbsent = 0
	fieldPlain  = 1
	fieldSealed = 2
)

func encodeField(w *framing.Writer, f *field) {
	switch {
	case f == nil || (f.plain == nil && f.sealed == nil):
		w.PutUint8(fieldAbsent)
	case f.sealed != nil:
		w.PutUint8(fieldSealed)
		w.PutBytes(f.sealed.Salt)
		w.PutBytes(f.sealed.Ciphertext)
	default:
		w.PutUint8(fieldPlain)
		w.PutBytes(f.plain.Bytes())
	}
}

func decodeField(r *framing.Reader) (*field, error) {
	tag, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case fieldAbsent:
		return nil, nil
	case fieldPlain:
		b, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		return newPlainField(b), nil
	case fieldSealed:
		salt, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		ct, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		return newSealedField(&seal.Sealed{Salt: salt, Ciphertext: ct}), nil
	default:
		return nil, verr.Newf(verr.SerializationError, "keychain: unknown field tag %d", tag)
	}
}

// Encode serializes kc for storage, preserving whichever of plaintext or
// sealed ciphertext each field currently holds (a locked field round-trips
// as still-locked; an unlocked, never-encrypted field round-trips as
// plaintext, matching what the caller chose not to seal).
func (kc *Keychain) Encode() []byte {
	w := framing.NewWriter()
	w.PutString(kc.Name)
	w.PutUint8(kc.Depth)
	w.PutFixed(kc.ParentFP[:])
	w.PutUint32(kc.ChildNum)
	w.PutFixed(kc.PubKey[:])
	w.PutUint32(uint32(len(kc.Path)))
	for _, idx := range kc.Path {
		w.PutUint32(idx)
	}
	w.PutFixed(kc.Hash[:])
	encodeField(w, kc.chainCode)
	encodeField(w, kc.privKey)
	return w.Bytes()
}

// Decode reconstructs a Keychain from the encoding produced by Encode.
func Decode(buf []byte) (*Keychain, error) {
	r := framing.NewReader(buf)
	kc := &Keychain{}

	name, err := r.String()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	kc.Name = name

	depth, err := r.Uint8()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	kc.Depth = depth

	parentFP, err := r.Fixed(4)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	copy(kc.ParentFP[:], parentFP)

	childNum, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	kc.ChildNum = childNum

	pubKey, err := r.Fixed(33)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	copy(kc.PubKey[:], pubKey)

	pathLen, err := r.Uint32()
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	kc.Path = make([]uint32, pathLen)
	for i := range kc.Path {
		v, err := r.Uint32()
		if err != nil {
			return nil, verr.Wrap(verr.SerializationError, err)
		}
		kc.Path[i] = v
	}

	hash, err := r.Fixed(20)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	copy(kc.Hash[:], hash)

	chainCode, err := decodeField(r)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	kc.chainCode = chainCode

	privKey, err := decodeField(r)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	kc.privKey = privKey

	if !r.Done() {
		return nil, verr.Wrap(verr.SerializationError, framing.ErrTrailingData)
	}
	return kc, nil
}

// Put persists kc keyed by its name. If parentName is non-empty, it also
// records kc as a child of the keychain named parentName in
// store.BucketKeychainParent, keyed by child name, so the tree is kept as
// name references in the store rather than as live pointers (see the
// package doc comment).
func Put(tx *store.Tx, kc *Keychain, parentName string) error {
	if err := tx.Put(store.BucketKeychain, []byte(kc.Name), kc.Encode()); err != nil {
		return err
	}
	if parentName != "" {
		if err := tx.Put(store.BucketKeychainParent, []byte(kc.Name), []byte(parentName)); err != nil {
			return err
		}
	}
	return nil
}

// Get loads the keychain stored under name. Returns verr.NotFound if absent.
func Get(tx *store.Tx, name string) (*Keychain, error) {
	buf, err := tx.Get(store.BucketKeychain, []byte(name))
	if err != nil {
		return nil, err
	}
	return Decode(buf)
}

// Parent returns the name of childName's parent keychain, or "" if childName
// is a root (was never Put with a parentName).
func Parent(tx *store.Tx, childName string) (string, error) {
	buf, err := tx.Get(store.BucketKeychainParent, []byte(childName))
	if err != nil {
		if kind, ok := verr.Of(err); ok && kind == verr.NotFound {
			return "", nil
		}
		return "", err
	}
	return string(buf), nil
}

// Children lists the names of every keychain Put with parentName as its
// parent. This is a full scan of BucketKeychainParent rather than an
// indexed lookup, since vaults hold at most a handful of keychains and a
// dedicated parent->children index would be unused complexity for that
// scale.
func Children(tx *store.Tx, parentName string) ([]string, error) {
	var out []string
	err := tx.ScanBucket(store.BucketKeychainParent, func(e store.Entry) (bool, error) {
		if string(e.Value) == parentName {
			out = append(out, string(e.Key))
		}
		return true, nil
	})
	return out, err
}

// List returns the names of every keychain in the store.
func List(tx *store.Tx) ([]string, error) {
	var out []string
	err := tx.ScanBucket(store.BucketKeychain, func(e store.Entry) (bool, error) {
		out = append(out, string(e.Key))
		return true, nil
	})
	return out, err
}
