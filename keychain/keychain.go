// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keychain implements the Keychain entity (spec §3, §4.2): a BIP32
// node identified by a user-chosen name, holding a public key and an
// independently lockable chain code and private key. A Keychain is a value
// type; it knows nothing about where it is stored or how it relates to
// other keychains in a tree — that bookkeeping is done by Put in this
// package's store.go, which records parent/child edges in the store by
// name rather than as live pointers, per spec §9's note on avoiding
// in-memory reference cycles.
package keychain

import (
	"crypto/sha256"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160"

	"github.com/ciphrex/vaultd/chaincfg"
	"github.com/ciphrex/vaultd/hdkeychain"
	"github.com/ciphrex/vaultd/internal/seal"
	"github.com/ciphrex/vaultd/internal/verr"
)

// Keychain is a named node in a BIP32 derivation tree. PrivKey is nil for a
// public-only (watch-only) keychain imported from an extended public key.
type Keychain struct {
	Name string

	Depth      uint8
	ParentFP   [4]byte
	ChildNum   uint32
	PubKey     [33]byte
	Path       []uint32 // derivation path from the vault root, for display only

	chainCode *field
	privKey   *field

	// Hash identifies this keychain's secret material independent of Name,
	// so the same BIP32 node imported twice (or under two names) is
	// recognized as the same keychain. Computed once at construction time
	// as RIPEMD160(SHA256(pubkey || chaincode)).
	Hash [20]byte
}

// validateName enforces spec §3: a keychain name must be non-empty and must
// not begin with '@', a prefix reserved for account bin names (@default,
// @change, ...).
func validateName(name string) error {
	if name == "" {
		return verr.Newf(verr.NameInvalid, "keychain name must not be empty")
	}
	if strings.HasPrefix(name, "@") {
		return verr.Newf(verr.NameInvalid, "keychain name %q must not start with '@'", name)
	}
	return nil
}

// computeHash derives a Keychain's identity hash from its public key and
// (if available) its chain code.
func computeHash(pubKey [33]byte, chainCode []byte) [20]byte {
	h := sha256.New()
	h.Write(pubKey[:])
	h.Write(chainCode)
	sum := h.Sum(nil)

	r := ripemd160.New()
	r.Write(sum)
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

func fromExtendedKey(name string, ek *hdkeychain.ExtendedKey) (*Keychain, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	kc := &Keychain{
		Name:     name,
		Depth:    ek.Depth(),
		ChildNum: ek.ChildNum(),
	}
	copy(kc.PubKey[:], ek.SerializedPubKey())
	copy(kc.ParentFP[:], ek.ParentFingerprint())

	cc := ek.ChainCode()
	kc.chainCode = newPlainField(cc)

	if ek.IsPrivate() {
		pk := ek.SerializedPrivKey()
		kc.privKey = newPlainField(pk)
		for i := range pk {
			pk[i] = 0
		}
	}

	kc.Hash = computeHash(kc.PubKey, cc)
	for i := range cc {
		cc[i] = 0
	}
	return kc, nil
}

// NewRoot creates a new root Keychain (depth 0) from entropy, which must be
// between hdkeychain.MinSeedBytes and hdkeychain.MaxSeedBytes long. The
// caller supplies the network parameters purely to round-trip through
// hdkeychain; a Keychain itself is network-agnostic once constructed.
func NewRoot(name string, entropy []byte, params *chaincfg.Params) (*Keychain, error) {
	master, err := hdkeychain.NewMaster(entropy, params)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	defer master.Zero()
	return fromExtendedKey(name, master)
}

// ImportBIP32 creates a Keychain (root or otherwise, public-only or private,
// depending on what extKeyStr encodes) from a standard BIP32 Base58Check
// extended key string.
func ImportBIP32(name, extKeyStr string, params *chaincfg.Params) (*Keychain, error) {
	ek, err := hdkeychain.NewKeyFromString(extKeyStr, params)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	defer ek.Zero()
	return fromExtendedKey(name, ek)
}

// ExportBIP32 serializes this keychain as a standard BIP32 extended key
// string. withPriv requests the extended private key and fails with
// verr.KeychainPublicOnly if this keychain holds no private key, or
// verr.ChainCodeLocked/verr.KeyLocked if the needed field is locked.
func (kc *Keychain) ExportBIP32(withPriv bool, params *chaincfg.Params) (string, error) {
	if kc.chainCode.locked() {
		return "", verr.New(verr.ChainCodeLocked)
	}
	cc := kc.chainCode.bytes()
	if cc == nil {
		return "", verr.New(verr.ChainCodeLocked)
	}

	var priv []byte
	if withPriv {
		if kc.privKey == nil {
			return "", verr.New(verr.KeychainPublicOnly)
		}
		if kc.privKey.locked() {
			return "", verr.New(verr.KeyLocked)
		}
		priv = kc.privKey.bytes()
		if priv == nil {
			return "", verr.New(verr.KeyLocked)
		}
	}

	ek := hdkeychain.NewExtendedKey(kc.PubKey[:], priv, cc, kc.ParentFP[:], kc.Depth, kc.ChildNum)
	return ek.String(params), nil
}

// IsPublicOnly reports whether this keychain holds no private key at all
// (as opposed to merely having its private key locked).
func (kc *Keychain) IsPublicOnly() bool {
	return kc.privKey == nil
}

// ChainCodeLocked reports whether the chain code is present but currently
// inaccessible in plaintext.
func (kc *Keychain) ChainCodeLocked() bool { return kc.chainCode.locked() }

// PrivKeyLocked reports whether the private key is present but currently
// inaccessible in plaintext. Always false for a public-only keychain.
func (kc *Keychain) PrivKeyLocked() bool { return kc.privKey.locked() }

// LockChainCode discards the plaintext chain code, if it has been sealed
// via EncryptChainCode; it is a caller error to lock a chain code that has
// never been encrypted, and is a no-op in that case to avoid data loss.
func (kc *Keychain) LockChainCode() { kc.chainCode.lock() }

// LockPrivateKey discards the plaintext private key, if it has been sealed
// via EncryptPrivateKey.
func (kc *Keychain) LockPrivateKey() { kc.privKey.lock() }

// LockAll locks both the chain code and the private key, if present.
func (kc *Keychain) LockAll() {
	kc.LockChainCode()
	kc.LockPrivateKey()
}

// EncryptChainCode seals the chain code under passphrase, binding the
// ciphertext to this keychain's Hash as additional authenticated data.
func (kc *Keychain) EncryptChainCode(passphrase []byte, params seal.Params) error {
	return kc.chainCode.encrypt(passphrase, kc.Hash[:], params)
}

// EncryptPrivateKey seals the private key under passphrase. Returns
// verr.KeychainPublicOnly if this keychain has no private key.
func (kc *Keychain) EncryptPrivateKey(passphrase []byte, params seal.Params) error {
	if kc.privKey == nil {
		return verr.New(verr.KeychainPublicOnly)
	}
	return kc.privKey.encrypt(passphrase, kc.Hash[:], params)
}

// UnlockChainCode decrypts a previously sealed chain code into plaintext.
func (kc *Keychain) UnlockChainCode(passphrase []byte, params seal.Params) error {
	return kc.chainCode.unlock(passphrase, kc.Hash[:], params)
}

// UnlockPrivateKey decrypts a previously sealed private key into plaintext.
// Returns verr.KeychainPublicOnly if this keychain has no private key.
func (kc *Keychain) UnlockPrivateKey(passphrase []byte, params seal.Params) error {
	if kc.privKey == nil {
		return verr.New(verr.KeychainPublicOnly)
	}
	return kc.privKey.unlock(passphrase, kc.Hash[:], params)
}

// Reencrypt unseals both fields under oldPass and reseals them under
// newPass, leaving them unlocked afterward. Used by the vault-wide
// change-passphrase operation.
func (kc *Keychain) Reencrypt(oldPass, newPass []byte, params seal.Params) error {
	if kc.chainCode.present() {
		if err := kc.chainCode.unlock(oldPass, kc.Hash[:], params); err != nil {
			return err
		}
		if err := kc.chainCode.encrypt(newPass, kc.Hash[:], params); err != nil {
			return err
		}
	}
	if kc.privKey.present() {
		if err := kc.privKey.unlock(oldPass, kc.Hash[:], params); err != nil {
			return err
		}
		if err := kc.privKey.encrypt(newPass, kc.Hash[:], params); err != nil {
			return err
		}
	}
	return nil
}

// Destroy zeroizes any plaintext this keychain currently holds. It does not
// affect sealed ciphertext.
func (kc *Keychain) Destroy() {
	kc.chainCode.destroy()
	kc.privKey.destroy()
}

// extendedKey reconstructs the hdkeychain.ExtendedKey this Keychain
// represents, for use by derivation helpers below. Requires the chain code
// to be unlocked; requires the private key to be unlocked too when
// needPriv is set.
func (kc *Keychain) extendedKey(needPriv bool) (*hdkeychain.ExtendedKey, error) {
	cc := kc.chainCode.bytes()
	if cc == nil {
		return nil, verr.New(verr.ChainCodeLocked)
	}

	var priv []byte
	if needPriv {
		if kc.privKey == nil {
			return nil, verr.New(verr.KeychainPublicOnly)
		}
		priv = kc.privKey.bytes()
		if priv == nil {
			return nil, verr.New(verr.KeyLocked)
		}
	}

	return hdkeychain.NewExtendedKey(kc.PubKey[:], priv, cc, kc.ParentFP[:], kc.Depth, kc.ChildNum), nil
}

// derive walks path from this keychain (requires an unlocked chain code at
// every level that needs it) and returns the extended key at the end of the
// path. Hardened indices along path require a private key throughout.
func (kc *Keychain) derive(path []uint32, needPriv bool) (*hdkeychain.ExtendedKey, error) {
	cur, err := kc.extendedKey(needPriv)
	if err != nil {
		return nil, err
	}
	for _, idx := range path {
		cur, err = cur.Child(idx)
		if err != nil {
			return nil, verr.Wrap(verr.SerializationError, err)
		}
	}
	return cur, nil
}

// SigningPubKey derives the public key used in a signing script at the
// given bin path and script index, per spec §4.2: walk path (the account
// bin's derivation path below this keychain) then derive one more normal
// child at index.
func (kc *Keychain) SigningPubKey(path []uint32, index uint32) ([]byte, error) {
	base, err := kc.derive(path, false)
	if err != nil {
		return nil, err
	}
	child, err := base.Child(index)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	return child.SerializedPubKey(), nil
}

// SigningPrivKey derives the private key at the given bin path and script
// index. Returns verr.KeychainPublicOnly if this keychain (or any ancestor
// on the path) lacks a private key, or verr.KeyLocked/verr.ChainCodeLocked
// if a needed field is currently sealed.
func (kc *Keychain) SigningPrivKey(path []uint32, index uint32) (*secp256k1.PrivateKey, error) {
	base, err := kc.derive(path, true)
	if err != nil {
		return nil, err
	}
	child, err := base.Child(index)
	if err != nil {
		return nil, verr.Wrap(verr.SerializationError, err)
	}
	return child.ECPrivKey()
}
