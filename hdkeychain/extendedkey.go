// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hdkeychain implements the BIP32 hierarchical deterministic key
// derivation math the rest of this module builds on. It treats elliptic
// curve point/scalar arithmetic as a primitive supplied by
// github.com/decred/dcrd/dcrec/secp256k1/v4 and implements only the
// derivation algorithm itself: HMAC-SHA512 child key derivation, public and
// private child derivation, and BIP32 extended-key serialization.
//
// References:
//
//	[BIP32]: BIP0032 - Hierarchical Deterministic Wallets
//	https://github.com/bitcoin/bips/blob/master/bip-0032.mediawiki
package hdkeychain

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/decred/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrex/vaultd/chaincfg"
)

// HardenedKeyStart is the index at which a hardened key starts. Each extended
// key has 2^31 normal child keys and 2^31 hardened child keys. Thus the
// range for normal child keys is [0, 2^31 - 1] and the range for hardened
// child keys is [2^31, 2^32 - 1].
const HardenedKeyStart = 0x80000000 // 2^31

const (
	// RecommendedSeedLen is the recommended length in bytes for a seed to a
	// master node.
	RecommendedSeedLen = 32

	// MinSeedBytes is the minimum number of bytes allowed for a seed to a
	// master node.
	MinSeedBytes = 16

	// MaxSeedBytes is the maximum number of bytes allowed for a seed to a
	// master node.
	MaxSeedBytes = 64

	pubKeyCompressedLen = 33
	privKeyLen          = 32
	serializedKeyLen    = 4 + 1 + 4 + 4 + 32 + 33 // version||depth||fp||childnum||chaincode||key
)

// Errors returned by this package.
var (
	// ErrDeriveHardFromPublic describes an error in which the caller
	// attempted to derive a hardened extended key from a public key.
	ErrDeriveHardFromPublic = errors.New("cannot derive a hardened key from a public key")

	// ErrDeriveBeyondMaxDepth describes an error in which the derived
	// extended key exceeds the maximum depth of a BIP32 tree (255).
	ErrDeriveBeyondMaxDepth = errors.New("cannot derive a key with more than 255 indices in its path")

	// ErrNotPrivExtKey describes an error in which the extended key is
	// not a private extended key and contains no private key.
	ErrNotPrivExtKey = errors.New("extended key is not a private key")

	// ErrInvalidChild describes an error in which the child extended key
	// is invalid due to the underlying private or public key math
	// happening to produce an invalid result; the caller should simply
	// retry with the next child index, per BIP32.
	ErrInvalidChild = errors.New("the extended key at this index is invalid")

	// ErrInvalidSeedLen describes an error in which the provided seed or
	// seed length is not in the allowed range.
	ErrInvalidSeedLen = errors.New("seed length must be between 16 and 64 bytes")

	// ErrBadChecksum describes an error in which the checksum encoded with
	// a serialized extended key does not match the calculated value.
	ErrBadChecksum = errors.New("bad extended key checksum")

	// ErrInvalidKeyLen describes an error in which the provided serialized
	// key is not the expected length.
	ErrInvalidKeyLen = errors.New("the provided serialized extended key length is invalid")

	// ErrWrongNetwork describes an error in which the provided serialized
	// extended key's version bytes do not match the given network.
	ErrWrongNetwork = errors.New("serialized extended key is not for the given network")
)

// masterKey is the master key used along with a random seed used to generate
// the master node in the hierarchical tree.
var masterKey = []byte("Bitcoin seed")

// ExtendedKey houses all the information needed to support a BIP32
// hierarchical deterministic extended key, and also contains the
// functionality needed to derive child keys of it.
type ExtendedKey struct {
	privKeyBytes []byte // nil if this is a public-only key
	pubKeyBytes  []byte // always populated, 33-byte compressed form
	chainCode    []byte // 32 bytes
	parentFP     []byte // 4 bytes, fingerprint of the parent key
	depth        uint8
	childNum     uint32
	isPrivate    bool
}

// NewExtendedKey returns a new extended key constructed from the given
// parameters. privKey may be nil, in which case the returned key is a
// public-only key; in that case pubKey must be non-nil.
func NewExtendedKey(pubKey, privKey, chainCode, parentFP []byte, depth uint8, childNum uint32) *ExtendedKey {
	k := &ExtendedKey{
		pubKeyBytes: pubKey,
		chainCode:   chainCode,
		parentFP:    parentFP,
		depth:       depth,
		childNum:    childNum,
	}
	if len(privKey) > 0 {
		k.privKeyBytes = privKey
		k.isPrivate = true
		if len(pubKey) == 0 {
			k.pubKeyBytes = serializeCompressedPubKey(privKey)
		}
	}
	return k
}

func serializeCompressedPubKey(privKey []byte) []byte {
	priv := secp256k1.PrivKeyFromBytes(privKey)
	return priv.PubKey().SerializeCompressed()
}

// IsPrivate returns whether the extended key contains a private key.
func (k *ExtendedKey) IsPrivate() bool { return k.isPrivate }

// Depth returns the current derivation depth of the key, 0 for the master
// node.
func (k *ExtendedKey) Depth() uint8 { return k.depth }

// ChildNum returns the index used to derive this key from its parent.
func (k *ExtendedKey) ChildNum() uint32 { return k.childNum }

// ParentFingerprint returns the fingerprint of the parent this key was
// derived from, all zero for a master/root key.
func (k *ExtendedKey) ParentFingerprint() []byte {
	fp := make([]byte, 4)
	copy(fp, k.parentFP)
	return fp
}

// ChainCode returns a copy of the 32-byte chain code (callers of this
// package only ever see it unlocked; the keychain package is responsible
// for zeroizing/locking ciphertext at rest).
func (k *ExtendedKey) ChainCode() []byte {
	cc := make([]byte, len(k.chainCode))
	copy(cc, k.chainCode)
	return cc
}

// SerializedPubKey returns the 33-byte compressed public key.
func (k *ExtendedKey) SerializedPubKey() []byte {
	pk := make([]byte, len(k.pubKeyBytes))
	copy(pk, k.pubKeyBytes)
	return pk
}

// SerializedPrivKey returns the 32-byte raw private key scalar, or nil if
// this is a public-only key. The canonical representation carries no
// leading zero byte.
func (k *ExtendedKey) SerializedPrivKey() []byte {
	if !k.isPrivate {
		return nil
	}
	pk := make([]byte, len(k.privKeyBytes))
	copy(pk, k.privKeyBytes)
	return pk
}

// ECPubKey converts the extended key's public key to a secp256k1.PublicKey.
func (k *ExtendedKey) ECPubKey() (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(k.pubKeyBytes)
}

// ECPrivKey converts the extended key's private key to a
// secp256k1.PrivateKey. Returns ErrNotPrivExtKey if this is a public-only
// key.
func (k *ExtendedKey) ECPrivKey() (*secp256k1.PrivateKey, error) {
	if !k.isPrivate {
		return nil, ErrNotPrivExtKey
	}
	return secp256k1.PrivKeyFromBytes(k.privKeyBytes), nil
}

// fingerprint returns the first 4 bytes of Hash160(pubkey), used as the
// parent fingerprint field of a derived child.
func (k *ExtendedKey) fingerprint() []byte {
	pkHash := hash160(k.pubKeyBytes)
	return pkHash[:4]
}

// Child returns a derived child extended key at the given index. Normal
// (non-hardened) children can be derived from a public-only key; hardened
// children (index >= HardenedKeyStart) require a private key.
//
// There is a vanishingly small chance (< 1 in 2^127) that a particular
// index produces an invalid key, in which case ErrInvalidChild is returned
// and the caller is expected to retry with index+1, exactly as BIP32
// specifies.
func (k *ExtendedKey) Child(i uint32) (*ExtendedKey, error) {
	isChildHardened := i >= HardenedKeyStart
	if isChildHardened && !k.isPrivate {
		return nil, ErrDeriveHardFromPublic
	}
	if k.depth == 255 {
		return nil, ErrDeriveBeyondMaxDepth
	}

	// The data used in HMAC-SHA512 is the serialized public key, or the
	// 33-byte 0x00||privkey for a hardened child, followed by the
	// big-endian child index, as BIP32 specifies.
	keyLen := 33
	data := make([]byte, keyLen+4)
	switch {
	case isChildHardened:
		copy(data[1:], k.privKeyBytes)
	default:
		copy(data, k.pubKeyBytes)
	}
	binary.BigEndian.PutUint32(data[keyLen:], i)

	hmac512 := hmac.New(sha512.New, k.chainCode)
	hmac512.Write(data)
	ilr := hmac512.Sum(nil)

	il := ilr[:len(ilr)/2]
	childChainCode := ilr[len(ilr)/2:]

	var ilNum secp256k1.ModNScalar
	if overflow := ilNum.SetByteSlice(il); overflow || ilNum.IsZero() {
		return nil, ErrInvalidChild
	}

	var childKey *ExtendedKey
	if k.isPrivate {
		var keyNum secp256k1.ModNScalar
		keyNum.SetByteSlice(k.privKeyBytes)
		ilNum.Add(&keyNum)
		if ilNum.IsZero() {
			return nil, ErrInvalidChild
		}
		childPrivBytes := ilNum.Bytes()
		childKey = &ExtendedKey{
			privKeyBytes: childPrivBytes[:],
			chainCode:    childChainCode,
			parentFP:     k.fingerprint(),
			depth:        k.depth + 1,
			childNum:     i,
			isPrivate:    true,
		}
		childKey.pubKeyBytes = serializeCompressedPubKey(childKey.privKeyBytes)
	} else {
		pubKey, err := secp256k1.ParsePubKey(k.pubKeyBytes)
		if err != nil {
			return nil, err
		}

		var ilPoint secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(&ilNum, &ilPoint)
		if (ilPoint.X.IsZero() && ilPoint.Y.IsZero()) || ilPoint.Z.IsZero() {
			return nil, ErrInvalidChild
		}

		var pubJacobian secp256k1.JacobianPoint
		pubKey.AsJacobian(&pubJacobian)

		var childJacobian secp256k1.JacobianPoint
		secp256k1.AddNonConst(&ilPoint, &pubJacobian, &childJacobian)
		childJacobian.ToAffine()
		childPubKey := secp256k1.NewPublicKey(&childJacobian.X, &childJacobian.Y)

		childKey = &ExtendedKey{
			pubKeyBytes: childPubKey.SerializeCompressed(),
			chainCode:   childChainCode,
			parentFP:    k.fingerprint(),
			depth:       k.depth + 1,
			childNum:    i,
			isPrivate:   false,
		}
	}

	return childKey, nil
}

// Neuter returns a new extended key identical to this one but with the
// private key removed, suitable for handing to a watch-only party.
func (k *ExtendedKey) Neuter() *ExtendedKey {
	if !k.isPrivate {
		return k
	}
	return &ExtendedKey{
		pubKeyBytes: k.pubKeyBytes,
		chainCode:   k.chainCode,
		parentFP:    k.parentFP,
		depth:       k.depth,
		childNum:    k.childNum,
		isPrivate:   false,
	}
}

// NewMaster creates a new master node (depth 0, child number 0, zero parent
// fingerprint) for use in creating a hierarchical deterministic key chain.
// The seed must be between MinSeedBytes and MaxSeedBytes long.
func NewMaster(seed []byte, params *chaincfg.Params) (*ExtendedKey, error) {
	if len(seed) < MinSeedBytes || len(seed) > MaxSeedBytes {
		return nil, ErrInvalidSeedLen
	}

	hmac512 := hmac.New(sha512.New, masterKey)
	hmac512.Write(seed)
	lr := hmac512.Sum(nil)

	secretKey := lr[:len(lr)/2]
	chainCode := lr[len(lr)/2:]

	var keyNum secp256k1.ModNScalar
	if overflow := keyNum.SetByteSlice(secretKey); overflow || keyNum.IsZero() {
		return nil, ErrInvalidChild
	}

	return NewExtendedKey(nil, secretKey, chainCode, []byte{0x00, 0x00, 0x00, 0x00}, 0, 0), nil
}

// String returns the full BIP32 Base58Check-encoded extended key, public or
// private depending on whether the key holds a private component.
func (k *ExtendedKey) String(params *chaincfg.Params) string {
	if k == nil {
		return ""
	}

	var version [4]byte
	if k.isPrivate {
		version = params.HDPrivateKeyID
	} else {
		version = params.HDPublicKeyID
	}

	var serialized [serializedKeyLen]byte
	off := 0
	off += copy(serialized[off:], version[:])
	serialized[off] = k.depth
	off++
	off += copy(serialized[off:], k.parentFP)
	binary.BigEndian.PutUint32(serialized[off:], k.childNum)
	off += 4
	off += copy(serialized[off:], k.chainCode)
	if k.isPrivate {
		serialized[off] = 0x00
		off++
		off += copy(serialized[off:], k.privKeyBytes)
	} else {
		off += copy(serialized[off:], k.pubKeyBytes)
	}

	checkSum := doubleHash(serialized[:])[:4]
	fullSerialized := append(serialized[:], checkSum...)
	return base58.Encode(fullSerialized)
}

// NewKeyFromString parses a BIP32 Base58Check-encoded extended key string
// and returns the corresponding ExtendedKey, validating that the version
// bytes match the given network.
func NewKeyFromString(key string, params *chaincfg.Params) (*ExtendedKey, error) {
	decoded := base58.Decode(key)
	if len(decoded) != serializedKeyLen+4 {
		return nil, ErrInvalidKeyLen
	}

	payload, cksum := decoded[:serializedKeyLen], decoded[serializedKeyLen:]
	gotCksum := doubleHash(payload)[:4]
	if !bytes.Equal(gotCksum, cksum) {
		return nil, ErrBadChecksum
	}

	var version [4]byte
	copy(version[:], payload[0:4])
	isPrivate := version == params.HDPrivateKeyID
	if !isPrivate && version != params.HDPublicKeyID {
		return nil, ErrWrongNetwork
	}

	depth := payload[4]
	parentFP := payload[5:9]
	childNum := binary.BigEndian.Uint32(payload[9:13])
	chainCode := payload[13:45]
	keyData := payload[45:78]

	if isPrivate {
		// keyData[0] is the 0x00 padding byte.
		return NewExtendedKey(nil, keyData[1:], chainCode, parentFP, depth, childNum), nil
	}
	return NewExtendedKey(keyData, nil, chainCode, parentFP, depth, childNum), nil
}

// Zero clears the extended key's sensitive data (private key and chain
// code) from memory.
func (k *ExtendedKey) Zero() {
	zero(k.privKeyBytes)
	zero(k.chainCode)
	k.isPrivate = false
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
