// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package address implements Base58Check address encoding and decoding for
// the two address classes a vault deals with: pay-to-script-hash (every
// signing script this vault issues) and pay-to-pubkey-hash (external
// payment destinations a caller may want to spend to). It is adapted from
// the hash160/WIF helpers of the teacher's exccutil package, generalized to
// take a *chaincfg.Params explicitly instead of relying on global network
// state.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/base58"
	"golang.org/x/crypto/ripemd160"

	"github.com/ciphrex/vaultd/chaincfg"
)

// ErrChecksumMismatch is returned by Decode when the base58-decoded
// checksum does not match the computed one.
var ErrChecksumMismatch = errors.New("address: checksum mismatch")

// ErrUnknownVersion is returned by Decode when the version byte matches
// neither of the supplied Params' script-hash or pubkey-hash IDs.
var ErrUnknownVersion = errors.New("address: unknown version byte")

// ErrMalformed is returned by Decode when the decoded payload is not
// version-byte-plus-20-byte-hash-plus-4-byte-checksum.
var ErrMalformed = errors.New("address: malformed payload")

const (
	hash160Len   = 20
	checksumLen  = 4
	addrPayload  = 1 + hash160Len
	addrEncoded  = addrPayload + checksumLen
	doubleSHALen = sha256.Size
)

// Hash160 computes RIPEMD160(SHA256(buf)), the digest used both for P2SH
// script hashes and P2PKH pubkey hashes.
func Hash160(buf []byte) [hash160Len]byte {
	sum := sha256.Sum256(buf)
	h := ripemd160.New()
	h.Write(sum[:])
	var out [hash160Len]byte
	copy(out[:], h.Sum(nil))
	return out
}

func doubleSHA256(buf []byte) [doubleSHALen]byte {
	first := sha256.Sum256(buf)
	return sha256.Sum256(first[:])
}

func checksum(payload []byte) [checksumLen]byte {
	sum := doubleSHA256(payload)
	var c [checksumLen]byte
	copy(c[:], sum[:checksumLen])
	return c
}

// Kind distinguishes the address classes this package encodes.
type Kind int

const (
	// KindScriptHash is a P2SH address (HASH160 <hash> EQUAL).
	KindScriptHash Kind = iota
	// KindPubKeyHash is a legacy P2PKH address.
	KindPubKeyHash
)

// Address is a decoded Base58Check Bitcoin-style address.
type Address struct {
	Kind Kind
	Hash [hash160Len]byte
}

// EncodeScriptHash Base58Check-encodes a script hash as a P2SH address for
// the given network.
func EncodeScriptHash(hash [hash160Len]byte, params *chaincfg.Params) string {
	return encode(params.ScriptHashAddrID, hash)
}

// EncodePubKeyHash Base58Check-encodes a pubkey hash as a P2PKH address for
// the given network.
func EncodePubKeyHash(hash [hash160Len]byte, params *chaincfg.Params) string {
	return encode(params.PubKeyHashAddrID, hash)
}

func encode(version byte, hash [hash160Len]byte) string {
	payload := make([]byte, 0, addrEncoded)
	payload = append(payload, version)
	payload = append(payload, hash[:]...)
	cksum := checksum(payload)
	payload = append(payload, cksum[:]...)
	return base58.Encode(payload)
}

// Decode parses a Base58Check address string against the given network,
// returning its class and 20-byte hash.
func Decode(addr string, params *chaincfg.Params) (*Address, error) {
	decoded := base58.Decode(addr)
	if len(decoded) != addrEncoded {
		return nil, fmt.Errorf("%w: got %d bytes", ErrMalformed, len(decoded))
	}

	payload, wantCksum := decoded[:addrPayload], decoded[addrPayload:]
	gotCksum := checksum(payload)
	for i := range gotCksum {
		if gotCksum[i] != wantCksum[i] {
			return nil, ErrChecksumMismatch
		}
	}

	version := payload[0]
	a := &Address{}
	switch version {
	case params.ScriptHashAddrID:
		a.Kind = KindScriptHash
	case params.PubKeyHashAddrID:
		a.Kind = KindPubKeyHash
	default:
		return nil, ErrUnknownVersion
	}
	copy(a.Hash[:], payload[1:])
	return a, nil
}

// String renders the address back to its Base58Check form for the given
// network.
func (a *Address) String(params *chaincfg.Params) string {
	switch a.Kind {
	case KindScriptHash:
		return EncodeScriptHash(a.Hash, params)
	default:
		return EncodePubKeyHash(a.Hash, params)
	}
}
