// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

// Params holds the chain-specific magic numbers that the vault core needs in
// order to derive keys and addresses for one particular network. Nothing in
// this package is mutable global state: every address, WIF, and extended-key
// operation in the rest of the module takes a *Params value as an explicit
// argument rather than consulting a process-wide "active network" variable.
type Params struct {
	// Name is the human-readable network name, e.g. "mainnet".
	Name string

	// Net is the magic 4-byte value placed at the start of every wire
	// message for this network; used only to tag exported framing blobs,
	// never interpreted by the vault core.
	Net uint32

	// PubKeyHashAddrID is the version byte used for legacy
	// pay-to-pubkey-hash address encoding (not issued by this vault,
	// which deals exclusively in P2SH addresses, but required to decode
	// addresses supplied as spend destinations).
	PubKeyHashAddrID byte

	// ScriptHashAddrID is the version byte prepended to a script hash
	// before Base58Check encoding to form a P2SH address. Every signing
	// script this vault issues is encoded with this version byte.
	ScriptHashAddrID byte

	// PrivateKeyID is the version byte used for WIF-encoded private keys.
	PrivateKeyID byte

	// HDPrivateKeyID and HDPublicKeyID are the four-byte BIP32 version
	// prefixes ("xprv"/"xpub" on mainnet Bitcoin) used when serializing
	// extended keys for keychain export/import.
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// HDCoinType is the BIP44 coin type used when a caller asks the
	// vault to derive along a full BIP44 path rather than a bare index.
	HDCoinType uint32
}

// MainNetParams returns the network parameters for the production Bitcoin
// network.
func MainNetParams() *Params {
	return &Params{
		Name:             "mainnet",
		Net:              0xd9b4bef9,
		PubKeyHashAddrID: 0x00,
		ScriptHashAddrID: 0x05,
		PrivateKeyID:     0x80,
		HDPrivateKeyID:   [4]byte{0x04, 0x88, 0xAD, 0xE4}, // xprv
		HDPublicKeyID:    [4]byte{0x04, 0x88, 0xB2, 0x1E}, // xpub
		HDCoinType:       0,
	}
}

// TestNetParams returns the network parameters for the public Bitcoin test
// network (testnet3).
func TestNetParams() *Params {
	return &Params{
		Name:             "testnet",
		Net:              0x0709110b,
		PubKeyHashAddrID: 0x6f,
		ScriptHashAddrID: 0xc4,
		PrivateKeyID:     0xef,
		HDPrivateKeyID:   [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
		HDPublicKeyID:    [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub
		HDCoinType:       1,
	}
}

// SimNetParams returns the network parameters for a local, isolated
// simulation network (selected by vaultd's --simnet flag); it shares
// testnet's address versions but carries
// its own network magic so blobs exported from one can't be mistaken for
// the other's.
func SimNetParams() *Params {
	p := *TestNetParams()
	p.Name = "simnet"
	p.Net = 0x12141c16
	return &p
}
