// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the network parameters a vault is opened against.
//
// The vault core never hard-codes an address-version byte or BIP32 magic;
// every operation that needs one takes a *Params value explicitly. Callers
// select one of the predefined network Params (MainNetParams, TestNetParams,
// SimNetParams) or construct their own for an alternate chain.
//
//	params := chaincfg.MainNetParams()
//	v, err := vault.Open(path, params)
package chaincfg
