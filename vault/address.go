// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package vault

import (
	"github.com/ciphrex/vaultd/address"
	"github.com/ciphrex/vaultd/chaincfg"
)

func addressFromHash160(hash160 [20]byte, params *chaincfg.Params) string {
	return address.EncodeScriptHash(hash160, params)
}
