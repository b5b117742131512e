// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package account

import "github.com/ciphrex/vaultd/store"

// HorizonTimestamp computes the HorizonTimestampView spec §6 describes: the
// earliest TimeCreated across every account in the store, i.e. the earliest
// moment any of this vault's addresses could have received a payment, and
// so how far back a rescanning client needs to request blocks from. ok is
// false if the store has no accounts yet.
func HorizonTimestamp(tx *store.Tx) (timestamp int64, ok bool, err error) {
	accounts, err := List(tx)
	if err != nil {
		return 0, false, err
	}
	if len(accounts) == 0 {
		return 0, false, nil
	}
	min := accounts[0].TimeCreated
	for _, a := range accounts[1:] {
		if a.TimeCreated < min {
			min = a.TimeCreated
		}
	}
	return min, true, nil
}
