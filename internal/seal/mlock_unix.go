// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build unix

package seal

import "golang.org/x/sys/unix"

func mlock(b []byte) bool {
	return unix.Mlock(b) == nil
}

func munlock(b []byte) {
	_ = unix.Munlock(b)
}
