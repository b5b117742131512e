// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !unix

package seal

func mlock(b []byte) bool { return false }

func munlock(b []byte) {}
