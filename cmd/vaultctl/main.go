// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command vaultctl is a small operator tool for inspecting a vault store
// directly: it opens a store read-only and dumps every account and its
// bins with davecgh/go-spew, the way the teacher's own developers reach
// for spew.Dump when debugging a wallet/chain state issue instead of
// hand-rolling a formatter.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/ciphrex/vaultd/account"
	"github.com/ciphrex/vaultd/store"
)

func run() error {
	dataDir := flag.String("datadir", "", "vault data directory to inspect")
	flag.Parse()
	if *dataDir == "" {
		return fmt.Errorf("-datadir is required")
	}

	db, err := store.Open(*dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	storeTx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer storeTx.Discard()

	accounts, err := account.List(storeTx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	cfg := spew.NewDefaultConfig()
	cfg.DisableMethods = true
	for _, a := range accounts {
		cfg.Dump(a)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
