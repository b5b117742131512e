// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command vaultd is a thin daemon wrapper around package vault: it parses
// configuration, wires up logging, opens one vault store, and exits. It is
// deliberately not a wallet RPC server (spec §1 Non-goals exclude a JSON-RPC
// or P2P surface) — embedding applications are expected to import package
// vault directly for anything beyond this process's own lifecycle.
package main

import (
	"fmt"
	"os"

	"github.com/ciphrex/vaultd/vault"
)

func vaultdMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version())
		return nil
	}

	if err := initLogRotator(cfg.LogDir); err != nil {
		return err
	}
	if err := setLogLevels(cfg.DebugLevel); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	v, err := vault.Open(cfg.DataDir, cfg.netParams())
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}
	defer v.Close()

	mainLog.Infof("vaultd started, data directory %q", cfg.DataDir)
	return nil
}

func main() {
	if err := vaultdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
