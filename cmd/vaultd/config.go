// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/ciphrex/vaultd/chaincfg"
)

const (
	defaultDataDirname  = "data"
	defaultLogDirname   = "logs"
	defaultLogFilename  = "vaultd.log"
	defaultMaxLogRolls  = 10
	appName             = "vaultd"
)

// config holds every vaultd command-line/config-file option, in the shape
// jessevdk/go-flags expects: one struct of tagged fields, the same pattern
// the teacher's own daemon config uses.
type config struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file (accepted but not read; only command-line flags are parsed)"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the vault database"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	TestNet     bool   `long:"testnet" description:"Use the test network"`
	SimNet      bool   `long:"simnet" description:"Use the simulation test network"`
	Passphrase  string `long:"passphrase" description:"Keychain sealing passphrase (accepted but not used by vaultd, which creates no keychains)"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical"`
}

func defaultHomeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "."+appName)
}

func defaultConfig() config {
	home := defaultHomeDir()
	return config{
		DataDir:    filepath.Join(home, defaultDataDirname),
		LogDir:     filepath.Join(home, defaultLogDirname),
		DebugLevel: "info",
	}
}

// loadConfig parses command-line flags over top of the defaults, the same
// two-pass shape (defaults, then flags.Parse) the teacher's loadConfig
// uses, minus the INI config-file merge step this vault's narrower scope
// doesn't need.
func loadConfig() (*config, error) {
	cfg := defaultConfig()
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if cfg.TestNet && cfg.SimNet {
		return nil, fmt.Errorf("testnet and simnet are mutually exclusive")
	}

	return &cfg, nil
}

func (cfg *config) netParams() *chaincfg.Params {
	switch {
	case cfg.SimNet:
		return chaincfg.SimNetParams()
	case cfg.TestNet:
		return chaincfg.TestNetParams()
	default:
		return chaincfg.MainNetParams()
	}
}
