// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	rotator "github.com/jrick/logrotate"

	"github.com/ciphrex/vaultd/vault"
)

// logRotator writes to a rolling vaultd.log the same way EXCCoin-exccd's
// own logging setup does, via jrick/logrotate: every subsystem's backend
// writes through this one rotator instance.
var logRotator *rotator.Rotator

// logWriter forwards to both stdout and the file rotator, matching the
// teacher's dual stdout+file logging setup.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	logRotator.Write(p)
	return len(p), nil
}

var backendLog = slog.NewBackend(logWriter{})

// subsystem loggers, one per package, mirroring the teacher's per-package
// `var log = backendLog.Logger("XXXX")` convention exactly.
var (
	mainLog  = backendLog.Logger("MAIN")
	vaultLog = backendLog.Logger("VALT")
)

// subsystemLoggers maps a three/four-letter subsystem tag to the
// already-constructed slog.Logger for it, the same table-driven shape
// EXCCoin-exccd's setLogLevels walks.
var subsystemLoggers = map[string]slog.Logger{
	"MAIN": mainLog,
	"VALT": vaultLog,
}

func initLogRotator(logDir string) error {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile := filepath.Join(logDir, defaultLogFilename)
	r, err := rotator.New(logFile, 10*1024, false, defaultMaxLogRolls)
	if err != nil {
		return fmt.Errorf("failed to create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// useLogger sets the level of the named subsystem's logger; unknown
// subsystem tags are ignored. setLogLevels below calls it for every
// subsystem and then attaches vaultLog to package vault via its UseLogger
// hook.
func useLogger(subsystem string, level slog.Level) {
	l, ok := subsystemLoggers[subsystem]
	if !ok {
		return
	}
	l.SetLevel(level)
}

func setLogLevels(levelStr string) error {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("unknown debug level %q", levelStr)
	}
	for subsystem := range subsystemLoggers {
		useLogger(subsystem, level)
	}
	vault.UseLogger(vaultLog)
	return nil
}
