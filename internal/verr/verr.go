// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package verr defines the closed set of error kinds every public vault
// operation can fail with (spec §7). Every vault-facing error is a *Error
// wrapping one of these Kind values, so callers can branch on kind with
// errors.Is/errors.As instead of string-matching messages, and the CLI/
// JSON-RPC wrappers this repo is not responsible for can map Kind to their
// own exit codes / {code, message} objects.
package verr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of vault error categories.
type Kind int

const (
	_ Kind = iota

	NameInvalid
	NameAlreadyExists
	NotFound

	KeychainPublicOnly
	KeyLocked
	ChainCodeLocked
	BadPassphrase

	AccountPolicyInvalid

	ScriptPoolExhausted

	InsufficientFunds
	FeeTooLow

	TxAlreadyExists
	TxUnknown
	TxStillUnsigned
	TxConflict

	SignatureInvalid
	SignatureSlotOccupied
	UnsupportedSigHashType

	BlockHeaderUnknown
	MerkleProofInvalid

	SchemaMigrationNeeded
	SchemaFutureVersion

	SerializationError
	IOError
)

var kindNames = map[Kind]string{
	NameInvalid:            "name invalid",
	NameAlreadyExists:      "name already exists",
	NotFound:               "not found",
	KeychainPublicOnly:     "keychain is public-only",
	KeyLocked:              "key is locked",
	ChainCodeLocked:        "chain code is locked",
	BadPassphrase:          "bad passphrase",
	AccountPolicyInvalid:   "account policy invalid",
	ScriptPoolExhausted:    "script pool exhausted",
	InsufficientFunds:      "insufficient funds",
	FeeTooLow:              "fee too low",
	TxAlreadyExists:        "transaction already exists",
	TxUnknown:              "transaction unknown",
	TxStillUnsigned:        "transaction still unsigned",
	TxConflict:             "transaction conflict",
	SignatureInvalid:       "signature invalid",
	SignatureSlotOccupied:  "signature slot occupied",
	UnsupportedSigHashType: "unsupported sighash type",
	BlockHeaderUnknown:     "block header unknown",
	MerkleProofInvalid:     "merkle proof invalid",
	SchemaMigrationNeeded:  "schema migration needed",
	SchemaFutureVersion:    "schema is a future, unknown version",
	SerializationError:     "serialization error",
	IOError:                "I/O error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error kind"
}

// Error is the concrete error type every public vault operation returns on
// failure. It is never constructed with a bare message; Kind always
// classifies what happened, and Newf/Wrap/WrapSubject attach whatever extra context
// applies (an entity kind for NotFound, {from,to} for schema errors, etc).
type Error struct {
	Kind    Kind
	Subject string // e.g. the entity kind for NotFound, the keychain name for BadPassphrase
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Subject != "" && e.Cause != nil:
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Subject, e.Cause)
	case e.Subject != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, letting callers
// write errors.Is(err, verr.New(verr.NotFound)).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds a bare *Error of the given kind.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Newf builds an *Error of the given kind with a subject string.
func Newf(kind Kind, subjectFormat string, args ...any) *Error {
	return &Error{Kind: kind, Subject: fmt.Sprintf(subjectFormat, args...)}
}

// Wrap builds an *Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// WrapSubject builds an *Error of the given kind with both a subject and a
// wrapped cause.
func WrapSubject(kind Kind, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Cause: cause}
}

// Of reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
