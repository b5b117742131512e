// Copyright (c) 2025 The vaultd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package framing implements the small length-prefixed binary encoding used
// throughout this module for the on-disk records each domain package writes
// through package store. This module has no account export/import
// operation, so no export blob is written with it. It is
// deliberately not a general-purpose serialization library (no reflection,
// no schema evolution) — every record type writes and reads its own fields
// explicitly, in the manner of wire.MsgTx's own hand-rolled (de)serializers
// in the teacher's wire package.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer accumulates a framed binary record.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated record.
func (w *Writer) Bytes() []byte { return w.buf }

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

// PutBool appends a single byte, 1 for true.
func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
}

// PutUint32 appends a little-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutUint64 appends a little-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutInt64 appends a little-endian int64.
func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutFixed appends buf verbatim with no length prefix; use for fields whose
// length is fixed by the record's type (hashes, compressed pubkeys).
func (w *Writer) PutFixed(buf []byte) { w.buf = append(w.buf, buf...) }

// PutBytes appends a uint32-length-prefixed byte slice.
func (w *Writer) PutBytes(buf []byte) {
	w.PutUint32(uint32(len(buf)))
	w.buf = append(w.buf, buf...)
}

// PutString appends a uint32-length-prefixed UTF-8 string.
func (w *Writer) PutString(s string) { w.PutBytes([]byte(s)) }

// Reader consumes a framed binary record produced by Writer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for sequential reads.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

var errShortRecord = fmt.Errorf("framing: record too short")

func (r *Reader) need(n int) error {
	if len(r.buf)-r.off < n {
		return errShortRecord
	}
	return nil
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// Bool reads a single byte as a bool.
func (r *Reader) Bool() (bool, error) {
	v, err := r.Uint8()
	return v != 0, err
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// Int64 reads a little-endian int64.
func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// Fixed reads exactly n bytes with no length prefix.
func (r *Reader) Fixed(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, nil
}

// Bytes reads a uint32-length-prefixed byte slice.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return r.Fixed(int(n))
}

// String reads a uint32-length-prefixed UTF-8 string.
func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}

// Done reports whether the whole record has been consumed; callers should
// check this after reading a top-level record to reject trailing garbage.
func (r *Reader) Done() bool { return r.off == len(r.buf) }

// ErrTrailingData is returned by decoders that verify Done() themselves.
var ErrTrailingData = fmt.Errorf("framing: trailing data after record")

// ReadAll is a convenience for decoders that read an entire io.Reader
// before framing.NewReader. Nothing in this module calls it: the store
// path already has the full []byte from goleveldb.
func ReadAll(r io.Reader) ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
