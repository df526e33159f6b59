// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package canonical implements the deterministic, length prefixed encoding
// used as input to hashing and signing of discovery packets. The format is
// recursive length prefix (RLP): integers are minimal big endian byte
// strings, byte strings and lists carry their length up front.
package canonical

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrEncoding is returned for values that have no canonical encoding.
	// None of the protocol types can produce it.
	ErrEncoding = errors.New("canonical encoding")
	// ErrDecoding is returned for input that is not a well formed encoding
	// of the expected value.
	ErrDecoding = errors.New("canonical decoding")
)

// A Marshaler can append its own canonical encoding to an Encoder.
type Marshaler interface {
	MarshalCanonical(e *Encoder)
}

// An Encoder builds one canonical encoding. Lists may be written either from
// a known set of values (Value with a []any) or streamed, by calling List,
// appending the items and sealing with ListEnd, at which point the length
// prefix is patched in.
type Encoder struct {
	buf  rlp.EncoderBuffer
	err  error
	done bool
}

func NewEncoder() *Encoder {
	return &Encoder{buf: rlp.NewEncoderBuffer(nil)}
}

// Uint appends an unsigned integer in its minimal big endian form. Zero is
// the empty string.
func (e *Encoder) Uint(v uint64) {
	e.buf.WriteUint64(v)
}

// Bytes appends a byte string.
func (e *Encoder) Bytes(b []byte) {
	e.buf.WriteBytes(b)
}

// List opens a streamed list and returns the handle to pass to ListEnd.
func (e *Encoder) List() int {
	return e.buf.List()
}

// ListEnd seals the list opened by the List call that returned idx.
func (e *Encoder) ListEnd(idx int) {
	e.buf.ListEnd(idx)
}

// Value appends an arbitrary value. Supported are unsigned integers,
// non-negative signed integers, []byte, string, Marshaler and []any holding
// any of those. Once Value has failed the encoder stays failed and Result
// returns the first error.
func (e *Encoder) Value(v any) error {
	if e.err != nil {
		return e.err
	}
	switch v := v.(type) {
	case Marshaler:
		v.MarshalCanonical(e)
	case []byte:
		e.Bytes(v)
	case string:
		e.buf.WriteString(v)
	case uint8:
		e.Uint(uint64(v))
	case uint16:
		e.Uint(uint64(v))
	case uint32:
		e.Uint(uint64(v))
	case uint64:
		e.Uint(v)
	case uint:
		e.Uint(uint64(v))
	case int:
		if v < 0 {
			return e.fail(fmt.Errorf("%w: negative integer %d", ErrEncoding, v))
		}
		e.Uint(uint64(v))
	case int64:
		if v < 0 {
			return e.fail(fmt.Errorf("%w: negative integer %d", ErrEncoding, v))
		}
		e.Uint(uint64(v))
	case []any:
		idx := e.List()
		for _, item := range v {
			if err := e.Value(item); err != nil {
				return err
			}
		}
		e.ListEnd(idx)
	default:
		return e.fail(fmt.Errorf("%w: unsupported type %T", ErrEncoding, v))
	}
	return nil
}

func (e *Encoder) fail(err error) error {
	e.err = err
	return err
}

// Result returns the finished encoding and releases the encoder's buffer.
// The encoder must not be used afterwards.
func (e *Encoder) Result() ([]byte, error) {
	if e.done {
		return nil, fmt.Errorf("%w: encoder already finished", ErrEncoding)
	}
	e.done = true
	var out []byte
	if e.err == nil {
		out = e.buf.ToBytes()
	}
	_ = e.buf.Flush()
	return out, e.err
}

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	e := NewEncoder()
	if err := e.Value(v); err != nil {
		_, _ = e.Result()
		return nil, err
	}
	return e.Result()
}
