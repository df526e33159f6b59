// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package canonical

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ethereum/go-ethereum/rlp"
)

// An Unmarshaler reads its own canonical encoding from a Decoder.
type Unmarshaler interface {
	UnmarshalCanonical(d *Decoder) error
}

// A Decoder reads values from one canonical encoding. Integers with leading
// zero bytes and values running past the input are rejected. All returned
// errors wrap ErrDecoding.
type Decoder struct {
	s *rlp.Stream
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{s: rlp.NewStream(bytes.NewReader(b), uint64(len(b)))}
}

// List enters a list and returns the size of its content in bytes.
func (d *Decoder) List() (int, error) {
	size, err := d.s.List()
	if err != nil {
		return 0, decodeErr(err)
	}
	return int(size), nil
}

// ListEnd leaves the current list. Any elements not yet read are skipped,
// so that newer peers may append fields to a message.
func (d *Decoder) ListEnd() error {
	for d.s.MoreDataInList() {
		if _, err := d.s.Raw(); err != nil {
			return decodeErr(err)
		}
	}
	return decodeErr(d.s.ListEnd())
}

func (d *Decoder) Uint64() (uint64, error) {
	v, err := d.s.Uint64()
	return v, decodeErr(err)
}

func (d *Decoder) Uint32() (uint32, error) {
	v, err := d.Uint64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: integer %d overflows uint32", ErrDecoding, v)
	}
	return uint32(v), nil
}

func (d *Decoder) Uint16() (uint16, error) {
	v, err := d.Uint64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: integer %d overflows uint16", ErrDecoding, v)
	}
	return uint16(v), nil
}

// Bytes reads a byte string of any length.
func (d *Decoder) Bytes() ([]byte, error) {
	b, err := d.s.Bytes()
	return b, decodeErr(err)
}

// FixedBytes reads a byte string that must be exactly len(dst) long.
func (d *Decoder) FixedBytes(dst []byte) error {
	return decodeErr(d.s.ReadBytes(dst))
}

// End verifies that the whole input has been consumed.
func (d *Decoder) End() error {
	_, _, err := d.s.Kind()
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return fmt.Errorf("%w: trailing data after value", ErrDecoding)
	default:
		return decodeErr(err)
	}
}

// Unmarshal decodes b into v, requiring that b holds exactly one value.
func Unmarshal(b []byte, v Unmarshaler) error {
	d := NewDecoder(b)
	if err := v.UnmarshalCanonical(d); err != nil {
		return err
	}
	return d.End()
}

func decodeErr(err error) error {
	if err == nil || errors.Is(err, ErrDecoding) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDecoding, err)
}
