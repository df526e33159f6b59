// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package keccak provides the 256 bit content hash used for both the signed
// message digest and the outer packet integrity hash. This is the original
// Keccak padding, not the standardized SHA3-256.
package keccak

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

const Size = 32

// New returns a fresh Keccak-256 hash.
func New() hash.Hash {
	return sha3.NewLegacyKeccak256()
}

// Sum256 returns the Keccak-256 digest of data. Any input, including the
// empty slice, is valid.
func Sum256(data []byte) [Size]byte {
	var sum [Size]byte
	h := New()
	h.Write(data)
	h.Sum(sum[:0])
	return sum
}
