// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package nodekey loads and creates the private key file that gives a node
// its identity.
package nodekey

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/syncthing/discoping/lib/osutil"
)

const keyLength = 32

var ErrInvalidKey = errors.New("invalid node key")

// Load reads a private key file. The file holds either the 32 raw bytes of
// the key, or the key as 64 hexadecimal characters optionally followed by
// white space.
func Load(path string) ([]byte, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// Parse interprets the contents of a key file.
func Parse(bs []byte) ([]byte, error) {
	var key []byte
	switch {
	case len(bs) == keyLength:
		key = bs
	case len(bytes.TrimSpace(bs)) == 2*keyLength:
		key = make([]byte, keyLength)
		if _, err := hex.Decode(key, bytes.TrimSpace(bs)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
	default:
		return nil, fmt.Errorf("%w: expected %d raw bytes or %d hex characters, got %d bytes", ErrInvalidKey, keyLength, 2*keyLength, len(bs))
	}
	if _, err := crypto.ToECDSA(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// Generate creates a new random key and writes it in raw form to path,
// readable by the owner only. An existing file is replaced.
func Generate(path string) ([]byte, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	key := crypto.FromECDSA(priv)

	fd, err := osutil.CreateAtomic(path)
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	if _, err := fd.Write(key); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	if err := fd.Close(); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return key, nil
}
