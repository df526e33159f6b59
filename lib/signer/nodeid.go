// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package signer

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/crypto"
)

// A NodeID is the uncompressed public key of a node, without the leading
// 0x04 marker byte.
type NodeID [64]byte

// PubkeyID returns the node ID for the given public key.
func PubkeyID(pub *ecdsa.PublicKey) NodeID {
	var id NodeID
	copy(id[:], crypto.FromECDSAPub(pub)[1:])
	return id
}

func NodeIDFromString(s string) (NodeID, error) {
	var id NodeID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

// Pubkey returns the public key the ID was derived from.
func (n NodeID) Pubkey() (*ecdsa.PublicKey, error) {
	return crypto.UnmarshalPubkey(append([]byte{0x04}, n[:]...))
}

func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// Short returns the first eight hex characters of the ID.
func (n NodeID) Short() string {
	return hex.EncodeToString(n[:4])
}

func (n NodeID) Equals(other NodeID) bool {
	return bytes.Equal(n[:], other[:])
}

func (n NodeID) LogAttr() slog.Attr {
	return slog.String("node", n.Short())
}

func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *NodeID) UnmarshalText(bs []byte) error {
	if hex.DecodedLen(len(bs)) != len(n) {
		return fmt.Errorf("node ID must be %d hex characters", 2*len(n))
	}
	_, err := hex.Decode(n[:], bs)
	return err
}
