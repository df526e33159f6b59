// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package packet assembles and takes apart discovery packets.
//
// A packet on the wire is
//
//	outer hash (32) || signature (64) || recovery id (1) || type (1) || body
//
// where the outer hash is the Keccak-256 of everything after it, and the
// signature is over the Keccak-256 of the type byte and body.
package packet

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/syncthing/discoping/lib/keccak"
	"github.com/syncthing/discoping/lib/protocol"
	"github.com/syncthing/discoping/lib/signer"
)

const (
	HashSize = keccak.Size

	// The signature and recovery id precede the tagged message.
	sigSize = signer.SignatureLength + 1

	// MinPayloadSize is the smallest signed payload that can hold a
	// signature and a message type.
	MinPayloadSize = sigSize + 1

	// MaxPacketSize is the largest datagram read from the network.
	MaxPacketSize = 1500
)

var (
	ErrTooShort     = errors.New("packet too short")
	ErrHashMismatch = errors.New("packet hash mismatch")
)

// Frame prepends the Keccak-256 of the payload to the payload.
func Frame(payload []byte) []byte {
	hash := keccak.Sum256(payload)
	wire := make([]byte, 0, HashSize+len(payload))
	wire = append(wire, hash[:]...)
	return append(wire, payload...)
}

// Parse splits a framed packet into its hash and payload, after verifying
// that the hash matches. The returned payload aliases wire.
func Parse(wire []byte) ([HashSize]byte, []byte, error) {
	var hash [HashSize]byte
	if len(wire) < HashSize {
		return hash, nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTooShort, len(wire), HashSize)
	}
	copy(hash[:], wire)
	payload := wire[HashSize:]
	if actual := keccak.Sum256(payload); !bytes.Equal(actual[:], hash[:]) {
		return hash, nil, ErrHashMismatch
	}
	return hash, payload, nil
}

// A Packet is a decoded and verified discovery packet.
type Packet struct {
	Hash     [HashSize]byte
	Sender   *ecdsa.PublicKey
	SenderID signer.NodeID
	Type     protocol.MessageType
	Message  protocol.Message
}

// Encode signs the message with s and returns the framed packet along with
// its outer hash.
func Encode(s *signer.Signer, m protocol.Message) ([]byte, [HashSize]byte, error) {
	tagged, err := protocol.EncodeMessage(m)
	if err != nil {
		return nil, [HashSize]byte{}, err
	}

	sig, err := s.Sign(keccak.Sum256(tagged))
	if err != nil {
		return nil, [HashSize]byte{}, err
	}

	payload := make([]byte, 0, sigSize+len(tagged))
	payload = append(payload, sig.Sig[:]...)
	payload = append(payload, sig.RecoveryID)
	payload = append(payload, tagged...)

	wire := Frame(payload)
	var hash [HashSize]byte
	copy(hash[:], wire)
	return wire, hash, nil
}

// Decode verifies and decodes a packet. The outer hash is checked first,
// then the signer is recovered, and only then is the message body parsed.
func Decode(ctx *signer.Context, wire []byte) (*Packet, error) {
	hash, payload, err := Parse(wire)
	if err != nil {
		return nil, err
	}
	return DecodePayload(ctx, hash, payload)
}

// DecodePayload decodes a signed payload whose outer hash has already been
// verified by Parse.
func DecodePayload(ctx *signer.Context, hash [HashSize]byte, payload []byte) (*Packet, error) {
	if len(payload) < MinPayloadSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, need at least %d", ErrTooShort, len(payload), MinPayloadSize)
	}

	var sig [signer.SignatureLength]byte
	copy(sig[:], payload)
	recid := payload[signer.SignatureLength]
	tagged := payload[sigSize:]

	pub, err := ctx.Recover(keccak.Sum256(tagged), sig, recid)
	if err != nil {
		return nil, err
	}

	pkt := &Packet{
		Hash:     hash,
		Sender:   pub,
		SenderID: signer.PubkeyID(pub),
		Type:     protocol.MessageType(tagged[0]),
	}
	pkt.Message, err = protocol.DecodeMessage(tagged)
	if err != nil {
		return nil, err
	}
	return pkt, nil
}
