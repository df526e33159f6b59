// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package packet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/syncthing/discoping/lib/canonical"
	"github.com/syncthing/discoping/lib/keccak"
	"github.com/syncthing/discoping/lib/protocol"
	"github.com/syncthing/discoping/lib/signer"
)

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := signer.FromECDSA(signer.Default(), key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testPing(t *testing.T) protocol.Ping {
	t.Helper()
	from, err := protocol.ParseEndpoint("127.0.0.1:30303")
	if err != nil {
		t.Fatal(err)
	}
	to, err := protocol.ParseEndpoint("13.93.211.84:30303")
	if err != nil {
		t.Fatal(err)
	}
	p, err := protocol.NewPing(from, to, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFrameParse(t *testing.T) {
	for _, payload := range [][]byte{nil, {0}, []byte("hello"), bytes.Repeat([]byte{0xa5}, 1400)} {
		wire := Frame(payload)
		if len(wire) != HashSize+len(payload) {
			t.Errorf("framed length %d, expected %d", len(wire), HashSize+len(payload))
		}
		hash, back, err := Parse(wire)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(back, payload) {
			t.Errorf("payload %x != %x", back, payload)
		}
		if hash != keccak.Sum256(payload) {
			t.Error("hash is not the Keccak-256 of the payload")
		}
	}
}

func TestParseDetectsBitFlips(t *testing.T) {
	wire := Frame([]byte("some payload that matters"))
	for i := range wire {
		for bit := 0; bit < 8; bit++ {
			flipped := bytes.Clone(wire)
			flipped[i] ^= 1 << bit
			if _, _, err := Parse(flipped); !errors.Is(err, ErrHashMismatch) {
				t.Fatalf("byte %d bit %d: expected ErrHashMismatch, got %v", i, bit, err)
			}
		}
	}
}

func TestParseTooShort(t *testing.T) {
	for _, n := range []int{0, 1, HashSize - 1} {
		if _, _, err := Parse(make([]byte, n)); !errors.Is(err, ErrTooShort) {
			t.Errorf("%d bytes: expected ErrTooShort, got %v", n, err)
		}
	}
}

func TestDecodeShortPayload(t *testing.T) {
	for _, n := range []int{0, 1, MinPayloadSize - 1} {
		wire := Frame(make([]byte, n))
		if _, err := Decode(signer.Default(), wire); !errors.Is(err, ErrTooShort) {
			t.Errorf("%d byte payload: expected ErrTooShort, got %v", n, err)
		}
	}
}

func TestPingScenario(t *testing.T) {
	s := testSigner(t)
	ping := testPing(t)

	wire, hash, err := Encode(s, ping)
	if err != nil {
		t.Fatal(err)
	}

	const body = "dd" + "cb847f00000182765f82765f" + "cb840d5dd35482765f82765f" + "846553f13c"
	if len(wire) != HashSize+MinPayloadSize+len(body)/2 {
		t.Fatalf("unexpected packet length %d", len(wire))
	}
	if !bytes.Equal(hash[:], wire[:HashSize]) {
		t.Error("returned hash is not the packet prefix")
	}
	if sum := keccak.Sum256(wire[HashSize:]); sum != hash {
		t.Error("outer hash does not cover the signed payload")
	}
	if wire[HashSize+sigSize] != byte(protocol.PingType) {
		t.Errorf("type byte %#x", wire[HashSize+sigSize])
	}
	if got := hex.EncodeToString(wire[HashSize+sigSize+1:]); got != body {
		t.Errorf("body %s, expected %s", got, body)
	}

	pkt, err := Decode(signer.Default(), wire)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Hash != hash {
		t.Error("decoded hash differs")
	}
	if !pkt.SenderID.Equals(s.ID()) {
		t.Errorf("sender %v, expected %v", pkt.SenderID, s.ID())
	}
	if pkt.Type != protocol.PingType {
		t.Errorf("type %v", pkt.Type)
	}
	if diff, equal := messagediff.PrettyDiff(ping, pkt.Message); !equal {
		t.Errorf("decoded message differs:\n%s", diff)
	}
}

func TestTamperingCaughtByOuterHash(t *testing.T) {
	s := testSigner(t)
	wire, _, err := Encode(s, testPing(t))
	if err != nil {
		t.Fatal(err)
	}

	// Changing the body without fixing the outer hash must be caught
	// before the signature is looked at.
	tampered := bytes.Clone(wire)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Decode(signer.Default(), tampered); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch, got %v", err)
	}

	// Breaking the recovery id as well still fails on the hash first.
	tampered[HashSize+signer.SignatureLength] = 0xff
	if _, err := Decode(signer.Default(), tampered); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch, got %v", err)
	}
}

func TestTamperingWithRehashChangesSender(t *testing.T) {
	s := testSigner(t)
	wire, _, err := Encode(s, testPing(t))
	if err != nil {
		t.Fatal(err)
	}

	payload := bytes.Clone(wire[HashSize:])
	payload[len(payload)-1] ^= 0x01
	pkt, err := Decode(signer.Default(), Frame(payload))
	if err == nil && pkt.SenderID.Equals(s.ID()) {
		t.Error("a modified body must not verify as the original sender")
	}
}

func TestDecodeBadRecoveryID(t *testing.T) {
	s := testSigner(t)
	wire, _, err := Encode(s, testPing(t))
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Clone(wire[HashSize:])
	payload[signer.SignatureLength] = 4
	if _, err := Decode(signer.Default(), Frame(payload)); !errors.Is(err, signer.ErrVerification) {
		t.Errorf("expected ErrVerification, got %v", err)
	}
}

func TestDecodeBadBody(t *testing.T) {
	s := testSigner(t)

	sign := func(tagged []byte) []byte {
		sig, err := s.Sign(keccak.Sum256(tagged))
		if err != nil {
			t.Fatal(err)
		}
		payload := append(sig.Sig[:], sig.RecoveryID)
		return Frame(append(payload, tagged...))
	}

	if _, err := Decode(signer.Default(), sign([]byte{0x01, 0xc0})); !errors.Is(err, canonical.ErrDecoding) {
		t.Errorf("empty ping body: expected ErrDecoding, got %v", err)
	}
	if _, err := Decode(signer.Default(), sign([]byte{0x02, 0xc0})); !errors.Is(err, protocol.ErrUnknownType) {
		t.Errorf("pong: expected ErrUnknownType, got %v", err)
	}
	if _, err := Decode(signer.Default(), sign([]byte{0x42})); !errors.Is(err, protocol.ErrUnknownType) {
		t.Errorf("unknown tag: expected ErrUnknownType, got %v", err)
	}
}

func TestDecodePayloadMatchesDecode(t *testing.T) {
	s := testSigner(t)
	wire, _, err := Encode(s, testPing(t))
	if err != nil {
		t.Fatal(err)
	}

	hash, payload, err := Parse(wire)
	if err != nil {
		t.Fatal(err)
	}
	split, err := DecodePayload(signer.Default(), hash, payload)
	if err != nil {
		t.Fatal(err)
	}
	whole, err := Decode(signer.Default(), wire)
	if err != nil {
		t.Fatal(err)
	}
	if split.Hash != whole.Hash || !split.SenderID.Equals(whole.SenderID) || split.Type != whole.Type {
		t.Errorf("DecodePayload gave %+v, Decode gave %+v", split, whole)
	}
	if diff, equal := messagediff.PrettyDiff(whole.Message, split.Message); !equal {
		t.Errorf("messages differ:\n%s", diff)
	}

	if _, err := DecodePayload(signer.Default(), hash, payload[:MinPayloadSize-1]); !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
}
