// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	"github.com/syncthing/discoping/lib/canonical"
)

var (
	localEP  = Endpoint{IP: [4]byte{127, 0, 0, 1}, UDP: 30303, TCP: 30303}
	remoteEP = Endpoint{IP: [4]byte{13, 93, 211, 84}, UDP: 30303, TCP: 30303}
)

func TestNewPingExpiration(t *testing.T) {
	now := time.Unix(1700000000, 999999999)
	p, err := NewPing(localEP, remoteEP, now)
	if err != nil {
		t.Fatal(err)
	}
	if p.Expiration != 1700000060 {
		t.Errorf("expiration %d, expected 1700000060", p.Expiration)
	}
	if p.Expired(now) {
		t.Error("fresh ping should not be expired")
	}
	if !p.Expired(now.Add(61 * time.Second)) {
		t.Error("ping should be expired after the validity window")
	}
	if !p.ExpiresAt().Equal(time.Unix(1700000060, 0)) {
		t.Errorf("unexpected expiry time %v", p.ExpiresAt())
	}
}

func TestNewPingClockError(t *testing.T) {
	for _, now := range []time.Time{time.Unix(-1, 0), time.Unix(math.MaxUint32, 0)} {
		if _, err := NewPing(localEP, remoteEP, now); !errors.Is(err, ErrClock) {
			t.Errorf("%v: expected ErrClock, got %v", now, err)
		}
	}
}

func TestPingEncoding(t *testing.T) {
	p, err := NewPing(localEP, remoteEP, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}

	bs, err := EncodeMessage(p)
	if err != nil {
		t.Fatal(err)
	}
	const expected = "01" + "dd" + "cb847f00000182765f82765f" + "cb840d5dd35482765f82765f" + "846553f13c"
	if got := hex.EncodeToString(bs); got != expected {
		t.Errorf("encoded to %s, expected %s", got, expected)
	}

	again, err := EncodeMessage(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bs, again) {
		t.Error("encoding the same ping twice should give identical bytes")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	pings := []Ping{
		{From: localEP, To: remoteEP, Expiration: 1700000060},
		{From: Endpoint{}, To: Endpoint{}, Expiration: 0},
		{From: remoteEP, To: Endpoint{IP: [4]byte{255, 255, 255, 255}, UDP: 65535, TCP: 1}, Expiration: math.MaxUint32},
	}
	for _, p := range pings {
		bs, err := EncodeMessage(p)
		if err != nil {
			t.Fatal(err)
		}
		msg, err := DecodeMessage(bs)
		if err != nil {
			t.Fatalf("%x: %v", bs, err)
		}
		if msg.Type() != PingType {
			t.Errorf("decoded type %v", msg.Type())
		}
		if diff, equal := messagediff.PrettyDiff(p, msg.(Ping)); !equal {
			t.Errorf("round trip differs:\n%s", diff)
		}
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	ping, err := EncodeMessage(Ping{From: localEP, To: remoteEP, Expiration: 1})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, canonical.ErrDecoding},
		{"tag only", []byte{byte(PingType)}, canonical.ErrDecoding},
		{"unknown tag", []byte{0x09, 0xc0}, ErrUnknownType},
		{"pong has no body decoder", append([]byte{byte(PongType)}, ping[1:]...), ErrUnknownType},
		{"truncated body", ping[:len(ping)-2], canonical.ErrDecoding},
		{"trailing garbage", append(append([]byte{}, ping...), 0x01), canonical.ErrDecoding},
	}
	for _, tc := range cases {
		if _, err := DecodeMessage(tc.data); !errors.Is(err, tc.err) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}
}

func TestMessageTypeString(t *testing.T) {
	for typ, s := range map[MessageType]string{
		PingType:       "ping",
		PongType:       "pong",
		FindNodeType:   "findnode",
		NeighboursType: "neighbours",
		0x7f:           "unknown(0x7f)",
	} {
		if typ.String() != s {
			t.Errorf("%d: %q != %q", typ, typ.String(), s)
		}
	}
}
