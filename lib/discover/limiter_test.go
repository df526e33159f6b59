// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"net"
	"testing"
)

func TestLimiterDisabled(t *testing.T) {
	l := newLimiter(0, 10, 10)
	if l != nil {
		t.Fatal("expected nil limiter for zero rate")
	}
	for i := 0; i < 1000; i++ {
		if !l.allow(net.IPv4(192, 0, 2, 1)) {
			t.Fatal("disabled limiter refused a packet")
		}
	}
}

func TestLimiterBurstPerSource(t *testing.T) {
	l := newLimiter(0.001, 3, 10)
	a := net.IPv4(192, 0, 2, 1)
	b := net.IPv4(192, 0, 2, 2)

	for i := 0; i < 3; i++ {
		if !l.allow(a) {
			t.Fatalf("packet %d within burst refused", i)
		}
	}
	if l.allow(a) {
		t.Error("packet beyond burst allowed")
	}
	if !l.allow(b) {
		t.Error("other source affected by limit")
	}
}

func TestLimiterMappedAddressesShareBucket(t *testing.T) {
	l := newLimiter(0.001, 1, 10)
	if !l.allow(net.IP{192, 0, 2, 1}) {
		t.Fatal("first packet refused")
	}
	// net.IPv4 returns the 16 byte mapped form of the same address.
	if l.allow(net.IPv4(192, 0, 2, 1)) {
		t.Error("mapped form of the same address got its own bucket")
	}
}

func TestLimiterForgetsOldSources(t *testing.T) {
	l := newLimiter(0.001, 1, 1)
	a := net.IPv4(192, 0, 2, 1)
	b := net.IPv4(192, 0, 2, 2)

	if !l.allow(a) {
		t.Fatal("first packet refused")
	}
	if l.allow(a) {
		t.Fatal("second packet allowed")
	}
	// Seeing b evicts a from the single entry cache.
	l.allow(b)
	if !l.allow(a) {
		t.Error("evicted source should start with a fresh bucket")
	}
}

func TestLimiterBadAddress(t *testing.T) {
	l := newLimiter(1, 1, 1)
	if l.allow(net.IP{1, 2, 3}) {
		t.Error("malformed address allowed")
	}
}
