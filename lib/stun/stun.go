// Copyright (C) 2019 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package stun finds the address a UDP socket is reachable at from the
// outside, so that it can be advertised in pings instead of a private one.
package stun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/ccding/go-stun/stun"

	"github.com/syncthing/discoping/internal/slogutil"
	"github.com/syncthing/discoping/lib/protocol"
	"github.com/syncthing/discoping/lib/svcutil"
)

type (
	Host    = stun.Host
	NATType = stun.NATType
)

// NAT types.

const (
	NATError                = stun.NATError
	NATUnknown              = stun.NATUnknown
	NATNone                 = stun.NATNone
	NATBlocked              = stun.NATBlocked
	NATFull                 = stun.NATFull
	NATSymmetric            = stun.NATSymmetric
	NATRestricted           = stun.NATRestricted
	NATPortRestricted       = stun.NATPortRestricted
	NATSymmetricUDPFirewall = stun.NATSymmetricUDPFirewall
)

var ErrNotPunchable = errors.New("NAT type does not allow unsolicited packets")

// Discover asks the STUN server which address conn is seen from, and what
// kind of NAT is in between. The caller must not read from conn meanwhile.
func Discover(ctx context.Context, conn net.PacketConn, server string) (NATType, *Host, error) {
	// Resolve once so that all requests hit the same server address.
	udpAddr, err := net.ResolveUDPAddr("udp4", server)
	if err != nil {
		return NATError, nil, fmt.Errorf("resolving STUN server: %w", err)
	}

	client := stun.NewClientWithConnection(conn)
	client.SetSoftwareName("") // Explicitly unset this, seems to freak some servers out.
	client.SetServerAddr(udpAddr.String())

	var natType NATType
	var extAddr *Host
	err = svcutil.CallWithContext(ctx, func() error {
		var derr error
		natType, extAddr, derr = client.Discover()
		return derr
	})
	if err != nil {
		return NATError, nil, fmt.Errorf("STUN discovery via %s: %w", server, err)
	}
	if extAddr == nil {
		return natType, nil, fmt.Errorf("STUN discovery via %s: no address", server)
	}
	if natType == NATError || natType == NATUnknown || natType == NATBlocked {
		return natType, extAddr, fmt.Errorf("STUN discovery via %s: bad result: %v", server, natType)
	}

	slog.DebugContext(ctx, "STUN discovery done", slog.String("server", server), slog.String("nat", natType.String()), slogutil.Address(extAddr.TransportAddr()))
	return natType, extAddr, nil
}

// ExternalEndpoint returns the local endpoint with its address and UDP port
// replaced by the ones the STUN server saw. The TCP port is kept. An error
// wrapping ErrNotPunchable is returned when the NAT would not let pings in.
func ExternalEndpoint(ctx context.Context, conn net.PacketConn, server string, local protocol.Endpoint) (protocol.Endpoint, error) {
	natType, extAddr, err := Discover(ctx, conn, server)
	if err != nil {
		return local, err
	}
	if !Punchable(natType) {
		return local, fmt.Errorf("%w: %v", ErrNotPunchable, natType)
	}
	return mappedEndpoint(local, extAddr.IP(), extAddr.Port())
}

// Punchable returns true for NAT types that let packets from a peer in once
// we have sent to it.
func Punchable(natType NATType) bool {
	return natType == NATNone || natType == NATPortRestricted || natType == NATRestricted || natType == NATFull || natType == NATSymmetricUDPFirewall
}

func mappedEndpoint(local protocol.Endpoint, ip string, port uint16) (protocol.Endpoint, error) {
	ext, err := protocol.NewEndpoint(net.ParseIP(ip), port, local.TCP)
	if err != nil {
		return local, fmt.Errorf("STUN mapped address: %w", err)
	}
	return ext, nil
}
