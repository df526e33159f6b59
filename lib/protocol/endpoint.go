// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/syncthing/discoping/lib/canonical"
)

// An Endpoint is the network address triple a node is reachable at. Only
// IPv4 is supported.
type Endpoint struct {
	IP  [4]byte
	UDP uint16
	TCP uint16
}

// NewEndpoint returns the endpoint for the given IPv4 address and ports.
func NewEndpoint(ip net.IP, udp, tcp uint16) (Endpoint, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return Endpoint{}, fmt.Errorf("%w: %v is not an IPv4 address", ErrAddressParse, ip)
	}
	e := Endpoint{UDP: udp, TCP: tcp}
	copy(e.IP[:], ip4)
	return e, nil
}

// ParseEndpoint parses "ip:udp" or "ip:udp:tcp". When the TCP port is
// omitted it is assumed to equal the UDP port.
func ParseEndpoint(s string) (Endpoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return Endpoint{}, fmt.Errorf("%w: %q: expected ip:udp[:tcp]", ErrAddressParse, s)
	}

	addr, err := netip.ParseAddr(parts[0])
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrAddressParse, s, err)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return Endpoint{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrAddressParse, parts[0])
	}

	udp, err := parsePort(parts[1])
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrAddressParse, s, err)
	}
	tcp := udp
	if len(parts) == 3 {
		tcp, err = parsePort(parts[2])
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrAddressParse, s, err)
		}
	}

	return Endpoint{IP: addr.As4(), UDP: udp, TCP: tcp}, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("bad port %q", s)
	}
	return uint16(v), nil
}

// EndpointFromUDPAddr returns the endpoint of a UDP source address, with the
// given TCP port.
func EndpointFromUDPAddr(addr *net.UDPAddr, tcp uint16) (Endpoint, error) {
	if addr == nil {
		return Endpoint{}, fmt.Errorf("%w: nil address", ErrAddressParse)
	}
	return NewEndpoint(addr.IP, uint16(addr.Port), tcp)
}

func (e Endpoint) Addr() netip.Addr {
	return netip.AddrFrom4(e.IP)
}

// UDPAddr returns the address pings to this endpoint are sent to.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IP(e.IP[:]), Port: int(e.UDP)}
}

// WithUDP returns a copy of the endpoint with another UDP port.
func (e Endpoint) WithUDP(port uint16) Endpoint {
	e.UDP = port
	return e
}

func (e Endpoint) String() string {
	udp := netip.AddrPortFrom(e.Addr(), e.UDP).String()
	if e.TCP == e.UDP {
		return udp
	}
	return udp + ":" + strconv.Itoa(int(e.TCP))
}

func (e Endpoint) LogValue() slog.Value {
	return slog.StringValue(e.String())
}

func (e Endpoint) LogAttr() slog.Attr {
	return slog.String("endpoint", e.String())
}

func (e Endpoint) MarshalCanonical(enc *canonical.Encoder) {
	idx := enc.List()
	enc.Bytes(e.IP[:])
	enc.Uint(uint64(e.UDP))
	enc.Uint(uint64(e.TCP))
	enc.ListEnd(idx)
}

func (e *Endpoint) UnmarshalCanonical(d *canonical.Decoder) error {
	if _, err := d.List(); err != nil {
		return err
	}
	if err := d.FixedBytes(e.IP[:]); err != nil {
		return err
	}
	var err error
	if e.UDP, err = d.Uint16(); err != nil {
		return err
	}
	if e.TCP, err = d.Uint16(); err != nil {
		return err
	}
	return d.ListEnd()
}
