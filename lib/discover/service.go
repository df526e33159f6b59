// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/net/ipv4"

	"github.com/syncthing/discoping/internal/slogutil"
	"github.com/syncthing/discoping/lib/packet"
	"github.com/syncthing/discoping/lib/protocol"
	"github.com/syncthing/discoping/lib/signer"
)

// A live socket that keeps failing this many reads in a row is given up on.
const maxReadErrors = 30

type State int32

const (
	StateUnbound State = iota
	StateBound
	StateListening
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Identity is who we are: the endpoint we advertise in pings and the key
// we sign them with.
type Identity struct {
	Endpoint protocol.Endpoint
	Signer   *signer.Signer
}

type Config struct {
	// ListenIP is the local address to bind; nil means all IPv4
	// addresses.
	ListenIP net.IP

	// Port is the local UDP port to bind; zero picks an ephemeral port.
	// It is independent of the advertised endpoint, which differs from the
	// local address behind NAT.
	Port uint16

	// Inbound rate limit per source address, in packets per second, applied
	// to datagrams with a valid outer hash. Zero disables rate limiting.
	RateAvg       float64
	RateBurst     int
	RateCacheSize int
}

// A Handler processes one verified packet. A returned error causes the
// packet to be counted as dropped.
type Handler func(ctx context.Context, pkt *packet.Packet, src *net.UDPAddr) error

// packetConn is the part of *ipv4.PacketConn the service uses.
type packetConn interface {
	ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error)
	WriteTo(b []byte, cm *ipv4.ControlMessage, dst net.Addr) (int, error)
	Close() error
}

// A Service sends and receives discovery packets on a single UDP socket.
// Sending may happen from any goroutine while Serve runs the receive loop.
type Service struct {
	id       Identity
	sigCtx   *signer.Context
	conn     *net.UDPConn
	pc       packetConn
	limiter  *limiter
	handlers *xsync.MapOf[protocol.MessageType, Handler]
	state    atomic.Int32
	closing  sync.Once
	now      func() time.Time
}

// New binds the discovery socket on cfg.ListenIP and cfg.Port. If the
// identity endpoint has UDP port zero, it is updated to carry the bound
// port.
func New(cfg Config, id Identity) (*Service, error) {
	if id.Signer == nil {
		return nil, errNoSigner
	}

	listenIP := cfg.ListenIP
	if listenIP == nil {
		listenIP = net.IPv4zero
	}
	laddr := &net.UDPAddr{IP: listenIP, Port: int(cfg.Port)}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrBind, laddr, err)
	}
	if id.Endpoint.UDP == 0 {
		id.Endpoint.UDP = uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
		slog.Debug("Destination address reporting unavailable", slogutil.Error(err))
	}

	s := &Service{
		id:       id,
		sigCtx:   id.Signer.Context(),
		conn:     conn,
		pc:       pc,
		limiter:  newLimiter(cfg.RateAvg, cfg.RateBurst, cfg.RateCacheSize),
		handlers: xsync.NewMapOf[protocol.MessageType, Handler](),
		now:      time.Now,
	}
	s.handlers.Store(protocol.PingType, s.handlePing)
	s.state.Store(int32(StateBound))

	slog.Debug("Discovery socket bound", slogutil.Address(conn.LocalAddr()), id.Signer.ID().LogAttr())
	return s, nil
}

func (s *Service) State() State {
	return State(s.state.Load())
}

func (s *Service) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Endpoint returns the endpoint advertised as the sender of our pings.
func (s *Service) Endpoint() protocol.Endpoint {
	return s.id.Endpoint
}

func (s *Service) ID() signer.NodeID {
	return s.id.Signer.ID()
}

// Handle registers the handler for a message type, replacing any previous
// one. A nil handler removes the registration.
func (s *Service) Handle(t protocol.MessageType, h Handler) {
	if h == nil {
		s.handlers.Delete(t)
		return
	}
	s.handlers.Store(t, h)
}

// SendPing sends one signed ping to the target endpoint. It does not wait
// for or expect any answer.
func (s *Service) SendPing(target protocol.Endpoint) error {
	if s.State() == StateTerminated {
		return fmt.Errorf("%w: service is closed", ErrIO)
	}

	ping, err := protocol.NewPing(s.id.Endpoint, target, s.now())
	if err != nil {
		return err
	}
	wire, hash, err := packet.Encode(s.id.Signer, ping)
	if err != nil {
		return err
	}

	if _, err := s.pc.WriteTo(wire, nil, target.UDPAddr()); err != nil {
		metricSendErrors.Inc()
		return fmt.Errorf("%w: sending ping to %v: %w", ErrIO, target, err)
	}

	metricPacketsSent.WithLabelValues(protocol.PingType.String()).Inc()
	metricBytesSent.Add(float64(len(wire)))
	slog.Debug("Sent ping", target.LogAttr(), slog.Int("size", len(wire)), slog.String("hash", fmt.Sprintf("%x", hash[:8])))
	return nil
}

// Serve runs the receive loop until the service is closed or the context is
// cancelled, in which case it returns nil. Datagrams that fail any check
// are dropped and the loop continues. If the socket keeps failing, an error
// wrapping ErrIO is returned.
func (s *Service) Serve(ctx context.Context) error {
	for {
		cur := s.state.Load()
		if State(cur) == StateTerminated {
			return nil
		}
		if s.state.CompareAndSwap(cur, int32(StateListening)) {
			break
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	slog.DebugContext(ctx, "Receive loop starting", slogutil.Address(s.LocalAddr()))
	defer slog.DebugContext(ctx, "Receive loop stopped", slogutil.Address(s.LocalAddr()))

	buf := make([]byte, packet.MaxPacketSize)
	var failures int
	for {
		n, cm, src, err := s.pc.ReadFrom(buf)
		if err != nil {
			if s.State() == StateTerminated {
				return nil
			}
			metricReadErrors.Inc()
			failures++
			slog.DebugContext(ctx, "Socket read failed", slogutil.Error(err), slog.Int("failures", failures))
			if failures >= maxReadErrors {
				return fmt.Errorf("%w: %d consecutive read errors: %w", ErrIO, failures, err)
			}
			continue
		}
		failures = 0

		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		var dst net.IP
		if cm != nil {
			dst = cm.Dst
		}
		s.handleDatagram(ctx, buf[:n], udpSrc, dst)
	}
}

// handleDatagram verifies, decodes and dispatches one datagram. The data
// is not retained. Only datagrams with a valid outer hash count against the
// source's rate limit.
func (s *Service) handleDatagram(ctx context.Context, data []byte, src *net.UDPAddr, dst net.IP) {
	metricBytesRecv.Add(float64(len(data)))

	hash, payload, err := packet.Parse(data)
	if err != nil {
		s.drop(ctx, src, err, data)
		return
	}

	if !s.limiter.allow(src.IP) {
		s.drop(ctx, src, ErrRateLimited, nil)
		return
	}

	pkt, err := packet.DecodePayload(s.sigCtx, hash, payload)
	if err != nil {
		s.drop(ctx, src, err, data)
		return
	}
	metricPacketsRecv.WithLabelValues(pkt.Type.String()).Inc()

	h, ok := s.handlers.Load(pkt.Type)
	if !ok {
		metricPacketsDropped.WithLabelValues(dropUnhandled).Inc()
		slog.DebugContext(ctx, "No handler for message", slog.String("type", pkt.Type.String()), slogutil.Address(src))
		return
	}
	if err := h(ctx, pkt, src); err != nil {
		s.drop(ctx, src, err, nil)
		return
	}

	attrs := []any{slog.String("type", pkt.Type.String()), slogutil.Address(src)}
	if dst != nil {
		attrs = append(attrs, slog.String("dst", dst.String()))
	}
	slog.DebugContext(ctx, "Handled message", attrs...)
}

func (s *Service) drop(ctx context.Context, src *net.UDPAddr, err error, data []byte) {
	reason := dropReason(err)
	metricPacketsDropped.WithLabelValues(reason).Inc()
	attrs := []any{slogutil.Address(src), slog.String("reason", reason), slogutil.Error(err)}
	if data != nil {
		attrs = append(attrs, slog.Any("data", slogutil.Expensive(func() any { return hex.EncodeToString(data) })))
	}
	slog.DebugContext(ctx, "Dropping datagram", attrs...)
}

func (s *Service) handlePing(ctx context.Context, pkt *packet.Packet, src *net.UDPAddr) error {
	ping, ok := pkt.Message.(protocol.Ping)
	if !ok {
		return fmt.Errorf("%w: %T in ping packet", protocol.ErrUnknownType, pkt.Message)
	}
	if ping.Expired(s.now()) {
		return fmt.Errorf("%w: ping expired at %v", ErrExpired, ping.ExpiresAt())
	}
	slog.InfoContext(ctx, "Received ping", pkt.SenderID.LogAttr(), slogutil.Address(src), ping.LogAttr())
	return nil
}

// Close stops the receive loop and releases the socket. The service cannot
// be restarted.
func (s *Service) Close() error {
	var err error
	s.closing.Do(func() {
		s.state.Store(int32(StateTerminated))
		err = s.pc.Close()
	})
	return err
}

func (s *Service) String() string {
	return fmt.Sprintf("discover.Service@%v", s.LocalAddr())
}
