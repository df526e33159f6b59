// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syncthing/discoping/internal/slogutil"
	"github.com/syncthing/discoping/lib/protocol"
)

const DefaultPingInterval = 30 * time.Second

type PingSender interface {
	SendPing(target protocol.Endpoint) error
}

// A Pinger pings a fixed set of peers at a regular interval, starting
// immediately.
type Pinger struct {
	sender   PingSender
	peers    []protocol.Endpoint
	interval time.Duration
}

func NewPinger(sender PingSender, peers []protocol.Endpoint, interval time.Duration) *Pinger {
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	return &Pinger{
		sender:   sender,
		peers:    peers,
		interval: interval,
	}
}

func (p *Pinger) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.PingAll(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PingAll sends one ping to every peer and returns how many were sent
// successfully. Failures are logged and otherwise ignored.
func (p *Pinger) PingAll(ctx context.Context) int {
	var sent int
	for _, peer := range p.peers {
		if err := p.sender.SendPing(peer); err != nil {
			slog.WarnContext(ctx, "Failed to ping peer", peer.LogAttr(), slogutil.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (p *Pinger) String() string {
	return fmt.Sprintf("discover.Pinger@%p", p)
}
