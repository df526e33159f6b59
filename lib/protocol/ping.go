// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/syncthing/discoping/lib/canonical"
)

// DefaultExpiration is how long a ping stays valid after construction.
const DefaultExpiration = 60 * time.Second

// A Ping announces the sender's endpoint to the recipient.
type Ping struct {
	From       Endpoint
	To         Endpoint
	Expiration uint32 // Unix seconds
}

// NewPing returns a ping from one endpoint to another that expires
// DefaultExpiration after now. The expiration is fixed here so that encoding
// the same ping twice gives identical bytes.
func NewPing(from, to Endpoint, now time.Time) (Ping, error) {
	if now.Unix() < 0 {
		return Ping{}, fmt.Errorf("%w: time %v is before the Unix epoch", ErrClock, now)
	}
	exp := now.Add(DefaultExpiration).Unix()
	if exp > math.MaxUint32 {
		return Ping{}, fmt.Errorf("%w: expiration %d does not fit in 32 bits", ErrClock, exp)
	}
	return Ping{From: from, To: to, Expiration: uint32(exp)}, nil
}

func (Ping) Type() MessageType {
	return PingType
}

func (p Ping) ExpiresAt() time.Time {
	return time.Unix(int64(p.Expiration), 0)
}

// Expired returns true if the ping is no longer valid at the given time.
func (p Ping) Expired(now time.Time) bool {
	return now.Unix() > int64(p.Expiration)
}

func (p Ping) LogAttr() slog.Attr {
	return slog.Group("ping", slog.Any("from", p.From), slog.Any("to", p.To), slog.Time("expires", p.ExpiresAt()))
}

func (p Ping) MarshalCanonical(enc *canonical.Encoder) {
	idx := enc.List()
	p.From.MarshalCanonical(enc)
	p.To.MarshalCanonical(enc)
	enc.Uint(uint64(p.Expiration))
	enc.ListEnd(idx)
}

func (p *Ping) UnmarshalCanonical(d *canonical.Decoder) error {
	if _, err := d.List(); err != nil {
		return err
	}
	if err := p.From.UnmarshalCanonical(d); err != nil {
		return err
	}
	if err := p.To.UnmarshalCanonical(d); err != nil {
		return err
	}
	var err error
	if p.Expiration, err = d.Uint32(); err != nil {
		return err
	}
	return d.ListEnd()
}
