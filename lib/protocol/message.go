// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"fmt"

	"github.com/syncthing/discoping/lib/canonical"
)

// MessageType is the tag byte that precedes every message body on the wire.
type MessageType byte

const (
	PingType       MessageType = 0x01
	PongType       MessageType = 0x02
	FindNodeType   MessageType = 0x03
	NeighboursType MessageType = 0x04
)

func (t MessageType) String() string {
	switch t {
	case PingType:
		return "ping"
	case PongType:
		return "pong"
	case FindNodeType:
		return "findnode"
	case NeighboursType:
		return "neighbours"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// A Message is a discovery message body that knows its own type tag.
type Message interface {
	canonical.Marshaler
	Type() MessageType
}

// EncodeMessage returns the tagged message: the type byte followed by the
// canonical encoding of the body. This is what gets signed.
func EncodeMessage(m Message) ([]byte, error) {
	enc := canonical.NewEncoder()
	m.MarshalCanonical(enc)
	body, err := enc.Result()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(m.Type()))
	return append(out, body...), nil
}

// DecodeMessage is the inverse of EncodeMessage. Only ping bodies are
// understood; other known types are reported as ErrUnknownType just like
// unknown tags.
func DecodeMessage(bs []byte) (Message, error) {
	if len(bs) == 0 {
		return nil, fmt.Errorf("%w: empty message", canonical.ErrDecoding)
	}
	switch t := MessageType(bs[0]); t {
	case PingType:
		var p Ping
		if err := canonical.Unmarshal(bs[1:], &p); err != nil {
			return nil, fmt.Errorf("decoding %v: %w", t, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, t)
	}
}
