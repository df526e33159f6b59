// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"errors"

	"github.com/syncthing/discoping/lib/canonical"
	"github.com/syncthing/discoping/lib/packet"
	"github.com/syncthing/discoping/lib/protocol"
	"github.com/syncthing/discoping/lib/signer"
)

var (
	ErrBind        = errors.New("failed to bind discovery socket")
	ErrIO          = errors.New("discovery socket I/O failure")
	ErrExpired     = errors.New("message expired")
	ErrRateLimited = errors.New("source rate limited")
	errNoSigner    = errors.New("identity has no signer")
)

// Reasons a received datagram was dropped, as used in metrics.
const (
	dropRateLimited  = "rate_limited"
	dropTooShort     = "too_short"
	dropHashMismatch = "hash_mismatch"
	dropSignature    = "bad_signature"
	dropMalformed    = "malformed"
	dropUnknownType  = "unknown_type"
	dropUnhandled    = "unhandled"
	dropExpired      = "expired"
	dropOther        = "other"
)

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return dropRateLimited
	case errors.Is(err, packet.ErrTooShort):
		return dropTooShort
	case errors.Is(err, packet.ErrHashMismatch):
		return dropHashMismatch
	case errors.Is(err, signer.ErrVerification):
		return dropSignature
	case errors.Is(err, canonical.ErrDecoding):
		return dropMalformed
	case errors.Is(err, protocol.ErrUnknownType):
		return dropUnknownType
	case errors.Is(err, ErrExpired):
		return dropExpired
	default:
		return dropOther
	}
}
