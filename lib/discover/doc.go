// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

/*
Package discover implements the endpoint of the discovery ping protocol.

Pings
=====

A node announces itself to a peer by sending it a ping: a single UDP
datagram, signed with the node's secp256k1 key, carrying the sender's
endpoint, the recipient's endpoint and an expiration time sixty seconds in
the future.

	outer hash (32) || signature (64) || recovery id (1) || 0x01 || body

The body is the canonical (RLP) encoding of

	[[from ip, from udp, from tcp], [to ip, to udp, to tcp], expiration]

There is no reply and no retransmission. A receiver checks the outer hash
first, then recovers the sender's public key from the signature, then decodes
the body. Anything failing these checks is dropped silently; so are pings
past their expiration and message types there is no handler for.

Service
=======

A Service owns one UDP socket, used both for sending and for the receive
loop run by Serve. It moves through the states unbound, bound (after New),
listening (while Serve runs) and terminated (after Close or when the Serve
context is cancelled). A terminated service stays terminated.

Received datagrams with a valid outer hash may be rate limited per source
address. Counters for
sent, received and dropped packets are exported as Prometheus metrics under
the discoping_discover_ prefix.
*/
package discover
