// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"net"
	"net/netip"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultLimiterCacheSize = 4096

// A limiter keeps a token bucket per source address. The least recently
// seen sources are forgotten once the cache is full. A nil limiter allows
// everything.
type limiter struct {
	avg   rate.Limit
	burst int
	cache *lru.Cache[netip.Addr, *rate.Limiter]
}

// newLimiter returns a limiter allowing avg packets per second with the
// given burst per source, or nil if avg is not positive.
func newLimiter(avg float64, burst, size int) *limiter {
	if avg <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if size < 1 {
		size = defaultLimiterCacheSize
	}
	cache, err := lru.New[netip.Addr, *rate.Limiter](size)
	if err != nil {
		// Only possible for a non-positive size.
		panic(err)
	}
	return &limiter{avg: rate.Limit(avg), burst: burst, cache: cache}
}

func (l *limiter) allow(ip net.IP) bool {
	if l == nil {
		return true
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	bkt, ok := l.cache.Get(addr)
	if !ok {
		bkt = rate.NewLimiter(l.avg, l.burst)
		l.cache.Add(addr, bkt)
	}
	return bkt.Allow()
}
