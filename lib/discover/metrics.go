// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package discover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoping",
		Subsystem: "discover",
		Name:      "sent_packets_total",
		Help:      "Total number of packets sent, by message type",
	}, []string{"type"})
	metricBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discoping",
		Subsystem: "discover",
		Name:      "sent_bytes_total",
		Help:      "Total amount of data sent",
	})
	metricSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discoping",
		Subsystem: "discover",
		Name:      "send_errors_total",
		Help:      "Total number of packets that could not be sent",
	})

	metricPacketsRecv = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoping",
		Subsystem: "discover",
		Name:      "recv_packets_total",
		Help:      "Total number of verified packets received, by message type",
	}, []string{"type"})
	metricBytesRecv = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discoping",
		Subsystem: "discover",
		Name:      "recv_bytes_total",
		Help:      "Total amount of data received",
	})
	metricPacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discoping",
		Subsystem: "discover",
		Name:      "dropped_packets_total",
		Help:      "Total number of received datagrams that were dropped, by reason",
	}, []string{"reason"})
	metricReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "discoping",
		Subsystem: "discover",
		Name:      "read_errors_total",
		Help:      "Total number of failed socket reads",
	})
)

func init() {
	// Make the labelled counters present even when zero.
	for _, reason := range []string{
		dropRateLimited, dropTooShort, dropHashMismatch, dropSignature, dropMalformed,
		dropUnknownType, dropUnhandled, dropExpired, dropOther,
	} {
		metricPacketsDropped.WithLabelValues(reason)
	}
}
