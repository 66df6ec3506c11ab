// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

// Package transport provides the byte plumbing between a RAMSES engine
// and a radio gateway: a serial port running evofw3 firmware, an MQTT
// bridge, a WebSocket gateway, or a packet-log replay.
//
// A transport deals in whole frame lines. Comment lines (leading '#'),
// gateway diagnostics (leading '!') and blank lines are filtered here
// and counted; frame validation is the codec's job.
package transport

import (
	"strings"
	"time"

	"go.uber.org/atomic"
)

// Line is one frame line as delivered by a gateway.
type Line struct {
	Text string
	When time.Time
}

// Transport is a line-oriented connection to a RAMSES gateway.
//
// Lines yields inbound frame lines until the transport fails or is
// closed; after the channel closes, Err reports the cause (nil on a
// clean close). Serial gateways echo every written line back on the
// read stream; MQTT, WebSocket and replay transports synthesize the
// echo locally.
type Transport interface {
	Lines() <-chan Line
	WriteLine(text string) error
	Close() error
	Err() error
}

// Stats counts lines handled by a transport.
type Stats struct {
	LinesIn  atomic.Uint64
	LinesOut atomic.Uint64
	Skipped  atomic.Uint64 // comments, diagnostics, blanks
}

// wantLine reports whether a received line is a candidate frame.
// evofw3 prefixes comments with '#' and RF-state diagnostics with '!'.
func wantLine(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return s[0] != '#' && s[0] != '!'
}
