// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

// Package ramses implements the textual frame codec for the RAMSES II
// 868 MHz protocol spoken by Honeywell-compatible heating and HVAC
// devices (evohome, Itho, Orcon, Nuaire, Vasco, ClimaRad).
//
// The package covers device addresses, frame parsing/serialization with
// checksum rules, packet header/context synthesis, outbound command
// construction, and 10E0 device fingerprinting. The transaction engine
// and the binding handshake live in pkg/engine and pkg/binding.
package ramses

import "time"

// Verb is the two-character message verb of a frame.
type Verb string

// Frame verbs, padded to two characters as they appear on the wire.
const (
	I  Verb = " I" // informational broadcast
	RQ Verb = "RQ" // request, expects RP
	RP Verb = "RP" // reply to an RQ
	W  Verb = " W" // write, expects I confirmation
)

// Trim returns the verb without its wire padding, e.g. "I" for " I".
func (v Verb) Trim() string {
	if v[0] == ' ' {
		return string(v[1:])
	}
	return string(v)
}

// Reply returns the verb expected in response, or "" if none.
func (v Verb) Reply() Verb {
	switch v {
	case RQ:
		return RP
	case W:
		return I
	}
	return ""
}

// Code is a 4-hex-digit RAMSES command identifier.
type Code string

// Command codes used by the core runtime.
const (
	Code0008 Code = "0008" // relay demand
	Code1060 Code = "1060" // battery state
	Code10E0 Code = "10E0" // device info / fingerprint
	Code1F09 Code = "1F09" // system sync cycle
	Code1FC9 Code = "1FC9" // RF bind
	Code22F1 Code = "22F1" // fan mode
	Code22F3 Code = "22F3" // fan boost timer
	Code2349 Code = "2349" // zone setpoint mode
	Code30C9 Code = "30C9" // zone temperature
	Code31D9 Code = "31D9" // ventilation state
	Code31DA Code = "31DA" // ventilation status bundle
	Code31E0 Code = "31E0" // presence / demand
)

// Device class tags (the TT part of a device id).
const (
	ClassCTL = "01" // evohome controller
	ClassUFC = "02" // underfloor controller
	ClassTRV = "04" // radiator valve
	ClassOTB = "10" // OpenTherm bridge
	ClassBDR = "13" // wireless relay
	ClassFAN20 = "20" // ventilation unit (older)
	ClassHGI = "18" // USB gateway (HGI80 / evofw3)
	ClassREM = "29" // HVAC remote
	ClassRFG = "30" // internet gateway / PIV
	ClassFAN = "32" // ventilation unit
	ClassDIS = "37" // display switch / sensor
)

// Protocol timing defaults.
const (
	EchoTimeout    = 500 * time.Millisecond // wait for our own echo
	ReplyTimeout   = 3 * time.Second        // wait for an RP/I reply
	BindWaitTime   = 5 * time.Second        // supplicant waits for an accept
	ConfirmTimeout = 3 * time.Second        // respondent waits for the affirm
	ReplyBackoff   = 200 * time.Millisecond // pause before a reply-timeout retry
	DefaultRetries = 3                      // retransmissions after the first send
	MaxQueueSize   = 64                     // pending commands before BUSY
)

// Priority orders commands in the send queue. Lower values are sent first.
type Priority int

// Send queue priority classes.
const (
	PriorityBind Priority = iota
	PriorityCommand
	PriorityProbe
)

// MaxPayloadLen is the largest declared payload length accepted by the codec.
const MaxPayloadLen = 255
