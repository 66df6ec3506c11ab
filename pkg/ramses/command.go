// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Command is an outbound frame awaiting transmission, together with the
// QoS knobs the transaction engine needs: timeout, retry budget,
// priority, and the header of the reply it expects (if any).
type Command struct {
	verb     Verb
	src      Address
	dst      Address
	announce Address
	code     Code
	payload  []byte

	timeout  time.Duration
	retries  int
	priority Priority

	replyHdr    string // expected reply header, "" if none
	replyAnySrc bool   // accept the reply from any source (bind offers)
}

// NewCommand builds a command from raw parts. Most callers should use a
// typed builder instead; this is the escape hatch for codes without one.
func NewCommand(verb Verb, src, dst Address, code Code, payload []byte) *Command {
	c := &Command{
		verb:     verb,
		src:      src,
		dst:      dst,
		announce: AddrNone,
		code:     code,
		payload:  payload,
		timeout:  ReplyTimeout,
		retries:  DefaultRetries,
		priority: PriorityCommand,
	}
	if reply := verb.Reply(); reply != "" {
		c.replyHdr = headerFor(code, reply, packetCtx(code, payload))
	}
	return c
}

// NewBroadcast builds an I command with no destination and the source
// repeated in the announce slot.
func NewBroadcast(src Address, code Code, payload []byte) *Command {
	c := NewCommand(I, src, AddrNone, code, payload)
	c.announce = src
	return c
}

// Frame materializes the command as a transmittable frame.
func (c *Command) Frame() *Frame {
	f := NewFrame(c.verb, c.src, c.dst, c.announce, c.code, c.payload)
	return f
}

// Packet materializes the command as a packet with derived headers.
func (c *Command) Packet() *Packet { return NewPacket(c.Frame()) }

// TxHeader returns the header the command's own echo will carry.
func (c *Command) TxHeader() string {
	return headerFor(c.code, c.verb, packetCtx(c.code, c.payload))
}

// RxHeader returns the expected reply header, or "" when the command
// completes on its echo alone.
func (c *Command) RxHeader() string { return c.replyHdr }

// ReplyFromAnySrc reports whether the reply may come from any device
// rather than the command's destination.
func (c *Command) ReplyFromAnySrc() bool { return c.replyAnySrc }

// Verb returns the command verb.
func (c *Command) Verb() Verb { return c.verb }

// Src returns the source address.
func (c *Command) Src() Address { return c.src }

// SetSrc injects the local gateway id into a command built with the
// AddrGateway placeholder. The announce slot tracks the source for
// self-addressed broadcasts, and 1FC9 triplet addresses are rewritten
// so the payload keeps naming the sender.
func (c *Command) SetSrc(src Address) {
	if c.announce == c.src {
		c.announce = src
	}
	if c.dst == c.src {
		c.dst = src
	}
	if c.code == Code1FC9 && len(c.payload) >= 6 && len(c.payload)%6 == 0 {
		old := mustHex(c.src.Hex())
		now := mustHex(src.Hex())
		for i := 0; i < len(c.payload); i += 6 {
			if string(c.payload[i+3:i+6]) == string(old) {
				copy(c.payload[i+3:i+6], now)
			}
		}
	}
	c.src = src
}

// Dst returns the destination address.
func (c *Command) Dst() Address { return c.dst }

// Code returns the command code.
func (c *Command) Code() Code { return c.code }

// Payload returns the payload bytes.
func (c *Command) Payload() []byte { return c.payload }

// PayloadHex returns the payload as upper-case hex.
func (c *Command) PayloadHex() string {
	return strings.ToUpper(hex.EncodeToString(c.payload))
}

// Timeout returns the reply-wait timeout.
func (c *Command) Timeout() time.Duration { return c.timeout }

// SetTimeout overrides the reply-wait timeout.
func (c *Command) SetTimeout(d time.Duration) { c.timeout = d }

// Retries returns the retransmission budget (attempts - 1).
func (c *Command) Retries() int { return c.retries }

// SetRetries overrides the retransmission budget.
func (c *Command) SetRetries(n int) { c.retries = n }

// Priority returns the send queue class.
func (c *Command) Priority() Priority { return c.priority }

// SetPriority overrides the send queue class.
func (c *Command) SetPriority(p Priority) { c.priority = p }

// String renders the command as its wire body plus the tx header.
func (c *Command) String() string {
	return fmt.Sprintf("%s  # %s", c.Frame().Body(), c.TxHeader())
}

// mustHex decodes compile-time-constant hex payloads in builders.
func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("ramses: bad builder payload %q: %v", s, err))
	}
	return b
}

// ------------------------------------------------------------------
// Typed builders. Each validates its parameters, produces a payload of
// the correct length, and leaves the expected reply header in place
// for RQ and W verbs.

// NewDeviceInfoRQ probes a device for its 10E0 identity.
func NewDeviceInfoRQ(src, dst Address) *Command {
	return NewCommand(RQ, src, dst, Code10E0, mustHex("00"))
}

// NewDeviceInfo announces a 10E0 identity, broadcast to all devices.
// The payload is a full identity blob, typically replayed from a known
// device (see fingerprint.go for its layout).
func NewDeviceInfo(src Address, payload []byte) (*Command, error) {
	if len(payload) < 20 {
		return nil, NewError(ErrMalformed, "10E0 identity too short: %d bytes", len(payload))
	}
	c := NewCommand(I, src, AddrAll, Code10E0, payload)
	return c, nil
}

// NewFanMode commands a fan speed: 22F1 with mode/limit bytes.
// Modes run 00 (away) through 0A (auto); limit is the mode count the
// remote advertises, usually 04 or 0A.
func NewFanMode(src, dst Address, mode, limit uint8) (*Command, error) {
	if limit != 0 && mode > limit {
		return nil, NewError(ErrMalformed, "fan mode %02X above limit %02X", mode, limit)
	}
	payload := []byte{0x00, mode, limit}
	return NewCommand(I, src, dst, Code22F1, payload), nil
}

// NewFanBoost commands a timed fan boost: 22F3 with minutes remaining.
func NewFanBoost(src, dst Address, minutes uint8) (*Command, error) {
	if minutes == 0 {
		return nil, NewError(ErrMalformed, "boost of zero minutes")
	}
	payload := []byte{0x00, 0x00, minutes}
	return NewCommand(I, src, dst, Code22F3, payload), nil
}

// NewVentStateRQ requests a 31D9 ventilation state report.
func NewVentStateRQ(src, dst Address) *Command {
	return NewCommand(RQ, src, dst, Code31D9, mustHex("00"))
}

// NewVentStatusRQ requests a 31DA ventilation status bundle.
func NewVentStatusRQ(src, dst Address) *Command {
	return NewCommand(RQ, src, dst, Code31DA, mustHex("00"))
}

// NewTemperatureRQ requests a 30C9 zone temperature for the given zone.
func NewTemperatureRQ(src, dst Address, zone uint8) *Command {
	return NewCommand(RQ, src, dst, Code30C9, []byte{zone})
}

// NewSetpointW writes a 2349 zone setpoint, in centi-degrees C.
// Mode 00 follows the schedule; 04 is permanent override.
func NewSetpointW(src, dst Address, zone uint8, centiDegrees uint16, mode uint8) (*Command, error) {
	if centiDegrees > 3500 {
		return nil, NewError(ErrMalformed, "setpoint %d above 35.00C limit", centiDegrees)
	}
	payload := []byte{
		zone,
		byte(centiDegrees >> 8), byte(centiDegrees),
		mode,
		0xFF, 0xFF, 0xFF, // no until-time
	}
	return NewCommand(W, src, dst, Code2349, payload), nil
}

// NewRelayDemand writes an 0008 relay demand percentage (0..200 halves).
func NewRelayDemand(src, dst Address, domain uint8, demand uint8) (*Command, error) {
	if demand > 0xC8 {
		return nil, NewError(ErrMalformed, "relay demand %02X above C8", demand)
	}
	return NewCommand(I, src, dst, Code0008, []byte{domain, demand}), nil
}

// NewBatteryStateRQ requests a 1060 battery report.
func NewBatteryStateRQ(src, dst Address, zone uint8) *Command {
	return NewCommand(RQ, src, dst, Code1060, []byte{zone})
}

// ------------------------------------------------------------------
// 1FC9 binding builders. The payload is a list of 6-byte triplets
// idx(1) + code(2) + packed source address(3); every triplet must carry
// the sender's own address.

// BindTriplet is one idx/code/address element of a 1FC9 payload.
type BindTriplet struct {
	Idx  byte
	Code Code
	Addr Address
}

// encodeTriplets serializes and validates a 1FC9 triplet list.
func encodeTriplets(owner Address, triplets []BindTriplet) ([]byte, error) {
	if len(triplets) == 0 {
		return nil, NewError(ErrMalformed, "empty 1FC9 triplet list")
	}
	payload := make([]byte, 0, len(triplets)*6)
	for _, t := range triplets {
		if t.Addr != owner {
			return nil, NewError(ErrMalformed,
				"triplet address %s is not the sender %s", t.Addr, owner)
		}
		if len(t.Code) != 4 || !isHex(string(t.Code)) {
			return nil, NewError(ErrMalformed, "bad triplet code %q", t.Code)
		}
		payload = append(payload, t.Idx)
		payload = append(payload, mustHex(string(t.Code))...)
		payload = append(payload, mustHex(t.Addr.Hex())...)
	}
	return payload, nil
}

// DecodeTriplets parses a 1FC9 offer or accept payload.
func DecodeTriplets(payload []byte) ([]BindTriplet, error) {
	if len(payload) == 0 || len(payload)%6 != 0 {
		return nil, NewError(ErrLength, "1FC9 payload of %d bytes is not triplets", len(payload))
	}
	triplets := make([]BindTriplet, 0, len(payload)/6)
	for i := 0; i < len(payload); i += 6 {
		addr, err := ParseAddressHex(strings.ToUpper(hex.EncodeToString(payload[i+3 : i+6])))
		if err != nil {
			return nil, err
		}
		triplets = append(triplets, BindTriplet{
			Idx:  payload[i],
			Code: Code(strings.ToUpper(hex.EncodeToString(payload[i+1 : i+3]))),
			Addr: addr,
		})
	}
	return triplets, nil
}

// NewBindOffer builds the supplicant's tender: an I broadcast to self
// carrying the offered codes at idx, the mandatory 00/1FC9/self
// triplet, and - when oemCode is non-zero - an oem/10E0/self identity
// advertisement.
func NewBindOffer(src Address, idx byte, codes []Code, oemCode byte) (*Command, error) {
	triplets := make([]BindTriplet, 0, len(codes)+2)
	for _, code := range codes {
		if code == Code1FC9 || code == Code10E0 {
			continue // appended below with their fixed idx
		}
		triplets = append(triplets, BindTriplet{Idx: idx, Code: code, Addr: src})
	}
	if oemCode != 0 {
		triplets = append(triplets, BindTriplet{Idx: oemCode, Code: Code10E0, Addr: src})
	}
	triplets = append(triplets, BindTriplet{Idx: 0x00, Code: Code1FC9, Addr: src})

	payload, err := encodeTriplets(src, triplets)
	if err != nil {
		return nil, err
	}
	c := NewBroadcast(src, Code1FC9, payload)
	c.priority = PriorityBind
	// The accept comes back as a W from a then-unknown respondent.
	c.replyHdr = headerFor(Code1FC9, W, fmt.Sprintf("%02X", idx))
	c.replyAnySrc = true
	c.timeout = BindWaitTime
	return c, nil
}

// NewBindAccept builds the respondent's accept: a W to the offer source
// listing the codes it will consume at idx.
func NewBindAccept(src, dst Address, idx byte, codes []Code) (*Command, error) {
	triplets := make([]BindTriplet, 0, len(codes))
	for _, code := range codes {
		triplets = append(triplets, BindTriplet{Idx: idx, Code: code, Addr: src})
	}
	payload, err := encodeTriplets(src, triplets)
	if err != nil {
		return nil, err
	}
	c := NewCommand(W, src, dst, Code1FC9, payload)
	c.priority = PriorityBind
	// The affirm is an I; its payload may be a bare idx or an offer echo.
	c.replyHdr = headerFor(Code1FC9, I, fmt.Sprintf("%02X", idx))
	c.timeout = ConfirmTimeout
	return c, nil
}

// NewBindConfirm builds the supplicant's affirm: an I to the respondent
// carrying the single idx byte declared in the accept.
func NewBindConfirm(src, dst Address, idx byte) *Command {
	c := NewCommand(I, src, dst, Code1FC9, []byte{idx})
	c.priority = PriorityBind
	c.replyHdr = "" // fire and forget, completes on echo
	return c
}
