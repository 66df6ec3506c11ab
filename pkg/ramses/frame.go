// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame is a decoded low-level RAMSES frame.
//
// The textual line format is:
//
//	<ts> <rssi> <verb> --- <src> <dst> <announce> <code> <len> <payload_hex> [*<checksum_hex>]
//
// The timestamp and RSSI are optional on input: live gateway lines carry
// only an RSSI, packet-log lines carry both, and locally synthesized
// echoes may carry neither.
type Frame struct {
	dtm      time.Time
	rssi     string // three decimal digits, or "..." when unknown
	verb     Verb
	src      Address
	dst      Address
	announce Address
	code     Code
	payload  []byte
	checked  bool // a checksum was present and verified on decode
}

// NewFrame assembles a frame from its parts.
func NewFrame(verb Verb, src, dst, announce Address, code Code, payload []byte) *Frame {
	return &Frame{
		dtm:      time.Now(),
		rssi:     "...",
		verb:     verb,
		src:      src,
		dst:      dst,
		announce: announce,
		code:     code,
		payload:  payload,
	}
}

// Timestamp layout accepted on decode and used on encode.
const frameTimeLayout = "2006-01-02T15:04:05.000000"

// DecodeFrame parses one textual frame line. Lines missing a timestamp
// are stamped with received. Returns a tagged MALFORMED, LENGTH or
// CHECKSUM error on rejection.
func DecodeFrame(line string, received time.Time) (*Frame, error) {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return nil, NewError(ErrMalformed, "too few fields in %q", line)
	}

	f := &Frame{dtm: received, rssi: "..."}

	// Optional leading timestamp, then optional RSSI.
	if strings.ContainsRune(fields[0], 'T') {
		dtm, err := time.Parse(frameTimeLayout, fields[0])
		if err != nil {
			return nil, WrapError(ErrMalformed, err, "bad timestamp %q", fields[0])
		}
		f.dtm = dtm
		fields = fields[1:]
	}
	if len(fields) > 0 && isRSSI(fields[0]) {
		f.rssi = fields[0]
		fields = fields[1:]
	}

	if len(fields) < 7 || len(fields) > 9 {
		return nil, NewError(ErrMalformed, "wrong field count in %q", line)
	}

	switch fields[0] {
	case "I":
		f.verb = I
	case "RQ":
		f.verb = RQ
	case "RP":
		f.verb = RP
	case "W":
		f.verb = W
	default:
		return nil, NewError(ErrMalformed, "unknown verb %q", fields[0])
	}

	if fields[1] != "---" {
		return nil, NewError(ErrMalformed, "missing sequence slot in %q", line)
	}

	var err error
	if f.src, err = ParseAddress(fields[2]); err != nil {
		return nil, err
	}
	if f.dst, err = ParseAddress(fields[3]); err != nil {
		return nil, err
	}
	if f.announce, err = ParseAddress(fields[4]); err != nil {
		return nil, err
	}
	if f.src.IsNone() {
		return nil, NewError(ErrMalformed, "source address absent in %q", line)
	}

	if !isHex(fields[5]) || len(fields[5]) != 4 {
		return nil, NewError(ErrMalformed, "bad code %q", fields[5])
	}
	f.code = Code(strings.ToUpper(fields[5]))

	length, err := strconv.Atoi(fields[6])
	if err != nil || len(fields[6]) != 3 || length < 0 || length > MaxPayloadLen {
		return nil, NewError(ErrMalformed, "bad length %q", fields[6])
	}

	rest := fields[7:]
	payloadHex := ""
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "*") {
		payloadHex = rest[0]
		rest = rest[1:]
	}
	if len(payloadHex) != 2*length {
		return nil, NewError(ErrLength, "declared %03d bytes, payload has %d hex digits", length, len(payloadHex))
	}
	if f.payload, err = hex.DecodeString(payloadHex); err != nil {
		return nil, WrapError(ErrMalformed, err, "bad payload hex")
	}

	if len(rest) > 0 {
		chkHex := strings.TrimPrefix(rest[0], "*")
		if len(rest) > 1 || len(chkHex) != 2 || !isHex(chkHex) {
			return nil, NewError(ErrMalformed, "bad checksum field %q", rest[0])
		}
		chk, _ := strconv.ParseUint(chkHex, 16, 8)
		if !VerifyChecksum(f.Body(), byte(chk)) {
			return nil, NewError(ErrChecksum, "checksum %02X does not close %q", chk, f.Body())
		}
		f.checked = true
	}

	return f, nil
}

// Body returns the canonical frame body, from verb through payload.
// This is the string the checksum closes over.
func (f *Frame) Body() string {
	return fmt.Sprintf("%s --- %s %s %03d %s",
		f.verb, joinAddrs(f.src, f.dst, f.announce), f.code, len(f.payload), f.PayloadHex())
}

// Encode serializes the frame as a packet-log line, with timestamp,
// RSSI and a synthesized checksum.
func (f *Frame) Encode() string {
	body := f.Body()
	return fmt.Sprintf("%s %s %s *%02X",
		f.dtm.Format(frameTimeLayout), f.rssi, body, Checksum(body))
}

// WireLine serializes the frame for transmission to a gateway: the body
// plus a synthesized checksum, without timestamp or RSSI.
func (f *Frame) WireLine() string {
	body := f.Body()
	return fmt.Sprintf("%s *%02X", body, Checksum(body))
}

// Timestamp returns when the frame was received (or created).
func (f *Frame) Timestamp() time.Time { return f.dtm }

// RSSI returns the signal strength field, "..." when unknown.
func (f *Frame) RSSI() string { return f.rssi }

// Verb returns the frame verb.
func (f *Frame) Verb() Verb { return f.verb }

// Src returns the source address.
func (f *Frame) Src() Address { return f.src }

// Dst returns the destination address, possibly AddrNone.
func (f *Frame) Dst() Address { return f.dst }

// Announce returns the third address slot, possibly AddrNone.
func (f *Frame) Announce() Address { return f.announce }

// Code returns the 4-hex command code.
func (f *Frame) Code() Code { return f.code }

// Payload returns the raw payload bytes.
func (f *Frame) Payload() []byte { return f.payload }

// PayloadHex returns the payload as upper-case hex.
func (f *Frame) PayloadHex() string {
	return strings.ToUpper(hex.EncodeToString(f.payload))
}

// Checked reports whether a checksum was present and verified on decode.
func (f *Frame) Checked() bool { return f.checked }

// IsBroadcast reports whether the frame is a broadcast: no destination,
// with the announce slot repeating the source.
func (f *Frame) IsBroadcast() bool {
	return f.dst.IsNone() && f.announce == f.src
}

// SameWire reports whether two frames are byte-identical on the wire,
// ignoring timestamp and RSSI. Used for echo matching.
func (f *Frame) SameWire(other *Frame) bool {
	return f.verb == other.verb &&
		f.src == other.src &&
		f.dst == other.dst &&
		f.announce == other.announce &&
		f.code == other.code &&
		f.PayloadHex() == other.PayloadHex()
}

func isRSSI(s string) bool {
	if s == "..." {
		return true
	}
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return len(s) > 0
}
