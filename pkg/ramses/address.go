// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 9-character RAMSES device id of the form TT:NNNNNN,
// where TT is the two-digit device class and NNNNNN a decimal serial
// in 0..262142.
type Address struct {
	class  string
	number int
}

// Sentinel addresses.
var (
	// AddrNone marks an absent address slot ("--:------").
	AddrNone = Address{class: "--"}
	// AddrAll is the broadcast / null source ("63:262142").
	AddrAll = Address{class: "63", number: 262142}
	// AddrGateway is the placeholder id carried by commands built before
	// the engine knows the local gateway's real id ("18:000730").
	AddrGateway = Address{class: ClassHGI, number: 730}
)

// MaxDeviceNumber is the largest device serial ParseAddress accepts.
const MaxDeviceNumber = 262142

// ParseAddress parses a TT:NNNNNN device id.
func ParseAddress(s string) (Address, error) {
	if s == "--:------" {
		return AddrNone, nil
	}
	if len(s) != 9 || s[2] != ':' {
		return Address{}, NewError(ErrMalformed, "invalid device id %q", s)
	}
	class := s[:2]
	for _, c := range class {
		if c < '0' || c > '9' {
			return Address{}, NewError(ErrMalformed, "invalid device class in %q", s)
		}
	}
	number, err := strconv.Atoi(s[3:])
	if err != nil || number < 0 || number > MaxDeviceNumber {
		return Address{}, NewError(ErrMalformed, "invalid device number in %q", s)
	}
	return Address{class: class, number: number}, nil
}

// ParseAddressHex parses the 6-hex-digit packed wire form used inside
// 1FC9 binding triplets: (class << 18) | number.
func ParseAddressHex(s string) (Address, error) {
	if len(s) != 6 {
		return Address{}, NewError(ErrMalformed, "invalid packed id %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 24)
	if err != nil {
		return Address{}, NewError(ErrMalformed, "invalid packed id %q", s)
	}
	return Address{
		class:  fmt.Sprintf("%02d", v>>18),
		number: int(v & 0x3FFFF),
	}, nil
}

// String returns the canonical TT:NNNNNN form.
func (a Address) String() string {
	if a.class == "--" || a.class == "" {
		return "--:------"
	}
	return fmt.Sprintf("%s:%06d", a.class, a.number)
}

// Hex returns the 6-hex-digit packed wire form.
func (a Address) Hex() string {
	class, _ := strconv.Atoi(a.class)
	return fmt.Sprintf("%06X", class<<18|a.number)
}

// Class returns the two-digit device class tag.
func (a Address) Class() string { return a.class }

// Number returns the decimal device serial.
func (a Address) Number() int { return a.number }

// IsNone reports whether the slot is absent.
func (a Address) IsNone() bool { return a.class == "--" || a.class == "" }

// IsBroadcast reports whether the address is the broadcast/null id.
func (a Address) IsBroadcast() bool { return a == AddrAll }

// IsGateway reports whether the address is a USB gateway (class 18).
func (a Address) IsGateway() bool { return a.class == ClassHGI }

// ClassName returns a short mnemonic for the device class, or the raw
// tag when the class is not known.
func (a Address) ClassName() string {
	switch a.class {
	case ClassCTL:
		return "CTL"
	case ClassUFC:
		return "UFC"
	case ClassTRV:
		return "TRV"
	case ClassOTB:
		return "OTB"
	case ClassBDR:
		return "BDR"
	case ClassHGI:
		return "HGI"
	case ClassFAN20, ClassFAN:
		return "FAN"
	case ClassREM:
		return "REM"
	case ClassRFG:
		return "RFG"
	case ClassDIS:
		return "DIS"
	}
	return a.class
}

// MustParseAddress parses a device id and panics on failure. Intended
// for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// joinAddrs renders the three frame address slots.
func joinAddrs(src, dst, announce Address) string {
	return strings.Join([]string{src.String(), dst.String(), announce.String()}, " ")
}
