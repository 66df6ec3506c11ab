// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import (
	"fmt"
)

// Packet is a validated frame plus its synthetic correlation keys.
//
// The header ("hdr") combines code, verb and a payload-derived context
// into a canonical CODE|VERB|CTX string used to correlate a reply to
// its request and to deduplicate. The context ("ctx") is the
// discriminator on its own, typically the first payload byte.
type Packet struct {
	*Frame
	hdr string
	ctx string
}

// NewPacket derives the header and context for a decoded frame.
func NewPacket(f *Frame) *Packet {
	p := &Packet{Frame: f}
	p.ctx = packetCtx(f.code, f.payload)
	p.hdr = headerFor(f.code, f.verb, p.ctx)
	return p
}

// Hdr returns the canonical CODE|VERB|CTX correlation header.
func (p *Packet) Hdr() string { return p.hdr }

// Ctx returns the payload-derived context discriminator.
func (p *Packet) Ctx() string { return p.ctx }

// String renders the packet the way it appears in a packet log, with
// the header appended as a comment.
func (p *Packet) String() string {
	return fmt.Sprintf("%s %s %s  # %s", p.rssi, p.verb, p.Body()[3:], p.hdr)
}

// headerFor builds a CODE|VERB|CTX header. A packet with no context
// keeps the trailing separator off.
func headerFor(code Code, verb Verb, ctx string) string {
	if ctx == "" {
		return fmt.Sprintf("%s|%s", code, verb.Trim())
	}
	return fmt.Sprintf("%s|%s|%s", code, verb.Trim(), ctx)
}

// packetCtx applies the per-code context rule. The default is the first
// payload byte (the zone or domain id); codes with a different
// discriminator carry an entry in ctxRules.
func packetCtx(code Code, payload []byte) string {
	if rule, ok := ctxRules[code]; ok {
		return rule(payload)
	}
	if len(payload) == 0 {
		return ""
	}
	return fmt.Sprintf("%02X", payload[0])
}

// ctxRules holds the per-code context overrides. 1FC9 uses the domain
// id of the first triplet, 10E0 collapses to a constant (one identity
// per device), 31DA keys on the zone/domain byte.
var ctxRules = map[Code]func([]byte) string{
	Code10E0: func([]byte) string { return "True" },
	Code1FC9: func(payload []byte) string {
		if len(payload) == 0 {
			return ""
		}
		return fmt.Sprintf("%02X", payload[0])
	},
	Code31DA: func(payload []byte) string {
		if len(payload) == 0 {
			return ""
		}
		return fmt.Sprintf("%02X", payload[0])
	},
}
