// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package binding

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// RespondentConfig parameterizes a listening bind.
type RespondentConfig struct {
	// Device is the id to bind as; the gateway's own id when zero.
	Device ramses.Address

	// MatchCodes are the tender codes that trigger an answer. Empty
	// answers any tender, which is what real fan units do.
	MatchCodes []ramses.Code

	// AcceptCodes are the codes listed in the accept: what this side
	// will publish to the supplicant (31D9/31DA for a fan). Captured
	// handshakes show these are disjoint from the tendered codes.
	AcceptCodes []ramses.Code

	// Idx, when non-zero, only answers tenders offering at that domain
	// id (21 for Nuaire kit). Zero accepts any idx; the accept always
	// echoes the tender's idx verbatim.
	Idx byte

	// RequireRatify holds the context in RESP_AWAIT_RATIFY until the
	// supplicant publishes its 10E0 identity.
	RequireRatify bool
}

// RunRespondent performs the full respondent handshake: wait for a
// matching tender, accept it, wait for the affirm, and optionally for
// the ratify. The wait for a tender is bounded only by ctx.
func RunRespondent(ctx context.Context, eng Sender, log logrus.FieldLogger, cfg RespondentConfig) (*Context, error) {
	device := cfg.Device
	if device.IsNone() {
		device = eng.GatewayAddress()
	}
	bc := newContext(RoleRespondent, device, log)
	if len(cfg.AcceptCodes) == 0 {
		return bc, bc.fail(nil, "no codes to accept")
	}

	bc.watch(eng)
	defer bc.release()
	bc.step(evListen)

	tender, idx, err := awaitTender(ctx, bc, cfg.MatchCodes, cfg.Idx)
	if err != nil {
		return bc, err
	}
	bc.tender = tender
	bc.peer = tender.Src()
	bc.idx = idx
	if oem, ok := tenderOemCode(tender); ok {
		bc.oem = oem
	}

	accept, err := ramses.NewBindAccept(device, bc.peer, idx, cfg.AcceptCodes)
	if err != nil {
		return bc, bc.fail(err, "accept rejected by codec")
	}
	accept.SetRetries(RetryLimit - 1)
	bc.accept = accept.Packet()
	bc.step(evOffer)

	// The affirm is the protocol-level reply to the accept. Its
	// payload is a bare idx from real hardware, or a full offer echo
	// from some remotes; the header matches either form.
	affirm, err := eng.SendCommand(ctx, accept)
	if err != nil {
		if ramses.KindOf(err) == ramses.ErrRetriesExhausted {
			return bc, bc.fail(err, "supplicant never affirmed")
		}
		return bc, bc.fail(err, "accept failed")
	}
	if len(affirm.Payload()) > 1 {
		bc.log.WithField("payload", affirm.PayloadHex()).Debug("affirm echoed the full offer")
	}

	if cfg.RequireRatify {
		bc.step(evConfd)
		if err := awaitRatify(ctx, bc); err != nil {
			return bc, err
		}
	}
	bc.step(evSealed)
	bc.log.WithField("supplicant", bc.peer.String()).Info("bound as respondent")

	// A tender without a 10E0 triplet came from a device that never
	// advertised its identity (seen with emulated remotes); probe it
	// so the fingerprint table can classify the peer.
	if bc.oem == 0 {
		probe := ramses.NewDeviceInfoRQ(device, bc.peer)
		probe.SetPriority(ramses.PriorityProbe)
		if _, err := eng.SendCommand(ctx, probe); err != nil {
			bc.log.WithError(err).Debug("post-handshake identity probe failed")
		}
	}
	return bc, nil
}

// awaitTender blocks until a tender offering one of codes arrives.
func awaitTender(ctx context.Context, bc *Context, codes []ramses.Code, wantIdx byte) (*ramses.Packet, byte, error) {
	for {
		select {
		case pkt := <-bc.inbox:
			if pkt.Code() != ramses.Code1FC9 || pkt.Verb() != ramses.I || !pkt.IsBroadcast() {
				continue
			}
			triplets, err := ramses.DecodeTriplets(pkt.Payload())
			if err != nil {
				bc.log.WithError(err).Debug("ignoring malformed tender")
				continue
			}
			for _, t := range triplets {
				if t.Code == ramses.Code1FC9 || t.Code == ramses.Code10E0 {
					continue // handshake plumbing, not an offered code
				}
				if wantIdx != 0 && t.Idx != wantIdx {
					continue
				}
				if len(codes) == 0 {
					return pkt, t.Idx, nil
				}
				for _, want := range codes {
					if t.Code == want {
						return pkt, t.Idx, nil
					}
				}
			}
			bc.log.WithField("src", pkt.Src().String()).Debug("tender offers nothing we answer")

		case <-ctx.Done():
			return nil, 0, bc.fail(ramses.WrapError(ramses.ErrCancelled, ctx.Err(), "listen ended"), "")
		}
	}
}

// awaitRatify blocks until the supplicant publishes its identity.
func awaitRatify(ctx context.Context, bc *Context) error {
	timer := time.NewTimer(ramses.BindWaitTime)
	defer timer.Stop()
	for {
		select {
		case pkt := <-bc.inbox:
			if pkt.Code() == ramses.Code10E0 && pkt.Verb() == ramses.I && pkt.Src() == bc.peer {
				if info, err := ramses.ParseDeviceInfo(pkt.Payload()); err == nil {
					bc.log.WithFields(logrus.Fields{
						"model": info.Model(),
						"oem":   info.OemCode,
					}).Debug("supplicant ratified")
				}
				return nil
			}
		case <-timer.C:
			return bc.fail(nil, "supplicant never ratified")
		case <-ctx.Done():
			return bc.fail(ramses.WrapError(ramses.ErrCancelled, ctx.Err(), "wait ended"), "")
		}
	}
}

// tenderOemCode extracts the oem code from a tender's 10E0 triplet.
func tenderOemCode(tender *ramses.Packet) (byte, bool) {
	triplets, err := ramses.DecodeTriplets(tender.Payload())
	if err != nil {
		return 0, false
	}
	for _, t := range triplets {
		if t.Code == ramses.Code10E0 {
			return t.Idx, true
		}
	}
	return 0, false
}
