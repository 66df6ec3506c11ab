// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package binding

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// SupplicantConfig parameterizes an outgoing bind.
type SupplicantConfig struct {
	// Device is the id to bind as; the gateway's own id when zero.
	Device ramses.Address

	// OfferCodes are the codes tendered at Idx. The mandatory 1FC9
	// triplet is appended automatically.
	OfferCodes []ramses.Code

	// Idx is the vendor-specific domain id (00 Vasco/ClimaRad, 21
	// Nuaire).
	Idx byte

	// OemCode, when non-zero, advertises identity with an extra
	// oem/10E0/self triplet. Respondents that see it skip their
	// post-handshake 10E0 probe.
	OemCode byte

	// Ratify is an optional 10E0 I broadcast sent after the affirm.
	// Some vendors require it to complete the bind functionally.
	Ratify *ramses.Command
}

// RunSupplicant performs the full supplicant handshake: tender the
// offer, wait for an accept, affirm it, and optionally ratify. The
// returned context records the outcome either way.
func RunSupplicant(ctx context.Context, eng Sender, log logrus.FieldLogger, cfg SupplicantConfig) (*Context, error) {
	device := cfg.Device
	if device.IsNone() {
		device = eng.GatewayAddress()
	}
	bc := newContext(RoleSupplicant, device, log)
	if len(cfg.OfferCodes) == 0 {
		return bc, bc.fail(nil, "no codes to offer")
	}
	bc.idx = cfg.Idx
	bc.oem = cfg.OemCode

	offer, err := ramses.NewBindOffer(device, cfg.Idx, cfg.OfferCodes, cfg.OemCode)
	if err != nil {
		return bc, bc.fail(err, "offer rejected by codec")
	}
	offer.SetRetries(RetryLimit - 1)
	bc.step(evTender)

	// The accept is the protocol-level reply to the tender: a 1FC9 W
	// from whichever respondent answers first.
	accept, err := eng.SendCommand(ctx, offer)
	if err != nil {
		if ramses.KindOf(err) == ramses.ErrRetriesExhausted {
			return bc, bc.fail(err, "no respondent accepted within the wait window")
		}
		return bc, bc.fail(err, "tender failed")
	}

	triplets, err := ramses.DecodeTriplets(accept.Payload())
	if err != nil {
		return bc, bc.fail(err, "accept from %s is not triplets", accept.Src())
	}
	if triplets[0].Idx != cfg.Idx {
		return bc, bc.fail(nil, "accept echoed idx %02X, offered %02X", triplets[0].Idx, cfg.Idx)
	}
	bc.accept = accept
	bc.peer = accept.Src()
	bc.step(evAccept)
	bc.log.WithFields(logrus.Fields{
		"respondent": bc.peer.String(),
		"idx":        triplets[0].Idx,
	}).Info("bind accepted")

	// Affirm with the single idx byte the respondent declared.
	confirm := ramses.NewBindConfirm(device, bc.peer, triplets[0].Idx)
	confirm.SetRetries(RetryLimit - 1)
	if _, err := eng.SendCommand(ctx, confirm); err != nil {
		return bc, bc.fail(err, "affirm failed")
	}
	bc.step(evAffirm)

	if cfg.Ratify != nil {
		ratify := cfg.Ratify
		if ratify.Code() != ramses.Code10E0 {
			return bc, bc.fail(nil, "ratify command carries %s, want 10E0", ratify.Code())
		}
		if ratify.Src() == ramses.AddrGateway {
			ratify.SetSrc(device)
		}
		ratify.SetPriority(ramses.PriorityBind)
		if _, err := eng.SendCommand(ctx, ratify); err != nil {
			return bc, bc.fail(err, "ratify failed")
		}
	}
	bc.step(evRatify)
	bc.log.Info("bound as supplicant")
	return bc, nil
}
