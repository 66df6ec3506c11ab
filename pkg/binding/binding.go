// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

// Package binding implements the RAMSES device-pairing handshake: the
// 1FC9 Tender/Accept/Affirm exchange plus the optional 10E0 Ratify, in
// both the supplicant (initiating) and respondent (accepting) roles.
//
// The handshake rides on the protocol engine for every transmission;
// packets the engine cannot correlate to a transaction reach the
// binding context through a predicate subscription.
package binding

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// Role is the side of the handshake a context plays.
type Role int

// Binding roles.
const (
	RoleNone Role = iota
	RoleSupplicant
	RoleRespondent
)

// String returns the canonical role name.
func (r Role) String() string {
	switch r {
	case RoleSupplicant:
		return "SUPPLICANT"
	case RoleRespondent:
		return "RESPONDENT"
	}
	return "NONE"
}

// Binding states. Both roles share the enum; only a subset is
// reachable per role. The three BOUND/FAILED states are absorbing.
const (
	StateIdle             = "IDLE"
	StateSuppOfferSent    = "SUPP_OFFER_SENT"
	StateSuppReadyConfirm = "SUPP_READY_CONFIRM"
	StateSuppReadyRatify  = "SUPP_READY_RATIFY"
	StateSuppBound        = "SUPP_BOUND"
	StateRespAwaitOffer   = "RESP_AWAIT_OFFER"
	StateRespAcceptSent   = "RESP_ACCEPT_SENT"
	StateRespAwaitRatify  = "RESP_AWAIT_RATIFY"
	StateRespBound        = "RESP_BOUND"
	StateFailed           = "FAILED"
)

// FSM events.
const (
	evTender = "tender_sent"
	evAccept = "accept_received"
	evAffirm = "affirm_sent"
	evRatify = "ratify_done"
	evListen = "listen"
	evOffer  = "accept_sent"
	evConfd  = "affirm_received"
	evSealed = "ratify_received"
	evFail   = "fail"
)

// Sender is the slice of the protocol engine the binding FSM needs.
// *engine.Engine satisfies it. Cancellation is carried by the contexts
// passed to SendCommand.
type Sender interface {
	SendCommand(ctx context.Context, cmd *ramses.Command) (*ramses.Packet, error)
	GatewayAddress() ramses.Address
	SubscribeFunc(pred func(*ramses.Packet) bool, fn func(*ramses.Packet)) func()
}

// RetryLimit bounds the attempts of each sending step.
const RetryLimit = 3

// Context tracks one binding attempt for one local device. It is
// retained after the attempt as the last outcome.
type Context struct {
	role    Role
	device  ramses.Address
	machine *fsm.FSM
	log     logrus.FieldLogger

	// Handshake artifacts, populated as the exchange progresses.
	tender *ramses.Packet // the observed offer
	accept *ramses.Packet // the observed accept
	peer   ramses.Address
	idx    byte
	oem    byte // oem code carried in the tender, 0 when absent

	inbox  chan *ramses.Packet
	cancel func() // unsubscribe
}

func newContext(role Role, device ramses.Address, log logrus.FieldLogger) *Context {
	bc := &Context{
		role:   role,
		device: device,
		log:    log.WithField("device", device.String()),
		inbox:  make(chan *ramses.Packet, 8),
	}
	bc.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evTender, Src: []string{StateIdle}, Dst: StateSuppOfferSent},
			{Name: evAccept, Src: []string{StateSuppOfferSent}, Dst: StateSuppReadyConfirm},
			{Name: evAffirm, Src: []string{StateSuppReadyConfirm}, Dst: StateSuppReadyRatify},
			{Name: evRatify, Src: []string{StateSuppReadyRatify}, Dst: StateSuppBound},
			{Name: evListen, Src: []string{StateIdle}, Dst: StateRespAwaitOffer},
			{Name: evOffer, Src: []string{StateRespAwaitOffer}, Dst: StateRespAcceptSent},
			{Name: evConfd, Src: []string{StateRespAcceptSent}, Dst: StateRespAwaitRatify},
			{Name: evSealed, Src: []string{StateRespAcceptSent, StateRespAwaitRatify}, Dst: StateRespBound},
			{Name: evFail, Src: []string{
				StateIdle, StateSuppOfferSent, StateSuppReadyConfirm, StateSuppReadyRatify,
				StateRespAwaitOffer, StateRespAcceptSent, StateRespAwaitRatify,
			}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				bc.log.WithField("transition", e.Src+"->"+e.Dst).Debug("binding state change")
			},
		},
	)
	return bc
}

// Role returns the context's role.
func (bc *Context) Role() Role { return bc.role }

// State returns the current binding state.
func (bc *Context) State() string { return bc.machine.Current() }

// Device returns the local device id being bound.
func (bc *Context) Device() ramses.Address { return bc.device }

// Peer returns the other side's id, once known.
func (bc *Context) Peer() ramses.Address { return bc.peer }

// Idx returns the domain id the handshake settled on.
func (bc *Context) Idx() byte { return bc.idx }

// Tender returns the observed offer packet, if any.
func (bc *Context) Tender() *ramses.Packet { return bc.tender }

// Accept returns the observed accept packet, if any.
func (bc *Context) Accept() *ramses.Packet { return bc.accept }

// Bound reports whether the context reached a terminal success state.
func (bc *Context) Bound() bool {
	s := bc.machine.Current()
	return s == StateSuppBound || s == StateRespBound
}

// step fires an FSM event; an invalid transition is a programming
// error on an absorbing state and is swallowed after logging.
func (bc *Context) step(event string) {
	if err := bc.machine.Event(context.Background(), event); err != nil {
		bc.log.WithError(err).WithField("event", event).Debug("transition refused")
	}
}

// fail moves the context to FAILED and returns a tagged error.
func (bc *Context) fail(err error, format string, args ...interface{}) error {
	bc.step(evFail)
	if err != nil {
		if ramses.KindOf(err) == ramses.ErrCancelled {
			return err
		}
		return ramses.WrapError(ramses.ErrBindingFailed, err, format, args...)
	}
	return ramses.NewError(ramses.ErrBindingFailed, format, args...)
}

// release drops the context's subscription.
func (bc *Context) release() {
	if bc.cancel != nil {
		bc.cancel()
		bc.cancel = nil
	}
}

// watch subscribes the context's inbox to binding-relevant packets:
// 1FC9 and 10E0 traffic touching the local device or broadcast.
func (bc *Context) watch(eng Sender) {
	bc.cancel = eng.SubscribeFunc(func(p *ramses.Packet) bool {
		if p.Code() != ramses.Code1FC9 && p.Code() != ramses.Code10E0 {
			return false
		}
		if p.Src() == bc.device {
			return false // our own traffic
		}
		return p.Dst() == bc.device || p.Dst() == ramses.AddrAll || p.IsBroadcast()
	}, func(p *ramses.Packet) {
		select {
		case bc.inbox <- p:
		default:
			bc.log.Warn("binding inbox full, dropping packet")
		}
	})
}
