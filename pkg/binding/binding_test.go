// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package binding

import (
	"context"
	"encoding/hex"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// stubSender scripts the protocol engine: every SendCommand is recorded
// and answered by the reply function, and tests inject spontaneous
// packets into registered subscriptions.
type stubSender struct {
	mu    sync.Mutex
	gw    ramses.Address
	sent  []*ramses.Command
	reply func(cmd *ramses.Command) (*ramses.Packet, error)
	subs  []stubSub
}

type stubSub struct {
	pred func(*ramses.Packet) bool
	fn   func(*ramses.Packet)
}

func newStubSender(reply func(*ramses.Command) (*ramses.Packet, error)) *stubSender {
	return &stubSender{gw: ramses.MustParseAddress("18:140805"), reply: reply}
}

func (s *stubSender) SendCommand(_ context.Context, cmd *ramses.Command) (*ramses.Packet, error) {
	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	s.mu.Unlock()
	return s.reply(cmd)
}

func (s *stubSender) GatewayAddress() ramses.Address { return s.gw }

func (s *stubSender) SubscribeFunc(pred func(*ramses.Packet) bool, fn func(*ramses.Packet)) func() {
	s.mu.Lock()
	s.subs = append(s.subs, stubSub{pred: pred, fn: fn})
	s.mu.Unlock()
	return func() {}
}

func (s *stubSender) inject(t *testing.T, line string) {
	t.Helper()
	f, err := ramses.DecodeFrame(line, time.Now())
	if err != nil {
		t.Fatalf("inject %q: %v", line, err)
	}
	pkt := ramses.NewPacket(f)
	s.mu.Lock()
	subs := append([]stubSub{}, s.subs...)
	s.mu.Unlock()
	for _, sub := range subs {
		if sub.pred(pkt) {
			sub.fn(pkt)
		}
	}
}

func (s *stubSender) commands() []*ramses.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ramses.Command{}, s.sent...)
}

// echoOf completes a command the way the engine does for plain sends.
func echoOf(cmd *ramses.Command) *ramses.Packet {
	return cmd.Packet()
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var (
	vascoREM = ramses.MustParseAddress("29:091138")
	vascoFAN = ramses.MustParseAddress("32:022222")
)

func packetFromLine(t *testing.T, line string) *ramses.Packet {
	t.Helper()
	f, err := ramses.DecodeFrame(line, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return ramses.NewPacket(f)
}

// TestSupplicant_VascoHandshake replays scenario S1 from the supplicant
// side: tender with oem 66, accept from the fan, one-byte affirm, 10E0
// ratify.
func TestSupplicant_VascoHandshake(t *testing.T) {
	acceptLine := "W --- 32:022222 29:091138 --:------ 1FC9 012 0031D98056CE0031DA8056CE"

	stub := newStubSender(nil)
	stub.reply = func(cmd *ramses.Command) (*ramses.Packet, error) {
		if cmd.Code() == ramses.Code1FC9 && cmd.Verb() == ramses.I && len(cmd.Payload()) > 1 {
			return packetFromLine(t, acceptLine), nil // the tender's reply
		}
		return echoOf(cmd), nil
	}

	ratify, err := ramses.NewDeviceInfo(vascoREM,
		mustHexT(t, "000001C8400F0166FFFFFFFFFFFF0E0207E3564D4E2D31374C4D503031000000000000000000"))
	if err != nil {
		t.Fatal(err)
	}

	bc, err := RunSupplicant(context.Background(), stub, testLogger(), SupplicantConfig{
		Device:     vascoREM,
		OfferCodes: []ramses.Code{ramses.Code22F1, ramses.Code22F3},
		Idx:        0x00,
		OemCode:    0x66,
		Ratify:     ratify,
	})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	if bc.State() != StateSuppBound {
		t.Errorf("state = %s, want SUPP_BOUND", bc.State())
	}
	if !bc.Bound() {
		t.Error("context should report bound")
	}
	if bc.Peer() != vascoFAN {
		t.Errorf("peer = %s", bc.Peer())
	}

	sent := stub.commands()
	if len(sent) != 3 {
		t.Fatalf("sent %d commands, want tender+affirm+ratify", len(sent))
	}
	if sent[0].PayloadHex() != "0022F17564020022F37564026610E0756402001FC9756402" {
		t.Errorf("tender payload = %s", sent[0].PayloadHex())
	}
	if sent[1].Frame().Body() != " I --- 29:091138 32:022222 --:------ 1FC9 001 00" {
		t.Errorf("affirm = %q", sent[1].Frame().Body())
	}
	if sent[2].Code() != ramses.Code10E0 || !sent[2].Dst().IsBroadcast() {
		t.Errorf("ratify = %s to %s", sent[2].Code(), sent[2].Dst())
	}
}

// TestRespondent_NuaireHandshake replays scenario S2 from the fan side:
// a tender at idx 21 is accepted with 2131DA797F75.
func TestRespondent_NuaireHandshake(t *testing.T) {
	nuaireFAN := ramses.MustParseAddress("30:098165")
	nuaireREM := ramses.MustParseAddress("29:181813")

	affirmLine := "I --- 29:181813 30:098165 --:------ 1FC9 001 21"
	stub := newStubSender(nil)
	stub.reply = func(cmd *ramses.Command) (*ramses.Packet, error) {
		if cmd.Code() == ramses.Code1FC9 && cmd.Verb() == ramses.W {
			return packetFromLine(t, affirmLine), nil
		}
		return echoOf(cmd), nil
	}

	done := make(chan *Context, 1)
	errs := make(chan error, 1)
	go func() {
		bc, err := RunRespondent(context.Background(), stub, testLogger(), RespondentConfig{
			Device:      nuaireFAN,
			AcceptCodes: []ramses.Code{ramses.Code31DA},
			Idx:         0x21,
		})
		if err != nil {
			errs <- err
			return
		}
		done <- bc
	}()

	// Wait for the listener to subscribe, then broadcast the tender.
	waitFor(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return len(stub.subs) == 1
	})
	stub.inject(t, "I --- 29:181813 --:------ 29:181813 1FC9 024 2131E076C63521129876C6356C10E076C635001FC976C635")

	select {
	case bc := <-done:
		if bc.State() != StateRespBound {
			t.Errorf("state = %s", bc.State())
		}
		if bc.Peer() != nuaireREM {
			t.Errorf("peer = %s", bc.Peer())
		}
		if bc.Idx() != 0x21 {
			t.Errorf("idx = %02X", bc.Idx())
		}
	case err := <-errs:
		t.Fatalf("handshake failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("handshake never completed")
	}

	sent := stub.commands()
	if len(sent) == 0 {
		t.Fatal("nothing sent")
	}
	accept := sent[0]
	if accept.PayloadHex() != "2131DA797F75" {
		t.Errorf("accept payload = %s", accept.PayloadHex())
	}
	if accept.Dst() != nuaireREM {
		t.Errorf("accept dst = %s", accept.Dst())
	}

	// The tender advertised 10E0 (oem 6C): no identity probe follows.
	for _, cmd := range sent[1:] {
		if cmd.Code() == ramses.Code10E0 && cmd.Verb() == ramses.RQ {
			t.Error("probe sent although the tender advertised identity")
		}
	}
}

// TestRespondent_FakedRemoteGetsProbed covers scenario S3: a tender
// without the 10E0 triplet binds, but the respondent probes for the
// missing identity afterwards.
func TestRespondent_FakedRemoteGetsProbed(t *testing.T) {
	stub := newStubSender(nil)
	stub.reply = func(cmd *ramses.Command) (*ramses.Packet, error) {
		switch {
		case cmd.Code() == ramses.Code1FC9 && cmd.Verb() == ramses.W:
			return packetFromLine(t, "I --- 29:091138 18:140805 --:------ 1FC9 001 00"), nil
		case cmd.Code() == ramses.Code10E0 && cmd.Verb() == ramses.RQ:
			return nil, ramses.NewError(ramses.ErrRetriesExhausted, "no reply")
		}
		return echoOf(cmd), nil
	}

	done := make(chan *Context, 1)
	go func() {
		bc, err := RunRespondent(context.Background(), stub, testLogger(), RespondentConfig{
			AcceptCodes: []ramses.Code{ramses.Code31D9, ramses.Code31DA},
		})
		if err != nil {
			t.Errorf("handshake failed: %v", err)
			return
		}
		done <- bc
	}()

	waitFor(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return len(stub.subs) == 1
	})
	// ClimaRad-style faked tender: no 10E0 triplet.
	stub.inject(t, "I --- 29:091138 --:------ 29:091138 1FC9 012 0022F1756402001FC9756402")

	select {
	case bc := <-done:
		if !bc.Bound() {
			t.Error("should still bind")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handshake never completed")
	}

	var probed bool
	for _, cmd := range stub.commands() {
		if cmd.Code() == ramses.Code10E0 && cmd.Verb() == ramses.RQ {
			probed = true
			if cmd.Priority() != ramses.PriorityProbe {
				t.Error("identity probe should use the probe priority class")
			}
		}
	}
	if !probed {
		t.Error("faked supplicant was not probed for identity")
	}
}

func TestSupplicant_NoAcceptFails(t *testing.T) {
	stub := newStubSender(func(cmd *ramses.Command) (*ramses.Packet, error) {
		return nil, ramses.NewError(ramses.ErrRetriesExhausted, "silence")
	})

	bc, err := RunSupplicant(context.Background(), stub, testLogger(), SupplicantConfig{
		Device:     vascoREM,
		OfferCodes: []ramses.Code{ramses.Code22F1},
	})
	if ramses.KindOf(err) != ramses.ErrBindingFailed {
		t.Fatalf("err = %v, want BINDING_FAILED", err)
	}
	if bc.State() != StateFailed {
		t.Errorf("state = %s", bc.State())
	}
}

func TestSupplicant_NoRatifyStillBinds(t *testing.T) {
	// S3 from the supplicant side: without a ratify command the FSM
	// passes through SUPP_READY_RATIFY and still reports bound.
	acceptLine := "W --- 32:022222 29:091138 --:------ 1FC9 012 0031D98056CE0031DA8056CE"
	stub := newStubSender(nil)
	stub.reply = func(cmd *ramses.Command) (*ramses.Packet, error) {
		if cmd.Code() == ramses.Code1FC9 && cmd.Verb() == ramses.I && len(cmd.Payload()) > 1 {
			return packetFromLine(t, acceptLine), nil
		}
		return echoOf(cmd), nil
	}

	bc, err := RunSupplicant(context.Background(), stub, testLogger(), SupplicantConfig{
		Device:     vascoREM,
		OfferCodes: []ramses.Code{ramses.Code22F1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if bc.State() != StateSuppBound {
		t.Errorf("state = %s", bc.State())
	}
	if len(stub.commands()) != 2 {
		t.Errorf("sent %d commands, want tender+affirm only", len(stub.commands()))
	}
}

func TestContext_TerminalStatesAbsorb(t *testing.T) {
	bc := newContext(RoleSupplicant, vascoREM, testLogger())
	bc.step(evTender)
	bc.step(evAccept)
	bc.step(evAffirm)
	bc.step(evRatify)
	if bc.State() != StateSuppBound {
		t.Fatalf("state = %s", bc.State())
	}

	// No event moves a bound context anywhere.
	for _, ev := range []string{evTender, evAccept, evAffirm, evRatify, evListen, evFail} {
		bc.step(ev)
		if bc.State() != StateSuppBound {
			t.Fatalf("event %s escaped SUPP_BOUND to %s", ev, bc.State())
		}
	}

	failed := newContext(RoleRespondent, vascoFAN, testLogger())
	failed.step(evListen)
	failed.step(evFail)
	for _, ev := range []string{evListen, evOffer, evConfd, evSealed} {
		failed.step(ev)
		if failed.State() != StateFailed {
			t.Fatalf("event %s escaped FAILED to %s", ev, failed.State())
		}
	}
}

func TestRespondent_RequireRatify(t *testing.T) {
	stub := newStubSender(nil)
	stub.reply = func(cmd *ramses.Command) (*ramses.Packet, error) {
		if cmd.Code() == ramses.Code1FC9 && cmd.Verb() == ramses.W {
			return packetFromLine(t, "I --- 29:091138 18:140805 --:------ 1FC9 001 00"), nil
		}
		return echoOf(cmd), nil
	}

	done := make(chan *Context, 1)
	go func() {
		bc, err := RunRespondent(context.Background(), stub, testLogger(), RespondentConfig{
			AcceptCodes:   []ramses.Code{ramses.Code31DA},
			RequireRatify: true,
		})
		if err != nil {
			t.Errorf("handshake failed: %v", err)
			return
		}
		done <- bc
	}()

	waitFor(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return len(stub.subs) == 1
	})
	stub.inject(t, "I --- 29:091138 --:------ 29:091138 1FC9 024 0022F17564020022F37564026610E0756402001FC9756402")

	// After the affirm the context waits in RESP_AWAIT_RATIFY; the
	// supplicant's broadcast identity completes it.
	waitFor(t, func() bool { return len(stub.commands()) >= 1 })
	stub.inject(t, "I --- 29:091138 63:262142 --:------ 10E0 038 000001C8400F0166FFFFFFFFFFFF0E0207E3564D4E2D31374C4D503031000000000000000000")

	select {
	case bc := <-done:
		if bc.State() != StateRespBound {
			t.Errorf("state = %s", bc.State())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ratify never landed")
	}
}

func mustHexT(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}
