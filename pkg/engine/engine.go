// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

// Package engine implements the RAMSES protocol transaction state
// machine: a single-in-flight send engine over a half-duplex radio,
// with echo matching, expected-reply waiting, retransmission and
// backoff, plus the dispatcher that fans inbound packets out to
// subscribers.
package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
	"github.com/silverailscolo/ramses-rf/pkg/transport"
)

// DisableSendingEnv puts the engine in listen-only mode when set to 1.
const DisableSendingEnv = "RAMSES_DISABLE_SENDING"

// Option configures an Engine.
type Option func(*Engine)

// WithGatewayAddress sets the local gateway id injected into commands
// built with the ramses.AddrGateway placeholder.
func WithGatewayAddress(addr ramses.Address) Option {
	return func(e *Engine) { e.gwAddr = addr }
}

// WithReadOnly forces listen-only mode regardless of environment.
func WithReadOnly() Option {
	return func(e *Engine) { e.readOnly.Store(true) }
}

// Engine owns one transport and serializes all transmissions over it.
// At most one transaction is in flight at any moment; everything else
// waits in per-priority FIFO queues.
type Engine struct {
	tr  transport.Transport
	log logrus.FieldLogger

	gwAddr   ramses.Address
	readOnly *atomic.Bool
	running  *atomic.Bool

	mu     sync.Mutex
	queues [3][]*transaction // indexed by ramses.Priority
	qsize  int

	active *transaction
	timer  *time.Timer
	kick   chan struct{}

	subs     *subscribers
	stats    *Stats
	stopped  chan struct{}
	stopErr  error
}

// New creates an engine over tr. The engine does not run until Run is
// called.
func New(tr transport.Transport, log logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		tr:       tr,
		log:      log,
		gwAddr:   ramses.AddrGateway,
		readOnly: atomic.NewBool(os.Getenv(DisableSendingEnv) == "1"),
		running:  atomic.NewBool(true), // cleared for good once Run exits
		kick:     make(chan struct{}, 1),
		subs:     newSubscribers(log),
		stats:    NewStats(),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.timer = time.NewTimer(time.Hour)
	e.timer.Stop()
	return e
}

// GatewayAddress returns the engine's own device id.
func (e *Engine) GatewayAddress() ramses.Address { return e.gwAddr }

// Done closes once the run loop has exited.
func (e *Engine) Done() <-chan struct{} { return e.stopped }

// Err reports the fault that stopped the engine, nil on a clean stop.
func (e *Engine) Err() error { return e.stopErr }

// ReadOnly reports whether sending is disabled.
func (e *Engine) ReadOnly() bool { return e.readOnly.Load() }

// Statistics returns the engine's packet counters.
func (e *Engine) Statistics() *Stats { return e.stats }

// Subscribe registers a callback for packets matching filter. Callbacks
// run on the engine loop and must not block. A zero Filter matches all.
func (e *Engine) Subscribe(filter Filter, fn func(*ramses.Packet)) *Subscription {
	return e.subs.add(filter, fn, false)
}

// SubscribeOnce registers a callback fired for the first matching
// packet only.
func (e *Engine) SubscribeOnce(filter Filter, fn func(*ramses.Packet)) *Subscription {
	return e.subs.add(filter, fn, true)
}

// SubscribeFunc registers a predicate subscription and returns its
// unsubscribe function. This is the shape pkg/binding consumes.
func (e *Engine) SubscribeFunc(pred func(*ramses.Packet) bool, fn func(*ramses.Packet)) func() {
	sub := e.Subscribe(Filter{Predicate: pred}, fn)
	return sub.Unsubscribe
}

// OnDiagnostic registers a callback for codec rejects and other
// non-fatal anomalies.
func (e *Engine) OnDiagnostic(fn func(error, string)) {
	e.subs.addDiag(fn)
}

// Submit queues a command for transmission and returns immediately.
func (e *Engine) Submit(cmd *ramses.Command) (*Pending, error) {
	if e.readOnly.Load() {
		return nil, ramses.NewError(ramses.ErrReadOnly, "sending is disabled")
	}
	if !e.running.Load() {
		return nil, ramses.NewError(ramses.ErrTransportFault, "engine has stopped")
	}
	if cmd.Src() == ramses.AddrGateway && e.gwAddr != ramses.AddrGateway {
		cmd.SetSrc(e.gwAddr)
	}

	txn := newTransaction(cmd)

	e.mu.Lock()
	if e.qsize >= ramses.MaxQueueSize {
		e.mu.Unlock()
		e.stats.Busy.Inc()
		return nil, ramses.NewError(ramses.ErrBusy, "send queue is full (%d)", ramses.MaxQueueSize)
	}
	pri := cmd.Priority()
	e.queues[pri] = append(e.queues[pri], txn)
	e.qsize++
	e.mu.Unlock()

	e.kickLoop()
	return &Pending{txn: txn, engine: e}, nil
}

// SendCommand queues cmd and waits for its result: the reply packet
// for RQ/W, or the echoed transmission for a plain I.
func (e *Engine) SendCommand(ctx context.Context, cmd *ramses.Command) (*ramses.Packet, error) {
	pending, err := e.Submit(cmd)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// Run drives the engine until ctx ends or the transport fails. It owns
// the outbound side of the transport exclusively.
func (e *Engine) Run(ctx context.Context) error {
	defer e.running.Store(false)
	defer close(e.stopped)

	for {
		e.maybeStartNext()
		if e.stopErr != nil {
			return e.stopErr
		}

		select {
		case line, ok := <-e.tr.Lines():
			if !ok {
				err := ramses.WrapError(ramses.ErrTransportFault, e.tr.Err(), "transport closed")
				e.failAll(err)
				if e.tr.Err() != nil {
					e.stopErr = err
					return err
				}
				return nil
			}
			e.handleLine(line)

		case <-e.timer.C:
			e.handleTimeout()

		case <-e.kick:
			e.reapCancelled()

		case <-ctx.Done():
			e.failAll(ramses.WrapError(ramses.ErrCancelled, ctx.Err(), "engine stopped"))
			return ctx.Err()
		}
	}
}

// kickLoop nudges the run loop after external state changes.
func (e *Engine) kickLoop() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// maybeStartNext pops the highest-priority queued transaction when the
// medium is free.
func (e *Engine) maybeStartNext() {
	if e.active != nil {
		return
	}

	e.mu.Lock()
	var next *transaction
	for pri := range e.queues {
		for len(e.queues[pri]) > 0 {
			head := e.queues[pri][0]
			e.queues[pri] = e.queues[pri][1:]
			e.qsize--
			if head.cancelled.Load() {
				head.resolve(StateFailed, nil, ramses.NewError(ramses.ErrCancelled, "cancelled while queued"))
				continue
			}
			next = head
			break
		}
		if next != nil {
			break
		}
	}
	e.mu.Unlock()

	if next == nil {
		return
	}
	e.active = next
	e.send(next)
}

// send transmits the active transaction's frame and arms the echo
// timer.
func (e *Engine) send(txn *transaction) {
	if txn.frame == nil {
		txn.frame = txn.cmd.Frame()
	}
	txn.attempts++
	e.stats.TxSent.Inc()
	if txn.attempts > 1 {
		e.stats.Retries.Inc()
	}

	line := txn.frame.WireLine()
	e.log.WithFields(logrus.Fields{
		"hdr":     txn.cmd.TxHeader(),
		"attempt": txn.attempts,
	}).Debug("transmitting")

	if err := e.tr.WriteLine(line); err != nil {
		// A failed write is a dead medium: stop the engine and fail
		// everything pending.
		fault := ramses.WrapError(ramses.ErrTransportFault, err, "write failed")
		e.failAll(fault)
		e.stopErr = fault
		return
	}
	txn.state = StateAwaitEcho
	e.arm(ramses.EchoTimeout)
}

// handleLine decodes one inbound line, offers the packet to the active
// transaction, then publishes whatever was not consumed.
func (e *Engine) handleLine(line transport.Line) {
	frame, err := ramses.DecodeFrame(line.Text, line.When)
	if err != nil {
		e.stats.countDecodeError(err)
		e.log.WithError(err).WithField("line", line.Text).Debug("frame rejected")
		e.subs.diagnostic(err, line.Text)
		return
	}
	e.stats.FramesIn.Inc()

	pkt := ramses.NewPacket(frame)
	if anomalies := ramses.ValidatePayload(pkt); len(anomalies) > 0 {
		e.stats.Anomalies.Add(uint64(len(anomalies)))
		for _, a := range anomalies {
			anomaly := a
			e.subs.diagnostic(&anomaly, line.Text)
		}
	}

	if e.consume(pkt) {
		return
	}
	e.stats.Spontaneous.Inc()
	e.subs.publish(pkt)
}

// consume offers a packet to the active transaction. It returns true
// when the packet was the awaited echo or reply and must not reach
// subscribers.
func (e *Engine) consume(pkt *ramses.Packet) bool {
	txn := e.active
	if txn == nil {
		return false
	}

	switch txn.state {
	case StateAwaitEcho:
		if !pkt.SameWire(txn.frame) {
			return false
		}
		e.stats.Echoes.Inc()
		if txn.cmd.RxHeader() == "" {
			e.finishActive(StateDone, pkt, nil)
			return true
		}
		txn.state = StateAwaitReply
		e.arm(txn.cmd.Timeout())
		return true

	case StateAwaitReply:
		if pkt.Hdr() != txn.cmd.RxHeader() {
			return false
		}
		if pkt.Dst() != txn.cmd.Src() {
			return false
		}
		if !txn.cmd.ReplyFromAnySrc() && pkt.Src() != txn.cmd.Dst() {
			// Same shape, wrong device: spontaneous traffic.
			return false
		}
		e.stats.Replies.Inc()
		e.finishActive(StateDone, pkt, nil)
		return true
	}
	return false
}

// handleTimeout advances the active transaction after an expired wait.
func (e *Engine) handleTimeout() {
	txn := e.active
	if txn == nil {
		return
	}

	switch txn.state {
	case StateAwaitEcho:
		if txn.attempts > txn.cmd.Retries() {
			e.finishActive(StateFailed, nil, ramses.NewError(ramses.ErrRetriesExhausted,
				"no echo after %d attempts", txn.attempts))
			return
		}
		e.log.WithField("hdr", txn.cmd.TxHeader()).Debug("echo timeout, retransmitting")
		e.send(txn) // immediate retransmit

	case StateAwaitReply:
		if txn.attempts > txn.cmd.Retries() {
			e.finishActive(StateFailed, nil, ramses.NewError(ramses.ErrRetriesExhausted,
				"no reply after %d attempts", txn.attempts))
			return
		}
		e.log.WithField("hdr", txn.cmd.RxHeader()).Debug("reply timeout, backing off")
		txn.state = StateBackoff
		e.arm(ramses.ReplyBackoff)

	case StateBackoff:
		e.send(txn)
	}
}

// reapCancelled resolves a cancelled active transaction. Queued ones
// are reaped when popped.
func (e *Engine) reapCancelled() {
	if e.active != nil && e.active.cancelled.Load() {
		e.finishActive(StateFailed, nil, ramses.NewError(ramses.ErrCancelled, "cancelled in flight"))
	}
}

// finishActive resolves the active transaction and frees the medium.
func (e *Engine) finishActive(state TxnState, pkt *ramses.Packet, err error) {
	e.timer.Stop()
	if e.active != nil {
		e.active.resolve(state, pkt, err)
		e.active = nil
	}
}

// failAll resolves the active and every queued transaction with err.
func (e *Engine) failAll(err error) {
	e.finishActive(StateFailed, nil, err)
	e.mu.Lock()
	defer e.mu.Unlock()
	for pri := range e.queues {
		for _, txn := range e.queues[pri] {
			txn.resolve(StateFailed, nil, err)
		}
		e.queues[pri] = nil
	}
	e.qsize = 0
}

// arm resets the state timer to fire after d.
func (e *Engine) arm(d time.Duration) {
	if !e.timer.Stop() {
		select {
		case <-e.timer.C:
		default:
		}
	}
	e.timer.Reset(d)
}
