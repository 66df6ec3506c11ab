// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package engine

import (
	"context"

	"go.uber.org/atomic"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// TxnState is the lifecycle state of one queued command.
type TxnState int

// Transaction states. A transaction enters the radio path in
// StateAwaitEcho and leaves it in StateDone or StateFailed.
const (
	StateQueued TxnState = iota
	StateAwaitEcho
	StateBackoff
	StateAwaitReply
	StateDone
	StateFailed
)

var txnStateNames = map[TxnState]string{
	StateQueued:     "QUEUED",
	StateAwaitEcho:  "AWAITING_ECHO",
	StateBackoff:    "BACKOFF",
	StateAwaitReply: "AWAITING_REPLY",
	StateDone:       "DONE",
	StateFailed:     "FAILED",
}

// String returns the canonical state name.
func (s TxnState) String() string { return txnStateNames[s] }

// result is what a finished transaction hands its caller.
type result struct {
	pkt *ramses.Packet
	err error
}

// transaction couples a command with its lifecycle. All fields except
// the cancel flag are owned by the engine's run loop.
type transaction struct {
	cmd      *ramses.Command
	frame    *ramses.Frame // materialized at first send
	state    TxnState
	attempts int // sends so far, first transmission included

	done      chan result
	cancelled *atomic.Bool
}

func newTransaction(cmd *ramses.Command) *transaction {
	return &transaction{
		cmd:       cmd,
		state:     StateQueued,
		done:      make(chan result, 1),
		cancelled: atomic.NewBool(false),
	}
}

// inFlight reports whether the transaction currently owns the medium.
func (t *transaction) inFlight() bool {
	switch t.state {
	case StateAwaitEcho, StateBackoff, StateAwaitReply:
		return true
	}
	return false
}

// resolve completes the transaction exactly once.
func (t *transaction) resolve(state TxnState, pkt *ramses.Packet, err error) {
	if t.state == StateDone || t.state == StateFailed {
		return
	}
	t.state = state
	t.done <- result{pkt: pkt, err: err}
}

// Pending is the caller's handle on a submitted command.
type Pending struct {
	txn    *transaction
	engine *Engine
}

// Wait blocks until the transaction completes or ctx ends. A context
// end cancels the transaction and reports CANCELLED.
func (p *Pending) Wait(ctx context.Context) (*ramses.Packet, error) {
	select {
	case res := <-p.txn.done:
		return res.pkt, res.err
	case <-ctx.Done():
		p.Cancel()
		// The engine still resolves the slot; collect it so the
		// cancellation result is deterministic for later callers.
		res := <-p.txn.done
		if res.err != nil {
			return nil, res.err
		}
		return res.pkt, nil
	}
}

// Cancel requests cooperative cancellation. The engine observes the
// flag before entering its next suspension; bytes already radioed are
// not recalled.
func (p *Pending) Cancel() {
	if p.txn.cancelled.CompareAndSwap(false, true) {
		p.engine.kickLoop()
	}
}
