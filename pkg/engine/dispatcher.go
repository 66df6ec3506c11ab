// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package engine

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// Filter selects the packets a subscriber wants. Zero-valued fields
// match anything; Predicate, when set, is applied last.
type Filter struct {
	Code      ramses.Code
	Verb      ramses.Verb
	Src       ramses.Address
	Dst       ramses.Address
	Touches   ramses.Address // matches src OR dst
	Predicate func(*ramses.Packet) bool
}

// match applies the filter.
func (f Filter) match(p *ramses.Packet) bool {
	if f.Code != "" && p.Code() != f.Code {
		return false
	}
	if f.Verb != "" && p.Verb() != f.Verb {
		return false
	}
	if !f.Src.IsNone() && p.Src() != f.Src {
		return false
	}
	if !f.Dst.IsNone() && p.Dst() != f.Dst {
		return false
	}
	if !f.Touches.IsNone() && p.Src() != f.Touches && p.Dst() != f.Touches {
		return false
	}
	if f.Predicate != nil && !f.Predicate(p) {
		return false
	}
	return true
}

// Subscription is a registered packet listener.
type Subscription struct {
	filter Filter
	fn     func(*ramses.Packet)
	once   bool

	fired  bool
	parent *subscribers
}

// Unsubscribe removes the listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.parent.remove(s)
}

// subscribers fans packets out in registration order.
type subscribers struct {
	mu    sync.Mutex
	list  []*Subscription
	diags []func(error, string)
	log   logrus.FieldLogger
}

func newSubscribers(log logrus.FieldLogger) *subscribers {
	return &subscribers{log: log}
}

func (s *subscribers) add(filter Filter, fn func(*ramses.Packet), once bool) *Subscription {
	sub := &Subscription{filter: filter, fn: fn, once: once, parent: s}
	s.mu.Lock()
	s.list = append(s.list, sub)
	s.mu.Unlock()
	return sub
}

func (s *subscribers) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.list {
		if candidate == sub {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

func (s *subscribers) addDiag(fn func(error, string)) {
	s.mu.Lock()
	s.diags = append(s.diags, fn)
	s.mu.Unlock()
}

// publish delivers a packet to every matching subscriber, in
// registration order. Once-subscriptions are retired after their first
// match.
func (s *subscribers) publish(p *ramses.Packet) {
	s.mu.Lock()
	targets := make([]*Subscription, 0, len(s.list))
	for _, sub := range s.list {
		if sub.fired || !sub.filter.match(p) {
			continue
		}
		if sub.once {
			sub.fired = true
		}
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.fn(p)
		if sub.once {
			s.remove(sub)
		}
	}
}

// diagnostic surfaces a non-fatal codec or payload anomaly.
func (s *subscribers) diagnostic(err error, line string) {
	s.mu.Lock()
	targets := append([]func(error, string){}, s.diags...)
	s.mu.Unlock()
	for _, fn := range targets {
		fn(err, line)
	}
}
