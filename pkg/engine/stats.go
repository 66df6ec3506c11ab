// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package engine

import (
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// Stats tracks engine packet and error counters.
type Stats struct {
	StartTime time.Time

	FramesIn    atomic.Uint64
	Malformed   atomic.Uint64
	LengthErrs  atomic.Uint64
	ChecksumErr atomic.Uint64
	Anomalies   atomic.Uint64

	TxSent      atomic.Uint64
	Retries     atomic.Uint64
	Echoes      atomic.Uint64
	Replies     atomic.Uint64
	Spontaneous atomic.Uint64
	Busy        atomic.Uint64
}

// NewStats creates a counter set.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// countDecodeError buckets a codec reject by kind.
func (s *Stats) countDecodeError(err error) {
	switch ramses.KindOf(err) {
	case ramses.ErrLength:
		s.LengthErrs.Inc()
	case ramses.ErrChecksum:
		s.ChecksumErr.Inc()
	default:
		s.Malformed.Inc()
	}
}

// String returns a formatted counter summary.
func (s *Stats) String() string {
	elapsed := time.Since(s.StartTime)
	framesIn := s.FramesIn.Load()

	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(framesIn) / secs
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames In:       %8d (%.1f/sec)\n", framesIn, rate)
	result += fmt.Sprintf("Spontaneous:     %8d\n", s.Spontaneous.Load())
	result += fmt.Sprintf("Sent:            %8d\n", s.TxSent.Load())
	if v := s.Retries.Load(); v > 0 {
		result += fmt.Sprintf("Retries:         %8d\n", v)
	}
	result += fmt.Sprintf("Echoes:          %8d\n", s.Echoes.Load())
	result += fmt.Sprintf("Replies:         %8d\n", s.Replies.Load())
	if v := s.Malformed.Load(); v > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", v)
	}
	if v := s.LengthErrs.Load(); v > 0 {
		result += fmt.Sprintf("Length Errors:   %8d\n", v)
	}
	if v := s.ChecksumErr.Load(); v > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", v)
	}
	if v := s.Anomalies.Load(); v > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", v)
	}
	if v := s.Busy.Load(); v > 0 {
		result += fmt.Sprintf("Queue Rejects:   %8d\n", v)
	}
	result += "================================\n"
	return result
}
