// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package transport

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// DefaultBaudRate is what evofw3 sticks speak.
const DefaultBaudRate = 115200

// SerialTransport reads frame lines from a USB radio gateway. The
// gateway firmware echoes every transmitted frame back on the read
// stream, so no local echo is synthesized.
type SerialTransport struct {
	port  serial.Port
	lines chan Line
	log   logrus.FieldLogger
	stats *Stats

	closeOnce sync.Once
	err       error
}

// OpenSerial opens a serial gateway at portName.
func OpenSerial(portName string, baudRate int, log logrus.FieldLogger) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	t := &SerialTransport{
		port:  port,
		lines: make(chan Line, 64),
		log:   log,
		stats: &Stats{},
	}
	go t.readLoop()
	return t, nil
}

func (t *SerialTransport) readLoop() {
	defer close(t.lines)

	scanner := bufio.NewScanner(t.port)
	scanner.Buffer(make([]byte, 1024), 4096)
	for scanner.Scan() {
		text := scanner.Text()
		if !wantLine(text) {
			t.stats.Skipped.Inc()
			t.log.WithField("line", text).Debug("skipped out-of-band line")
			continue
		}
		t.stats.LinesIn.Inc()
		t.lines <- Line{Text: text, When: time.Now()}
	}
	t.err = scanner.Err()
}

// Lines returns the inbound line stream.
func (t *SerialTransport) Lines() <-chan Line { return t.lines }

// WriteLine transmits one frame line. The gateway echoes it back.
func (t *SerialTransport) WriteLine(text string) error {
	t.stats.LinesOut.Inc()
	_, err := t.port.Write([]byte(text + "\r\n"))
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Close shuts the port down; the line channel closes once the reader
// notices.
func (t *SerialTransport) Close() error {
	var err error
	t.closeOnce.Do(func() { err = t.port.Close() })
	return err
}

// Err reports why the line stream ended, nil on a clean close.
func (t *SerialTransport) Err() error { return t.err }

// Statistics returns the transport's line counters.
func (t *SerialTransport) Statistics() *Stats { return t.stats }
