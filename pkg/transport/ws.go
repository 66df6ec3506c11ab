// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSTransport talks to a networked RAMSES gateway that exposes the
// evofw3 line stream over a WebSocket (text messages, one or more frame
// lines per message). The gateway is not assumed to echo; echoes are
// synthesized locally.
type WSTransport struct {
	conn  *websocket.Conn
	lines chan Line
	log   logrus.FieldLogger
	stats *Stats

	writeMu   sync.Mutex
	deliverMu sync.Mutex
	closeOnce sync.Once
	closed    bool
	err       error
}

// OpenWebSocket dials a ws:// or wss:// gateway with optional HTTP
// Basic auth.
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool, log logrus.FieldLogger) (*WSTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	t := &WSTransport{
		conn:  conn,
		lines: make(chan Line, 64),
		log:   log,
		stats: &Stats{},
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) readLoop() {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.deliverMu.Lock()
			if !t.closed {
				t.err = err
				t.closed = true
				close(t.lines)
			}
			t.deliverMu.Unlock()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		for _, text := range strings.Split(string(data), "\n") {
			t.deliver(text)
		}
	}
}

func (t *WSTransport) deliver(text string) {
	if !wantLine(text) {
		t.stats.Skipped.Inc()
		return
	}
	t.stats.LinesIn.Inc()
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.lines <- Line{Text: text, When: time.Now()}:
	default:
		t.log.Warn("websocket line buffer full, dropping frame")
	}
}

// Lines returns the inbound line stream.
func (t *WSTransport) Lines() <-chan Line { return t.lines }

// WriteLine sends one frame line and loops it back as a synthesized
// echo.
func (t *WSTransport) WriteLine(text string) error {
	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.TextMessage, []byte(text))
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	t.stats.LinesOut.Inc()
	t.deliver(text)
	return nil
}

// Close tears the connection down.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		// Close the line stream first so the reader's error on the
		// dropped connection is not recorded as a fault.
		t.deliverMu.Lock()
		if !t.closed {
			t.closed = true
			close(t.lines)
		}
		t.deliverMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// Err reports why the line stream ended, nil on a clean close.
func (t *WSTransport) Err() error {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()
	if t.err != nil && websocket.IsCloseError(t.err, websocket.CloseNormalClosure) {
		return nil
	}
	return t.err
}

// Statistics returns the transport's line counters.
func (t *WSTransport) Statistics() *Stats { return t.stats }
