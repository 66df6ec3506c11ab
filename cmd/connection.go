// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 the ramses-rf authors

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/silverailscolo/ramses-rf/pkg/engine"
	"github.com/silverailscolo/ramses-rf/pkg/ramses"
	"github.com/silverailscolo/ramses-rf/pkg/transport"
)

// GetPassword retrieves the gateway password from the environment or
// prompts for it without echo.
func GetPassword() (string, error) {
	if pw := os.Getenv("RAMSES_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport opens the gateway connection selected by the
// persistent flags: replay file, MQTT broker, WebSocket or serial.
func OpenTransport() (transport.Transport, string, error) {
	if logFile != "" {
		f, err := os.Open(logFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open packet log: %v", err)
		}
		return transport.NewReplay(f, replaySpeed), fmt.Sprintf("Replay: %s", logFile), nil
	}

	if mqttBroker != "" {
		password := ""
		if mqttUser != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		tr, err := transport.OpenMQTT(transport.MQTTConfig{
			Broker:    mqttBroker,
			Username:  mqttUser,
			Password:  password,
			BaseTopic: mqttTopic,
		}, log)
		if err != nil {
			return nil, "", err
		}
		return tr, fmt.Sprintf("MQTT: %s %s", mqttBroker, mqttTopic), nil
	}

	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		tr, err := transport.OpenWebSocket(wsURL, wsUsername, password, wsNoSSLVerify, log)
		if err != nil {
			return nil, "", err
		}
		return tr, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		tr, err := transport.OpenSerial(portName, baudRate, log)
		if err != nil {
			return nil, "", err
		}
		return tr, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("one of --port, --url, --mqtt-broker or --file must be specified")
}

// StartEngine opens the transport and runs an engine over it. The
// returned stop function tears both down.
func StartEngine(ctx context.Context) (*engine.Engine, string, func(), error) {
	tr, connInfo, err := OpenTransport()
	if err != nil {
		return nil, "", nil, err
	}

	opts := []engine.Option{}
	if gatewayID != "" {
		addr, err := ramses.ParseAddress(gatewayID)
		if err != nil {
			tr.Close()
			return nil, "", nil, fmt.Errorf("bad --gateway-id: %v", err)
		}
		opts = append(opts, engine.WithGatewayAddress(addr))
	}

	eng := engine.New(tr, log, opts...)
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := eng.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.WithError(err).Error("engine stopped")
		}
	}()

	stop := func() {
		cancel()
		tr.Close()
		<-eng.Done()
	}
	return eng, connInfo, stop, nil
}
