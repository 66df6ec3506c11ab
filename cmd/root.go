// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 the ramses-rf authors

package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// MQTT connection flags
	mqttBroker string
	mqttTopic  string
	mqttUser   string

	// Replay flags
	logFile     string
	replaySpeed float64

	// Engine flags
	gatewayID string
	logLevel  string

	log = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "ramses-rf",
	Short: "RAMSES II RF protocol client",
	Long: `ramses-rf - a client runtime for the RAMSES II 868 MHz protocol used by
Honeywell-compatible heating and HVAC devices (evohome, Itho, Orcon,
Nuaire, Vasco, ClimaRad).

Decodes RAMSES frames into structured packets, tracks the device
population, sends commands with retransmission and reply matching, and
emulates devices through the 1FC9 binding handshake.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  MQTT:      --mqtt-broker tcp://host:1883 [--mqtt-topic RAMSES/GATEWAY]
  Replay:    --file packet.log [--speed 10]

For WebSocket and MQTT authentication, the password is read from the
RAMSES_PASSWORD environment variable, or prompted interactively if not
set. Set RAMSES_DISABLE_SENDING=1 for a strictly listen-only session.`,
	Version: "0.4.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		lvl, err := logrus.ParseLevel(logLevel)
		if err != nil {
			lvl = logrus.InfoLevel
		}
		log.SetLevel(lvl)
		log.SetOutput(os.Stderr)
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// MQTT connection flags
	rootCmd.PersistentFlags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL (tcp://host:1883)")
	rootCmd.PersistentFlags().StringVar(&mqttTopic, "mqtt-topic", "RAMSES/GATEWAY", "MQTT base topic (frames on <base>/rx, <base>/tx)")
	rootCmd.PersistentFlags().StringVar(&mqttUser, "mqtt-user", "", "MQTT username")

	// Replay flags
	rootCmd.PersistentFlags().StringVarP(&logFile, "file", "f", "", "Replay a packet log instead of connecting")
	rootCmd.PersistentFlags().Float64Var(&replaySpeed, "speed", 0, "Replay speed multiplier (0 = no pacing)")

	// Engine flags
	rootCmd.PersistentFlags().StringVar(&gatewayID, "gateway-id", "", "Local gateway device id (TT:NNNNNN)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
