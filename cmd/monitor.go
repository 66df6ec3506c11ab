// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 the ramses-rf authors

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/silverailscolo/ramses-rf/pkg/engine"
	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

var (
	monitorShowBad bool
	monitorCode    string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display the live frame stream in human-readable form",
	Long: `Continuously decode and display RAMSES frames as they arrive, one line
per packet with its correlation header appended.

Works against any connection mode, including --file for packet-log
replay. Statistics are printed on exit.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorShowBad, "show-bad", false, "Also print rejected frames")
	monitorCmd.Flags().StringVar(&monitorCode, "code", "", "Only show packets with this 4-hex code")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	eng, connInfo, stop, err := StartEngine(ctx)
	if err != nil {
		return err
	}
	defer stop()

	fmt.Printf("ramses-rf - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	filter := engine.Filter{}
	if monitorCode != "" {
		filter.Code = ramses.Code(monitorCode)
	}
	eng.Subscribe(filter, func(p *ramses.Packet) {
		fmt.Println(p.String())
	})
	if monitorShowBad {
		eng.OnDiagnostic(func(err error, line string) {
			fmt.Printf("[REJECT] %v: %s\n", err, line)
		})
	}

	select {
	case <-ctx.Done():
	case <-eng.Done():
		if err := eng.Err(); err != nil {
			return err
		}
	}

	fmt.Print("\n" + eng.Statistics().String())
	return nil
}
