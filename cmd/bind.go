// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 the ramses-rf authors

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/silverailscolo/ramses-rf/pkg/binding"
	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

var (
	bindDevice        string
	bindCodes         []string
	bindAcceptCodes   []string
	bindIdx           string
	bindOem           string
	bindRatifyHex     string
	bindRequireRatify bool
)

var bindCmd = &cobra.Command{
	Use:   "bind <supplicant|respondent>",
	Short: "Run the 1FC9 pairing handshake",
	Long: `Emulate one side of the RAMSES binding handshake.

As supplicant, tender the given codes and wait for a respondent to
accept; as respondent, listen for a tender and accept it with the
given codes.

Examples:
  # offer a remote's codes the way a Vasco VMN-17LMP01 does
  ramses-rf bind supplicant --device 29:091138 --codes 22F1,22F3 --oem 66

  # play the fan unit answering with its status codes
  ramses-rf bind respondent --accept-codes 31D9,31DA`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"supplicant", "respondent"},
	RunE:      runBind,
}

func init() {
	bindCmd.Flags().StringVar(&bindDevice, "device", "", "Device id to bind as (defaults to the gateway id)")
	bindCmd.Flags().StringSliceVar(&bindCodes, "codes", nil, "Codes to tender (supplicant)")
	bindCmd.Flags().StringSliceVar(&bindAcceptCodes, "accept-codes", nil, "Codes listed in the accept (respondent)")
	bindCmd.Flags().StringVar(&bindIdx, "idx", "00", "Domain id byte (00 Vasco/ClimaRad, 21 Nuaire)")
	bindCmd.Flags().StringVar(&bindOem, "oem", "00", "OEM code byte; non-zero advertises identity in the tender")
	bindCmd.Flags().StringVar(&bindRatifyHex, "ratify", "", "10E0 identity payload to broadcast after the affirm (hex)")
	bindCmd.Flags().BoolVar(&bindRequireRatify, "require-ratify", false, "Respondent: demand the supplicant's 10E0 before reporting bound")
	rootCmd.AddCommand(bindCmd)
}

func parseHexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%q is not a hex byte", s)
	}
	return byte(v), nil
}

func parseCodes(list []string) ([]ramses.Code, error) {
	codes := make([]ramses.Code, 0, len(list))
	for _, s := range list {
		s = strings.ToUpper(strings.TrimSpace(s))
		if len(s) != 4 {
			return nil, fmt.Errorf("code %q is not 4 hex digits", s)
		}
		codes = append(codes, ramses.Code(s))
	}
	return codes, nil
}

func runBind(cmd *cobra.Command, args []string) error {
	role := strings.ToLower(args[0])
	if role != "supplicant" && role != "respondent" {
		return fmt.Errorf("role %q must be supplicant or respondent", args[0])
	}

	idx, err := parseHexByte(bindIdx)
	if err != nil {
		return err
	}
	oem, err := parseHexByte(bindOem)
	if err != nil {
		return err
	}

	var device ramses.Address
	if bindDevice != "" {
		if device, err = ramses.ParseAddress(bindDevice); err != nil {
			return err
		}
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	eng, connInfo, stop, err := StartEngine(ctx)
	if err != nil {
		return err
	}
	defer stop()
	fmt.Printf("ramses-rf - Binding (%s)\nConnection: %s\n\n", role, connInfo)

	var bc *binding.Context
	switch role {
	case "supplicant":
		codes, err := parseCodes(bindCodes)
		if err != nil {
			return err
		}
		cfg := binding.SupplicantConfig{
			Device:     device,
			OfferCodes: codes,
			Idx:        idx,
			OemCode:    oem,
		}
		if bindRatifyHex != "" {
			payload, err := hex.DecodeString(bindRatifyHex)
			if err != nil {
				return fmt.Errorf("bad --ratify hex: %v", err)
			}
			src := device
			if src.IsNone() {
				src = eng.GatewayAddress()
			}
			if cfg.Ratify, err = ramses.NewDeviceInfo(src, payload); err != nil {
				return err
			}
		}
		bc, err = binding.RunSupplicant(ctx, eng, log, cfg)
		if err != nil {
			return err
		}

	case "respondent":
		codes, err := parseCodes(bindAcceptCodes)
		if err != nil {
			return err
		}
		cfg := binding.RespondentConfig{
			Device:        device,
			AcceptCodes:   codes,
			Idx:           idx,
			RequireRatify: bindRequireRatify,
		}
		fmt.Println("Waiting for a tender (Ctrl+C to stop) ...")
		bc, err = binding.RunRespondent(ctx, eng, log, cfg)
		if err != nil {
			return err
		}
	}

	fmt.Printf("Bound: %s <-> %s (idx %02X, state %s)\n",
		bc.Device(), bc.Peer(), bc.Idx(), bc.State())
	return nil
}
