// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 the ramses-rf authors
//
// ramses-rf - RAMSES II RF protocol client
//
// A CLI for monitoring, commanding and binding Honeywell-compatible
// heating and HVAC devices over a RAMSES radio gateway.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/silverailscolo/ramses-rf/cmd"
	"github.com/silverailscolo/ramses-rf/pkg/ramses"
)

// Exit codes: 0 normal, 2 usage, 3 transport fault, 4 binding failed.
const (
	exitOK        = 0
	exitUsage     = 2
	exitTransport = 3
	exitBinding   = 4
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

func exitCode(err error) int {
	var perr *ramses.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case ramses.ErrTransportFault:
			return exitTransport
		case ramses.ErrBindingFailed:
			return exitBinding
		}
	}
	return exitUsage
}
