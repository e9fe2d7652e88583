// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// healthCmd reports store health and credential distributions
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health and credential distributions",
	Long: `Show the server's store health: active credential count, pending
ceremony sessions, and credential distributions by tier and device
type.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		cl, err := cfg.CreateClient()
		if err != nil {
			handleError(fmt.Errorf("failed to create client: %w", err))
			return
		}
		defer func() { _ = cl.Close() }()

		ctx := context.Background()
		if err := cl.Connect(ctx); err != nil {
			handleError(fmt.Errorf("failed to connect to passkey server: %w", err))
			return
		}

		printVerbose("Connected to passkey server")

		report, err := cl.ServiceHealth(ctx)
		if err != nil {
			handleError(fmt.Errorf("health check failed: %w", err))
			return
		}

		if err := printer.PrintHealthReport(report); err != nil {
			handleError(err)
		}
	},
}
