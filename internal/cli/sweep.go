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

// sweepCmd evicts expired ceremony sessions on the server
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict expired ceremony sessions",
	Long: `Evict expired registration and authentication sessions from the
server's session store and report what was removed. The server also
sweeps on its own schedule; this command forces an immediate pass.`,
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

		report, err := cl.Sweep(ctx)
		if err != nil {
			handleError(fmt.Errorf("sweep failed: %w", err))
			return
		}

		if err := printer.PrintSweepReport(report); err != nil {
			handleError(err)
		}
	},
}
