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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global configuration
	globalConfig *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "passkey-server",
	Short: "go-passkey CLI - Tiered passkey authentication server",
	Long: `go-passkey CLI runs and administers a tiered passkey (WebAuthn/FIDO2)
authentication server. Credentials register at an assurance tier and
authentication ceremonies enforce the tier's verification requirements.

Assurance tiers:
  - 0-1: presence only
  - 2:   user verification (PIN or biometric)
  - 3:   platform authenticator with user verification
  - 4-5: hardware-backed with hmac-secret support`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize global config
	globalConfig = NewConfig()

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&globalConfig.ConfigFile, "config", "",
		"config file (default is /etc/passkey/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&globalConfig.Server, "server", "",
		"server URL (http://host:port or https://host:port)")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalConfig.Verbose, "verbose", "v", false,
		"verbose output")
	rootCmd.PersistentFlags().BoolVar(&globalConfig.TLSInsecure, "tls-insecure", false,
		"skip TLS certificate verification (not recommended)")
	rootCmd.PersistentFlags().StringVar(&globalConfig.TLSCert, "tls-cert", "",
		"client certificate file for mTLS")
	rootCmd.PersistentFlags().StringVar(&globalConfig.TLSKey, "tls-key", "",
		"client key file for mTLS")
	rootCmd.PersistentFlags().StringVar(&globalConfig.TLSCACert, "tls-ca-cert", "",
		"CA certificate file for server verification")
	rootCmd.PersistentFlags().StringVar(&globalConfig.Token, "token", "",
		"bearer token for authentication")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(credentialsCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	printer := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if globalConfig.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
