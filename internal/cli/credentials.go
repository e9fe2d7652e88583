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

	"github.com/jeremyhahn/go-passkey/pkg/client"
	"github.com/spf13/cobra"
)

// credentialsCmd represents the credentials command
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage registered credentials",
	Long:  `List and revoke a user's registered passkey credentials`,
}

// credentialsListCmd lists a user's credentials
var credentialsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's credentials",
	Long: `List a user's registered credentials. Credential IDs are truncated
and public key material is never included.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID := args[0]
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)

		cl, ctx, err := connectClient()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = cl.Close() }()

		creds, err := cl.ListCredentials(ctx, userID)
		if err != nil {
			handleError(fmt.Errorf("failed to list credentials: %w", err))
			return
		}

		if err := printer.PrintCredentialList(creds); err != nil {
			handleError(err)
		}
	},
}

// credentialsRevokeCmd revokes a credential
var credentialsRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id> <credential-id>",
	Short: "Revoke a credential",
	Long: `Revoke a user's credential. The credential ID accepts the truncated
form shown by the list command. Revocation is permanent; the
authenticator must re-register to authenticate again.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		userID := args[0]
		credentialID := args[1]
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)

		cl, ctx, err := connectClient()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = cl.Close() }()

		if err := cl.RevokeCredential(ctx, userID, credentialID); err != nil {
			handleError(fmt.Errorf("failed to revoke credential: %w", err))
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Revoked credential %s for user %s", credentialID, userID)); err != nil {
			handleError(err)
		}
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsRevokeCmd)
}

// connectClient creates a client from the global config and connects it
func connectClient() (client.Client, context.Context, error) {
	cfg := getConfig()

	cl, err := cfg.CreateClient()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}

	ctx := context.Background()
	if err := cl.Connect(ctx); err != nil {
		_ = cl.Close()
		return nil, nil, fmt.Errorf("failed to connect to passkey server: %w", err)
	}

	printVerbose("Connected to passkey server")
	return cl, ctx, nil
}
