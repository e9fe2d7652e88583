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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSweepReport prints the result of an expired-session sweep
func (p *Printer) PrintSweepReport(report *passkey.SweepReport) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"registrations_removed":   report.RegistrationsRemoved,
			"authentications_removed": report.AuthenticationsRemoved,
			"corrupt_removed":         report.CorruptRemoved,
			"total":                   report.Total(),
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-25s %10s\n", "KIND", "REMOVED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 36))
		fmt.Fprintf(p.writer, "%-25s %10d\n", "registration", report.RegistrationsRemoved)
		fmt.Fprintf(p.writer, "%-25s %10d\n", "authentication", report.AuthenticationsRemoved)
		fmt.Fprintf(p.writer, "%-25s %10d\n", "corrupt", report.CorruptRemoved)
		fmt.Fprintln(p.writer, strings.Repeat("-", 36))
		fmt.Fprintf(p.writer, "%-25s %10d\n", "total", report.Total())
		return nil
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Swept %d expired sessions (%d registration, %d authentication, %d corrupt)\n",
			report.Total(), report.RegistrationsRemoved, report.AuthenticationsRemoved, report.CorruptRemoved)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintHealthReport prints store health and credential distributions
func (p *Printer) PrintHealthReport(report *passkey.HealthReport) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(report)
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-25s %10s\n", "METRIC", "COUNT")
		fmt.Fprintln(p.writer, strings.Repeat("-", 36))
		fmt.Fprintf(p.writer, "%-25s %10d\n", "active credentials", report.ActiveCredentials)
		fmt.Fprintf(p.writer, "%-25s %10d\n", "pending registrations", report.PendingRegistrations)
		fmt.Fprintf(p.writer, "%-25s %10d\n", "pending authentications", report.PendingAuthentications)

		if len(report.TierDistribution) > 0 {
			fmt.Fprintln(p.writer)
			fmt.Fprintf(p.writer, "%-25s %10s\n", "TIER", "COUNT")
			fmt.Fprintln(p.writer, strings.Repeat("-", 36))
			for _, tier := range sortedTiers(report.TierDistribution) {
				fmt.Fprintf(p.writer, "%-25s %10d\n", fmt.Sprintf("tier %d", tier), report.TierDistribution[tier])
			}
		}

		if len(report.DeviceDistribution) > 0 {
			fmt.Fprintln(p.writer)
			fmt.Fprintf(p.writer, "%-25s %10s\n", "DEVICE", "COUNT")
			fmt.Fprintln(p.writer, strings.Repeat("-", 36))
			for _, device := range sortedDevices(report.DeviceDistribution) {
				fmt.Fprintf(p.writer, "%-25s %10d\n", string(device), report.DeviceDistribution[device])
			}
		}
		return nil
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Active credentials: %d\n", report.ActiveCredentials)
		fmt.Fprintf(p.writer, "Pending registrations: %d\n", report.PendingRegistrations)
		fmt.Fprintf(p.writer, "Pending authentications: %d\n", report.PendingAuthentications)
		if len(report.TierDistribution) > 0 {
			fmt.Fprintln(p.writer, "Tier distribution:")
			for _, tier := range sortedTiers(report.TierDistribution) {
				fmt.Fprintf(p.writer, "  - tier %d: %d\n", tier, report.TierDistribution[tier])
			}
		}
		if len(report.DeviceDistribution) > 0 {
			fmt.Fprintln(p.writer, "Device distribution:")
			for _, device := range sortedDevices(report.DeviceDistribution) {
				fmt.Fprintf(p.writer, "  - %s: %d\n", device, report.DeviceDistribution[device])
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintCredentialList prints a user's credentials with sensitive
// material redacted
func (p *Printer) PrintCredentialList(creds []*passkey.CredentialSummary) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"credentials": creds,
		})
	case OutputFormatTable:
		if len(creds) == 0 {
			fmt.Fprintln(p.writer, "No credentials found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-15s %5s %-25s %10s %-9s %-20s\n",
			"CREDENTIAL ID", "TIER", "DEVICE", "SIGN COUNT", "VERIFIED", "CREATED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 90))
		for _, cred := range creds {
			fmt.Fprintf(p.writer, "%-15s %5d %-25s %10d %-9v %-20s\n",
				cred.CredentialID, cred.TierLevel, cred.DeviceType,
				cred.SignCount, cred.LibraryVerified,
				cred.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	case OutputFormatText:
		if len(creds) == 0 {
			fmt.Fprintln(p.writer, "No credentials found")
			return nil
		}
		fmt.Fprintln(p.writer, "Credentials:")
		for _, cred := range creds {
			fmt.Fprintf(p.writer, "  - %s (tier %d, %s)\n", cred.CredentialID, cred.TierLevel, cred.DeviceType)
			if cred.CloneWarning {
				fmt.Fprintf(p.writer, "    WARNING: sign counter regression detected\n")
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as indented JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// sortedTiers returns the tier keys in ascending order
func sortedTiers(dist map[passkey.Tier]int) []passkey.Tier {
	tiers := make([]passkey.Tier, 0, len(dist))
	for tier := range dist {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// sortedDevices returns the device type keys in lexical order
func sortedDevices(dist map[passkey.DeviceType]int) []passkey.DeviceType {
	devices := make([]passkey.DeviceType, 0, len(dist))
	for device := range dist {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	return devices
}
