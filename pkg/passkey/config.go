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

package passkey

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Config configures the passkey service.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	// Example: "Example Corp"
	RPDisplayName string `yaml:"display_name" json:"display_name" mapstructure:"display_name"`

	// RPOrigins are the allowed origins for ceremony responses. The
	// origin echoed in clientDataJSON must match one of these exactly.
	// Example: []string{"https://example.com", "https://www.example.com"}
	RPOrigins []string `yaml:"origins" json:"origins" mapstructure:"origins"`

	// SessionTTL bounds the lifetime of a pending ceremony session.
	// Default: 300 seconds.
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl" mapstructure:"session_ttl"`

	// CeremonyTimeout is the client-side timeout advertised in options.
	// Default: 60 seconds.
	CeremonyTimeout time.Duration `yaml:"ceremony_timeout" json:"ceremony_timeout" mapstructure:"ceremony_timeout"`

	// DefaultTier is the tier applied when a begin request does not name
	// one. Default: 0.
	DefaultTier Tier `yaml:"default_tier" json:"default_tier" mapstructure:"default_tier"`

	// Debug enables debug logging in the underlying library.
	Debug bool `yaml:"debug" json:"debug" mapstructure:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}
	for _, origin := range c.RPOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("empty RPOrigin")
		}
	}
	if !c.DefaultTier.Valid() {
		return fmt.Errorf("invalid default tier: %d", c.DefaultTier)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.CeremonyTimeout < 0 {
		return fmt.Errorf("ceremony timeout must be positive")
	}
	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.CeremonyTimeout == 0 {
		c.CeremonyTimeout = 60 * time.Second
	}
}

// AllowedOrigin reports whether the given origin exactly matches one of
// the configured relying party origins.
func (c *Config) AllowedOrigin(origin string) bool {
	for _, allowed := range c.RPOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ToWebAuthnConfig converts the Config to the go-webauthn library's
// configuration. Per-ceremony authenticator selection and attestation
// preferences are supplied by the tier policy at begin time, so only the
// relying party identity and timeouts are set here.
func (c *Config) ToWebAuthnConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:          c.RPID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     c.RPOrigins,
		Debug:         c.Debug,
	}

	if c.CeremonyTimeout > 0 {
		cfg.Timeouts = webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.CeremonyTimeout,
				TimeoutUVD: c.CeremonyTimeout,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.CeremonyTimeout,
				TimeoutUVD: c.CeremonyTimeout,
			},
		}
	}

	return cfg
}
