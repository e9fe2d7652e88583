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
	"context"
	"fmt"
	"strings"
)

// DefaultMaxUserIDLength bounds user identifiers accepted by the default
// policy hook. This is abuse defense, not identity validation.
const DefaultMaxUserIDLength = 512

// defaultInjectionMarkers are substrings whose presence in a payload's
// textual form denies the operation. The list targets obvious script
// injection attempts carried inside ceremony responses.
var defaultInjectionMarkers = []string{
	"<script",
	"</script",
	"javascript:",
	"onerror=",
	"onload=",
	"eval(",
	"document.cookie",
	"<iframe",
}

// DefaultPolicyHook is the built-in pre-check gate. It rejects requests
// that are structurally abusive before any cryptographic work happens:
// empty or oversized user IDs, unknown operation kinds, payloads that are
// not structured mappings, and payloads carrying script injection
// markers. Evaluation fails safe: anything it cannot classify is denied.
type DefaultPolicyHook struct {
	// MaxUserIDLength overrides DefaultMaxUserIDLength when positive.
	MaxUserIDLength int

	// InjectionMarkers overrides the built-in marker list when non-nil.
	InjectionMarkers []string
}

// NewDefaultPolicyHook creates a DefaultPolicyHook with built-in limits.
func NewDefaultPolicyHook() *DefaultPolicyHook {
	return &DefaultPolicyHook{}
}

// Check evaluates one ceremony request. A nil return allows the
// operation; any error denies it.
func (h *DefaultPolicyHook) Check(ctx context.Context, userID string, op OperationKind, payload map[string]any) error {
	maxLen := h.MaxUserIDLength
	if maxLen <= 0 {
		maxLen = DefaultMaxUserIDLength
	}

	if userID == "" {
		return fmt.Errorf("empty user id")
	}
	if len(userID) > maxLen {
		return fmt.Errorf("user id exceeds %d bytes", maxLen)
	}
	if !op.Valid() {
		return fmt.Errorf("unknown operation kind %q", op)
	}
	if payload == nil {
		return fmt.Errorf("payload is not a structured mapping")
	}

	markers := h.InjectionMarkers
	if markers == nil {
		markers = defaultInjectionMarkers
	}

	text := strings.ToLower(flattenPayload(payload))
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return fmt.Errorf("payload contains injection marker %q", marker)
		}
	}
	return nil
}

// flattenPayload renders a payload mapping to a single lowercase-checked
// string so marker scanning sees nested values too.
func flattenPayload(value any) string {
	var b strings.Builder
	writePayloadValue(&b, value)
	return b.String()
}

func writePayloadValue(b *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, item := range v {
			b.WriteString(key)
			b.WriteByte(' ')
			writePayloadValue(b, item)
		}
	case []any:
		for _, item := range v {
			writePayloadValue(b, item)
		}
	case string:
		b.WriteString(v)
		b.WriteByte(' ')
	default:
		fmt.Fprintf(b, "%v ", v)
	}
}

// AllowAllPolicyHook accepts every request. Useful in tests that focus on
// other parts of the ceremony.
type AllowAllPolicyHook struct{}

// Check always allows the operation.
func (AllowAllPolicyHook) Check(ctx context.Context, userID string, op OperationKind, payload map[string]any) error {
	return nil
}
