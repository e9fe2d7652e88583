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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationKind_Valid(t *testing.T) {
	assert.True(t, OpRegistration.Valid())
	assert.True(t, OpAuthentication.Valid())
	assert.False(t, OperationKind("").Valid())
	assert.False(t, OperationKind("revocation").Valid())
}

func TestDefaultPolicyHook_Check(t *testing.T) {
	ctx := context.Background()
	hook := NewDefaultPolicyHook()

	payload := map[string]any{"id": "abc", "type": "public-key"}

	tests := []struct {
		name    string
		userID  string
		op      OperationKind
		payload map[string]any
		wantErr string
	}{
		{
			name:    "valid registration",
			userID:  "alice@example.com",
			op:      OpRegistration,
			payload: payload,
		},
		{
			name:    "valid authentication",
			userID:  "alice@example.com",
			op:      OpAuthentication,
			payload: payload,
		},
		{
			name:    "empty user id",
			userID:  "",
			op:      OpRegistration,
			payload: payload,
			wantErr: "empty user id",
		},
		{
			name:    "oversized user id",
			userID:  strings.Repeat("a", DefaultMaxUserIDLength+1),
			op:      OpRegistration,
			payload: payload,
			wantErr: "exceeds",
		},
		{
			name:    "unknown operation",
			userID:  "alice@example.com",
			op:      OperationKind("rotation"),
			payload: payload,
			wantErr: "unknown operation",
		},
		{
			name:    "nil payload",
			userID:  "alice@example.com",
			op:      OpRegistration,
			payload: nil,
			wantErr: "not a structured mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hook.Check(ctx, tt.userID, tt.op, tt.payload)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultPolicyHook_InjectionMarkers(t *testing.T) {
	ctx := context.Background()
	hook := NewDefaultPolicyHook()

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{
			name:    "script tag in value",
			payload: map[string]any{"id": "<script>alert(1)</script>"},
		},
		{
			name:    "uppercase marker",
			payload: map[string]any{"id": "<SCRIPT src=x>"},
		},
		{
			name:    "javascript url",
			payload: map[string]any{"redirect": "javascript:alert(1)"},
		},
		{
			name:    "marker in key",
			payload: map[string]any{"onerror=x": "y"},
		},
		{
			name: "marker nested in array",
			payload: map[string]any{
				"extensions": []any{
					map[string]any{"value": "eval(document.cookie)"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hook.Check(ctx, "alice@example.com", OpRegistration, tt.payload)
			assert.ErrorContains(t, err, "injection marker")
		})
	}

	// Harmless base64-ish ceremony content passes.
	err := hook.Check(ctx, "alice@example.com", OpRegistration, map[string]any{
		"id":       "pQECAyYgASFYIIXvW8sL",
		"rawId":    "pQECAyYgASFYIIXvW8sL",
		"response": map[string]any{"clientDataJSON": "eyJ0eXBlIjoi..."},
	})
	assert.NoError(t, err)
}

func TestDefaultPolicyHook_Overrides(t *testing.T) {
	ctx := context.Background()

	hook := &DefaultPolicyHook{
		MaxUserIDLength:  8,
		InjectionMarkers: []string{"forbidden"},
	}

	// The shorter limit applies.
	err := hook.Check(ctx, "toolonguser@example.com", OpRegistration, map[string]any{})
	assert.ErrorContains(t, err, "exceeds 8 bytes")

	// Built-in markers are replaced, not extended.
	err = hook.Check(ctx, "short", OpRegistration, map[string]any{"id": "<script>"})
	assert.NoError(t, err)

	err = hook.Check(ctx, "short", OpRegistration, map[string]any{"id": "this is Forbidden"})
	assert.ErrorContains(t, err, "injection marker")
}

func TestAllowAllPolicyHook(t *testing.T) {
	ctx := context.Background()
	hook := AllowAllPolicyHook{}

	assert.NoError(t, hook.Check(ctx, "", OperationKind("anything"), nil))
}
