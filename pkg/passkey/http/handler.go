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

package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// maxResponseBytes caps the size of ceremony response bodies. Real
// attestation objects are a few kilobytes; anything near this limit is
// garbage.
const maxResponseBytes = 1 << 20

// Handler provides HTTP handlers for passkey operations.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *passkey.Service
	logger  *slog.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /registration/begin
//
// Request body:
//
//	{
//	    "user_id": "alice",
//	    "name": "alice@example.com",   // optional
//	    "display_name": "Alice",       // optional
//	    "tier": 2
//	}
//
// Response: session handle plus WebAuthn PublicKeyCredentialCreationOptions
// Header: X-Session-Id (session identifier for FinishRegistration)
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), req.UserID, req.Name, req.DisplayName, passkey.Tier(req.Tier))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderSessionID, options.SessionID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /registration/finish
//
// Header: X-Session-Id (from BeginRegistration)
// Request body: attestation response from the authenticator, verbatim
// Response: registration result with the new credential ID
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return
	}

	// The ceremony response is passed through verbatim; the service owns
	// all parsing and validation.
	response, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResponseBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "unable to read request body")
		return
	}

	result, err := h.service.FinishRegistration(r.Context(), sessionID, response)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// BeginAuthentication handles POST /authentication/begin
//
// Request body:
//
//	{
//	    "user_id": "alice", // optional
//	    "tier": 2
//	}
//
// If user_id is omitted, the discoverable credentials flow is used.
// Response: session handle plus WebAuthn PublicKeyCredentialRequestOptions
// Header: X-Session-Id (session identifier for FinishAuthentication)
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	var req BeginAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body for discoverable credentials
		req = BeginAuthenticationRequest{}
	}

	options, err := h.service.BeginAuthentication(r.Context(), req.UserID, passkey.Tier(req.Tier))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set(HeaderSessionID, options.SessionID)
	h.writeJSON(w, http.StatusOK, options)
}

// FinishAuthentication handles POST /authentication/finish
//
// Header: X-Session-Id (from BeginAuthentication)
// Request body: assertion response from the authenticator, verbatim
// Response: authentication result with the resolved user
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "session ID header is required")
		return
	}

	response, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResponseBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "unable to read request body")
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), sessionID, response)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ListCredentials handles GET /credentials?user_id=
//
// Response: redacted credential summaries for the user. Key material and
// full credential IDs never appear in listings.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	summaries, err := h.service.ListCredentials(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summaries)
}

// RevokeCredential handles DELETE /credentials/{credentialID}?user_id=
//
// The credential ID is the URL-safe base64 form returned at registration.
// Revoking a credential that does not exist or belongs to another user
// returns credential_not_found.
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	credentialID := credentialIDFromRequest(r)
	if credentialID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "credential ID is required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user_id is required")
		return
	}

	if err := h.service.RevokeCredential(r.Context(), userID, credentialID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RevokeResponse{
		Revoked:      true,
		CredentialID: credentialID,
	})
}

// RegistrationStatus handles GET /registration/status?user_id=
//
// Response: {"registered": true/false}
func (h *Handler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: false})
		return
	}

	registered, err := h.service.IsRegistered(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: registered})
}

// SweepSessions handles POST /sessions/sweep
//
// Removes expired and corrupt pending sessions.
// Response: sweep report with per-kind removal counts.
func (h *Handler) SweepSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	report, err := h.service.SweepExpired(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// Health handles GET /health
//
// Response: live credential and session distributions.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
		return
	}

	report, err := h.service.Health(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// credentialIDFromRequest extracts the credential ID path parameter.
// Supports both chi routing and Go 1.22 ServeMux wildcard patterns.
func credentialIDFromRequest(r *http.Request) string {
	if id := chi.URLParam(r, "credentialID"); id != "" {
		return id
	}
	return r.PathValue("credentialID")
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrInvalidSession):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidSession, "invalid session id")
	case errors.Is(err, passkey.ErrSessionExpired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeSessionExpired, "session expired")
	case errors.Is(err, passkey.ErrMalformedResponse):
		h.writeError(w, http.StatusBadRequest, ErrorCodeMalformedResponse, "malformed ceremony response")
	case errors.Is(err, passkey.ErrChallengeMismatch):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeChallengeMismatch, "challenge mismatch")
	case errors.Is(err, passkey.ErrOriginMismatch):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeOriginMismatch, "origin mismatch")
	case errors.Is(err, passkey.ErrUserMismatch):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeUserMismatch, "credential does not belong to session user")
	case errors.Is(err, passkey.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
	case errors.Is(err, passkey.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "user has no registered credentials")
	case errors.Is(err, passkey.ErrCredentialNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeCredentialNotFound, "credential not found")
	case errors.Is(err, passkey.ErrCredentialAlreadyExists):
		h.writeError(w, http.StatusConflict, ErrorCodeCredentialExists, "credential already registered")
	case errors.Is(err, passkey.ErrPolicyRejected):
		h.writeError(w, http.StatusForbidden, ErrorCodePolicyRejected, "rejected by policy")
	case errors.Is(err, passkey.ErrClonedAuthenticator):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeClonedAuthenticator, "cloned authenticator detected")
	case errors.Is(err, passkey.ErrVerificationFailed):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, passkey.ErrUnsupportedFormat):
		h.writeError(w, http.StatusBadRequest, ErrorCodeUnsupportedFormat, "unsupported response format")
	case errors.Is(err, passkey.ErrInvalidTier):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidTier, "invalid security tier")
	case errors.Is(err, passkey.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
	default:
		h.logger.Error("unhandled service error", "error", err)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
