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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts passkey routes on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	r.Route("/api/v1/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/begin", h.BeginRegistration)
	r.Post("/registration/finish", h.FinishRegistration)
	r.Get("/registration/status", h.RegistrationStatus)
	r.Post("/authentication/begin", h.BeginAuthentication)
	r.Post("/authentication/finish", h.FinishAuthentication)
	r.Get("/credentials", h.ListCredentials)
	r.Delete("/credentials/{credentialID}", h.RevokeCredential)
	r.Post("/sessions/sweep", h.SweepSessions)
	r.Get("/health", h.Health)
}

// MountStdlib mounts passkey routes on a stdlib http.ServeMux using
// Go 1.22 method and wildcard patterns. The prefix should not include a
// trailing slash.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	passkeyhttp.MountStdlib(mux, "/api/v1/passkey", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc("POST "+prefix+"/registration/begin", h.BeginRegistration)
	mux.HandleFunc("POST "+prefix+"/registration/finish", h.FinishRegistration)
	mux.HandleFunc("GET "+prefix+"/registration/status", h.RegistrationStatus)
	mux.HandleFunc("POST "+prefix+"/authentication/begin", h.BeginAuthentication)
	mux.HandleFunc("POST "+prefix+"/authentication/finish", h.FinishAuthentication)
	mux.HandleFunc("GET "+prefix+"/credentials", h.ListCredentials)
	mux.HandleFunc("DELETE "+prefix+"/credentials/{credentialID}", h.RevokeCredential)
	mux.HandleFunc("POST "+prefix+"/sessions/sweep", h.SweepSessions)
	mux.HandleFunc("GET "+prefix+"/health", h.Health)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns a slice of route entries for manual mounting.
// Useful for frameworks not directly supported. The credential revocation
// path carries a {credentialID} placeholder in chi/ServeMux syntax.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	for _, route := range handler.Routes() {
//	    router.Add(route.Method, "/passkey"+route.Path, route.Handler)
//	}
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/registration/begin", Handler: h.BeginRegistration},
		{Method: "POST", Path: "/registration/finish", Handler: h.FinishRegistration},
		{Method: "GET", Path: "/registration/status", Handler: h.RegistrationStatus},
		{Method: "POST", Path: "/authentication/begin", Handler: h.BeginAuthentication},
		{Method: "POST", Path: "/authentication/finish", Handler: h.FinishAuthentication},
		{Method: "GET", Path: "/credentials", Handler: h.ListCredentials},
		{Method: "DELETE", Path: "/credentials/{credentialID}", Handler: h.RevokeCredential},
		{Method: "POST", Path: "/sessions/sweep", Handler: h.SweepSessions},
		{Method: "GET", Path: "/health", Handler: h.Health},
	}
}
