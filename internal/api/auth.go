// Package api implements the HTTP surface of the route planner.
package api

import (
	"errors"
	"net/http"
	"strings"

	"fleetroute/internal/auth"
)

// requireRole guards a handler with bearer-token auth. With auth off every
// caller passes.
func (s *Server) requireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.Auth.Enabled() {
			next(w, r)
			return
		}
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", r.URL.Path)
			return
		}
		p, err := s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			detail := "invalid token"
			if errors.Is(err, auth.ErrExpired) {
				detail = "token expired"
			}
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", detail, r.URL.Path)
			return
		}
		if !p.Can(roles...) {
			writeProblem(w, http.StatusForbidden, "Forbidden", strings.Join(roles, " or ")+" required", r.URL.Path)
			return
		}
		next(w, r)
	}
}
