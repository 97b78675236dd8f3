/*
auth.go - Principal extraction middleware

PURPOSE:
  Resolves the authenticated principal for a request. Authentication itself
  (credentials, sessions, tokens) lives outside this system: an upstream
  gateway is trusted to set identity headers, and this middleware only
  reads them.

HEADERS:
  X-Account-ID    the principal's account id (required)
  X-Account-Role  "customer" or "organizer" (required)

Requests without both headers are rejected with 401 before any handler
runs. Role checks beyond presence (ownership, organizer-only operations)
are enforced by the engine, not here.
*/
package api

import (
	"context"
	"net/http"

	"github.com/gatehall/ticketing-engine/ticketing"
)

// Principal identifies the authenticated caller of a request.
type Principal struct {
	AccountID ticketing.AccountID
	Role      ticketing.Role
}

type principalKey struct{}

// RequirePrincipal rejects requests missing the identity headers and puts
// the Principal on the request context for handlers.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Account-ID")
		role := ticketing.Role(r.Header.Get("X-Account-Role"))
		if id == "" || (role != ticketing.RoleCustomer && role != ticketing.RoleOrganizer) {
			writeError(w, http.StatusUnauthorized, "Missing or invalid identity headers", nil)
			return
		}
		p := Principal{AccountID: ticketing.AccountID(id), Role: role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// principalFrom returns the Principal stored by RequirePrincipal.
func principalFrom(r *http.Request) Principal {
	p, _ := r.Context().Value(principalKey{}).(Principal)
	return p
}
