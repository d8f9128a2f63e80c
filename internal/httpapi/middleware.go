package httpapi

import (
	"net/http"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/apierr"
)

// withAuth adapts a handler that wants the authenticated username (once
// known) into a plain http.HandlerFunc. It performs no access decision
// itself: only the handler knows the operation class for its route (and,
// for lock deletes, whether the caller is the lock's own creator), so
// the actual Allow/Deny call happens in authorize below.
func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return http.HandlerFunc(next)
}

// authorize runs the Access Gate for a request against repo/op and
// writes the appropriate error response on denial, returning ok=false
// when the caller must stop processing.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, repo string, op access.OperationClass) (string, bool) {
	user, pass, hasCreds := r.BasicAuth()
	req := access.Request{
		User:           user,
		Password:       pass,
		HasCredentials: hasCreds,
		Repo:           repo,
		Op:             op,
	}

	d := s.gate.Check(req)
	if !d.Allowed {
		writeError(w, r, apierr.FromDecision(d))
		return "", false
	}
	return d.User, true
}
