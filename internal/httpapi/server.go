// Package httpapi is the Protocol Adapter of spec.md §4.6: it binds
// HTTP method + path + headers to a typed access.Request, invokes the
// Access Gate, then the Storage Engine, and serializes a response
// matching the restic REST wire contract.
//
// Grounded on the teacher's (now-retired) cmd/restic-server/router.go
// and cmd/restic-server/handlers.go, generalized from restic's fixed
// handler set to the closed operation table this server implements,
// and rerouted onto the standard library's Go 1.22+ method-and-wildcard
// http.ServeMux since no third-party router appears anywhere in the
// retrieved example pack.
package httpapi

import (
	"context"
	"log"
	"net/http"

	"github.com/rs/xid"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/acl"
	"github.com/rustic-rs/rustic-server/internal/auth"
	"github.com/rustic-rs/rustic-server/internal/storage"
)

// Server holds the dependencies the Protocol Adapter needs to build its
// router. It owns no state of its own beyond these dependencies.
type Server struct {
	engine *storage.Engine
	gate   *access.Gate
	pol    access.Policy

	logger *log.Logger
}

// New builds a Server. logger receives one line per Internal error,
// tagged with the request's correlation id, mirroring how the teacher's
// CLI configures its own diagnostic logger.
func New(engine *storage.Engine, creds *auth.Store, acls *acl.Store, pol access.Policy, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine: engine,
		gate:   access.New(creds, acls, pol),
		pol:    pol,
		logger: logger,
	}
}

// Handler returns the fully wired http.Handler for the server,
// including the correlation-id and panic-recovery middleware wrapped
// around the route table. Gzip negotiation happens per response in
// writeJSON, not in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return s.attachSelf(withCorrelation(withRecover(s.logger, mux)))
}

// attachSelf stashes the Server in the request context so free
// functions like writeError can log through it without every handler
// signature needing a *Server parameter.
func (s *Server) attachSelf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), serverCtxKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", handleHealth)

	mux.HandleFunc("HEAD /{repo}/config", s.withAuth(s.handleConfigHead))
	mux.HandleFunc("GET /{repo}/config", s.withAuth(s.handleConfigGet))
	mux.HandleFunc("POST /{repo}/config", s.withAuth(s.handleConfigPost))
	mux.HandleFunc("DELETE /{repo}/config", s.withAuth(s.handleConfigDelete))

	mux.HandleFunc("POST /{repo}/{$}", s.withAuth(s.handleCreateRepo))
	mux.HandleFunc("DELETE /{repo}/{$}", s.withAuth(s.handleDeleteRepo))

	mux.HandleFunc("GET /{repo}/{kind}/{$}", s.withAuth(s.handleList))
	mux.HandleFunc("HEAD /{repo}/{kind}/{id}", s.withAuth(s.handleObjectHead))
	mux.HandleFunc("GET /{repo}/{kind}/{id}", s.withAuth(s.handleObjectGet))
	mux.HandleFunc("POST /{repo}/{kind}/{id}", s.withAuth(s.handleObjectPost))
	mux.HandleFunc("DELETE /{repo}/{kind}/{id}", s.withAuth(s.handleObjectDelete))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// withRecover converts a panicking handler into a 500 instead of
// tearing down the whole server, the same last-resort safety net the
// teacher's own HTTP entrypoint installs.
func withRecover(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Printf("[%s] panic: %v", correlationID(r), rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type correlationKey struct{}

func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := xid.New().String()
		ctx := context.WithValue(r.Context(), correlationKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func correlationID(r *http.Request) string {
	if v := r.Context().Value(correlationKey{}); v != nil {
		return v.(string)
	}
	return ""
}
