package httpapi

import (
	"net/http"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/apierr"
)

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("create") != "true" {
		writeError(w, r, apierr.Malformed("missing create=true query parameter"))
		return
	}
	repo := r.PathValue("repo")
	if _, ok := s.authorize(w, r, repo, access.OpCreateRepo); !ok {
		return
	}
	if err := s.engine.CreateRepo(r.Context(), repo); err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("repo")
	if _, ok := s.authorize(w, r, repo, access.OpDeleteRepo); !ok {
		return
	}
	if err := s.engine.DeleteRepo(repo); err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
