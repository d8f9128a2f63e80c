package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/apierr"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
)

func (s *Server) handleConfigHead(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("repo")
	if _, ok := s.authorize(w, r, repo, access.OpRead); !ok {
		return
	}
	ok, err := s.engine.HasObject(repo, pathutil.KindConfig, "")
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	if !ok {
		writeError(w, r, apierr.NotFound("config not found"))
		return
	}
	size, err := s.engine.SizeOf(repo, pathutil.KindConfig, "")
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("repo")
	if _, ok := s.authorize(w, r, repo, access.OpRead); !ok {
		return
	}
	rc, err := s.engine.Read(repo, pathutil.KindConfig, "")
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	defer rc.Close()

	if size, err := s.engine.SizeOf(repo, pathutil.KindConfig, ""); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("repo")
	op := access.OpAppend
	if exists, err := s.engine.HasObject(repo, pathutil.KindConfig, ""); err == nil && exists {
		// Replacing an existing config is an overwrite, not an append.
		op = access.OpModifyOverwrite
	}
	if _, ok := s.authorize(w, r, repo, op); !ok {
		return
	}
	defer r.Body.Close()
	if err := s.engine.Create(r.Context(), repo, pathutil.KindConfig, "", r.Body); err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConfigDelete(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("repo")
	if _, ok := s.authorize(w, r, repo, access.OpModifyDelete); !ok {
		return
	}
	if err := s.engine.Delete(repo, pathutil.KindConfig, "", s.pol.AppendOnly); err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
