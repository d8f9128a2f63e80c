package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/apierr"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
)

func (s *Server) handleObjectHead(w http.ResponseWriter, r *http.Request) {
	repo, kind, id, ok := s.pathArgs(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorize(w, r, repo, access.OpRead); !ok {
		return
	}
	found, err := s.engine.HasObject(repo, kind, id)
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	if !found {
		writeError(w, r, apierr.NotFound("object not found"))
		return
	}
	size, err := s.engine.SizeOf(repo, kind, id)
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleObjectGet(w http.ResponseWriter, r *http.Request) {
	repo, kind, id, ok := s.pathArgs(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorize(w, r, repo, access.OpRead); !ok {
		return
	}

	size, err := s.engine.SizeOf(repo, kind, id)
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		offset, length, rerr := parseRange(rangeHeader, size)
		if rerr != nil {
			writeError(w, r, rerr)
			return
		}
		rc, err := s.engine.ReadRange(repo, kind, id, offset, length)
		if err != nil {
			writeError(w, r, apierr.Classify(err))
			return
		}
		defer rc.Close()

		last := offset + length - 1
		if length == 0 {
			last = offset
		}
		w.Header().Set("Content-Range", contentRange(offset, last, size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.Copy(w, rc)
		return
	}

	rc, err := s.engine.Read(repo, kind, id)
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleObjectPost(w http.ResponseWriter, r *http.Request) {
	repo, kind, id, ok := s.pathArgs(w, r)
	if !ok {
		return
	}
	user, ok := s.authorize(w, r, repo, access.OpAppend)
	if !ok {
		return
	}

	defer r.Body.Close()
	if err := s.engine.Create(r.Context(), repo, kind, id, r.Body); err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}

	if kind == pathutil.KindLocks {
		s.engine.RecordLockOwner(repo, id, user)
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleObjectDelete(w http.ResponseWriter, r *http.Request) {
	repo, kind, id, ok := s.pathArgs(w, r)
	if !ok {
		return
	}

	op := access.OpModifyDelete
	if kind == pathutil.KindLocks {
		// A lock's own creator may delete it at Append level, per
		// spec.md §4.6's exception for the locks kind.
		requester := ""
		if s.pol.DisableAuth {
			requester = "" // anonymous, matching the Access Gate's own identity resolution
		} else if user, _, hasCreds := r.BasicAuth(); hasCreds {
			requester = user
		}
		if owner := s.engine.LockOwner(repo, id); owner != "" && owner == requester {
			op = access.OpAppend
		}
	}

	if _, ok := s.authorize(w, r, repo, op); !ok {
		return
	}

	var err error
	if kind == pathutil.KindLocks {
		err = s.engine.DeleteLock(repo, id, s.pol.AppendOnly)
	} else {
		err = s.engine.Delete(repo, kind, id, s.pol.AppendOnly)
	}
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathArgs extracts and validates the repo/kind/id path parameters
// shared by every object-level handler.
func (s *Server) pathArgs(w http.ResponseWriter, r *http.Request) (repo string, kind pathutil.Kind, id string, ok bool) {
	repo = r.PathValue("repo")
	kind = pathutil.Kind(r.PathValue("kind"))
	id = r.PathValue("id")

	switch kind {
	case pathutil.KindData, pathutil.KindKeys, pathutil.KindLocks, pathutil.KindSnapshots, pathutil.KindIndex:
	default:
		writeError(w, r, apierr.Malformed("unsupported object kind"))
		return "", "", "", false
	}
	if !pathutil.ValidObjectID(id) {
		writeError(w, r, apierr.Malformed("malformed object id"))
		return "", "", "", false
	}
	return repo, kind, id, true
}
