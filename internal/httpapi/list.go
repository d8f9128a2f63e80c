package httpapi

import (
	"net/http"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/apierr"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
)

// listEntryV2 is the v2 wire shape: {"name":"<id>","size":<u64>}.
type listEntryV2 struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	repo := r.PathValue("repo")
	kind := pathutil.Kind(r.PathValue("kind"))

	switch kind {
	case pathutil.KindData, pathutil.KindKeys, pathutil.KindLocks, pathutil.KindSnapshots, pathutil.KindIndex:
	default:
		writeError(w, r, apierr.Malformed("unsupported object kind"))
		return
	}

	if _, ok := s.authorize(w, r, repo, access.OpRead); !ok {
		return
	}

	items, err := s.engine.List(repo, kind)
	if err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}

	if r.Header.Get("Accept") == v2Accept {
		out := make([]listEntryV2, 0, len(items))
		for _, it := range items {
			out = append(out, listEntryV2{Name: it.ID, Size: it.Size})
		}
		writeJSON(w, r, out)
		return
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	writeJSON(w, r, ids)
}
