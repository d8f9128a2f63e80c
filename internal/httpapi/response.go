package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/rustic-rs/rustic-server/internal/apierr"
)

// gzipThreshold is the minimum encoded body size worth paying gzip's
// framing overhead for; small listings are sent uncompressed.
const gzipThreshold = 256

// v2Accept is the media type that switches listing responses from the
// legacy id-array format to the {name,size} object array, per spec.md
// §6's wire protocol.
const v2Accept = "application/vnd.x.restic.rest.v2"

// writeError classifies err and writes the matching status code plus a
// single plain-text line, per spec.md §7: no stack traces, no leaked
// internals, and Internal errors are additionally logged server-side
// with the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, err *apierr.Error) {
	if err.Kind == apierr.KindAuth {
		w.Header().Set("WWW-Authenticate", `Basic realm="Restic Repository"`)
	}
	if s, ok := serverFromRequest(r); ok && err.Kind == apierr.KindInternal {
		s.logger.Printf("[%s] internal error: %+v", correlationID(r), err)
	}
	http.Error(w, err.Message, err.Kind.Status())
}

// serverCtxKey lets writeError (a free function, so it can be called
// from any handler file without a receiver) reach the owning Server for
// logging. It is stashed once per request by Server.attachSelf.
type serverCtxKey struct{}

func serverFromRequest(r *http.Request) (*Server, bool) {
	v := r.Context().Value(serverCtxKey{})
	if v == nil {
		return nil, false
	}
	s, ok := v.(*Server)
	return s, ok
}

// writeJSON encodes v and writes it, transparently gzip-compressing the
// body with github.com/klauspost/compress/gzip when the client
// advertises support and the encoded body clears gzipThreshold —
// mirroring the teacher's own use of that module for pack-file
// compression, repurposed here for HTTP bodies.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		writeError(w, r, apierr.Classify(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if buf.Len() >= gzipThreshold && acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		gz := gzip.NewWriter(w)
		_, _ = gz.Write(buf.Bytes())
		_ = gz.Close()
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(enc) == "gzip" {
			return true
		}
	}
	return false
}
