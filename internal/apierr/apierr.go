// Package apierr maps the internal error taxonomy of spec.md §7 onto
// HTTP status codes, mirroring the way the teacher's cmd/restic-server
// translated backend errors into REST responses.
package apierr

import (
	"net/http"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/errors"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
	"github.com/rustic-rs/rustic-server/internal/storage"
)

// Kind is the closed taxonomy of API-facing error categories.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindPermission
	KindNotFound
	KindConflict
	KindMalformed
	KindRangeNotSatisfiable
)

// Error is an apierr-classified error carrying an HTTP-facing message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Status returns the HTTP status code for kind.
func (k Kind) Status() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindMalformed:
		return http.StatusBadRequest
	case KindRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	default:
		return http.StatusInternalServerError
	}
}

// Classify maps an error returned by the domain packages (storage,
// pathutil, access, acl) onto an apierr.Error. Errors it does not
// recognize are classified as KindInternal so no unhandled error type
// ever escapes the Protocol Adapter unmapped.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newErr(KindNotFound, "not found", err)
	case errors.Is(err, storage.ErrExists):
		return newErr(KindConflict, "already exists", err)
	case errors.Is(err, storage.ErrOutOfRange):
		return newErr(KindRangeNotSatisfiable, "range not satisfiable", err)
	case errors.Is(err, storage.ErrForbidden):
		return newErr(KindPermission, "forbidden", err)
	case errors.Is(err, pathutil.ErrMalformed), errors.Is(err, pathutil.ErrTraversal), errors.Is(err, pathutil.ErrUnsupported):
		return newErr(KindMalformed, "malformed request", err)
	default:
		return newErr(KindInternal, "internal error", err)
	}
}

// FromDecision converts a denied access.Decision into an apierr.Error.
func FromDecision(d access.Decision) *Error {
	switch d.Reason {
	case access.DenyUnauthorized:
		return newErr(KindAuth, "authentication required", nil)
	case access.DenyForbidden:
		return newErr(KindPermission, "insufficient access level", nil)
	default:
		return newErr(KindInternal, "access denied", nil)
	}
}

// NotFound builds a KindNotFound error directly, for cases (e.g. an
// unknown repository on a listing request) where no lower-level error
// exists to classify.
func NotFound(message string) *Error { return newErr(KindNotFound, message, nil) }

// Malformed builds a KindMalformed error directly.
func Malformed(message string) *Error { return newErr(KindMalformed, message, nil) }

// RangeNotSatisfiable builds a KindRangeNotSatisfiable error directly,
// for a Range header that fails RFC 7233 parsing before ever reaching
// the Storage Engine.
func RangeNotSatisfiable(message string) *Error { return newErr(KindRangeNotSatisfiable, message, nil) }
