package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
	"github.com/rustic-rs/rustic-server/internal/rtest"
	"github.com/rustic-rs/rustic-server/internal/storage"
)

func TestClassifyStorageErrors(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
		code int
	}{
		{storage.ErrNotFound, KindNotFound, http.StatusNotFound},
		{storage.ErrExists, KindConflict, http.StatusConflict},
		{storage.ErrOutOfRange, KindRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable},
		{storage.ErrForbidden, KindPermission, http.StatusForbidden},
		{pathutil.ErrMalformed, KindMalformed, http.StatusBadRequest},
		{pathutil.ErrTraversal, KindMalformed, http.StatusBadRequest},
	}
	for _, c := range cases {
		got := Classify(c.err)
		rtest.Equals(t, c.kind, got.Kind)
		rtest.Equals(t, c.code, got.Kind.Status())
	}
}

func TestClassifyUnknownErrorIsInternal(t *testing.T) {
	got := Classify(errors.New("boom"))
	rtest.Equals(t, KindInternal, got.Kind)
	rtest.Equals(t, http.StatusInternalServerError, got.Kind.Status())
}

func TestFromDecision(t *testing.T) {
	unauth := FromDecision(access.Decision{Allowed: false, Reason: access.DenyUnauthorized})
	rtest.Equals(t, KindAuth, unauth.Kind)

	forbidden := FromDecision(access.Decision{Allowed: false, Reason: access.DenyForbidden})
	rtest.Equals(t, KindPermission, forbidden.Kind)
}
