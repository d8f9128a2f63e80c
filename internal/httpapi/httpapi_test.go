package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/acl"
	"github.com/rustic-rs/rustic-server/internal/auth"
	"github.com/rustic-rs/rustic-server/internal/rtest"
	"github.com/rustic-rs/rustic-server/internal/storage"
)

var id1 = strings.Repeat("a", 64)
var id2 = strings.Repeat("b", 64)
var id3 = strings.Repeat("c", 64)
var id4 = strings.Repeat("d", 64)

func newTestServer(t *testing.T, pol access.Policy) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	htpasswdPath := filepath.Join(dir, "htpasswd")
	rtest.OK(t, os.WriteFile(htpasswdPath, []byte("alice:{SHA}5en6G6MezRroT3XKqkdPOmY/BfQ=\n"), 0600)) // sha1("secret")
	creds, err := auth.NewStore(htpasswdPath)
	rtest.OK(t, err)

	aclPath := filepath.Join(dir, "acl.ini")
	rtest.OK(t, os.WriteFile(aclPath, []byte("[default]\nalice = \"Modify\"\n"), 0600))
	acls, err := acl.NewStore(aclPath, false, false)
	rtest.OK(t, err)

	rtest.OK(t, os.MkdirAll(filepath.Join(dir, "repos"), 0700))
	engine := storage.New(filepath.Join(dir, "repos"))

	srv := New(engine, creds, acls, pol, nil)
	return httptest.NewServer(srv.Handler())
}

func authGet(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	rtest.OK(t, err)
	req.SetBasicAuth("alice", "secret")
	resp, err := http.DefaultClient.Do(req)
	rtest.OK(t, err)
	return resp
}

func authDo(t *testing.T, method, url string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	rtest.OK(t, err)
	req.SetBasicAuth("alice", "secret")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	rtest.OK(t, err)
	return resp
}

func TestCreateRepoAndConfigRoundTrip(t *testing.T) {
	ts := newTestServer(t, access.Policy{})
	defer ts.Close()

	resp := authDo(t, http.MethodPost, ts.URL+"/r/?create=true", nil, nil)
	rtest.Equals(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authDo(t, http.MethodPost, ts.URL+"/r/config", bytes.NewReader([]byte("cfg-v1")), nil)
	rtest.Equals(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authGet(t, ts.URL+"/r/config")
	rtest.Equals(t, http.StatusOK, resp.StatusCode)
	rtest.Equals(t, "6", resp.Header.Get("Content-Length"))
	body, err := io.ReadAll(resp.Body)
	rtest.OK(t, err)
	resp.Body.Close()
	rtest.Equals(t, []byte("cfg-v1"), body)
}

func TestObjectImmutability(t *testing.T) {
	ts := newTestServer(t, access.Policy{})
	defer ts.Close()

	authDo(t, http.MethodPost, ts.URL+"/r/?create=true", nil, nil).Body.Close()

	resp := authDo(t, http.MethodPost, ts.URL+"/r/data/"+id1, bytes.NewReader([]byte("A")), nil)
	rtest.Equals(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authDo(t, http.MethodPost, ts.URL+"/r/data/"+id1, bytes.NewReader([]byte("B")), nil)
	rtest.Equals(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = authGet(t, ts.URL+"/r/data/"+id1)
	body, err := io.ReadAll(resp.Body)
	rtest.OK(t, err)
	resp.Body.Close()
	rtest.Equals(t, []byte("A"), body)
}

func TestListingShapeV2(t *testing.T) {
	ts := newTestServer(t, access.Policy{})
	defer ts.Close()

	authDo(t, http.MethodPost, ts.URL+"/r/?create=true", nil, nil).Body.Close()
	authDo(t, http.MethodPost, ts.URL+"/r/snapshots/"+id2, bytes.NewReader([]byte("xx")), nil).Body.Close()
	authDo(t, http.MethodPost, ts.URL+"/r/snapshots/"+id3, bytes.NewReader([]byte("y")), nil).Body.Close()

	resp := authDo(t, http.MethodGet, ts.URL+"/r/snapshots/", nil, map[string]string{"Accept": v2Accept})
	rtest.Equals(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	rtest.OK(t, err)
	resp.Body.Close()

	rtest.Assert(t, strings.Contains(string(body), id2), "expected listing to contain %s: %s", id2, body)
	rtest.Assert(t, strings.Contains(string(body), id3), "expected listing to contain %s: %s", id3, body)
	rtest.Assert(t, strings.Contains(string(body), `"size":2`), "expected size 2 in listing: %s", body)
}

func TestAppendOnlyDenial(t *testing.T) {
	ts := newTestServer(t, access.Policy{AppendOnly: true})
	defer ts.Close()

	authDo(t, http.MethodPost, ts.URL+"/r/?create=true", nil, nil).Body.Close()
	authDo(t, http.MethodPost, ts.URL+"/r/data/"+id1, bytes.NewReader([]byte("x")), nil).Body.Close()

	resp := authDo(t, http.MethodDelete, ts.URL+"/r/data/"+id1, nil, nil)
	rtest.Equals(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = authDo(t, http.MethodPost, ts.URL+"/r/data/"+id4, bytes.NewReader([]byte("x")), nil)
	rtest.Equals(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestUnknownUserUnauthorized(t *testing.T) {
	ts := newTestServer(t, access.Policy{})
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/r/config", nil)
	rtest.OK(t, err)
	req.SetBasicAuth("mallory", "whatever")
	resp, err := http.DefaultClient.Do(req)
	rtest.OK(t, err)
	rtest.Equals(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRangeRead(t *testing.T) {
	ts := newTestServer(t, access.Policy{})
	defer ts.Close()

	authDo(t, http.MethodPost, ts.URL+"/r/?create=true", nil, nil).Body.Close()
	authDo(t, http.MethodPost, ts.URL+"/r/data/"+id1, bytes.NewReader([]byte("0123456789")), nil).Body.Close()

	resp := authDo(t, http.MethodGet, ts.URL+"/r/data/"+id1, nil, map[string]string{"Range": "bytes=2-5"})
	rtest.Equals(t, http.StatusPartialContent, resp.StatusCode)
	rtest.Equals(t, "bytes 2-5/10", resp.Header.Get("Content-Range"))
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	rtest.Equals(t, []byte("2345"), body)

	resp = authDo(t, http.MethodGet, ts.URL+"/r/data/"+id1, nil, map[string]string{"Range": "bytes=-3"})
	rtest.Equals(t, http.StatusPartialContent, resp.StatusCode)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	rtest.Equals(t, []byte("789"), body)

	resp = authDo(t, http.MethodGet, ts.URL+"/r/data/"+id1, nil, map[string]string{"Range": "bytes=20-30"})
	rtest.Equals(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthLiveBypassesAuth(t *testing.T) {
	ts := newTestServer(t, access.Policy{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health/live")
	rtest.OK(t, err)
	rtest.Equals(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLockDeleteByOwner(t *testing.T) {
	ts := newTestServer(t, access.Policy{})
	defer ts.Close()

	authDo(t, http.MethodPost, ts.URL+"/r/?create=true", nil, nil).Body.Close()
	authDo(t, http.MethodPost, ts.URL+"/r/locks/"+id1, bytes.NewReader([]byte("lock")), nil).Body.Close()

	resp := authDo(t, http.MethodDelete, ts.URL+"/r/locks/"+id1, nil, nil)
	rtest.Equals(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}
