package access

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rustic-rs/rustic-server/internal/acl"
	"github.com/rustic-rs/rustic-server/internal/auth"
	"github.com/rustic-rs/rustic-server/internal/rtest"
)

func newTestGate(t *testing.T, aclContents string, pol Policy) *Gate {
	return newTestGateWithPrivacy(t, aclContents, pol, true)
}

func newTestGateWithPrivacy(t *testing.T, aclContents string, pol Policy, privateRepos bool) *Gate {
	t.Helper()
	dir := t.TempDir()

	htpasswdPath := filepath.Join(dir, "htpasswd")
	rtest.OK(t, os.WriteFile(htpasswdPath, []byte("alice:{SHA}5en6G6MezRroT3XKqkdPOmY/BfQ=\n"), 0600)) // sha1("secret")

	creds, err := auth.NewStore(htpasswdPath)
	rtest.OK(t, err)

	aclPath := filepath.Join(dir, "acl.ini")
	rtest.OK(t, os.WriteFile(aclPath, []byte(aclContents), 0600))
	acls, err := acl.NewStore(aclPath, false, privateRepos)
	rtest.OK(t, err)

	return New(creds, acls, pol)
}

func TestGateUnauthorizedWithoutCredentials(t *testing.T) {
	g := newTestGate(t, "[my-repo]\nalice = \"Modify\"\n", Policy{})
	d := g.Check(Request{Repo: "my-repo", Op: OpRead})
	rtest.Assert(t, !d.Allowed, "expected deny")
	rtest.Equals(t, DenyUnauthorized, d.Reason)
}

func TestGateUnauthorizedBadPassword(t *testing.T) {
	g := newTestGate(t, "[my-repo]\nalice = \"Modify\"\n", Policy{})
	d := g.Check(Request{User: "alice", Password: "wrong", HasCredentials: true, Repo: "my-repo", Op: OpRead})
	rtest.Assert(t, !d.Allowed, "expected deny")
	rtest.Equals(t, DenyUnauthorized, d.Reason)
}

func TestGateForbiddenInsufficientLevel(t *testing.T) {
	g := newTestGate(t, "[my-repo]\nalice = \"Read\"\n", Policy{})
	d := g.Check(Request{User: "alice", Password: "secret", HasCredentials: true, Repo: "my-repo", Op: OpAppend})
	rtest.Assert(t, !d.Allowed, "expected deny")
	rtest.Equals(t, DenyForbidden, d.Reason)
}

func TestGateAllowsReadForReadLevel(t *testing.T) {
	g := newTestGate(t, "[my-repo]\nalice = \"Read\"\n", Policy{})
	d := g.Check(Request{User: "alice", Password: "secret", HasCredentials: true, Repo: "my-repo", Op: OpRead})
	rtest.Assert(t, d.Allowed, "expected allow")
}

func TestGateAppendOnlyForbidsDeleteEvenWithModify(t *testing.T) {
	g := newTestGate(t, "[my-repo]\nalice = \"Modify\"\n", Policy{AppendOnly: true})

	d := g.Check(Request{User: "alice", Password: "secret", HasCredentials: true, Repo: "my-repo", Op: OpModifyDelete})
	rtest.Assert(t, !d.Allowed, "expected deny under append-only")
	rtest.Equals(t, DenyForbidden, d.Reason)

	d = g.Check(Request{User: "alice", Password: "secret", HasCredentials: true, Repo: "my-repo", Op: OpAppend})
	rtest.Assert(t, d.Allowed, "expected append still allowed under append-only")
}

func TestGateDisableAuthUsesAnonymous(t *testing.T) {
	g := newTestGateWithPrivacy(t, "[default]\n\n", Policy{DisableAuth: true}, false)
	d := g.Check(Request{Repo: "my-repo", Op: OpRead})
	rtest.Assert(t, d.Allowed, "expected anonymous read allowed via private-repos=false default")
	rtest.Equals(t, "", d.User)
}
