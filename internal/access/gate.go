// Package access implements the Access Gate of spec.md §4.5: a pure
// composition of the Credential Store, the ACL Store, and the global
// policy flags into a single Allow/Deny decision for one request.
package access

import (
	"github.com/rustic-rs/rustic-server/internal/acl"
	"github.com/rustic-rs/rustic-server/internal/auth"
)

// OperationClass classifies a request by the access level it needs and
// whether it is subject to the append-only policy.
type OperationClass int

const (
	OpRead OperationClass = iota
	OpAppend
	OpModifyOverwrite
	OpModifyDelete
	OpCreateRepo
	OpDeleteRepo
)

func (c OperationClass) requiredLevel() acl.Level {
	switch c {
	case OpRead:
		return acl.Read
	case OpAppend, OpCreateRepo:
		return acl.Append
	case OpModifyOverwrite, OpModifyDelete, OpDeleteRepo:
		return acl.Modify
	default:
		return acl.Modify
	}
}

func (c OperationClass) mutatesUnderAppendOnly() bool {
	switch c {
	case OpModifyOverwrite, OpModifyDelete, OpDeleteRepo:
		return true
	default:
		return false
	}
}

// DenyReason explains why a request was denied.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyUnauthorized
	DenyForbidden
)

// Decision is the outcome of a Gate.Check call.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	User    string
}

// Request describes one access decision to make.
type Request struct {
	// User and Password are the HTTP Basic credentials, if any.
	User     string
	Password string
	// HasCredentials indicates whether Basic auth was presented at all.
	HasCredentials bool

	Repo string
	Op   OperationClass
}

// Policy holds the global flags composed into every decision.
type Policy struct {
	DisableAuth bool
	AppendOnly  bool
}

// Gate composes the Credential Store, ACL Store, and Policy.
type Gate struct {
	creds *auth.Store // nil when DisableAuth is true and no store was configured
	acls  *acl.Store
	pol   Policy
}

// New builds a Gate. creds may be nil only if pol.DisableAuth is true.
func New(creds *auth.Store, acls *acl.Store, pol Policy) *Gate {
	return &Gate{creds: creds, acls: acls, pol: pol}
}

// Check makes the access decision for req, per spec.md §4.5's four-step
// procedure.
func (g *Gate) Check(req Request) Decision {
	user := req.User

	if !g.pol.DisableAuth {
		if !req.HasCredentials {
			return Decision{Allowed: false, Reason: DenyUnauthorized}
		}
		if g.creds.Verify(req.User, req.Password) != auth.Authenticated {
			return Decision{Allowed: false, Reason: DenyUnauthorized}
		}
	} else {
		user = auth.AnonymousUser
	}

	level := g.acls.Lookup(user, req.Repo)
	if level < req.Op.requiredLevel() {
		return Decision{Allowed: false, Reason: DenyForbidden, User: user}
	}

	if g.pol.AppendOnly && req.Op.mutatesUnderAppendOnly() {
		return Decision{Allowed: false, Reason: DenyForbidden, User: user}
	}

	return Decision{Allowed: true, User: user}
}
