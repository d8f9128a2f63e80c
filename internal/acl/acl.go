// Package acl holds the per-repository access-control table described
// in spec.md §4.2: a mapping from repository name to a user->Level
// table, with a distinguished "default" section used as a fallback.
//
// The on-disk format is a standard key/value-section file, parsed with
// github.com/go-ini/ini (an indirect dependency of the teacher's Azure
// SDK closure, promoted here to a direct, exercised one):
//
//	[my-repo]
//	alice = "Modify"
//	bob   = "Read"
//
//	[default]
//	carol = "Append"
package acl

import (
	"sync/atomic"

	"github.com/go-ini/ini"

	"github.com/rustic-rs/rustic-server/internal/debug"
	"github.com/rustic-rs/rustic-server/internal/errors"
)

const defaultSection = "default"

// table is the immutable snapshot swapped in on load/reload.
type table map[string]map[string]Level

// Store holds the currently active ACL table plus the policy flags
// that affect lookup when no per-repo (or default) entry exists.
//
// Store is read-only after construction except for Reload, which
// atomically swaps the whole table so concurrent readers never observe
// a partially updated table.
type Store struct {
	disableACL   bool
	privateRepos bool

	path string
	cur  atomic.Pointer[table]
}

// NewStore loads the ACL file at path (if non-empty) and returns a
// Store. An empty path yields an empty table, meaning every lookup
// falls through to the private-repos policy.
func NewStore(path string, disableACL, privateRepos bool) (*Store, error) {
	s := &Store{
		disableACL:   disableACL,
		privateRepos: privateRepos,
		path:         path,
	}
	empty := table{}
	s.cur.Store(&empty)

	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the ACL file from disk and atomically swaps it in.
// It is safe to call concurrently with Lookup.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	cfg, err := ini.Load(s.path)
	if err != nil {
		return errors.Wrap(err, "load acl file")
	}

	t := table{}
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		users := map[string]Level{}
		for _, key := range sec.Keys() {
			lvl, err := ParseLevel(unquote(key.Value()))
			if err != nil {
				debug.Log("acl: skipping %s/%s: %v", name, key.Name(), err)
				continue
			}
			users[key.Name()] = lvl
		}
		t[name] = users
	}

	s.cur.Store(&t)
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Lookup determines the effective access level for (user, repo)
// following spec.md §4.2's rule:
//
//  1. an explicit acl[repo][user] entry wins;
//  2. otherwise acl[default][user] is used;
//  3. otherwise, if private-repos is false, any authenticated user
//     gets Modify;
//  4. otherwise access is denied.
//
// If disable-acl is set, steps 1-3 are bypassed entirely and any
// authenticated user (including the anonymous sentinel, if disable-auth
// is also set) receives Modify.
func (s *Store) Lookup(user, repo string) Level {
	if s.disableACL {
		return Modify
	}

	t := *s.cur.Load()

	if repoACL, ok := t[repo]; ok {
		if lvl, ok := repoACL[user]; ok {
			return lvl
		}
	}

	if defACL, ok := t[defaultSection]; ok {
		if lvl, ok := defACL[user]; ok {
			return lvl
		}
	}

	if !s.privateRepos {
		return Modify
	}

	return None
}
