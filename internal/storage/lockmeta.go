package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rustic-rs/rustic-server/internal/errors"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
)

// lockOwnerFile returns the sidecar path recording who created a lock
// object, per spec.md §9's "Locks kind semantics": a lock may be
// deleted by its own creator even without Modify-level access, which
// requires recording the creating user somewhere durable. A sibling
// dotfile is simpler and more portable across filesystems than an
// extended attribute, and is the implementation choice spec.md leaves
// open.
func lockOwnerFile(dataRoot, repo, id string) (string, error) {
	locksDir, err := pathutil.KindDir(dataRoot, repo, pathutil.KindLocks)
	if err != nil {
		return "", err
	}
	return filepath.Join(locksDir, "."+id+".owner"), nil
}

// RecordLockOwner writes the sidecar owner file for a newly created
// lock object. Best-effort: a failure here does not fail the lock
// creation itself, since ownership is only consulted for the optional
// "delete your own lock" ACL relaxation, never for correctness of the
// lock itself.
func (e *Engine) RecordLockOwner(repo, id, user string) {
	path, err := lockOwnerFile(e.dataRoot, repo, id)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, []byte(user), 0600)
}

// LockOwner returns the recorded creator of lock id, or "" if unknown.
func (e *Engine) LockOwner(repo, id string) string {
	path, err := lockOwnerFile(e.dataRoot, repo, id)
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// removeLockOwner cleans up the sidecar file after a lock is deleted.
func (e *Engine) removeLockOwner(repo, id string) {
	path, err := lockOwnerFile(e.dataRoot, repo, id)
	if err != nil {
		return
	}
	_ = os.Remove(path)
}

// DeleteLock removes a lock object and its owner sidecar. It shares
// spec.md's I5 append-only enforcement with Delete.
func (e *Engine) DeleteLock(repo, id string, appendOnly bool) error {
	if err := e.Delete(repo, pathutil.KindLocks, id, appendOnly); err != nil {
		return errors.WithStack(err)
	}
	e.removeLockOwner(repo, id)
	return nil
}
