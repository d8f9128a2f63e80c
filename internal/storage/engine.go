// Package storage implements the Storage Engine of spec.md §4.4: object
// existence checks, listing, whole-object and byte-range reads, atomic
// creation, and deletion, plus repository provisioning and teardown.
//
// The write path is grounded on internal/backend/local/local.go's
// temp-file-then-rename-then-fsync pattern (including directory fsync;
// file modes are left as created, with no read-only chmod), and
// its per-target write serialization is a keyed mutex map built on
// github.com/puzpuzpuz/xsync/v3, the lock-free concurrent map the
// teacher already depends on.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rustic-rs/rustic-server/internal/debug"
	"github.com/rustic-rs/rustic-server/internal/errors"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
)

// Sentinel errors, matching the taxonomy in spec.md §7.
var (
	ErrExists     = errors.New("object already exists")
	ErrNotFound   = errors.New("object not found")
	ErrOutOfRange = errors.New("range out of bounds")
	ErrForbidden  = errors.New("operation forbidden by policy")
)

// ObjectInfo describes one entry in a listing.
type ObjectInfo struct {
	ID    string
	Size  int64
	MTime time.Time
}

// Engine is the Storage Engine. It is stateless except for the keyed
// write-mutex map used to serialize concurrent writes to the same
// (repo, kind, id) target; reads take no locks and rely on filesystem
// rename atomicity.
type Engine struct {
	dataRoot   string
	writeLocks *xsync.MapOf[string, *sync.Mutex]
}

// New creates a Storage Engine rooted at dataRoot. New itself does not
// create dataRoot; provisioning a repository creates any missing parent
// directories, dataRoot included.
func New(dataRoot string) *Engine {
	return &Engine{
		dataRoot:   filepath.Clean(dataRoot),
		writeLocks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

func (e *Engine) lockFor(key string) func() {
	m, _ := e.writeLocks.LoadOrCompute(key, func() *sync.Mutex { return &sync.Mutex{} })
	m.Lock()
	return m.Unlock
}

// HasRepo reports whether repo's directory tree exists.
func (e *Engine) HasRepo(repo string) (bool, error) {
	dir, err := pathutil.RepoDir(e.dataRoot, repo)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithStack(err)
	}
	return fi.IsDir(), nil
}

// CreateRepo provisions the directory tree for repo: the five kind
// directories plus the 256 `data` shard directories, created
// concurrently with an errgroup, mirroring the teacher's use of
// golang.org/x/sync/errgroup for bounded fan-out.
func (e *Engine) CreateRepo(ctx context.Context, repo string) error {
	dir, err := pathutil.RepoDir(e.dataRoot, repo)
	if err != nil {
		return err
	}

	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		entries, rerr := os.ReadDir(dir)
		if rerr == nil && len(entries) > 0 {
			return errors.Wrapf(ErrExists, "repository %q", repo)
		}
	}

	for _, kind := range pathutil.DirKinds {
		kindDir, err := pathutil.KindDir(e.dataRoot, repo, kind)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(kindDir, 0700); err != nil {
			return errors.WithStack(err)
		}
	}

	dataDir, err := pathutil.KindDir(e.dataRoot, repo, pathutil.KindData)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(32)
	for i := 0; i < 256; i++ {
		shard := shardName(i)
		g.Go(func() error {
			return errors.WithStack(os.MkdirAll(filepath.Join(dataDir, shard), 0700))
		})
	}
	return g.Wait()
}

func shardName(i int) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[i>>4], hex[i&0xf]})
}

// ensureRepo auto-provisions repo's tree if it is missing, per spec.md
// §4.4's "Repo auto-provision" algorithm. It is called from the write
// path only, after the Access Gate has already approved an Append or
// Modify operation.
func (e *Engine) ensureRepo(ctx context.Context, repo string) error {
	ok, err := e.HasRepo(repo)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	err = e.CreateRepo(ctx, repo)
	if err != nil && !errors.Is(err, ErrExists) {
		return err
	}
	return nil
}

// DeleteRepo removes repo's entire directory tree.
func (e *Engine) DeleteRepo(repo string) error {
	dir, err := pathutil.RepoDir(e.dataRoot, repo)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "repository %q", repo)
		}
		return errors.WithStack(err)
	}
	return errors.WithStack(os.RemoveAll(dir))
}

// List enumerates all objects of kind in repo. Order is unspecified but
// stable within one call. Entries whose filename fails the 64-hex
// pattern are silently skipped, per spec.md §4.4.
func (e *Engine) List(repo string, kind pathutil.Kind) ([]ObjectInfo, error) {
	if kind == pathutil.KindData {
		return e.listData(repo)
	}

	dir, err := pathutil.KindDir(e.dataRoot, repo, kind)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "repository %q kind %q", repo, kind)
		}
		return nil, errors.WithStack(err)
	}

	var out []ObjectInfo
	for _, ent := range entries {
		if ent.IsDir() || !pathutil.ValidObjectID(ent.Name()) {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		out = append(out, ObjectInfo{ID: ent.Name(), Size: info.Size(), MTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *Engine) listData(repo string) ([]ObjectInfo, error) {
	dataDir, err := pathutil.KindDir(e.dataRoot, repo, pathutil.KindData)
	if err != nil {
		return nil, err
	}

	shards, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "repository %q kind %q", repo, pathutil.KindData)
		}
		return nil, errors.WithStack(err)
	}

	var out []ObjectInfo
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dataDir, shard.Name()))
		if err != nil {
			continue
		}
		for _, ent := range entries {
			if ent.IsDir() || !pathutil.ValidObjectID(ent.Name()) {
				continue
			}
			info, err := ent.Info()
			if err != nil {
				continue
			}
			out = append(out, ObjectInfo{ID: ent.Name(), Size: info.Size(), MTime: info.ModTime()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// HasObject reports whether the named object exists.
func (e *Engine) HasObject(repo string, kind pathutil.Kind, id string) (bool, error) {
	path, err := pathutil.ObjectPath(e.dataRoot, repo, kind, id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithStack(err)
	}
	return true, nil
}

// SizeOf returns the size in bytes of the named object.
func (e *Engine) SizeOf(repo string, kind pathutil.Kind, id string) (int64, error) {
	path, err := pathutil.ObjectPath(e.dataRoot, repo, kind, id)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrapf(ErrNotFound, "%s/%s/%s", repo, kind, id)
		}
		return 0, errors.WithStack(err)
	}
	return fi.Size(), nil
}

// Read opens the named object for whole-object reading. The caller must
// close the returned ReadCloser.
func (e *Engine) Read(repo string, kind pathutil.Kind, id string) (io.ReadCloser, error) {
	path, err := pathutil.ObjectPath(e.dataRoot, repo, kind, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s/%s/%s", repo, kind, id)
		}
		return nil, errors.WithStack(err)
	}
	return f, nil
}

// ReadRange opens the named object for a byte-range read starting at
// offset for length bytes (inclusive semantics are the caller's, e.g.
// the HTTP layer converts RFC 7233 ranges to offset+length). If the
// object is shorter than offset, ErrOutOfRange is returned. A short
// read is permitted only when length would exceed the remaining bytes
// in the file, per spec.md §4.4.
func (e *Engine) ReadRange(repo string, kind pathutil.Kind, id string, offset, length int64) (io.ReadCloser, error) {
	path, err := pathutil.ObjectPath(e.dataRoot, repo, kind, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s/%s/%s", repo, kind, id)
		}
		return nil, errors.WithStack(err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.WithStack(err)
	}
	if offset < 0 || offset > fi.Size() {
		_ = f.Close()
		return nil, errors.Wrapf(ErrOutOfRange, "offset %d exceeds size %d", offset, fi.Size())
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, errors.WithStack(err)
		}
	}

	remaining := fi.Size() - offset
	if length > remaining {
		length = remaining
	}

	return &limitedReadCloser{r: io.LimitReader(f, length), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

// mutableCreate reports whether kind allows overwrite-in-place
// semantics (config, locks) rather than strict create-once immutability.
func mutableCreate(kind pathutil.Kind) bool {
	return kind == pathutil.KindConfig || kind == pathutil.KindLocks
}

// Create atomically writes a new object from src. For all kinds except
// config and locks, an existing object at the target causes ErrExists.
// The repository tree is auto-provisioned on demand for Append/Modify
// writes to a repo that does not yet exist.
func (e *Engine) Create(ctx context.Context, repo string, kind pathutil.Kind, id string, src io.Reader) (err error) {
	if err := e.ensureRepo(ctx, repo); err != nil {
		return err
	}

	path, err := pathutil.ObjectPath(e.dataRoot, repo, kind, id)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	unlock := e.lockFor(repo + "/" + string(kind) + "/" + id)
	defer unlock()

	if !mutableCreate(kind) {
		if _, statErr := os.Stat(path); statErr == nil {
			return errors.Wrapf(ErrExists, "%s/%s/%s", repo, kind, id)
		}
	}

	e.sweepOrphans(dir)

	defer func() {
		if errors.Is(err, syscall.ENOSPC) || errors.Is(err, os.ErrPermission) {
			err = backoff.Permanent(err)
		}
	}()

	tmp, err := os.CreateTemp(dir, ".tmp-"+id+"-")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, src); err != nil {
		return errors.WithStack(err)
	}
	if err = tmp.Sync(); err != nil && !errors.Is(err, syscall.ENOTSUP) {
		return errors.WithStack(err)
	}
	if err = tmp.Close(); err != nil {
		return errors.WithStack(err)
	}

	if mutableCreate(kind) {
		// config/locks may be replaced; rename always wins.
		if err = os.Rename(tmpName, path); err != nil {
			return errors.WithStack(err)
		}
	} else {
		// Race the rename against any concurrent creator of the same id:
		// if the destination now exists, the loser must fail with
		// ErrExists rather than silently overwriting.
		if _, statErr := os.Stat(path); statErr == nil {
			return errors.Wrapf(ErrExists, "%s/%s/%s", repo, kind, id)
		}
		if err = os.Rename(tmpName, path); err != nil {
			return errors.WithStack(err)
		}
	}

	success = true

	if f, derr := os.Open(dir); derr == nil {
		_ = f.Sync()
		_ = f.Close()
	}

	return nil
}

// sweepOrphans best-effort removes stale `.tmp-*` files left behind by a
// crashed handler in dir, per spec.md §7's "periodically swept on next
// write" language. Errors are ignored; this is advisory cleanup, never
// a correctness requirement.
func (e *Engine) sweepOrphans(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-1 * time.Hour)
	for _, ent := range entries {
		name := ent.Name()
		if len(name) < 5 || name[:5] != ".tmp-" {
			continue
		}
		info, err := ent.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		debug.Log("storage: sweeping orphaned temp file %s", name)
		_ = os.Remove(filepath.Join(dir, name))
	}
}

// Delete removes the named object. appendOnly forbids deletion
// regardless of caller privilege, per spec.md invariant I5.
func (e *Engine) Delete(repo string, kind pathutil.Kind, id string, appendOnly bool) error {
	if appendOnly {
		return errors.Wrapf(ErrForbidden, "delete %s/%s/%s under append-only", repo, kind, id)
	}

	path, err := pathutil.ObjectPath(e.dataRoot, repo, kind, id)
	if err != nil {
		return err
	}

	unlock := e.lockFor(repo + "/" + string(kind) + "/" + id)
	defer unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "%s/%s/%s", repo, kind, id)
		}
		return errors.WithStack(err)
	}
	return nil
}
