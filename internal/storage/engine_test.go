package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rustic-rs/rustic-server/internal/errors"
	"github.com/rustic-rs/rustic-server/internal/pathutil"
	"github.com/rustic-rs/rustic-server/internal/rtest"
)

var id1 = strings.Repeat("1", 64)
var id2 = strings.Repeat("2", 64)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(t.TempDir())
}

func TestCreateRepoProvisionsTree(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))

	ok, err := e.HasRepo("repo1")
	rtest.OK(t, err)
	rtest.Assert(t, ok, "expected repo1 to exist")

	for _, kind := range pathutil.DirKinds {
		dir, err := pathutil.KindDir(e.dataRoot, "repo1", kind)
		rtest.OK(t, err)
		fi, err := os.Stat(dir)
		rtest.OK(t, err)
		rtest.Assert(t, fi.IsDir(), "expected %s to be a directory", kind)
	}

	dataDir, err := pathutil.KindDir(e.dataRoot, "repo1", pathutil.KindData)
	rtest.OK(t, err)
	entries, err := os.ReadDir(dataDir)
	rtest.OK(t, err)
	rtest.Equals(t, 256, len(entries))
}

func TestCreateRepoTwiceFails(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	err := e.CreateRepo(ctx, "repo1")
	rtest.Assert(t, errors.Is(err, ErrExists), "expected ErrExists, got %v", err)
}

func TestCreateAndReadRoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))

	payload := []byte("hello world")
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader(payload)))

	rc, err := e.Read("repo1", pathutil.KindData, id1)
	rtest.OK(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	rtest.OK(t, err)
	rtest.Equals(t, payload, got)
}

func TestCreateDuplicateFails(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))

	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader([]byte("A"))))
	err := e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader([]byte("B")))
	rtest.Assert(t, errors.Is(err, ErrExists), "expected ErrExists, got %v", err)

	rc, err := e.Read("repo1", pathutil.KindData, id1)
	rtest.OK(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	rtest.Equals(t, []byte("A"), got)
}

func TestConfigCanBeOverwritten(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))

	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindConfig, "", bytes.NewReader([]byte("cfg-v1"))))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindConfig, "", bytes.NewReader([]byte("cfg-v2"))))

	rc, err := e.Read("repo1", pathutil.KindConfig, "")
	rtest.OK(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	rtest.Equals(t, []byte("cfg-v2"), got)
}

func TestAutoProvisionOnWrite(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	ok, err := e.HasRepo("newrepo")
	rtest.OK(t, err)
	rtest.Assert(t, !ok, "expected newrepo to not yet exist")

	rtest.OK(t, e.Create(ctx, "newrepo", pathutil.KindData, id1, bytes.NewReader([]byte("x"))))

	ok, err = e.HasRepo("newrepo")
	rtest.OK(t, err)
	rtest.Assert(t, ok, "expected newrepo to be auto-provisioned")
}

func TestListSkipsMalformedNames(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))

	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindSnapshots, id1, bytes.NewReader([]byte("a"))))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindSnapshots, id2, bytes.NewReader([]byte("bb"))))

	snapDir, err := pathutil.KindDir(e.dataRoot, "repo1", pathutil.KindSnapshots)
	rtest.OK(t, err)
	rtest.OK(t, os.WriteFile(snapDir+"/not-an-id.txt", []byte("junk"), 0600))

	list, err := e.List("repo1", pathutil.KindSnapshots)
	rtest.OK(t, err)
	rtest.Equals(t, 2, len(list))

	sizes := map[string]int64{}
	for _, item := range list {
		sizes[item.ID] = item.Size
	}
	rtest.Equals(t, int64(1), sizes[id1])
	rtest.Equals(t, int64(2), sizes[id2])
}

func TestReadRangeExactBytes(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader([]byte("0123456789"))))

	rc, err := e.ReadRange("repo1", pathutil.KindData, id1, 2, 4)
	rtest.OK(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	rtest.OK(t, err)
	rtest.Equals(t, []byte("2345"), got)
}

func TestReadRangeShortAtEOF(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader([]byte("0123456789"))))

	rc, err := e.ReadRange("repo1", pathutil.KindData, id1, 7, 100)
	rtest.OK(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	rtest.OK(t, err)
	rtest.Equals(t, []byte("789"), got)
}

func TestReadRangeOutOfBounds(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader([]byte("0123456789"))))

	_, err := e.ReadRange("repo1", pathutil.KindData, id1, 20, 5)
	rtest.Assert(t, errors.Is(err, ErrOutOfRange), "expected ErrOutOfRange, got %v", err)
}

func TestDeleteThenGet404(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader([]byte("x"))))

	rtest.OK(t, e.Delete("repo1", pathutil.KindData, id1, false))

	_, err := e.Read("repo1", pathutil.KindData, id1)
	rtest.Assert(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func TestDeleteUnderAppendOnlyForbidden(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader([]byte("x"))))

	err := e.Delete("repo1", pathutil.KindData, id1, true)
	rtest.Assert(t, errors.Is(err, ErrForbidden), "expected ErrForbidden, got %v", err)

	// the object must still be intact
	rc, err := e.Read("repo1", pathutil.KindData, id1)
	rtest.OK(t, err)
	rc.Close()
}

func TestConcurrentCreateSameIDExactlyOneWins(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte{byte('A' + i)}
			results[i] = e.Create(ctx, "repo1", pathutil.KindData, id1, bytes.NewReader(payload))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			rtest.Assert(t, errors.Is(err, ErrExists), "expected ErrExists or nil, got %v", err)
		}
	}
	rtest.Equals(t, 1, successes)

	rc, err := e.Read("repo1", pathutil.KindData, id1)
	rtest.OK(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	rtest.OK(t, err)
	rtest.Equals(t, 1, len(got))
}

func TestDeleteRepo(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	rtest.OK(t, e.DeleteRepo("repo1"))

	ok, err := e.HasRepo("repo1")
	rtest.OK(t, err)
	rtest.Assert(t, !ok, "expected repo1 to be gone")
}

func TestLockOwnerRoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	rtest.OK(t, e.CreateRepo(ctx, "repo1"))
	rtest.OK(t, e.Create(ctx, "repo1", pathutil.KindLocks, id1, bytes.NewReader([]byte("lock"))))
	e.RecordLockOwner("repo1", id1, "alice")

	rtest.Equals(t, "alice", e.LockOwner("repo1", id1))

	rtest.OK(t, e.DeleteLock("repo1", id1, false))
	rtest.Equals(t, "", e.LockOwner("repo1", id1))
}
