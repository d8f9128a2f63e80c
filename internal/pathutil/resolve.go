// Package pathutil implements the Path Resolver of spec.md §4.3: a pure
// function from (data-root, repo-name, optional kind+id) to a filesystem
// path, with no I/O of its own. It is grounded on the directory-layout
// logic in the teacher's internal/backend/layout package, generalized
// from restic's fixed repository-kind set to the same set used here.
package pathutil

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rustic-rs/rustic-server/internal/errors"
)

// Kind is one of the closed set of object kinds a repository holds.
type Kind string

const (
	KindData      Kind = "data"
	KindKeys      Kind = "keys"
	KindLocks     Kind = "locks"
	KindSnapshots Kind = "snapshots"
	KindIndex     Kind = "index"
	KindConfig    Kind = "config"
)

// DirKinds are the kinds that are directories of many objects.
var DirKinds = []Kind{KindData, KindKeys, KindLocks, KindSnapshots, KindIndex}

func (k Kind) valid() bool {
	switch k {
	case KindData, KindKeys, KindLocks, KindSnapshots, KindIndex, KindConfig:
		return true
	default:
		return false
	}
}

var (
	repoNameSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	objectID        = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ErrMalformed is returned when a name or id fails validation.
var ErrMalformed = errors.New("malformed path component")

// ErrTraversal is returned when a resolved path would escape the data
// root after lexical normalization.
var ErrTraversal = errors.New("path traversal detected")

// ErrUnsupported is returned for an unrecognized object kind.
var ErrUnsupported = errors.New("unsupported object kind")

// ValidRepoName reports whether name is a well-formed repository name:
// one or two `[A-Za-z0-9._-]+` segments joined by a single `/`, where
// neither segment is `.` or `..`.
func ValidRepoName(name string) bool {
	if name == "" {
		return false
	}
	segs := strings.Split(name, "/")
	if len(segs) > 2 {
		return false
	}
	for _, s := range segs {
		if s == "." || s == ".." || !repoNameSegment.MatchString(s) {
			return false
		}
	}
	return true
}

// ValidObjectID reports whether id is a 64-character lowercase hex string.
func ValidObjectID(id string) bool {
	return objectID.MatchString(id)
}

// RepoDir resolves the on-disk directory for a repository.
func RepoDir(dataRoot, repo string) (string, error) {
	if !ValidRepoName(repo) {
		return "", errors.Wrapf(ErrMalformed, "repository name %q", repo)
	}
	return join(dataRoot, repo)
}

// KindDir resolves the on-disk directory for a repository/kind pair.
// Only valid for the five "many objects" kinds.
func KindDir(dataRoot, repo string, kind Kind) (string, error) {
	if !kind.valid() {
		return "", errors.Wrapf(ErrUnsupported, "kind %q", kind)
	}
	if kind == KindConfig {
		return "", errors.Wrap(ErrUnsupported, "config has no directory")
	}
	repoDir, err := RepoDir(dataRoot, repo)
	if err != nil {
		return "", err
	}
	return join(repoDir, string(kind))
}

// ObjectPath resolves the on-disk path for a single object. For
// KindConfig, id must be empty; for every other kind, id must be a
// valid 64-hex object id, and the returned path lives under the
// appropriate two-character shard directory when kind is KindData.
func ObjectPath(dataRoot, repo string, kind Kind, id string) (string, error) {
	if !kind.valid() {
		return "", errors.Wrapf(ErrUnsupported, "kind %q", kind)
	}

	repoDir, err := RepoDir(dataRoot, repo)
	if err != nil {
		return "", err
	}

	if kind == KindConfig {
		if id != "" {
			return "", errors.Wrap(ErrMalformed, "config object takes no id")
		}
		return join(repoDir, "config")
	}

	if !ValidObjectID(id) {
		return "", errors.Wrapf(ErrMalformed, "object id %q", id)
	}

	if kind == KindData {
		return join(repoDir, string(kind), id[:2], id)
	}
	return join(repoDir, string(kind), id)
}

// ShardDir resolves the shard directory for a data object id.
func ShardDir(dataRoot, repo, id string) (string, error) {
	if !ValidObjectID(id) {
		return "", errors.Wrapf(ErrMalformed, "object id %q", id)
	}
	dataDir, err := KindDir(dataRoot, repo, KindData)
	if err != nil {
		return "", err
	}
	return join(dataDir, id[:2])
}

// join concatenates the given path elements onto dataRoot and enforces
// invariant I4: the result must be a strict descendant of dataRoot
// after lexical (Clean) normalization.
func join(dataRoot string, elems ...string) (string, error) {
	root := filepath.Clean(dataRoot)
	full := filepath.Join(append([]string{root}, elems...)...)

	rel, err := filepath.Rel(root, full)
	if err != nil {
		return "", errors.Wrap(ErrTraversal, err.Error())
	}
	if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", errors.Wrapf(ErrTraversal, "resolved path %q escapes root %q", full, root)
	}

	return full, nil
}
