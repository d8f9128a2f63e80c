package auth

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rustic-rs/rustic-server/internal/errors"
)

// File is an in-memory, mutable view of an htpasswd file, used by the
// `auth` CLI subcommand to add/update/remove/list entries. It mirrors
// the CredentialMap type from the original implementation's htpasswd
// module, minus its md5(apr1) support (spec.md §4.1 rejects apr1 at
// load time).
type File struct {
	path  string
	users map[string]string // user -> full stored hash line
	order []string
}

// LoadFile reads an htpasswd file for editing. A missing file yields an
// empty, new File so that `auth add` can bootstrap a fresh credential
// store.
func LoadFile(path string) (*File, error) {
	f := &File{path: path, users: map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read htpasswd file")
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		user := line[:idx]
		if _, exists := f.users[user]; !exists {
			f.order = append(f.order, user)
		}
		f.users[user] = line[idx+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan htpasswd file")
	}

	return f, nil
}

// Users returns the known usernames, sorted for stable CLI output.
func (f *File) Users() []string {
	out := append([]string(nil), f.order...)
	sort.Strings(out)
	return out
}

// Has reports whether user already has an entry.
func (f *File) Has(user string) bool {
	_, ok := f.users[user]
	return ok
}

// Set stores a bcrypt hash for user, creating or overwriting the entry.
func (f *File) Set(user, password string) error {
	hash, err := HashBcrypt(password)
	if err != nil {
		return err
	}
	if _, exists := f.users[user]; !exists {
		f.order = append(f.order, user)
	}
	f.users[user] = hash
	return nil
}

// Remove deletes user's entry, if any.
func (f *File) Remove(user string) {
	if _, ok := f.users[user]; !ok {
		return
	}
	delete(f.users, user)
	for i, u := range f.order {
		if u == user {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Save writes the file back to disk atomically.
func (f *File) Save() error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".htpasswd-tmp-")
	if err != nil {
		return errors.Wrap(err, "create temp htpasswd file")
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, user := range f.order {
		if _, err := w.WriteString(user + ":" + f.users[user] + "\n"); err != nil {
			_ = tmp.Close()
			return errors.Wrap(err, "write htpasswd entry")
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "flush htpasswd file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close htpasswd temp file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, "rename htpasswd file into place")
	}
	return nil
}
