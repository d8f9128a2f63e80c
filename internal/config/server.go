// Package config loads the server configuration document described in
// spec.md §6: a single YAML document with server/storage/auth/acl/tls/log
// sections. Parsing itself is out of the covered core (spec.md §1 names
// "configuration file parsing" as a non-goal collaborator); this package
// exists only to produce the validated Server record the core consumes.
package config

import (
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/rustic-rs/rustic-server/internal/errors"
)

// Server is the validated, in-memory form of the configuration document.
type Server struct {
	Server  ServerSection  `yaml:"server"`
	Storage StorageSection `yaml:"storage"`
	Auth    AuthSection    `yaml:"auth"`
	ACL     ACLSection     `yaml:"acl"`
	TLS     TLSSection     `yaml:"tls"`
	Log     LogSection     `yaml:"log"`
}

type ServerSection struct {
	Listen string `yaml:"listen"`
}

type StorageSection struct {
	DataDir string `yaml:"data-dir"`
	Quota   string `yaml:"quota"` // parsed and stored, never enforced (explicit non-goal)
}

type AuthSection struct {
	DisableAuth  bool   `yaml:"disable-auth"`
	HtpasswdFile string `yaml:"htpasswd-file"`
}

type ACLSection struct {
	DisableACL   bool   `yaml:"disable-acl"`
	ACLPath      string `yaml:"acl-path"`
	AppendOnly   bool   `yaml:"append-only"`
	PrivateRepos bool   `yaml:"private-repos"`
}

type TLSSection struct {
	DisableTLS bool   `yaml:"disable-tls"`
	TLSCert    string `yaml:"tls-cert"`
	TLSKey     string `yaml:"tls-key"`
}

type LogSection struct {
	LogLevel string `yaml:"log-level"`
	LogFile  string `yaml:"log-file"`
}

// Default returns a Server record with the same conservative defaults
// the `config init` CLI subcommand writes out.
func Default() Server {
	return Server{
		Server:  ServerSection{Listen: "127.0.0.1:8000"},
		Storage: StorageSection{DataDir: "./repos"},
		Auth:    AuthSection{HtpasswdFile: "./htpasswd"},
		ACL: ACLSection{
			ACLPath:      "./acl.ini",
			AppendOnly:   false,
			PrivateRepos: true,
		},
		TLS: TLSSection{DisableTLS: true},
		Log: LogSection{LogLevel: "info"},
	}
}

// Load reads and parses a YAML server configuration document from path.
func Load(path string) (Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Server{}, errors.Wrap(err, "read server configuration")
	}

	var s Server
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Server{}, errors.Wrap(err, "parse server configuration")
	}

	return s, nil
}

// Save writes s to path as YAML.
func Save(path string, s Server) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal server configuration")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "create configuration directory")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "write server configuration")
	}
	return nil
}

// ResolvePath resolves p against root when p is relative, mirroring how
// the teacher's GlobalOptions resolve relative repository/password
// paths against a common base directory.
func ResolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Validate performs the minimal structural checks the core requires
// before it will start: a data directory, an htpasswd file path unless
// auth is disabled, and a TLS certificate and key unless TLS is disabled.
func (s Server) Validate() error {
	if s.Storage.DataDir == "" {
		return errors.New("storage.data-dir is required")
	}
	if !s.Auth.DisableAuth && s.Auth.HtpasswdFile == "" {
		return errors.New("auth.htpasswd-file is required unless auth.disable-auth is set")
	}
	if !s.ACL.DisableACL && s.ACL.ACLPath != "" {
		// acl-path is optional even when ACL is enabled: an empty path
		// means every repo falls back to the private-repos policy. A
		// non-empty path must name a readable file, or acl.NewStore fails.
	}
	if !s.TLS.DisableTLS {
		if s.TLS.TLSCert == "" || s.TLS.TLSKey == "" {
			return errors.New("tls.tls-cert and tls.tls-key are required unless tls.disable-tls is set")
		}
	}
	return nil
}
