package main

import (
	"crypto/tls"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rustic-rs/rustic-server/internal/access"
	"github.com/rustic-rs/rustic-server/internal/acl"
	"github.com/rustic-rs/rustic-server/internal/auth"
	"github.com/rustic-rs/rustic-server/internal/config"
	"github.com/rustic-rs/rustic-server/internal/httpapi"
	"github.com/rustic-rs/rustic-server/internal/storage"
)

// ServeOptions bundles the flags that override the loaded YAML
// configuration document, mirroring the teacher's GlobalOptions.AddFlags
// convention of one struct per command with its own AddFlags method.
type ServeOptions struct {
	ConfigPath string
	Root       string

	Listen       string
	DataDir      string
	DisableAuth  bool
	HtpasswdFile string
	DisableACL   bool
	ACLPath      string
	AppendOnly   bool
	PrivateRepos bool
	DisableTLS   bool
	TLSCert      string
	TLSKey       string
}

func (o *ServeOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.ConfigPath, "config", "", "path to the server configuration YAML document")
	f.StringVar(&o.Listen, "listen", "", "override server.listen")
	f.StringVar(&o.DataDir, "data-dir", "", "override storage.data-dir")
	f.BoolVar(&o.DisableAuth, "disable-auth", false, "override auth.disable-auth")
	f.StringVar(&o.HtpasswdFile, "htpasswd-file", "", "override auth.htpasswd-file")
	f.BoolVar(&o.DisableACL, "disable-acl", false, "override acl.disable-acl")
	f.StringVar(&o.ACLPath, "acl-path", "", "override acl.acl-path")
	f.BoolVar(&o.AppendOnly, "append-only", false, "override acl.append-only")
	f.BoolVar(&o.PrivateRepos, "private-repos", false, "override acl.private-repos")
	f.BoolVar(&o.DisableTLS, "disable-tls", false, "override tls.disable-tls")
	f.StringVar(&o.TLSCert, "tls-cert", "", "override tls.tls-cert")
	f.StringVar(&o.TLSKey, "tls-key", "", "override tls.tls-key")
}

func newServeCommand() *cobra.Command {
	var opts ServeOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the repository server",
		Long: `
The "serve" command starts the HTTP(S) server. Every configuration key
may be overridden with a matching flag, except storage.quota,
log.log-level and log.log-file, which have no flag.

EXIT STATUS
===========

Exit status is 0 if the server shut down cleanly.
Exit status is 2 if the configuration was invalid.
Exit status is 1 for any other runtime error.
`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Root().PersistentFlags().GetString("root")
			if root == "" {
				root = os.Getenv("RUSTIC_SERVER_ROOT")
			}
			return runServe(opts, root)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func loadServeConfig(opts ServeOptions, root string) (config.Server, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Server{}, configError(err)
		}
		cfg = loaded
	}

	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.DataDir != "" {
		cfg.Storage.DataDir = opts.DataDir
	}
	if opts.DisableAuth {
		cfg.Auth.DisableAuth = true
	}
	if opts.HtpasswdFile != "" {
		cfg.Auth.HtpasswdFile = opts.HtpasswdFile
	}
	if opts.DisableACL {
		cfg.ACL.DisableACL = true
	}
	if opts.ACLPath != "" {
		cfg.ACL.ACLPath = opts.ACLPath
	}
	if opts.AppendOnly {
		cfg.ACL.AppendOnly = true
	}
	if opts.PrivateRepos {
		cfg.ACL.PrivateRepos = true
	}
	if opts.DisableTLS {
		cfg.TLS.DisableTLS = true
	}
	if opts.TLSCert != "" {
		cfg.TLS.TLSCert = opts.TLSCert
	}
	if opts.TLSKey != "" {
		cfg.TLS.TLSKey = opts.TLSKey
	}

	cfg.Storage.DataDir = config.ResolvePath(root, cfg.Storage.DataDir)
	cfg.Auth.HtpasswdFile = config.ResolvePath(root, cfg.Auth.HtpasswdFile)
	cfg.ACL.ACLPath = config.ResolvePath(root, cfg.ACL.ACLPath)
	cfg.TLS.TLSCert = config.ResolvePath(root, cfg.TLS.TLSCert)
	cfg.TLS.TLSKey = config.ResolvePath(root, cfg.TLS.TLSKey)

	if err := cfg.Validate(); err != nil {
		return config.Server{}, configError(err)
	}
	return cfg, nil
}

func runServe(opts ServeOptions, root string) error {
	cfg, err := loadServeConfig(opts, root)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0700); err != nil {
		return runtimeError(err)
	}
	engine := storage.New(cfg.Storage.DataDir)

	var creds *auth.Store
	if !cfg.Auth.DisableAuth {
		creds, err = auth.NewStore(cfg.Auth.HtpasswdFile)
		if err != nil {
			return configError(err)
		}
	}

	acls, err := acl.NewStore(cfg.ACL.ACLPath, cfg.ACL.DisableACL, cfg.ACL.PrivateRepos)
	if err != nil {
		return configError(err)
	}

	pol := access.Policy{
		DisableAuth: cfg.Auth.DisableAuth,
		AppendOnly:  cfg.ACL.AppendOnly,
	}

	logger := log.New(os.Stderr, "rustic-server: ", log.LstdFlags)
	server := httpapi.New(engine, creds, acls, pol, logger)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.Handler(),
	}

	logger.Printf("listening on %s (tls=%v)", cfg.Server.Listen, !cfg.TLS.DisableTLS)

	if cfg.TLS.DisableTLS {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return runtimeError(err)
		}
		return nil
	}

	httpSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	if err := httpSrv.ListenAndServeTLS(cfg.TLS.TLSCert, cfg.TLS.TLSKey); err != nil && err != http.ErrServerClosed {
		return runtimeError(err)
	}
	return nil
}
