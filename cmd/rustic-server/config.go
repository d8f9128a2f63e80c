package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustic-rs/rustic-server/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the server configuration document",
	}
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a starter configuration document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "rustic-server.yml", "path to write the configuration document to")
	return cmd
}

func runConfigInit(cmd *cobra.Command, out string) error {
	cfg := config.Default()
	reader := bufio.NewReader(cmd.InOrStdin())
	w := cmd.OutOrStdout()

	cfg.Server.Listen = prompt(reader, w, "listen address", cfg.Server.Listen)
	cfg.Storage.DataDir = prompt(reader, w, "repository data directory", cfg.Storage.DataDir)
	cfg.Auth.DisableAuth = promptBool(reader, w, "disable authentication", cfg.Auth.DisableAuth)
	if !cfg.Auth.DisableAuth {
		cfg.Auth.HtpasswdFile = prompt(reader, w, "htpasswd credential file", cfg.Auth.HtpasswdFile)
	}
	cfg.ACL.AppendOnly = promptBool(reader, w, "append-only mode", cfg.ACL.AppendOnly)
	cfg.ACL.PrivateRepos = promptBool(reader, w, "private repositories by default", cfg.ACL.PrivateRepos)

	if err := config.Save(out, cfg); err != nil {
		return runtimeError(err)
	}
	fmt.Fprintf(w, "wrote %s\n", out)
	return nil
}

func prompt(r *bufio.Reader, w io.Writer, label, def string) string {
	fmt.Fprintf(w, "%s [%s]: ", label, def)
	line, err := r.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptBool(r *bufio.Reader, w io.Writer, label string, def bool) bool {
	answer := prompt(r, w, label+" (y/n)", strconv.FormatBool(def))
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	b, err := strconv.ParseBool(answer)
	if err != nil {
		return def
	}
	return b
}
