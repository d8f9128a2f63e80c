package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rustic-rs/rustic-server/internal/auth"
	"github.com/rustic-rs/rustic-server/internal/errors"
)

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the htpasswd credential file",
	}
	var htpasswdFile string
	cmd.PersistentFlags().StringVar(&htpasswdFile, "htpasswd-file", "htpasswd", "path to the htpasswd credential file")

	cmd.AddCommand(
		newAuthAddCommand(&htpasswdFile),
		newAuthUpdateCommand(&htpasswdFile),
		newAuthRemoveCommand(&htpasswdFile),
		newAuthListCommand(&htpasswdFile),
	)
	return cmd
}

func newAuthAddCommand(htpasswdFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <user>",
		Short: "Add a new user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editUser(*htpasswdFile, args[0], false)
		},
	}
}

func newAuthUpdateCommand(htpasswdFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update <user>",
		Short: "Change an existing user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editUser(*htpasswdFile, args[0], true)
		},
	}
}

func newAuthRemoveCommand(htpasswdFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := auth.LoadFile(*htpasswdFile)
			if err != nil {
				return runtimeError(err)
			}
			f.Remove(args[0])
			if err := f.Save(); err != nil {
				return runtimeError(err)
			}
			return nil
		},
	}
}

func newAuthListCommand(htpasswdFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := auth.LoadFile(*htpasswdFile)
			if err != nil {
				return runtimeError(err)
			}
			for _, user := range f.Users() {
				fmt.Fprintln(cmd.OutOrStdout(), user)
			}
			return nil
		},
	}
}

func editUser(htpasswdFile, user string, requireExisting bool) error {
	f, err := auth.LoadFile(htpasswdFile)
	if err != nil {
		return runtimeError(err)
	}
	if requireExisting && !f.Has(user) {
		return configError(errors.Errorf("no such user %q", user))
	}

	password, err := readPassword(fmt.Sprintf("enter password for %s: ", user))
	if err != nil {
		return runtimeError(err)
	}
	confirm, err := readPassword("confirm password: ")
	if err != nil {
		return runtimeError(err)
	}
	if password != confirm {
		return configError(errors.New("passwords did not match"))
	}

	if err := f.Set(user, password); err != nil {
		return runtimeError(err)
	}
	if err := f.Save(); err != nil {
		return runtimeError(err)
	}
	return nil
}

// readPassword prompts on stderr and reads a password from the
// terminal without echoing it, using golang.org/x/term the same way an
// interactive CLI credential tool should; when stdin is not a
// terminal (piped input, CI), it falls back to a plain line read.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return string(data), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "read password")
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
