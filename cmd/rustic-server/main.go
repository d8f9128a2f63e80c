// Command rustic-server runs a restic/rustic REST backup repository
// server. It follows the teacher's own cmd/restic/main.go shape: a
// Cobra root command, an automaxprocs-tuned init(), and an explicit
// exit-code translation in main() rather than letting Cobra call
// os.Exit for us.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/rustic-rs/rustic-server/internal/debug"
	"github.com/rustic-rs/rustic-server/internal/errors"
)

func init() {
	_, _ = maxprocs.Set()
}

// ExitError carries an explicit process exit code out of a Cobra
// RunE, mirroring restic's own ErrOK / bare-error exit-code switch in
// cmd/restic/main.go, generalized to this server's own exit-code table
// (0 success, 2 configuration error, 1 runtime error).
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func configError(err error) error { return &ExitError{Code: 2, Err: err} }
func runtimeError(err error) error { return &ExitError{Code: 1, Err: err} }

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rustic-server",
		Short: "Run and administer a restic/rustic REST repository server",
		Long: `
rustic-server serves one or more restic/rustic backup repositories over
the restic REST backend wire protocol, enforcing per-repository access
control and HTTP Basic authentication.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}

	cmd.PersistentFlags().String("root", "", "base directory relative paths in the config file resolve against (env RUSTIC_SERVER_ROOT)")

	cmd.AddCommand(
		newServeCommand(),
		newAuthCommand(),
		newConfigCommand(),
	)
	return cmd
}

func main() {
	debug.Log("rustic-server %#v", os.Args)

	err := newRootCommand().Execute()

	exitCode := 0
	if err != nil {
		exitCode = 1
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.Code
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(exitCode)
}
