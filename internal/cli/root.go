// Package cli implements the cascade command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// NewRootCmd creates the top-level "cascade" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "cascade",
		Short: "Affected-law discovery and update propagation",
		Long: "Cascade finds the laws affected by newly scraped legislation, queues\n" +
			"them per scrape session and applies reparse, enacting-link and import\n" +
			"updates in batches.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: .cascade)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(flags),
		newDiscoverCmd(flags),
		newContinueCmd(flags),
		newListCmd(flags),
		newSessionsCmd(flags),
		newRunCmd(flags),
		newReleaseCmd(flags),
		newSkipCmd(flags),
		newDeleteCmd(flags),
		newClearCmd(flags),
		newExportCmd(flags),
		newLawsCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps bad input to exitUserError and everything else to
// exitSysError.
func exitCode(err error) int {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, errUsage),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrInvalidSession),
		errors.Is(err, types.ErrInvalidLawID),
		errors.Is(err, types.ErrNotFound):
		return exitUserError
	default:
		return exitSysError
	}
}

// errUsage marks argument errors detected by the commands themselves.
var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
