package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lawcascade/internal/cascade"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

func newDiscoverCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discover <session> <law>...",
		Short: "Discover the laws affected by a session's source laws",
		Long: `Discover walks amending and rescinding links outward from the source
laws, queueing every affected law per layer until the frontier empties or
max_auto_layer is reached. Entries beyond the cap are queued as deferred.

Example:
  cascade discover 2025-01-01-to-2025-01-31 UK_uksi_2025_1 UK_uksi_2025_2`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := make([]types.LawID, 0, len(args)-1)
			for _, a := range args[1:] {
				sources = append(sources, types.LawID(a))
			}
			return withApp(cmd, flags, func(a *app) error {
				report, err := a.coord.StartDiscovery(cmd.Context(), args[0], sources)
				return writeReport(cmd, flags, report, err)
			})
		},
	}
}

func newContinueCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "continue <session> <entry-id>...",
		Short: "Continue discovery from processed entries",
		Long:  "Continue re-runs discovery from the laws of processed entries, starting at each entry's layer+1.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				report, err := a.coord.ContinueDiscovery(cmd.Context(), args[0], args[1:])
				return writeReport(cmd, flags, report, err)
			})
		},
	}
}

// writeReport prints whatever the run completed, then returns its error.
func writeReport(cmd *cobra.Command, flags *rootFlags, report *types.DiscoveryReport, err error) error {
	if report != nil && (err == nil || len(report.Layers) > 0) {
		if flags.jsonMode {
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}
	}
	return err
}

func newListCmd(flags *rootFlags) *cobra.Command {
	var session, status, updateType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued entries with counts",
		Long: `List shows queued entries, filtered by session, status and update type.

Example:
  cascade list --session 2025-01-01-to-2025-01-31 --status pending
  cascade list --type enacting_link --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				listing, err := a.coord.List(cmd.Context(), types.Filter{
					SessionID:  session,
					Status:     types.Status(status),
					UpdateType: types.UpdateType(updateType),
				})
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), listing)
				}
				printListing(cmd.OutOrStdout(), listing)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session ID")
	cmd.Flags().StringVar(&status, "status", "", "pending, deferred, processed or skipped")
	cmd.Flags().StringVar(&updateType, "type", "", "reparse or enacting_link")
	return cmd
}

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with per-status counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				sessions, err := a.coord.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				if flags.jsonMode {
					if sessions == nil {
						sessions = []types.SessionSummary{}
					}
					return printJSON(cmd.OutOrStdout(), sessions)
				}
				printSessions(cmd.OutOrStdout(), sessions)
				return nil
			})
		},
	}
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var req cascade.BatchRequest
	cmd := &cobra.Command{
		Use:   "run <operator> [entry-id...]",
		Short: "Apply an operator to queued entries",
		Long: `Run applies reparse, enacting_link or import to the given entries, or to
every pending entry of --session with --all-pending. Import always feeds
imported laws back into discovery; --continue does so for the others.

Example:
  cascade run reparse --session 2025-01-01-to-2025-01-31 --all-pending
  cascade run import 0192f3c4-...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := types.ParseOperatorKind(args[0])
			if err != nil {
				return usageError("%v", err)
			}
			req.Operator = kind
			req.EntryIDs = args[1:]
			return withApp(cmd, flags, func(a *app) error {
				result, err := a.coord.RunBatch(cmd.Context(), req)
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), result)
				}
				printBatch(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.SessionID, "session", "", "session ID for --all-pending")
	cmd.Flags().BoolVar(&req.AllPending, "all-pending", false, "select every pending entry of the session")
	cmd.Flags().BoolVar(&req.Continue, "continue", false, "continue discovery from processed entries")
	return cmd
}
