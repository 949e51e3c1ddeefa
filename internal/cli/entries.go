package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newReleaseCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "release <entry-id>...",
		Short: "Make deferred entries pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				return transition(cmd, flags, a.coord.ReleaseDeferred, args, "released")
			})
		},
	}
}

func newSkipCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <entry-id>...",
		Short: "Mark pending entries skipped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				return transition(cmd, flags, a.coord.SkipEntries, args, "skipped")
			})
		},
	}
}

func transition(cmd *cobra.Command, flags *rootFlags, fn func(context.Context, []string) (int, error), ids []string, verb string) error {
	n, err := fn(cmd.Context(), ids)
	if err != nil {
		return err
	}
	if flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]int{verb: n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries %s\n", n, len(ids), verb)
	return nil
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete one queued entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				deleted, err := a.coord.DeleteEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]bool{"deleted": deleted})
				}
				if !deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "No entry %s\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newClearCmd(flags *rootFlags) *cobra.Command {
	var processed bool
	cmd := &cobra.Command{
		Use:   "clear [session]",
		Short: "Delete a session's entries",
		Long: `Clear deletes every entry of a session. With --processed it deletes only
processed entries, of the given session or of every session.

Example:
  cascade clear 2025-01-01-to-2025-01-31
  cascade clear --processed`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session := ""
			if len(args) == 1 {
				session = args[0]
			}
			if !processed && session == "" {
				return usageError("clear needs a session or --processed")
			}
			return withApp(cmd, flags, func(a *app) error {
				var (
					n   int
					err error
				)
				if processed {
					n, err = a.coord.ClearProcessed(cmd.Context(), session)
				} else {
					n, err = a.coord.ClearSession(cmd.Context(), session)
				}
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]int{"deleted_count": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&processed, "processed", false, "delete only processed entries")
	return cmd
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export <session> <file.jsonl>",
		Short: "Export a session's entries as JSONL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				n, err := a.backend.ExportSession(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{"path": args[1], "exported": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", n, args[1])
				return nil
			})
		},
	}
}
