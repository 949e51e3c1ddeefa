package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

var errPostgresImport = errors.New("laws import loads the local sqlite law table; law_store is postgres")

func newLawsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "laws",
		Short: "Manage the local law table",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Load laws from a JSONL export",
		Long: `Import upserts laws from a JSONL file whose lines carry name, title_en,
amending, rescinding, enacted_by and enacting. Malformed lines are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(a *app) error {
				if a.cfg.LawStore != types.LawStoreSQLite {
					return errPostgresImport
				}
				stats, err := a.backend.ImportLaws(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), stats)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d of %d laws (%d skipped)\n", stats.Loaded, stats.Read, stats.Skipped)
				return nil
			})
		},
	})
	return cmd
}
