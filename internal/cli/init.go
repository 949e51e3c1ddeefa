package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/lawcascade/internal/paths"
	"github.com/mesh-intelligence/lawcascade/internal/sqlite"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cascade configuration and storage",
		Long:  "Create the configuration directory with a default config.yaml, then create the queue database in the data directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, err := paths.ResolveConfigDir(flags.configDir)
			if err != nil {
				return fmt.Errorf("resolve config dir: %w", err)
			}
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}

			configPath := paths.ConfigFile(configDir)
			written, err := writeConfigIfMissing(configPath, flags.dataDir)
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			cfg, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			backend, err := sqlite.Open(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize storage: %w", err)
			}
			if err := backend.Close(); err != nil {
				return fmt.Errorf("finalize storage: %w", err)
			}

			out := cmd.OutOrStdout()
			if written {
				fmt.Fprintf(out, "Wrote %s\n", configPath)
			}
			fmt.Fprintf(out, "Cascade initialized at %s\n", backend.Path())
			return nil
		},
	}
}
