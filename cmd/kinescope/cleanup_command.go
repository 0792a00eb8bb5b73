package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kinescope/internal/daemon"
	"kinescope/internal/logging"
	"kinescope/internal/store"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run a chunk retention pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			st, err := store.Open(cfg, logging.NewNop())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			result, err := daemon.RunRetention(cmd.Context(), cfg.Retention, st)
			if err != nil {
				return fmt.Errorf("retention pass: %w", err)
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Deleted %d of %d expired chunks, freed %s\n",
				result.ChunksDeleted, result.ChunksFound, humanize.IBytes(uint64(result.BytesFreed)))
			if result.MissingFiles > 0 {
				fmt.Fprintf(stdout, "%d chunk files were already missing on disk\n", result.MissingFiles)
			}
			return nil
		},
	}
}
