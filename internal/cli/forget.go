package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tOgg1/hangview/internal/config"
	"github.com/tOgg1/hangview/internal/db"
	"github.com/tOgg1/hangview/internal/memory"
)

func newForgetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Clear remembered stages, custom grids and the saved viewing context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			store := config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml"))
			if err := store.Clear(); err != nil {
				return err
			}
			if _, err := os.Stat(cfg.DatabasePath()); os.IsNotExist(err) {
				_, err := fmt.Fprintln(out, "cleared saved context")
				return err
			}

			ctx := cmd.Context()
			database, err := db.Open(ctx, db.Config{Path: cfg.DatabasePath(), BusyTimeoutMs: cfg.Database.BusyTimeoutMs})
			if err != nil {
				return err
			}
			defer database.Close()
			mem := memory.New(memory.WithBackend(memory.NewSQLiteBackend(db.NewMemoryRepository(database))))
			if err := mem.Clear(ctx); err != nil {
				return fmt.Errorf("clear stage memory: %w", err)
			}
			_, err = fmt.Fprintln(out, "cleared saved context and stage memory")
			return err
		},
	}
}
