package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/popfoundry/popserver/internal/config"
	"github.com/popfoundry/popserver/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the database schema",
	Long: `Create the tenant and play-event tables if they do not exist.

serve runs the same bootstrap at startup; this command exists for
provisioning pipelines that prepare the database ahead of deployment.
A bootstrap failure is reported as an error, never a panic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
		return nil
	},
}
