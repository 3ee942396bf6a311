package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/popfoundry/popserver/internal/config"
	"github.com/popfoundry/popserver/internal/storage/postgres"
	"github.com/spf13/cobra"
)

// apikeyCmd is the tenant provisioning command group. The ingest path never
// creates tenants; this is the out-of-band path that does.
var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage tenant API keys",
	Long: `Manage the tenant API keys that authorize proof-of-play submissions.

Every submission carries an API key; only keys registered here (or via
POP_BOOTSTRAP_API_KEY) are accepted.

Examples:
  # Register an existing key
  popserver apikey add some_secure_api_key

  # Generate and register a fresh random key
  popserver apikey generate

  # Check whether a key is registered
  popserver apikey check some_secure_api_key`,
}

var apikeyAddCmd = &cobra.Command{
	Use:   "add <key>",
	Short: "Register a tenant API key",
	Long: `Register a tenant API key. The insert is idempotent: adding a key
that already exists is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTenants(func(ctx context.Context, tenants tenantStore) error {
			if err := tenants.Register(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "registered")
			return nil
		})
	},
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate and register a random API key",
	Long: `Generate a 32-byte random key, register it, and print it once.
Save it securely; it is stored verbatim and shown only here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		key := hex.EncodeToString(raw)

		return withTenants(func(ctx context.Context, tenants tenantStore) error {
			if err := tenants.Register(ctx, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		})
	},
}

var apikeyCheckCmd = &cobra.Command{
	Use:   "check <key>",
	Short: "Check whether an API key is registered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTenants(func(ctx context.Context, tenants tenantStore) error {
			if !tenants.Exists(ctx, args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), "not registered")
				os.Exit(1)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "registered")
			return nil
		})
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tenants",
	Long: `List tenant ids with a truncated key prefix. Full key values are
never printed after registration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		rows, err := pool.Query(ctx, `SELECT id, api_key FROM tenants ORDER BY id`)
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		defer rows.Close()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKEY PREFIX")
		for rows.Next() {
			var id int64
			var key string
			if err := rows.Scan(&id, &key); err != nil {
				return fmt.Errorf("scan tenant: %w", err)
			}
			fmt.Fprintf(w, "%d\t%s\n", id, keyPrefix(key))
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		return w.Flush()
	},
}

func init() {
	apikeyCmd.AddCommand(apikeyAddCmd)
	apikeyCmd.AddCommand(apikeyGenerateCmd)
	apikeyCmd.AddCommand(apikeyCheckCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
}

type tenantStore interface {
	Exists(ctx context.Context, apiKey string) bool
	Register(ctx context.Context, apiKey string) error
}

func withTenants(fn func(context.Context, tenantStore) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}
	return fn(ctx, repo.Tenants())
}

func keyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "…"
}
