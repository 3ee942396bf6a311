package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/popfoundry/popserver/internal/metrics"
	"github.com/rs/zerolog"
)

// Exists reports whether a tenant row with exactly this API key is present.
//
// The check fails closed: connection exhaustion, I/O errors and every other
// storage failure are logged and answered with false. A missing tenant and
// an unreachable store are observationally identical to the caller; access
// is denied either way.
func (r *TenantRepository) Exists(ctx context.Context, apiKey string) bool {
	start := time.Now()

	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM tenants WHERE api_key = $1`, apiKey).Scan(&one)
	if err == nil {
		metrics.RecordQuery("tenant_exists", start, nil)
		return true
	}

	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown key is a normal outcome, not a storage error.
		metrics.RecordQuery("tenant_exists", start, nil)
	} else {
		metrics.RecordQuery("tenant_exists", start, err)
		zerolog.Ctx(ctx).Error().Err(err).Msg("tenant lookup failed, denying access")
	}
	return false
}

// Register inserts a tenant for the key if none exists. Duplicate keys are
// ignored, so provisioning the same key twice is harmless.
func (r *TenantRepository) Register(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return errors.New("register tenant: api key must not be empty")
	}

	start := time.Now()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenants (api_key) VALUES ($1) ON CONFLICT (api_key) DO NOTHING`,
		apiKey,
	)
	metrics.RecordQuery("tenant_register", start, err)

	if err != nil {
		return fmt.Errorf("register tenant: %w", err)
	}
	return nil
}
