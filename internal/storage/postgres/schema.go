package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL is the full bootstrap schema. play_events carries no uniqueness
// constraint beyond the surrogate id: resubmitting the same logical event
// stores a second row, deduplication is a reporting concern downstream.
// campaign_id is parsed from the wire but not stored; schedule_id is the
// billable reference.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS tenants (
    id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    api_key  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS play_events (
    id                   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    tenant_id            BIGINT NOT NULL REFERENCES tenants(id),
    player_id            BIGINT NOT NULL,
    display_unit_id      BIGINT NOT NULL,
    frame_id             BIGINT NOT NULL,
    active_screens_count INTEGER NOT NULL CHECK (active_screens_count >= 0),
    ad_copy_id           BIGINT NOT NULL,
    schedule_id          BIGINT NOT NULL,
    impressions          INTEGER NOT NULL CHECK (impressions >= 0),
    interactions         INTEGER NOT NULL CHECK (interactions >= 0),
    end_time_ms          BIGINT NOT NULL,
    duration_ms          INTEGER NOT NULL CHECK (duration_ms >= 0),
    service_name         TEXT NOT NULL,
    service_value        TEXT NOT NULL,
    extra_data           TEXT NOT NULL DEFAULT ''
);
`

// EnsureSchema creates the tenant and play-event tables if they are not
// present. It returns the error instead of aborting; the caller decides
// whether a failed bootstrap is fatal.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
