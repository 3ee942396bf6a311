package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/popfoundry/popserver/internal/domain/pop"
	"github.com/popfoundry/popserver/internal/metrics"
)

// ErrUnknownAPIKey is returned when the tenant sub-query resolves zero rows
// for an insert: the key was unknown, or revoked mid-batch.
var ErrUnknownAPIKey = errors.New("api key does not resolve to a tenant")

// insertPlayEventSQL populates tenant_id from a sub-query on the submitted
// API key at the moment of the statement. The writer never accepts a
// caller-supplied tenant id: resolving inside the insert closes the window
// between the authentication check and the write, so a key revoked
// mid-batch fails the remaining inserts instead of attributing orphaned
// rows. Do not replace the sub-query with a pre-fetched id.
const insertPlayEventSQL = `
INSERT INTO play_events (
    tenant_id, player_id, display_unit_id, frame_id, active_screens_count,
    ad_copy_id, schedule_id, impressions, interactions, end_time_ms,
    duration_ms, service_name, service_value, extra_data)
SELECT t.id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
  FROM tenants t
 WHERE t.api_key = $1
`

// Persist writes every event of the submission in one transaction on one
// pooled connection. The first failing insert aborts the whole batch; no
// partial batch is ever committed or visible. The connection is released
// on every exit path.
func (r *PlayEventRepository) Persist(ctx context.Context, sub *pop.Submission) error {
	start := time.Now()
	err := r.persist(ctx, sub)
	metrics.RecordQuery("persist_batch", start, err)
	return err
}

func (r *PlayEventRepository) persist(ctx context.Context, sub *pop.Submission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin submission tx: %w", err)
	}
	// Rollback is a no-op after a successful commit.
	defer func() { _ = tx.Rollback(ctx) }()

	for i, event := range sub.Events {
		tag, err := tx.Exec(ctx, insertPlayEventSQL,
			sub.APIKey,
			int64(sub.PlayerID),
			int64(event.DisplayUnitID),
			int64(event.FrameID),
			int32(event.ActiveScreensCount),
			int64(event.AdCopyID),
			int64(event.ScheduleID),
			int32(event.Impressions),
			int32(event.Interactions),
			event.EndTimeMillis(),
			int32(event.DurationMs),
			event.ServiceName,
			event.ServiceValue,
			event.ExtraDataText(),
		)
		if err != nil {
			return fmt.Errorf("insert play event %d: %w", i, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("insert play event %d: %w", i, ErrUnknownAPIKey)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit submission tx: %w", err)
	}
	return nil
}
