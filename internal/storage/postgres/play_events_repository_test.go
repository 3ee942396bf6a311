package postgres

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popfoundry/popserver/internal/domain/pop"
)

func sampleSubmission(apiKey string) *pop.Submission {
	return &pop.Submission{
		APIKey:   apiKey,
		PlayerID: 123456,
		Events: []pop.PlayEvent{
			{
				DisplayUnitID:      123,
				FrameID:            124,
				ActiveScreensCount: 2,
				AdCopyID:           56467,
				CampaignID:         61000,
				ScheduleID:         61001,
				Impressions:        675,
				Interactions:       0,
				EndTime:            time.Date(2017, 11, 23, 13, 27, 12, 500_000_000, time.UTC),
				DurationMs:         12996,
				ServiceName:        "bmb",
				ServiceValue:       "701",
			},
			{
				DisplayUnitID:      125,
				FrameID:            126,
				ActiveScreensCount: 1,
				AdCopyID:           56468,
				CampaignID:         61000,
				ScheduleID:         61002,
				Impressions:        12,
				Interactions:       3,
				EndTime:            time.Date(2017, 11, 23, 13, 27, 25, 0, time.UTC),
				DurationMs:         5000,
			},
		},
	}
}

func TestPersistStoresBatchUnderResolvedTenant(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &PlayEventRepository{pool: pool}

	tenantID := registerTenant(t, ctx, pool, "k1")

	require.NoError(t, repo.Persist(ctx, sampleSubmission("k1")))
	assert.Equal(t, 2, countPlayEvents(t, ctx, pool))

	var (
		gotTenantID  int64
		playerID     int64
		screens      int32
		impressions  int32
		endTimeMs    int64
		durationMs   int32
		serviceName  string
		serviceValue string
		extraData    string
	)
	err := pool.QueryRow(ctx, `
		SELECT tenant_id, player_id, active_screens_count, impressions,
		       end_time_ms, duration_ms, service_name, service_value, extra_data
		  FROM play_events
		 WHERE display_unit_id = 123
	`).Scan(&gotTenantID, &playerID, &screens, &impressions,
		&endTimeMs, &durationMs, &serviceName, &serviceValue, &extraData)
	require.NoError(t, err)

	assert.Equal(t, tenantID, gotTenantID)
	assert.Equal(t, int64(123456), playerID)
	assert.Equal(t, int32(2), screens)
	assert.Equal(t, int32(675), impressions)
	assert.Equal(t, int64(1511443632500), endTimeMs)
	assert.Equal(t, int32(12996), durationMs)
	assert.Equal(t, "bmb", serviceName)
	assert.Equal(t, "701", serviceValue)
	assert.Equal(t, "", extraData)
}

func TestPersistUnknownKeyStoresNothing(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &PlayEventRepository{pool: pool}

	registerTenant(t, ctx, pool, "k1")

	err := repo.Persist(ctx, sampleSubmission("someone-elses-key"))
	require.ErrorIs(t, err, ErrUnknownAPIKey)
	assert.Equal(t, 0, countPlayEvents(t, ctx, pool))
}

func TestPersistRollsBackWholeBatchOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &PlayEventRepository{pool: pool}

	registerTenant(t, ctx, pool, "k1")

	// The second event overflows the signed duration column, which trips the
	// non-negative check. The first event must not survive on its own.
	sub := sampleSubmission("k1")
	sub.Events[1].DurationMs = math.MaxUint32

	require.Error(t, repo.Persist(ctx, sub))
	assert.Equal(t, 0, countPlayEvents(t, ctx, pool))
}

func TestPersistDoesNotDeduplicate(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &PlayEventRepository{pool: pool}

	registerTenant(t, ctx, pool, "k1")

	require.NoError(t, repo.Persist(ctx, sampleSubmission("k1")))
	require.NoError(t, repo.Persist(ctx, sampleSubmission("k1")))

	assert.Equal(t, 4, countPlayEvents(t, ctx, pool))
}

func TestPersistConcurrentBatches(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := &PlayEventRepository{pool: pool}

	registerTenant(t, ctx, pool, "k1")

	const writers = 10

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := sampleSubmission("k1")
			sub.Events = sub.Events[:1]
			sub.Events[0].DisplayUnitID = uint64(1000 + i)
			errs[i] = repo.Persist(ctx, sub)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}
	assert.Equal(t, writers, countPlayEvents(t, ctx, pool))
}
