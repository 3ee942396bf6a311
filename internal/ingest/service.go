// Package ingest implements the authenticate-and-store core of the
// proof-of-play path: a submission is checked against the tenant registry
// and, only if the key is known, persisted as one atomic batch.
package ingest

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/popfoundry/popserver/internal/domain/pop"
	"github.com/popfoundry/popserver/internal/metrics"
	"github.com/popfoundry/popserver/internal/storage"
	"github.com/rs/zerolog"
)

// Result is the externally observable outcome of a submission. The values
// double as the outcome label on the submissions metric.
type Result string

const (
	// ResultStored: every event of the batch is durably committed.
	ResultStored Result = "stored"
	// ResultUnauthorized: the key is unknown, or the registry was
	// unreachable. The two are deliberately indistinguishable (fail
	// closed) and no write is attempted.
	ResultUnauthorized Result = "unauthorized"
	// ResultFailed: the batch was rolled back; zero events are visible.
	ResultFailed Result = "failed"
)

// Receipt identifies an accepted submission in logs and responses.
type Receipt struct {
	ID     string
	Events int
}

// Service wires the tenant registry and the play-event writer. It holds no
// mutable state of its own; concurrency is imposed by the transport layer
// and bounded by the connection pool underneath the repositories.
type Service struct {
	tenants storage.TenantRepository
	events  storage.PlayEventRepository
	logger  zerolog.Logger
}

func NewService(repo storage.Repository, logger zerolog.Logger) *Service {
	return &Service{
		tenants: repo.Tenants(),
		events:  repo.PlayEvents(),
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// AuthenticateAndStore runs the ingestion path for one submission.
//
// The registry check gates the write: an unknown (or unresolvable) key is
// rejected before any storage mutation. The writer then re-resolves the
// tenant from the key inside its own transaction, so the check here is a
// fast-fail courtesy, never the authority the write trusts.
//
// A write failure is reported as ResultFailed and must surface to the
// caller as a server error; the whole batch has been rolled back.
func (s *Service) AuthenticateAndStore(ctx context.Context, sub *pop.Submission) (Receipt, Result) {
	if !s.tenants.Exists(ctx, sub.APIKey) {
		s.logger.Warn().
			Str("api_key", sub.APIKey).
			Uint64("player_id", sub.PlayerID).
			Msg("submission refused: api key not registered")
		metrics.SubmissionsTotal.WithLabelValues(string(ResultUnauthorized)).Inc()
		return Receipt{}, ResultUnauthorized
	}

	if err := s.events.Persist(ctx, sub); err != nil {
		s.logger.Error().
			Err(err).
			Str("api_key", sub.APIKey).
			Uint64("player_id", sub.PlayerID).
			Int("event_count", len(sub.Events)).
			Msg("failed to store submission batch")
		metrics.SubmissionsTotal.WithLabelValues(string(ResultFailed)).Inc()
		return Receipt{}, ResultFailed
	}

	receipt := Receipt{ID: ulid.Make().String(), Events: len(sub.Events)}
	s.logger.Info().
		Str("receipt", receipt.ID).
		Uint64("player_id", sub.PlayerID).
		Int("event_count", receipt.Events).
		Msg("submission stored")

	metrics.SubmissionsTotal.WithLabelValues(string(ResultStored)).Inc()
	metrics.PlayEventsStoredTotal.Add(float64(receipt.Events))
	metrics.SubmissionBatchSize.Observe(float64(receipt.Events))
	return receipt, ResultStored
}
