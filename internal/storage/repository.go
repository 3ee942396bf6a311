// Package storage declares the data-access contracts the ingest path is
// built against. The postgres subpackage provides the only implementation.
package storage

import (
	"context"

	"github.com/popfoundry/popserver/internal/domain/pop"
)

// Repository groups data access by domain.
type Repository interface {
	Tenants() TenantRepository
	PlayEvents() PlayEventRepository
}

// TenantRepository is the read path over the tenant registry. Tenants are
// provisioned out-of-band; the ingest path only ever asks whether a key is
// known.
type TenantRepository interface {
	// Exists reports whether a tenant with exactly this API key is
	// registered. It fails closed: any storage failure is logged and
	// reported as "does not exist", never surfaced as a distinct error.
	Exists(ctx context.Context, apiKey string) bool

	// Register idempotently inserts a tenant for the key, ignoring
	// duplicates. Provisioning and test path only.
	Register(ctx context.Context, apiKey string) error
}

// PlayEventRepository persists submission batches.
type PlayEventRepository interface {
	// Persist writes every event of the submission in one transaction,
	// resolving the tenant id from the API key inside each insert
	// statement. Either all events become visible or none do.
	Persist(ctx context.Context, sub *pop.Submission) error
}
