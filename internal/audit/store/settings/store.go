// Package settings persists per-tenant audit configuration.
package settings

import (
	"context"

	"starline/internal/audit"
	id "starline/pkg/domain"
	"starline/pkg/platform/sentinel"
)

// ErrNotFound is returned when a tenant has no settings row yet.
var ErrNotFound = sentinel.ErrNotFound

// Store is the persistence contract for tenant settings. Rows are created
// lazily by the service, not here.
type Store interface {
	Get(ctx context.Context, tenantID id.TenantID) (*audit.Settings, error)
	Upsert(ctx context.Context, s *audit.Settings) error
	// ListTenants returns every tenant with a settings row, for the
	// retention sweeper.
	ListTenants(ctx context.Context) ([]id.TenantID, error)
}
