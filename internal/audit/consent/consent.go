// Package consent defines the verification hook the audit recorder calls
// before a protected health record access is logged.
package consent

import (
	"context"

	"starline/pkg/domain"
)

// Verifier reports whether the tenant holds a valid consent grant for the
// resource being accessed. Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, tenantID domain.TenantID, resourceType string, resourceID string) (bool, error)
}

// AllowAll is the default Verifier for deployments without a consent
// registry. It reports every access as consented.
type AllowAll struct{}

func (AllowAll) Verify(_ context.Context, _ domain.TenantID, _ string, _ string) (bool, error) {
	return true, nil
}
