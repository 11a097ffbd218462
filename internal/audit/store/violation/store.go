// Package violation persists compliance violations and their single forward
// status transition.
package violation

import (
	"context"

	"starline/internal/audit"
	id "starline/pkg/domain"
	"starline/pkg/platform/sentinel"
)

var (
	// ErrNotFound is returned when no violation matches.
	ErrNotFound = sentinel.ErrNotFound
	// ErrAlreadyResolved is returned when the violation has left the open
	// state and cannot transition again.
	ErrAlreadyResolved = sentinel.ErrConflict
)

// Resolution is the one-time transition applied to an open violation.
type Resolution struct {
	Status           audit.ViolationStatus
	By               id.ActorID
	Notes            string
	CorrectiveAction string
}

// Store is the persistence contract for violations.
type Store interface {
	Create(ctx context.Context, v *audit.Violation) error
	Get(ctx context.Context, tenantID id.TenantID, violationID id.ViolationID) (*audit.Violation, error)
	List(ctx context.Context, filter audit.ViolationFilter) ([]*audit.Violation, error)
	// Resolve applies the transition only if the violation is still open.
	// Returns ErrAlreadyResolved if another reviewer got there first.
	Resolve(ctx context.Context, tenantID id.TenantID, violationID id.ViolationID, res Resolution) (*audit.Violation, error)
}
