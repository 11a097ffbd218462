// Package record persists audit records. The trail is append-only: the store
// exposes no update path, and deletion exists only for retention purges.
package record

import (
	"context"
	"time"

	"starline/internal/audit"
	id "starline/pkg/domain"
	"starline/pkg/platform/sentinel"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = sentinel.ErrNotFound

// Store is the persistence contract for audit records.
type Store interface {
	// Insert appends one record, assigning CreatedAt server-side.
	Insert(ctx context.Context, rec *audit.Record) error
	// Get returns one record scoped to its tenant.
	Get(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*audit.Record, error)
	// List returns a page of records matching the filter, newest first,
	// together with the total match count.
	List(ctx context.Context, filter audit.RecordFilter) ([]*audit.Record, int, error)
	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter audit.RecordFilter) (int, error)
	// Totals aggregates report counters over a date range.
	Totals(ctx context.Context, tenantID id.TenantID, start, end time.Time) (*audit.RecordTotals, error)
	// ActivityByActor aggregates per-actor event and PHI access counts over
	// a date range, busiest actors first.
	ActivityByActor(ctx context.Context, tenantID id.TenantID, start, end time.Time) ([]audit.ActorActivity, error)
	// DeleteOlderThan purges records created before the cutoff and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, tenantID id.TenantID, cutoff time.Time) (int64, error)
}
