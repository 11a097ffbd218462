// Package export persists bulk export requests and their one-shot state
// transitions.
package export

import (
	"context"
	"time"

	"starline/internal/audit"
	id "starline/pkg/domain"
	"starline/pkg/platform/sentinel"
)

var (
	// ErrNotFound is returned when no export matches.
	ErrNotFound = sentinel.ErrNotFound
	// ErrNotPending is returned when the export already left the requested
	// state; completion and failure are each applied at most once.
	ErrNotPending = sentinel.ErrInvalidState
)

// Artifact describes the produced file when a job completes.
type Artifact struct {
	FilePath    string
	FileSize    int64
	RecordCount int
	ExpiresAt   time.Time
}

// Store is the persistence contract for export requests.
type Store interface {
	Create(ctx context.Context, e *audit.Export) error
	Get(ctx context.Context, tenantID id.TenantID, exportID id.ExportID) (*audit.Export, error)
	// GetByID is the tenant-unscoped lookup used by the background job.
	GetByID(ctx context.Context, exportID id.ExportID) (*audit.Export, error)
	// MarkCompleted transitions requested -> completed with the artifact.
	MarkCompleted(ctx context.Context, exportID id.ExportID, artifact Artifact) error
	// MarkFailed transitions requested -> failed with a diagnostic message.
	MarkFailed(ctx context.Context, exportID id.ExportID, message string) error
	// ListExpired returns completed exports whose artifacts expired before
	// the given instant, for cleanup.
	ListExpired(ctx context.Context, before time.Time) ([]*audit.Export, error)
}
