package export

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

func pendingExport(t *testing.T) (*audit.Export, id.TenantID) {
	t.Helper()
	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	return &audit.Export{
		ID:       id.NewExportID(),
		TenantID: tenant,
		Format:   audit.ExportCSV,
		DateFrom: time.Now().Add(-30 * 24 * time.Hour),
		DateTo:   time.Now(),
		Purpose:  "quarterly access review",
		Status:   audit.ExportRequested,
	}, tenant
}

func TestInMemoryStore_CompleteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	e, tenant := pendingExport(t)
	require.NoError(t, store.Create(ctx, e))

	artifact := Artifact{
		FilePath:    "exports/" + e.ID.String() + ".csv",
		FileSize:    2048,
		RecordCount: 17,
		ExpiresAt:   time.Now().Add(audit.ExportArtifactTTL),
	}
	require.NoError(t, store.MarkCompleted(ctx, e.ID, artifact))

	got, err := store.Get(ctx, tenant, e.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.ExportCompleted, got.Status)
	assert.Equal(t, artifact.FilePath, got.FilePath)
	assert.Equal(t, 17, got.RecordCount)
	require.NotNil(t, got.ExpiresAt)

	assert.ErrorIs(t, store.MarkCompleted(ctx, e.ID, artifact), ErrNotPending)
	assert.ErrorIs(t, store.MarkFailed(ctx, e.ID, "late failure"), ErrNotPending)
}

func TestInMemoryStore_MarkFailed(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	e, tenant := pendingExport(t)
	require.NoError(t, store.Create(ctx, e))
	require.NoError(t, store.MarkFailed(ctx, e.ID, "blob write refused"))

	got, err := store.Get(ctx, tenant, e.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.ExportFailed, got.Status)
	assert.Equal(t, "blob write refused", got.ErrorMessage)
	assert.Empty(t, got.FilePath)
}

func TestInMemoryStore_ListExpired(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	stale, _ := pendingExport(t)
	require.NoError(t, store.Create(ctx, stale))
	require.NoError(t, store.MarkCompleted(ctx, stale.ID, Artifact{
		FilePath:  "exports/stale.csv",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	fresh, _ := pendingExport(t)
	require.NoError(t, store.Create(ctx, fresh))
	require.NoError(t, store.MarkCompleted(ctx, fresh.ID, Artifact{
		FilePath:  "exports/fresh.csv",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	expired, err := store.ListExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)
}

func TestInMemoryStore_GetScopedToTenant(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	e, _ := pendingExport(t)
	require.NoError(t, store.Create(ctx, e))

	other, err := id.ParseTenantID("22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)

	_, err = store.Get(ctx, other, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
