package record

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

func newRecord(tenantID id.TenantID, actorID id.ActorID, action audit.Action) *audit.Record {
	return &audit.Record{
		ID:             id.NewRecordID(),
		TenantID:       tenantID,
		ActorID:        actorID,
		Action:         action,
		ResourceType:   "client",
		Classification: audit.ClassificationPHI,
		PHIAccessed:    true,
	}
}

func TestInMemoryStore_InsertAssignsCreatedAt(t *testing.T) {
	store := NewInMemoryStore()
	rec := newRecord(id.TenantID{}, id.ActorID{}, audit.ActionCreate)

	require.NoError(t, store.Insert(context.Background(), rec))
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestInMemoryStore_GetScopedToTenant(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	tenantA, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	tenantB, err := id.ParseTenantID("22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)

	rec := newRecord(tenantA, id.ActorID{}, audit.ActionRead)
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.Get(ctx, tenantA, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = store.Get(ctx, tenantB, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_ListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	actor, err := id.ParseActorID("33333333-3333-3333-3333-333333333333")
	require.NoError(t, err)

	for range 5 {
		require.NoError(t, store.Insert(ctx, newRecord(tenant, actor, audit.ActionRead)))
	}
	require.NoError(t, store.Insert(ctx, newRecord(tenant, actor, audit.ActionCreate)))

	page, total, err := store.List(ctx, audit.RecordFilter{
		TenantID: tenant,
		Action:   audit.ActionRead,
		Limit:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	rest, total, err := store.List(ctx, audit.RecordFilter{
		TenantID: tenant,
		Action:   audit.ActionRead,
		Limit:    10,
		Offset:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rest, 3)
}

func TestInMemoryStore_CountFailedOnly(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	ok := http.StatusOK
	denied := http.StatusUnauthorized

	passed := newRecord(tenant, id.ActorID{}, audit.ActionLogin)
	passed.ResponseStatus = &ok
	require.NoError(t, store.Insert(ctx, passed))

	for range 3 {
		failed := newRecord(tenant, id.ActorID{}, audit.ActionLogin)
		failed.ResponseStatus = &denied
		require.NoError(t, store.Insert(ctx, failed))
	}

	count, err := store.Count(ctx, audit.RecordFilter{
		TenantID:   tenant,
		Action:     audit.ActionLogin,
		FailedOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestInMemoryStore_Totals(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	actorA, err := id.ParseActorID("33333333-3333-3333-3333-333333333333")
	require.NoError(t, err)
	actorB, err := id.ParseActorID("44444444-4444-4444-4444-444444444444")
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, newRecord(tenant, actorA, audit.ActionRead)))
	require.NoError(t, store.Insert(ctx, newRecord(tenant, actorA, audit.ActionUpdate)))
	require.NoError(t, store.Insert(ctx, newRecord(tenant, actorB, audit.ActionRead)))

	totals, err := store.Totals(ctx, tenant, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, totals.TotalEvents)
	assert.Equal(t, 2, totals.ByAction[audit.ActionRead])
	assert.Equal(t, 1, totals.ByAction[audit.ActionUpdate])
	assert.Equal(t, 3, totals.PHIAccessCount)
	assert.Equal(t, 2, totals.UniqueActors)
}

func TestInMemoryStore_ActivityByActor(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	actorA, err := id.ParseActorID("33333333-3333-3333-3333-333333333333")
	require.NoError(t, err)
	actorB, err := id.ParseActorID("44444444-4444-4444-4444-444444444444")
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, newRecord(tenant, actorA, audit.ActionRead)))
	require.NoError(t, store.Insert(ctx, newRecord(tenant, actorA, audit.ActionRead)))
	nonPHI := newRecord(tenant, actorB, audit.ActionLogin)
	nonPHI.Classification = audit.ClassificationGeneral
	nonPHI.PHIAccessed = false
	require.NoError(t, store.Insert(ctx, nonPHI))
	// Anonymous events never attribute to an actor.
	require.NoError(t, store.Insert(ctx, newRecord(tenant, id.ActorID{}, audit.ActionRead)))

	activity, err := store.ActivityByActor(ctx, tenant, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, actorA, activity[0].ActorID)
	assert.Equal(t, 2, activity[0].EventCount)
	assert.Equal(t, 2, activity[0].PHIAccessCount)
	assert.Equal(t, actorB, activity[1].ActorID)
	assert.Equal(t, 1, activity[1].EventCount)
	assert.Equal(t, 0, activity[1].PHIAccessCount)
}

func TestInMemoryStore_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	old := newRecord(tenant, id.ActorID{}, audit.ActionRead)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Insert(ctx, old))

	fresh := newRecord(tenant, id.ActorID{}, audit.ActionRead)
	require.NoError(t, store.Insert(ctx, fresh))

	removed, err := store.DeleteOlderThan(ctx, tenant, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, total, err := store.List(ctx, audit.RecordFilter{TenantID: tenant})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
