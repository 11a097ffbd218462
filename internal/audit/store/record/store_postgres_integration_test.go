//go:build integration

package record

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	id "starline/pkg/domain"
	"starline/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.DB)
	ctx := context.Background()

	tenantID, err := id.ParseTenantID(uuid.NewString())
	require.NoError(t, err)
	actorID, err := id.ParseActorID(uuid.NewString())
	require.NoError(t, err)

	newRecord := func(mutate func(*audit.Record)) *audit.Record {
		status := 200
		rec := &audit.Record{
			ID:             id.NewRecordID(),
			TenantID:       tenantID,
			ActorID:        actorID,
			Action:         audit.ActionRead,
			ResourceType:   "client",
			Classification: audit.ClassificationGeneral,
			ResponseStatus: &status,
		}
		if mutate != nil {
			mutate(rec)
		}
		return rec
	}

	t.Run("insert and get round trip", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "audit_records", "outbox"))

		rec := newRecord(func(r *audit.Record) {
			r.Action = audit.ActionUpdate
			r.PHIAccessed = true
			r.Classification = audit.ClassificationPHI
			r.PriorState = map[string]any{"diagnosis": "stable"}
			r.NewState = map[string]any{"diagnosis": "improving"}
			r.ChangesSummary = "diagnosis: stable → improving"
		})
		require.NoError(t, store.Insert(ctx, rec))
		require.False(t, rec.CreatedAt.IsZero())

		got, err := store.Get(ctx, tenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, audit.ActionUpdate, got.Action)
		assert.Equal(t, "improving", got.NewState["diagnosis"])
		assert.True(t, got.PHIAccessed)

		otherTenant, err := id.ParseTenantID(uuid.NewString())
		require.NoError(t, err)
		_, err = store.Get(ctx, otherTenant, rec.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("insert writes outbox row in same transaction", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "audit_records", "outbox"))

		rec := newRecord(nil)
		require.NoError(t, store.Insert(ctx, rec))

		var n int
		require.NoError(t, pg.DB.QueryRowContext(ctx,
			`SELECT count(*) FROM outbox WHERE aggregate_type = 'audit_record' AND aggregate_id = $1`,
			tenantID.String(),
		).Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("list filters and pages", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "audit_records", "outbox"))

		for range 3 {
			require.NoError(t, store.Insert(ctx, newRecord(nil)))
		}
		require.NoError(t, store.Insert(ctx, newRecord(func(r *audit.Record) {
			r.Action = audit.ActionDelete
		})))

		records, total, err := store.List(ctx, audit.RecordFilter{TenantID: tenantID, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, records, 2)

		records, total, err = store.List(ctx, audit.RecordFilter{TenantID: tenantID, Action: audit.ActionDelete})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, records, 1)
		assert.Equal(t, audit.ActionDelete, records[0].Action)
	})

	t.Run("totals aggregate store side", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "audit_records", "outbox"))

		require.NoError(t, store.Insert(ctx, newRecord(func(r *audit.Record) {
			r.PHIAccessed = true
			r.Classification = audit.ClassificationPHI
		})))
		failedStatus := 401
		require.NoError(t, store.Insert(ctx, newRecord(func(r *audit.Record) {
			r.Action = audit.ActionLogin
			r.ResponseStatus = &failedStatus
		})))

		totals, err := store.Totals(ctx, tenantID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, totals.TotalEvents)
		assert.Equal(t, 1, totals.PHIAccessCount)
		assert.Equal(t, 1, totals.FailedEventCount)
		assert.Equal(t, 1, totals.UniqueActors)
		assert.Equal(t, 1, totals.ByAction[audit.ActionLogin])
		assert.Equal(t, 1, totals.ByClassification[audit.ClassificationPHI])
	})

	t.Run("actor activity groups store side", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "audit_records", "outbox"))

		otherActor, err := id.ParseActorID(uuid.NewString())
		require.NoError(t, err)

		require.NoError(t, store.Insert(ctx, newRecord(func(r *audit.Record) {
			r.PHIAccessed = true
		})))
		require.NoError(t, store.Insert(ctx, newRecord(nil)))
		require.NoError(t, store.Insert(ctx, newRecord(func(r *audit.Record) {
			r.ActorID = otherActor
		})))

		activity, err := store.ActivityByActor(ctx, tenantID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, activity, 2)
		assert.Equal(t, actorID, activity[0].ActorID)
		assert.Equal(t, 2, activity[0].EventCount)
		assert.Equal(t, 1, activity[0].PHIAccessCount)
		assert.Equal(t, otherActor, activity[1].ActorID)
		assert.Equal(t, 1, activity[1].EventCount)
	})

	t.Run("delete older than purges by tenant", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "audit_records", "outbox"))

		rec := newRecord(nil)
		require.NoError(t, store.Insert(ctx, rec))
		_, err := pg.DB.ExecContext(ctx,
			`UPDATE audit_records SET created_at = now() - interval '8 years' WHERE id = $1`,
			uuid.UUID(rec.ID),
		)
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, newRecord(nil)))

		removed, err := store.DeleteOlderThan(ctx, tenantID, time.Now().AddDate(-7, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		count, err := store.Count(ctx, audit.RecordFilter{TenantID: tenantID})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
