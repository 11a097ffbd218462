package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	"starline/internal/audit/store/record"
	settingsstore "starline/internal/audit/store/settings"
	id "starline/pkg/domain"
)

func setup(t *testing.T) (id.TenantID, *record.InMemoryStore, *settingsstore.InMemoryStore) {
	t.Helper()
	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	records := record.NewInMemoryStore()
	settings := settingsstore.NewInMemoryStore()
	require.NoError(t, settings.Upsert(context.Background(), audit.DefaultSettings(tenant)))
	return tenant, records, settings
}

func insertAged(t *testing.T, records *record.InMemoryStore, tenant id.TenantID, createdAt time.Time) id.RecordID {
	t.Helper()
	rec := &audit.Record{
		ID:        id.NewRecordID(),
		TenantID:  tenant,
		Action:    audit.ActionRead,
		CreatedAt: createdAt,
	}
	require.NoError(t, records.Insert(context.Background(), rec))
	return rec.ID
}

func TestSweeper_PurgesPastRetentionWindow(t *testing.T) {
	ctx := context.Background()
	tenant, records, settings := setup(t)

	ancient := insertAged(t, records, tenant, time.Now().AddDate(-8, 0, 0))
	fresh := insertAged(t, records, tenant, time.Now().AddDate(0, 0, -30))

	New(records, settings).Sweep(ctx)

	_, err := records.Get(ctx, tenant, ancient)
	assert.ErrorIs(t, err, record.ErrNotFound)

	_, err = records.Get(ctx, tenant, fresh)
	assert.NoError(t, err)
}

func TestSweeper_KeepsEverythingWithinWindow(t *testing.T) {
	ctx := context.Background()
	tenant, records, settings := setup(t)

	insertAged(t, records, tenant, time.Now().AddDate(0, 0, -30))
	insertAged(t, records, tenant, time.Now().AddDate(-1, 0, 0))

	New(records, settings).Sweep(ctx)

	_, total, err := records.List(ctx, audit.RecordFilter{TenantID: tenant})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

type countingCleaner struct {
	calls int
}

func (c *countingCleaner) CleanupExpired(context.Context) (int, error) {
	c.calls++
	return 0, nil
}

func TestSweeper_RunsExportCleanup(t *testing.T) {
	_, records, settings := setup(t)
	cleaner := &countingCleaner{}

	New(records, settings, WithExportCleaner(cleaner)).Sweep(context.Background())
	assert.Equal(t, 1, cleaner.calls)
}
