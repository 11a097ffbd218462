//go:build integration

package settings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	settingsstore "starline/internal/audit/store/settings"
	id "starline/pkg/domain"
	"starline/pkg/testutil/containers"
)

func TestServiceWithPostgresAndRedisCache(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	store := settingsstore.NewPostgresStore(pg.DB)
	svc := New(store, WithCache(rc.Client, time.Minute))

	tenantID, err := id.ParseTenantID(uuid.NewString())
	require.NoError(t, err)

	// First read lazily creates defaults and persists them.
	cfg, err := svc.Get(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, audit.RetentionFloorDays, cfg.RetentionDays)

	persisted, err := store.Get(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, audit.RetentionFloorDays, persisted.RetentionDays)

	// Second read comes from the cache.
	keys, err := rc.Client.Keys(ctx, "audit:settings:*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	cached, err := svc.Get(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, cfg.RetentionDays, cached.RetentionDays)

	// Update persists, clamps, and invalidates the cache.
	retention := 30
	sampling := 40
	updated, err := svc.Update(ctx, tenantID, audit.SettingsUpdate{
		RetentionDays:   &retention,
		SamplingRate:    &sampling,
		AlertRecipients: []string{"privacy@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, audit.RetentionFloorDays, updated.RetentionDays)
	assert.Equal(t, 40, updated.SamplingRate)

	keys, err = rc.Client.Keys(ctx, "audit:settings:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)

	fresh, err := svc.Get(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 40, fresh.SamplingRate)
	assert.Equal(t, []string{"privacy@example.com"}, fresh.AlertRecipients)
}
