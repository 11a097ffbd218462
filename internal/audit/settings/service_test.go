package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	settingsstore "starline/internal/audit/store/settings"
	id "starline/pkg/domain"
)

func testTenant(t *testing.T) id.TenantID {
	t.Helper()
	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	return tenant
}

func TestService_GetCreatesDefaultsLazily(t *testing.T) {
	ctx := context.Background()
	store := settingsstore.NewInMemoryStore()
	svc := New(store)
	tenant := testTenant(t)

	cfg, err := svc.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, audit.RetentionFloorDays, cfg.RetentionDays)
	assert.Equal(t, 100, cfg.SamplingRate)
	assert.True(t, cfg.MaskSensitiveData)

	// The defaults were persisted, not just returned.
	persisted, err := store.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, cfg.RetentionDays, persisted.RetentionDays)
}

func TestService_UpdateMergesPartialFields(t *testing.T) {
	ctx := context.Background()
	svc := New(settingsstore.NewInMemoryStore())
	tenant := testTenant(t)

	rate := 25
	updated, err := svc.Update(ctx, tenant, audit.SettingsUpdate{
		SamplingRate:    &rate,
		AlertRecipients: []string{"privacy@example.org"},
	})
	require.NoError(t, err)
	assert.Equal(t, 25, updated.SamplingRate)
	assert.Equal(t, []string{"privacy@example.org"}, updated.AlertRecipients)
	// Untouched fields keep their defaults.
	assert.True(t, updated.LogReadOperations)

	again, err := svc.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 25, again.SamplingRate)
}

func TestService_UpdateClampsRetentionFloor(t *testing.T) {
	ctx := context.Background()
	svc := New(settingsstore.NewInMemoryStore())

	days := 30
	updated, err := svc.Update(ctx, testTenant(t), audit.SettingsUpdate{
		RetentionDays: &days,
	})
	require.NoError(t, err)
	assert.Equal(t, audit.RetentionFloorDays, updated.RetentionDays)
}

func TestService_UpdateClampsSamplingRate(t *testing.T) {
	ctx := context.Background()
	svc := New(settingsstore.NewInMemoryStore())

	over := 250
	updated, err := svc.Update(ctx, testTenant(t), audit.SettingsUpdate{
		SamplingRate: &over,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.SamplingRate)

	under := -5
	updated, err = svc.Update(ctx, testTenant(t), audit.SettingsUpdate{
		SamplingRate: &under,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.SamplingRate)
}
