package violation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

func testTenant(t *testing.T) id.TenantID {
	t.Helper()
	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	return tenant
}

func openViolation(tenant id.TenantID, severity audit.Severity) *audit.Violation {
	return &audit.Violation{
		ID:       id.NewViolationID(),
		TenantID: tenant,
		RecordID: id.NewRecordID(),
		Type:     "excessive_phi_access",
		Severity: severity,
		Status:   audit.ViolationOpen,
	}
}

func TestInMemoryStore_ResolveOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenant := testTenant(t)

	v := openViolation(tenant, audit.SeverityHigh)
	require.NoError(t, store.Create(ctx, v))

	actor, err := id.ParseActorID("33333333-3333-3333-3333-333333333333")
	require.NoError(t, err)

	resolved, err := store.Resolve(ctx, tenant, v.ID, Resolution{
		Status: audit.ViolationResolved,
		By:     actor,
		Notes:  "reviewed access pattern with the care team",
	})
	require.NoError(t, err)
	assert.Equal(t, audit.ViolationResolved, resolved.Status)
	assert.Equal(t, actor, resolved.AcknowledgedBy)
	require.NotNil(t, resolved.AcknowledgedAt)

	_, err = store.Resolve(ctx, tenant, v.ID, Resolution{
		Status: audit.ViolationFalsePositive,
		By:     actor,
		Notes:  "second attempt",
	})
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestInMemoryStore_ResolveUnknownViolation(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Resolve(context.Background(), testTenant(t), id.NewViolationID(), Resolution{
		Status: audit.ViolationResolved,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_ListFiltersByStatusAndSeverity(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenant := testTenant(t)

	require.NoError(t, store.Create(ctx, openViolation(tenant, audit.SeverityHigh)))
	require.NoError(t, store.Create(ctx, openViolation(tenant, audit.SeverityHigh)))
	require.NoError(t, store.Create(ctx, openViolation(tenant, audit.SeverityLow)))

	high, err := store.List(ctx, audit.ViolationFilter{
		TenantID: tenant,
		Status:   audit.ViolationOpen,
		Severity: audit.SeverityHigh,
	})
	require.NoError(t, err)
	assert.Len(t, high, 2)
}

func TestInMemoryStore_ListFiltersByDetectionWindow(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	tenant := testTenant(t)

	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	inside := openViolation(tenant, audit.SeverityMedium)
	inside.DetectedAt = base
	outside := openViolation(tenant, audit.SeverityMedium)
	outside.DetectedAt = base.AddDate(0, -2, 0)
	require.NoError(t, store.Create(ctx, inside))
	require.NoError(t, store.Create(ctx, outside))

	got, err := store.List(ctx, audit.ViolationFilter{
		TenantID: tenant,
		Start:    base.AddDate(0, 0, -7),
		End:      base.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)
}
