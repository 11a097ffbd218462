package report

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	"starline/internal/audit/store/record"
	"starline/internal/audit/store/violation"
	id "starline/pkg/domain"
	dErrors "starline/pkg/domain-errors"
)

func TestService_Generate(t *testing.T) {
	ctx := context.Background()
	records := record.NewInMemoryStore()
	violations := violation.NewInMemoryStore()
	svc := New(records, violations)

	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	actor, err := id.ParseActorID("33333333-3333-3333-3333-333333333333")
	require.NoError(t, err)

	second, err := id.ParseActorID("44444444-4444-4444-4444-444444444444")
	require.NoError(t, err)

	denied := http.StatusForbidden
	seed := []*audit.Record{
		{ID: id.NewRecordID(), TenantID: tenant, ActorID: actor, Action: audit.ActionRead, Classification: audit.ClassificationPHI, PHIAccessed: true},
		{ID: id.NewRecordID(), TenantID: tenant, ActorID: actor, Action: audit.ActionUpdate, Classification: audit.ClassificationPHI, PHIAccessed: true},
		{ID: id.NewRecordID(), TenantID: tenant, ActorID: second, Action: audit.ActionLogin, Classification: audit.ClassificationGeneral, ResponseStatus: &denied},
	}
	for _, rec := range seed {
		require.NoError(t, records.Insert(ctx, rec))
	}

	require.NoError(t, violations.Create(ctx, &audit.Violation{
		ID:       id.NewViolationID(),
		TenantID: tenant,
		RecordID: seed[0].ID,
		Type:     "excessive_phi_access",
		Severity: audit.SeverityHigh,
		Status:   audit.ViolationOpen,
	}))

	// Resolved before the window opened; stays out of every violation figure.
	stale := &audit.Violation{
		ID:         id.NewViolationID(),
		TenantID:   tenant,
		RecordID:   seed[1].ID,
		Type:       "after_hours_phi_access",
		Severity:   audit.SeverityLow,
		Status:     audit.ViolationResolved,
		DetectedAt: time.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, violations.Create(ctx, stale))

	got, err := svc.Generate(ctx, tenant, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, got.TotalEvents)
	assert.Equal(t, 2, got.PHIAccessCount)
	assert.Equal(t, 1, got.FailedEventCount)
	assert.Equal(t, 2, got.UniqueActors)
	assert.Equal(t, 1, got.ByAction[audit.ActionLogin])
	assert.Equal(t, 2, got.ByClassification[audit.ClassificationPHI])

	require.Len(t, got.ActorActivity, 2)
	assert.Equal(t, actor, got.ActorActivity[0].ActorID)
	assert.Equal(t, 2, got.ActorActivity[0].EventCount)
	assert.Equal(t, 2, got.ActorActivity[0].PHIAccessCount)
	assert.Equal(t, second, got.ActorActivity[1].ActorID)
	assert.Equal(t, 1, got.ActorActivity[1].EventCount)
	assert.Equal(t, 0, got.ActorActivity[1].PHIAccessCount)

	assert.Equal(t, 1, got.OpenViolations)
	assert.Equal(t, 1, got.ViolationsBySeverity[audit.SeverityHigh])
	assert.Zero(t, got.ViolationsBySeverity[audit.SeverityLow])
	require.Len(t, got.Violations, 1)
	assert.Equal(t, "excessive_phi_access", got.Violations[0].Type)
	assert.Equal(t, audit.ViolationOpen, got.Violations[0].Status)
}

func TestService_GenerateValidatesPeriod(t *testing.T) {
	svc := New(record.NewInMemoryStore(), violation.NewInMemoryStore())
	tenant, err := id.ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), tenant, time.Now(), time.Now().Add(-time.Hour))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = svc.Generate(context.Background(), id.TenantID{}, time.Now().Add(-time.Hour), time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
