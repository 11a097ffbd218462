package capture

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starline/internal/audit"
	"starline/internal/audit/classify"
	id "starline/pkg/domain"
	"starline/pkg/requestcontext"
)

func identifiedContext(t *testing.T) (context.Context, id.ActorID, id.TenantID) {
	t.Helper()
	actorID, err := id.ParseActorID(uuid.NewString())
	require.NoError(t, err)
	tenantID, err := id.ParseTenantID(uuid.NewString())
	require.NoError(t, err)

	ctx := requestcontext.WithActorID(context.Background(), actorID)
	ctx = requestcontext.WithTenantID(ctx, tenantID)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "test-agent/1.0")
	return ctx, actorID, tenantID
}

func TestInterceptorCreated(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, actorID, tenantID := identifiedContext(t)

	resourceID, err := id.ParseResourceID(uuid.NewString())
	require.NoError(t, err)
	ic.Created(ctx, Descriptor{
		Type: "client",
		ID:   resourceID,
		Attributes: map[string]any{
			"full_name": "Ada Lovelace",
			"diagnosis": "stable",
		},
	})

	ev := auditor.last(t)
	assert.Equal(t, audit.ActionCreate, ev.Action)
	assert.Equal(t, "client", ev.ResourceType)
	assert.Equal(t, resourceID, ev.ResourceID)
	assert.Equal(t, "Ada Lovelace", ev.ResourceName)
	assert.Equal(t, actorID, ev.ActorID)
	assert.Equal(t, tenantID, ev.TenantID)
	assert.Equal(t, "203.0.113.9", ev.IPAddress)
	assert.Nil(t, ev.PriorState)
	assert.Equal(t, "stable", ev.NewState["diagnosis"])
}

func TestInterceptorUpdatedCarriesBothStates(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	resourceID, err := id.ParseResourceID(uuid.NewString())
	require.NoError(t, err)
	ic.Updated(ctx, Descriptor{
		Type:       "client",
		ID:         resourceID,
		Attributes: map[string]any{"diagnosis": "improving"},
	}, map[string]any{"diagnosis": "stable"})

	ev := auditor.last(t)
	assert.Equal(t, audit.ActionUpdate, ev.Action)
	assert.Equal(t, "stable", ev.PriorState["diagnosis"])
	assert.Equal(t, "improving", ev.NewState["diagnosis"])
}

func TestInterceptorUpdatedKeepsOnlyChangedFields(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	ic.Updated(ctx, Descriptor{
		Type: "client",
		Attributes: map[string]any{
			"diagnosis": "improving",
			"phone":     "555-0100",
		},
	}, map[string]any{
		"diagnosis": "stable",
		"phone":     "555-0100",
	})

	ev := auditor.last(t)
	assert.Equal(t, map[string]any{"diagnosis": "stable"}, ev.PriorState)
	assert.Equal(t, map[string]any{"diagnosis": "improving"}, ev.NewState)
}

func TestInterceptorUpdatedSkipsNoOp(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	state := map[string]any{"diagnosis": "stable", "phone": "555-0100"}
	ic.Updated(ctx, Descriptor{Type: "client", Attributes: state}, state)

	assert.Zero(t, auditor.count())
}

func TestInterceptorUpdatedIgnoresExcludedFields(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	// Touched timestamps alone are not an update worth keeping.
	ic.Updated(ctx, Descriptor{
		Type: "client",
		Attributes: map[string]any{
			"diagnosis":  "stable",
			"updated_at": "2026-02-03T10:00:00Z",
		},
	}, map[string]any{
		"diagnosis":  "stable",
		"updated_at": "2026-02-01T09:00:00Z",
	})
	assert.Zero(t, auditor.count())

	ic.Updated(ctx, Descriptor{
		Type:     "user",
		Excluded: []string{"login_count"},
		Attributes: map[string]any{
			"email":       "g@example.com",
			"login_count": 8,
		},
	}, map[string]any{
		"email":       "g@example.com",
		"login_count": 7,
	})
	assert.Zero(t, auditor.count())
}

func TestInterceptorMasksSensitiveFields(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	ic.Updated(ctx, Descriptor{
		Type:      "client",
		Sensitive: []string{"insurance_id"},
		Attributes: map[string]any{
			"insurance_id": "INS-999",
		},
	}, map[string]any{
		"insurance_id": "INS-111",
	})

	ev := auditor.last(t)
	assert.Equal(t, classify.Mask, ev.PriorState["insurance_id"])
	assert.Equal(t, classify.Mask, ev.NewState["insurance_id"])
}

func TestInterceptorCreatedStripsExcludedFields(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	ic.Created(ctx, Descriptor{
		Type: "user",
		Attributes: map[string]any{
			"email":         "g@example.com",
			"password_hash": "$2a$10$abc",
			"created_at":    "2026-02-01T09:00:00Z",
		},
	})

	ev := auditor.last(t)
	assert.Equal(t, "g@example.com", ev.NewState["email"])
	assert.NotContains(t, ev.NewState, "password_hash")
	assert.NotContains(t, ev.NewState, "created_at")
}

func TestInterceptorDeletedKeepsFinalState(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	ic.Deleted(ctx, Descriptor{
		Type:       "medication",
		Attributes: map[string]any{"name": "aspirin"},
	})

	ev := auditor.last(t)
	assert.Equal(t, audit.ActionDelete, ev.Action)
	assert.Equal(t, "aspirin", ev.PriorState["name"])
	assert.Nil(t, ev.NewState)
}

func TestInterceptorLogPHIAccess(t *testing.T) {
	auditor := &captureAuditor{}
	ic := NewInterceptor(auditor)
	ctx, _, _ := identifiedContext(t)

	resourceID, err := id.ParseResourceID(uuid.NewString())
	require.NoError(t, err)
	ic.LogPHIAccess(ctx, "medication history report", resourceID)

	ev := auditor.last(t)
	assert.Equal(t, audit.ActionRead, ev.Action)
	assert.Equal(t, "phi_access", ev.ResourceType)
	assert.Equal(t, "medication history report", ev.ResourceName)
}

func TestResourceNameFallbacks(t *testing.T) {
	resourceID, err := id.ParseResourceID(uuid.NewString())
	require.NoError(t, err)

	tests := []struct {
		name   string
		entity Descriptor
		want   string
	}{
		{
			name:   "name wins over email",
			entity: Descriptor{Type: "user", Attributes: map[string]any{"name": "Grace", "email": "g@example.com"}},
			want:   "Grace",
		},
		{
			name:   "email when no name",
			entity: Descriptor{Type: "user", Attributes: map[string]any{"email": "g@example.com"}},
			want:   "g@example.com",
		},
		{
			name:   "type and id when nothing usable",
			entity: Descriptor{Type: "note", ID: resourceID, Attributes: map[string]any{"body": "x"}},
			want:   "note:" + resourceID.String(),
		},
		{
			name:   "bare type when no id",
			entity: Descriptor{Type: "note"},
			want:   "note",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resourceName(tt.entity))
		})
	}
}
