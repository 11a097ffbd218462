package capture

import (
	"context"
	"fmt"
	"log/slog"

	"starline/internal/audit"
	"starline/internal/audit/classify"
	id "starline/pkg/domain"
	"starline/pkg/requestcontext"
)

// Descriptor identifies the entity a service operation touched. Attributes
// hold the column snapshot at the moment of capture. Sensitive names the
// entity's own redacted fields on top of the global denylist; Excluded names
// fields left out of snapshots and diffs on top of the built-in set.
type Descriptor struct {
	Type       string
	ID         id.ResourceID
	Attributes map[string]any
	Sensitive  []string
	Excluded   []string
}

// nameKeys are checked in order when deriving a human readable resource name.
var nameKeys = []string{"name", "title", "full_name", "email", "username", "first_name"}

// alwaysExcluded never appears in captured state or update diffs.
var alwaysExcluded = []string{"created_at", "updated_at", "deleted_at", "password_hash"}

type InterceptorOption func(*Interceptor)

func InterceptorWithLogger(logger *slog.Logger) InterceptorOption {
	return func(i *Interceptor) { i.logger = logger }
}

// Interceptor records entity-level audit events from service code. It pulls
// actor and client attribution from the request context, so it only needs to
// be told what changed.
type Interceptor struct {
	auditor Auditor
	logger  *slog.Logger
}

func NewInterceptor(auditor Auditor, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{auditor: auditor}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Created records a create with the new entity state.
func (i *Interceptor) Created(ctx context.Context, entity Descriptor) {
	ev := i.base(ctx, audit.ActionCreate, entity)
	ev.NewState = snapshot(entity, entity.Attributes)
	i.record(ctx, ev)
}

// Updated records an update with only the fields that changed between the
// prior and new snapshots. When nothing outside the excluded set changed,
// no event is recorded.
func (i *Interceptor) Updated(ctx context.Context, entity Descriptor, prior map[string]any) {
	before, after := diff(entity, prior, entity.Attributes)
	if len(before) == 0 && len(after) == 0 {
		return
	}
	ev := i.base(ctx, audit.ActionUpdate, entity)
	ev.PriorState = before
	ev.NewState = after
	i.record(ctx, ev)
}

// Deleted records a delete with the final entity state.
func (i *Interceptor) Deleted(ctx context.Context, entity Descriptor) {
	ev := i.base(ctx, audit.ActionDelete, entity)
	ev.PriorState = snapshot(entity, entity.Attributes)
	i.record(ctx, ev)
}

// Viewed records a read of a single entity.
func (i *Interceptor) Viewed(ctx context.Context, entity Descriptor) {
	i.record(ctx, i.base(ctx, audit.ActionRead, entity))
}

// LogPHIAccess records a read against the phi_access sentinel resource type,
// used when PHI is disclosed outside a normal entity fetch, for example in a
// report or search result.
func (i *Interceptor) LogPHIAccess(ctx context.Context, description string, resourceID id.ResourceID) {
	ev := i.base(ctx, audit.ActionRead, Descriptor{
		Type: "phi_access",
		ID:   resourceID,
	})
	ev.ResourceName = description
	i.record(ctx, ev)
}

func (i *Interceptor) base(ctx context.Context, action audit.Action, entity Descriptor) audit.Event {
	return audit.Event{
		TenantID:     requestcontext.TenantID(ctx),
		ActorID:      requestcontext.ActorID(ctx),
		SessionID:    requestcontext.SessionID(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		Action:       action,
		ResourceType: entity.Type,
		ResourceID:   entity.ID,
		ResourceName: resourceName(entity),
	}
}

func (i *Interceptor) record(ctx context.Context, ev audit.Event) {
	if _, err := i.auditor.Record(context.WithoutCancel(ctx), ev); err != nil && i.logger != nil {
		i.logger.ErrorContext(ctx, "failed to record entity audit event",
			"action", string(ev.Action),
			"resource_type", ev.ResourceType,
			"error", err,
		)
	}
}

// snapshot copies attrs without excluded fields, masking the entity's own
// sensitive fields. The global denylist is applied later by the recorder.
func snapshot(entity Descriptor, attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	excluded := excludedSet(entity)
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if excluded[k] {
			continue
		}
		if isSensitive(entity, k) {
			v = classify.Mask
		}
		out[k] = v
	}
	return out
}

// diff compares the raw snapshots and keeps only the fields that changed,
// masking sensitive values on the way out.
func diff(entity Descriptor, prior, next map[string]any) (before, after map[string]any) {
	excluded := excludedSet(entity)
	keys := make(map[string]struct{}, len(prior)+len(next))
	for k := range prior {
		keys[k] = struct{}{}
	}
	for k := range next {
		keys[k] = struct{}{}
	}
	before = map[string]any{}
	after = map[string]any{}
	for k := range keys {
		if excluded[k] {
			continue
		}
		pv, inPrior := prior[k]
		nv, inNext := next[k]
		if inPrior && inNext && fmt.Sprint(pv) == fmt.Sprint(nv) {
			continue
		}
		if isSensitive(entity, k) {
			pv, nv = classify.Mask, classify.Mask
		}
		if inPrior {
			before[k] = pv
		}
		if inNext {
			after[k] = nv
		}
	}
	return before, after
}

func excludedSet(entity Descriptor) map[string]bool {
	set := make(map[string]bool, len(alwaysExcluded)+len(entity.Excluded))
	for _, k := range alwaysExcluded {
		set[k] = true
	}
	for _, k := range entity.Excluded {
		set[k] = true
	}
	return set
}

func isSensitive(entity Descriptor, key string) bool {
	for _, k := range entity.Sensitive {
		if k == key {
			return true
		}
	}
	return false
}

func resourceName(entity Descriptor) string {
	for _, key := range nameKeys {
		if v, ok := entity.Attributes[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if entity.ID.IsNil() {
		return entity.Type
	}
	return entity.Type + ":" + entity.ID.String()
}
