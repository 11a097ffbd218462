package violation

import (
	"context"
	"sort"
	"sync"
	"time"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

type InMemoryStore struct {
	mu         sync.RWMutex
	violations map[id.ViolationID]*audit.Violation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{violations: make(map[id.ViolationID]*audit.Violation)}
}

func (s *InMemoryStore) Create(_ context.Context, v *audit.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *v
	if stored.DetectedAt.IsZero() {
		stored.DetectedAt = time.Now().UTC()
		v.DetectedAt = stored.DetectedAt
	}
	s.violations[v.ID] = &stored
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, violationID id.ViolationID) (*audit.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.violations[violationID]
	if !ok || v.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := *v
	return &out, nil
}

func (s *InMemoryStore) List(_ context.Context, filter audit.ViolationFilter) ([]*audit.Violation, error) {
	filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*audit.Violation
	for _, v := range s.violations {
		if matches(v, filter) {
			out := *v
			matched = append(matched, &out)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].DetectedAt.After(matched[j].DetectedAt)
	})
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *InMemoryStore) Resolve(_ context.Context, tenantID id.TenantID, violationID id.ViolationID, res Resolution) (*audit.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.violations[violationID]
	if !ok || v.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if v.Status != audit.ViolationOpen {
		return nil, ErrAlreadyResolved
	}

	now := time.Now().UTC()
	v.Status = res.Status
	v.AcknowledgedBy = res.By
	v.AcknowledgedAt = &now
	v.ResolutionNotes = res.Notes
	v.CorrectiveAction = res.CorrectiveAction

	out := *v
	return &out, nil
}

func matches(v *audit.Violation, f audit.ViolationFilter) bool {
	if !f.TenantID.IsNil() && v.TenantID != f.TenantID {
		return false
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.Severity != "" && v.Severity != f.Severity {
		return false
	}
	if !f.Start.IsZero() && v.DetectedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && v.DetectedAt.After(f.End) {
		return false
	}
	return true
}
