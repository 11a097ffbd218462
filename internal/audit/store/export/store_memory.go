package export

import (
	"context"
	"sync"
	"time"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	exports map[id.ExportID]*audit.Export
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{exports: make(map[id.ExportID]*audit.Export)}
}

func (s *InMemoryStore) Create(_ context.Context, e *audit.Export) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *e
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
		e.CreatedAt = stored.CreatedAt
	}
	s.exports[e.ID] = &stored
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, exportID id.ExportID) (*audit.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exports[exportID]
	if !ok || e.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

func (s *InMemoryStore) GetByID(_ context.Context, exportID id.ExportID) (*audit.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exports[exportID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

func (s *InMemoryStore) MarkCompleted(_ context.Context, exportID id.ExportID, artifact Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.exports[exportID]
	if !ok {
		return ErrNotFound
	}
	if e.Status != audit.ExportRequested {
		return ErrNotPending
	}

	now := time.Now().UTC()
	expires := artifact.ExpiresAt
	e.Status = audit.ExportCompleted
	e.FilePath = artifact.FilePath
	e.FileSize = artifact.FileSize
	e.RecordCount = artifact.RecordCount
	e.CompletedAt = &now
	e.ExpiresAt = &expires
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, exportID id.ExportID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.exports[exportID]
	if !ok {
		return ErrNotFound
	}
	if e.Status != audit.ExportRequested {
		return ErrNotPending
	}

	now := time.Now().UTC()
	e.Status = audit.ExportFailed
	e.ErrorMessage = message
	e.CompletedAt = &now
	return nil
}

func (s *InMemoryStore) ListExpired(_ context.Context, before time.Time) ([]*audit.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*audit.Export
	for _, e := range s.exports {
		if e.Status == audit.ExportCompleted && e.ExpiresAt != nil && e.ExpiresAt.Before(before) {
			out := *e
			expired = append(expired, &out)
		}
	}
	return expired, nil
}
