package settings

import (
	"context"
	"sync"
	"time"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	settings map[id.TenantID]*audit.Settings
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{settings: make(map[id.TenantID]*audit.Settings)}
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID) (*audit.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current, ok := s.settings[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *current
	out.AlertRecipients = append([]string(nil), current.AlertRecipients...)
	return &out, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, in *audit.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := *in
	stored.AlertRecipients = append([]string(nil), in.AlertRecipients...)
	stored.UpdatedAt = now
	if existing, ok := s.settings[in.TenantID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	s.settings[in.TenantID] = &stored

	in.CreatedAt = stored.CreatedAt
	in.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *InMemoryStore) ListTenants(_ context.Context) ([]id.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]id.TenantID, 0, len(s.settings))
	for tenantID := range s.settings {
		tenants = append(tenants, tenantID)
	}
	return tenants, nil
}
