// Package settings serves per-tenant audit configuration with a Redis
// read-through cache. Rows are created lazily with defaults the first time a
// tenant is seen.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"starline/internal/audit"
	settingsstore "starline/internal/audit/store/settings"
	id "starline/pkg/domain"
)

const cacheKeyPrefix = "audit:settings:"

// Service resolves and updates tenant audit settings.
type Service struct {
	store    settingsstore.Store
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithCache enables the Redis read-through cache.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = client
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a settings Service.
func New(store settingsstore.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cacheTTL: 5 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the tenant's settings, creating the default row on first
// access. Cache failures degrade to the store, never to an error.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID) (*audit.Settings, error) {
	if cached := s.fromCache(ctx, tenantID); cached != nil {
		return cached, nil
	}

	cfg, err := s.store.Get(ctx, tenantID)
	if errors.Is(err, settingsstore.ErrNotFound) {
		cfg = audit.DefaultSettings(tenantID)
		if err := s.store.Upsert(ctx, cfg); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	s.fillCache(ctx, cfg)
	return cfg, nil
}

// Update merges the partial update into the tenant's settings and
// invalidates the cache.
func (s *Service) Update(ctx context.Context, tenantID id.TenantID, update audit.SettingsUpdate) (*audit.Settings, error) {
	cfg, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg.Apply(update)
	if err := s.store.Upsert(ctx, cfg); err != nil {
		return nil, err
	}
	s.invalidate(ctx, tenantID)
	return cfg, nil
}

func (s *Service) fromCache(ctx context.Context, tenantID id.TenantID) *audit.Settings {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKeyPrefix+tenantID.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "settings cache read failed", "tenant_id", tenantID, "error", err)
		}
		return nil
	}
	var cfg audit.Settings
	if err := json.Unmarshal(raw, &cfg); err != nil {
		s.logger.WarnContext(ctx, "settings cache entry corrupt", "tenant_id", tenantID, "error", err)
		return nil
	}
	return &cfg
}

func (s *Service) fillCache(ctx context.Context, cfg *audit.Settings) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+cfg.TenantID.String(), raw, s.cacheTTL).Err(); err != nil {
		s.logger.WarnContext(ctx, "settings cache write failed", "tenant_id", cfg.TenantID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, tenantID id.TenantID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKeyPrefix+tenantID.String()).Err(); err != nil {
		s.logger.WarnContext(ctx, "settings cache invalidate failed", "tenant_id", tenantID, "error", err)
	}
}
