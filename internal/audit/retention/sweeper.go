// Package retention purges audit data past each tenant's retention window
// and removes expired export artifacts.
package retention

import (
	"context"
	"log/slog"
	"time"

	"starline/internal/audit/store/record"
	settingsstore "starline/internal/audit/store/settings"
	id "starline/pkg/domain"
)

// ExportCleaner removes expired export artifacts. Satisfied by the export
// service.
type ExportCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Sweeper runs the periodic purge.
type Sweeper struct {
	records  record.Store
	settings settingsstore.Store
	exports  ExportCleaner

	interval time.Duration
	logger   *slog.Logger
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithInterval sets the sweep cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithExportCleaner adds export artifact cleanup to each sweep.
func WithExportCleaner(c ExportCleaner) Option {
	return func(s *Sweeper) { s.exports = c }
}

// New creates a Sweeper.
func New(records record.Store, settings settingsstore.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		records:  records,
		settings: settings,
		interval: 24 * time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately, then on the configured interval until the
// context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep purges every known tenant once. Per-tenant failures are logged and
// the sweep continues.
func (s *Sweeper) Sweep(ctx context.Context) {
	tenants, err := s.settings.ListTenants(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention sweep tenant list failed", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, tenantID := range tenants {
		s.sweepTenant(ctx, tenantID, now)
	}

	if s.exports != nil {
		removed, err := s.exports.CleanupExpired(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "export artifact cleanup failed", "error", err)
		} else if removed > 0 {
			s.logger.InfoContext(ctx, "expired export artifacts removed", "count", removed)
		}
	}
}

func (s *Sweeper) sweepTenant(ctx context.Context, tenantID id.TenantID, now time.Time) {
	cfg, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention sweep settings lookup failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return
	}

	cutoff := now.AddDate(0, 0, -cfg.RetentionDays)
	removed, err := s.records.DeleteOlderThan(ctx, tenantID, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention purge failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "retention purge complete",
			"tenant_id", tenantID,
			"removed", removed,
			"cutoff", cutoff,
		)
	}
}
