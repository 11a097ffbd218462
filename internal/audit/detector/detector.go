// Package detector watches the stream of persisted audit records for
// compliance anomalies: excessive PHI access, repeated failed logins, and
// after-hours PHI access. Breach-grade findings are escalated as a
// breach_detected audit record plus an open violation.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"starline/internal/audit"
	"starline/internal/audit/store/record"
	"starline/internal/audit/store/violation"
	id "starline/pkg/domain"
)

const (
	// PHIReadThreshold is the per-actor hourly PHI read count above which a
	// breach is declared.
	PHIReadThreshold = 50
	phiReadWindow    = time.Hour

	// FailedLoginThreshold is the failed login count within the velocity
	// window that declares a breach.
	FailedLoginThreshold = 5
	failedLoginWindow    = 15 * time.Minute

	// Accesses before WorkdayStartHour or after WorkdayEndHour are flagged
	// for review; the 22:00 hour itself still counts as business hours.
	// Hours are UTC.
	WorkdayStartHour = 6
	WorkdayEndHour   = 22
)

const (
	TypeExcessivePHIAccess     = "excessive_phi_access"
	TypeMultipleFailedAttempts = "multiple_failed_attempts"
	TypeAfterHoursPHIAccess    = "after_hours_phi_access"
)

// Escalator writes the second-order breach_detected record. Satisfied by the
// recorder.
type Escalator interface {
	Record(ctx context.Context, ev audit.Event) (*audit.Record, error)
}

// Detector inspects each persisted record and raises violations.
type Detector struct {
	records    record.Store
	violations violation.Store
	escalator  Escalator
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures the Detector.
type Option func(*Detector)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// New creates a Detector.
func New(records record.Store, violations violation.Store, escalator Escalator, opts ...Option) *Detector {
	d := &Detector{
		records:    records,
		violations: violations,
		escalator:  escalator,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Consume applies every heuristic to one persisted record. Errors are logged,
// never returned: detection is best-effort and must not stall the sink loop.
func (d *Detector) Consume(ctx context.Context, rec *audit.Record) {
	// Breach records are produced by this detector; inspecting them again
	// would loop.
	if rec.Action == audit.ActionBreachDetected {
		return
	}

	if rec.PHIAccessed {
		d.checkExcessivePHIAccess(ctx, rec)
		d.checkAfterHours(ctx, rec)
	}
	if rec.Action == audit.ActionLogin && rec.Failed() {
		d.checkRepeatedFailures(ctx, rec)
	}
}

func (d *Detector) checkExcessivePHIAccess(ctx context.Context, rec *audit.Record) {
	if rec.ActorID.IsNil() {
		return
	}
	count, err := d.records.Count(ctx, audit.RecordFilter{
		TenantID: rec.TenantID,
		ActorID:  rec.ActorID,
		PHIOnly:  true,
		Start:    rec.CreatedAt.Add(-phiReadWindow),
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "phi access count failed", "actor_id", rec.ActorID, "error", err)
		return
	}
	if count <= PHIReadThreshold {
		return
	}
	d.escalate(ctx, rec, escalation{
		violationType: TypeExcessivePHIAccess,
		severity:      audit.SeverityMedium,
		window:        phiReadWindow,
		description: fmt.Sprintf("%d protected health record accesses by one actor within %s (threshold %d)",
			count, phiReadWindow, PHIReadThreshold),
		regulation: "45 CFR 164.308(a)(1)(ii)(D)",
	})
}

// checkRepeatedFailures raises at most one violation per window, at the first
// failure past the threshold.
func (d *Detector) checkRepeatedFailures(ctx context.Context, rec *audit.Record) {
	filter := audit.RecordFilter{
		TenantID:   rec.TenantID,
		Action:     audit.ActionLogin,
		FailedOnly: true,
		Start:      rec.CreatedAt.Add(-failedLoginWindow),
	}
	if !rec.ActorID.IsNil() {
		filter.ActorID = rec.ActorID
	}
	count, err := d.records.Count(ctx, filter)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed login count failed", "actor_id", rec.ActorID, "error", err)
		return
	}
	if count <= FailedLoginThreshold {
		return
	}
	d.escalate(ctx, rec, escalation{
		violationType: TypeMultipleFailedAttempts,
		severity:      audit.SeverityHigh,
		window:        failedLoginWindow,
		description: fmt.Sprintf("%d failed login attempts within %s (threshold %d)",
			count, failedLoginWindow, FailedLoginThreshold),
		regulation: "45 CFR 164.312(a)(2)(i)",
	})
}

// checkAfterHours flags PHI access outside the working window. This is a
// review item, not a breach, so no second record is written.
func (d *Detector) checkAfterHours(ctx context.Context, rec *audit.Record) {
	hour := rec.CreatedAt.UTC().Hour()
	if hour >= WorkdayStartHour && hour <= WorkdayEndHour {
		return
	}
	v := &audit.Violation{
		ID:                  id.NewViolationID(),
		TenantID:            rec.TenantID,
		RecordID:            rec.ID,
		Type:                TypeAfterHoursPHIAccess,
		Severity:            audit.SeverityLow,
		Description:         fmt.Sprintf("protected health record accessed at %02d:00 UTC, outside working hours", hour),
		RegulationReference: "45 CFR 164.312(b)",
		Status:              audit.ViolationOpen,
	}
	if err := d.violations.Create(ctx, v); err != nil {
		d.logger.ErrorContext(ctx, "violation create failed", "type", v.Type, "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.ViolationsRaised.Inc()
	}
}

type escalation struct {
	violationType string
	severity      audit.Severity
	window        time.Duration
	description   string
	regulation    string
}

// escalate writes a breach_detected record and an open violation pointing at
// it. A breach for the same actor and type within the detection window is
// raised at most once.
func (d *Detector) escalate(ctx context.Context, trigger *audit.Record, esc escalation) {
	existing, err := d.records.Count(ctx, audit.RecordFilter{
		TenantID:     trigger.TenantID,
		ActorID:      trigger.ActorID,
		Action:       audit.ActionBreachDetected,
		ResourceType: esc.violationType,
		Start:        trigger.CreatedAt.Add(-esc.window),
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "breach dedup count failed", "type", esc.violationType, "error", err)
		return
	}
	if existing > 0 {
		return
	}

	breachRec, err := d.escalator.Record(ctx, audit.Event{
		TenantID:     trigger.TenantID,
		ActorID:      trigger.ActorID,
		SessionID:    trigger.SessionID,
		RequestID:    trigger.RequestID,
		IPAddress:    trigger.IPAddress,
		UserAgent:    trigger.UserAgent,
		Action:       audit.ActionBreachDetected,
		ResourceType: esc.violationType,
		ResourceName: esc.description,
	})
	if err != nil || breachRec == nil {
		d.logger.ErrorContext(ctx, "breach record write failed", "type", esc.violationType, "error", err)
		return
	}

	v := &audit.Violation{
		ID:                  id.NewViolationID(),
		TenantID:            trigger.TenantID,
		RecordID:            breachRec.ID,
		Type:                esc.violationType,
		Severity:            esc.severity,
		Description:         esc.description,
		RegulationReference: esc.regulation,
		Status:              audit.ViolationOpen,
	}
	if err := d.violations.Create(ctx, v); err != nil {
		d.logger.ErrorContext(ctx, "violation create failed", "type", v.Type, "error", err)
		return
	}

	if d.metrics != nil {
		d.metrics.BreachesDetected.Inc()
		d.metrics.ViolationsRaised.Inc()
	}
	d.logger.WarnContext(ctx, "compliance breach detected",
		"type", esc.violationType,
		"severity", esc.severity,
		"tenant_id", trigger.TenantID,
		"actor_id", trigger.ActorID,
	)
}
