// Package alerts turns high-risk audit records into email notifications for
// the tenant's compliance contacts. Delivery is asynchronous and lossy by
// design: a failed send lands in the dead-letter buffer, never back on the
// request path.
package alerts

import (
	"context"
	"log/slog"
	"time"

	"starline/internal/audit"
	"starline/internal/platform/mail"
	id "starline/pkg/domain"
)

// Alert is one message addressed to one recipient. Fan-out happens before
// enqueueing so one bad address cannot block the others.
type Alert struct {
	Recipient string      `json:"recipient"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	RecordID  id.RecordID `json:"record_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// SettingsSource resolves the effective audit settings for a tenant.
type SettingsSource interface {
	Get(ctx context.Context, tenantID id.TenantID) (*audit.Settings, error)
}

// Dispatcher consumes persisted audit records and sends alert email.
type Dispatcher struct {
	settings SettingsSource
	mailer   mail.Mailer

	queue      chan Alert
	deadLetter *deadLetterBuffer
	workers    int
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithWorkers sets the number of concurrent senders.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the pending alert queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Alert, n)
		}
	}
}

// WithDeadLetterCapacity bounds the dead-letter buffer.
func WithDeadLetterCapacity(n int) Option {
	return func(d *Dispatcher) { d.deadLetter = newDeadLetterBuffer(n) }
}

// New creates a Dispatcher.
func New(settings SettingsSource, mailer mail.Mailer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		settings:   settings,
		mailer:     mailer,
		queue:      make(chan Alert, 256),
		deadLetter: newDeadLetterBuffer(1000),
		workers:    2,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Consume inspects one persisted record and enqueues alerts per the tenant's
// alert settings.
func (d *Dispatcher) Consume(ctx context.Context, rec *audit.Record) {
	if rec.TenantID.IsNil() {
		return
	}
	cfg, err := d.settings.Get(ctx, rec.TenantID)
	if err != nil {
		d.logger.WarnContext(ctx, "alert settings lookup failed",
			"tenant_id", rec.TenantID,
			"error", err,
		)
		return
	}
	if len(cfg.AlertRecipients) == 0 {
		return
	}

	var subject, body string
	switch {
	// Breach notifications cannot be opted out of.
	case rec.Action == audit.ActionBreachDetected:
		subject, body = breachMessage(rec)
	case rec.Action == audit.ActionLogin && rec.Failed() && cfg.AlertOnFailedLogin:
		subject, body = failedLoginMessage(rec)
	case rec.PHIAccessed && cfg.AlertOnPHIAccess:
		subject, body = phiAccessMessage(rec)
	default:
		return
	}

	now := time.Now().UTC()
	for _, recipient := range cfg.AlertRecipients {
		d.enqueue(ctx, Alert{
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
			RecordID:  rec.ID,
			CreatedAt: now,
		})
	}
}

// Run sends queued alerts until the context ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	done := make(chan struct{})
	for range d.workers {
		go func() {
			defer func() { done <- struct{}{} }()
			d.worker(ctx)
		}()
	}
	for range d.workers {
		<-done
	}
	return ctx.Err()
}

// DeadLetters returns the undeliverable alerts currently buffered, oldest
// first.
func (d *Dispatcher) DeadLetters() []DeadLetter {
	return d.deadLetter.Snapshot()
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			d.send(ctx, alert)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, alert Alert) {
	if err := d.mailer.Send(ctx, alert.Recipient, alert.Subject, alert.Body); err != nil {
		d.deadLetter.Add(DeadLetter{
			Alert:    alert,
			Reason:   err.Error(),
			FailedAt: time.Now().UTC(),
		})
		if d.metrics != nil {
			d.metrics.Failed.Inc()
		}
		d.logger.ErrorContext(ctx, "alert delivery failed",
			"recipient", alert.Recipient,
			"record_id", alert.RecordID,
			"error", err,
		)
		return
	}
	if d.metrics != nil {
		d.metrics.Sent.Inc()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, alert Alert) {
	select {
	case d.queue <- alert:
	default:
		d.deadLetter.Add(DeadLetter{
			Alert:    alert,
			Reason:   "alert queue full",
			FailedAt: time.Now().UTC(),
		})
		if d.metrics != nil {
			d.metrics.QueueDropped.Inc()
		}
		d.logger.WarnContext(ctx, "alert queue full, dead-lettering",
			"recipient", alert.Recipient,
		)
	}
}
