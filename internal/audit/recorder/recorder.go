// Package recorder is the single entry point of the audit pipeline. Every
// capture path hands its raw event here; the recorder decides whether to log
// it, classifies and redacts it, persists it, and fans it out to the
// downstream sinks.
package recorder

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"

	"starline/internal/audit"
	"starline/internal/audit/classify"
	"starline/internal/audit/consent"
	"starline/internal/audit/store/record"
	id "starline/pkg/domain"
	dErrors "starline/pkg/domain-errors"
)

// SettingsSource resolves the effective audit settings for a tenant.
type SettingsSource interface {
	Get(ctx context.Context, tenantID id.TenantID) (*audit.Settings, error)
}

// Sink receives persisted records for downstream processing. Consume must
// not block for long; slow sinks should buffer internally.
type Sink interface {
	Consume(ctx context.Context, rec *audit.Record)
}

// Recorder implements the audit decision pipeline.
type Recorder struct {
	records  record.Store
	settings SettingsSource
	consent  consent.Verifier
	sinks    []Sink

	queue   chan *audit.Record
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithTracer sets the tracer used to span the persistence path.
func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) { r.tracer = t }
}

// WithConsentVerifier replaces the default allow-all verifier.
func WithConsentVerifier(v consent.Verifier) Option {
	return func(r *Recorder) { r.consent = v }
}

// WithSinks registers the downstream consumers of persisted records.
func WithSinks(sinks ...Sink) Option {
	return func(r *Recorder) { r.sinks = sinks }
}

// AttachSinks registers downstream consumers after construction. The breach
// detector consumes records and escalates back through the recorder, so one
// side of that pair has to be wired late. Must be called before Run.
func (r *Recorder) AttachSinks(sinks ...Sink) {
	r.sinks = append(r.sinks, sinks...)
}

// WithQueueSize sets the post-persist queue capacity.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan *audit.Record, n)
		}
	}
}

// New creates a Recorder backed by the given record store and settings source.
func New(records record.Store, settings SettingsSource, opts ...Option) *Recorder {
	r := &Recorder{
		records:  records,
		settings: settings,
		consent:  consent.AllowAll{},
		queue:    make(chan *audit.Record, 1024),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record runs one event through the pipeline. It returns the built record, or
// nil when the event was skipped by settings or sampling. When the tenant has
// async logging enabled, persistence and the sink fan-out run on a background
// goroutine and the caller never waits on the store.
//
// Persistence failures are logged and swallowed: an audit outage must never
// fail the business operation that produced the event. The only errors
// returned are validation errors on the event itself.
func (r *Recorder) Record(ctx context.Context, ev audit.Event) (*audit.Record, error) {
	if _, ok := audit.ParseAction(string(ev.Action)); !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown audit action")
	}
	if ev.ResourceType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "resource type is required")
	}

	cfg := r.settingsFor(ctx, ev.TenantID)
	classification := classify.Classify(ev.ResourceType)
	phi := classification == audit.ClassificationPHI

	// Writes, security events, and PHI touches are always recorded. Only
	// the rest is subject to the tenant's logging toggles and sampling.
	mandatory := ev.Action.IsWrite() || ev.Action.IsSecurity() || phi
	if !mandatory {
		if ev.Action == audit.ActionRead && !cfg.LogReadOperations {
			r.skip()
			return nil, nil
		}
		if classification == audit.ClassificationAdministrative && !cfg.LogAdminActions {
			r.skip()
			return nil, nil
		}
		if cfg.SamplingRate < 100 && rand.Intn(100) >= cfg.SamplingRate { //nolint:gosec // sampling doesn't need crypto rand
			if r.metrics != nil {
				r.metrics.Sampled.Inc()
			}
			return nil, nil
		}
	}

	rec := r.build(ev, classification, phi, cfg)

	if phi && cfg.VerifyConsent && classify.ConsentRequired(ev.ResourceType) {
		verified, err := r.consent.Verify(ctx, ev.TenantID, ev.ResourceType, ev.ResourceID.String())
		if err != nil {
			r.logger.WarnContext(ctx, "consent verification failed",
				"tenant_id", ev.TenantID,
				"resource_type", ev.ResourceType,
				"error", err,
			)
			verified = false
		}
		rec.ConsentVerified = verified
	}

	if cfg.EnableAsyncLogging {
		// The record still has to land if the request is cancelled.
		go r.commit(context.WithoutCancel(ctx), rec)
		return rec, nil
	}
	if !r.commit(ctx, rec) {
		return nil, nil
	}
	return rec, nil
}

// commit persists the record and hands it to the sink queue, reporting
// whether the record landed.
func (r *Recorder) commit(ctx context.Context, rec *audit.Record) bool {
	if err := r.persist(ctx, rec); err != nil {
		if r.metrics != nil {
			r.metrics.PersistFailures.Inc()
		}
		r.logger.ErrorContext(ctx, "audit record persistence failed",
			"tenant_id", rec.TenantID,
			"action", rec.Action,
			"resource_type", rec.ResourceType,
			"error", err,
		)
		return false
	}

	if r.metrics != nil {
		r.metrics.Recorded.Inc()
	}
	r.enqueue(ctx, rec)
	return true
}

// Run fans persisted records out to the sinks until the context ends.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-r.queue:
			for _, sink := range r.sinks {
				sink.Consume(ctx, rec)
			}
		}
	}
}

func (r *Recorder) build(ev audit.Event, classification audit.Classification, phi bool, cfg *audit.Settings) *audit.Record {
	prior := ev.PriorState
	next := ev.NewState
	if cfg.MaskSensitiveData {
		prior = classify.MaskValues(prior)
		next = classify.MaskValues(next)
	}

	return &audit.Record{
		ID:             id.NewRecordID(),
		TenantID:       ev.TenantID,
		ActorID:        ev.ActorID,
		SessionID:      ev.SessionID,
		RequestID:      ev.RequestID,
		IPAddress:      ev.IPAddress,
		UserAgent:      ev.UserAgent,
		Method:         ev.Method,
		Endpoint:       ev.Endpoint,
		Action:         ev.Action,
		ResourceType:   ev.ResourceType,
		ResourceID:     ev.ResourceID,
		ResourceName:   ev.ResourceName,
		PriorState:     prior,
		NewState:       next,
		ChangesSummary: classify.Summarize(ev.Action, prior, next),
		Classification: classification,
		PHIAccessed:    phi,
		// Verified until a consent check runs and fails; absence of a check
		// is not a finding.
		ConsentVerified: true,
		ResponseStatus:  ev.ResponseStatus,
		ErrorMessage:    ev.ErrorMessage,
		DurationMS:      ev.DurationMS,
	}
}

func (r *Recorder) persist(ctx context.Context, rec *audit.Record) error {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "audit.persist")
		defer span.End()
	}
	start := time.Now()
	err := r.records.Insert(ctx, rec)
	if err == nil && r.metrics != nil {
		r.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (r *Recorder) settingsFor(ctx context.Context, tenantID id.TenantID) *audit.Settings {
	if tenantID.IsNil() || r.settings == nil {
		return audit.DefaultSettings(tenantID)
	}
	cfg, err := r.settings.Get(ctx, tenantID)
	if err != nil {
		r.logger.WarnContext(ctx, "audit settings lookup failed, using defaults",
			"tenant_id", tenantID,
			"error", err,
		)
		return audit.DefaultSettings(tenantID)
	}
	return cfg
}

func (r *Recorder) enqueue(ctx context.Context, rec *audit.Record) {
	select {
	case r.queue <- rec:
	default:
		if r.metrics != nil {
			r.metrics.QueueDropped.Inc()
		}
		r.logger.WarnContext(ctx, "audit sink queue full, dropping record",
			"record_id", rec.ID,
		)
	}
}

func (r *Recorder) skip() {
	if r.metrics != nil {
		r.metrics.Skipped.Inc()
	}
}
