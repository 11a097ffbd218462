// Package export produces bulk extractions of the audit trail. Requests are
// validated synchronously, audited, and fulfilled by a background job that
// writes the artifact to blob storage.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"starline/internal/audit"
	exportstore "starline/internal/audit/store/export"
	"starline/internal/audit/store/record"
	"starline/internal/platform/blob"
	id "starline/pkg/domain"
	dErrors "starline/pkg/domain-errors"
)

const (
	// MaxRecords caps one export. Bigger windows must be split by the
	// caller.
	MaxRecords = 50000

	pageSize = 1000
)

// Auditor records the export request itself on the audit trail. Satisfied by
// the recorder.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) (*audit.Record, error)
}

// Request carries the parameters of one export.
type Request struct {
	TenantID    id.TenantID
	RequestedBy id.ActorID
	Format      string
	DateFrom    time.Time
	DateTo      time.Time
	Filters     audit.ExportFilters

	Purpose      string
	AuthorizedBy string
	AuditRef     string
}

// Service validates, schedules, and serves exports.
type Service struct {
	exports exportstore.Store
	records record.Store
	blobs   blob.Store
	auditor Auditor

	jobs   chan id.ExportID
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditor records export requests on the audit trail.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithQueueSize sets the pending job queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobs = make(chan id.ExportID, n)
		}
	}
}

// New creates an export Service.
func New(exports exportstore.Store, records record.Store, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		exports: exports,
		records: records,
		blobs:   blobs,
		jobs:    make(chan id.ExportID, 64),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, persists it in the requested state, audits
// it, and queues the background job.
func (s *Service) Submit(ctx context.Context, req Request) (*audit.Export, error) {
	format, ok := audit.ParseExportFormat(req.Format)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnsupported, fmt.Sprintf("export format %q is not supported", req.Format))
	}
	if req.TenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if req.RequestedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "requesting actor is required")
	}
	if req.DateFrom.IsZero() || req.DateTo.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "export date range is required")
	}
	if req.DateTo.Before(req.DateFrom) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "export date range end precedes start")
	}
	if req.Purpose == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "export purpose is required")
	}

	e := &audit.Export{
		ID:           id.NewExportID(),
		TenantID:     req.TenantID,
		RequestedBy:  req.RequestedBy,
		Format:       format,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		Filters:      req.Filters,
		Purpose:      req.Purpose,
		AuthorizedBy: req.AuthorizedBy,
		AuditRef:     req.AuditRef,
		Status:       audit.ExportRequested,
	}
	if err := s.exports.Create(ctx, e); err != nil {
		return nil, err
	}

	if s.auditor != nil {
		_, err := s.auditor.Record(ctx, audit.Event{
			TenantID:     req.TenantID,
			ActorID:      req.RequestedBy,
			Action:       audit.ActionExport,
			ResourceType: "audit_export",
			ResourceName: fmt.Sprintf("%s export, %s to %s", format,
				req.DateFrom.Format("2006-01-02"), req.DateTo.Format("2006-01-02")),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "export request audit failed", "export_id", e.ID, "error", err)
		}
	}

	select {
	case s.jobs <- e.ID:
	default:
		// Queue full; fulfill out of band so the request is not lost.
		go s.run(context.WithoutCancel(ctx), e.ID)
	}
	return e, nil
}

// Status returns the export row.
func (s *Service) Status(ctx context.Context, tenantID id.TenantID, exportID id.ExportID) (*audit.Export, error) {
	return s.exports.Get(ctx, tenantID, exportID)
}

// Download opens the artifact for a completed, unexpired export.
func (s *Service) Download(ctx context.Context, tenantID id.TenantID, exportID id.ExportID) (io.ReadCloser, *audit.Export, error) {
	e, err := s.exports.Get(ctx, tenantID, exportID)
	if err != nil {
		return nil, nil, err
	}
	switch e.Status {
	case audit.ExportRequested:
		return nil, nil, dErrors.New(dErrors.CodeConflict, "export is still being produced")
	case audit.ExportFailed:
		return nil, nil, dErrors.New(dErrors.CodeGone, "export failed and has no artifact")
	}
	if e.Expired(time.Now()) {
		return nil, nil, dErrors.New(dErrors.CodeGone, "export artifact has expired")
	}

	rc, err := s.blobs.Open(ctx, e.FilePath)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeGone, "export artifact is no longer available", err)
	}
	return rc, e, nil
}

// Run fulfills queued exports until the context ends.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case exportID := <-s.jobs:
			s.run(ctx, exportID)
		}
	}
}

// CleanupExpired deletes artifacts whose retention window has passed.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := s.exports.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range expired {
		if e.FilePath == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, e.FilePath); err != nil {
			s.logger.WarnContext(ctx, "export artifact delete failed", "export_id", e.ID, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Service) run(ctx context.Context, exportID id.ExportID) {
	e, err := s.exports.GetByID(ctx, exportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "export job lookup failed", "export_id", exportID, "error", err)
		return
	}
	if e.Status != audit.ExportRequested {
		return
	}

	artifact, err := s.produce(ctx, e)
	if err != nil {
		s.logger.ErrorContext(ctx, "export production failed", "export_id", e.ID, "error", err)
		if markErr := s.exports.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
			s.logger.ErrorContext(ctx, "export failure mark failed", "export_id", e.ID, "error", markErr)
		}
		return
	}
	if err := s.exports.MarkCompleted(ctx, e.ID, artifact); err != nil {
		s.logger.ErrorContext(ctx, "export completion mark failed", "export_id", e.ID, "error", err)
	}
}

func (s *Service) produce(ctx context.Context, e *audit.Export) (exportstore.Artifact, error) {
	records, err := s.collect(ctx, e)
	if err != nil {
		return exportstore.Artifact{}, err
	}

	var (
		body io.Reader
		name string
	)
	switch e.Format {
	case audit.ExportCSV:
		body, err = encodeCSV(records)
		name = fmt.Sprintf("exports/%s/%s.csv", e.TenantID, e.ID)
	case audit.ExportJSON:
		body, err = encodeJSON(records)
		name = fmt.Sprintf("exports/%s/%s.json", e.TenantID, e.ID)
	default:
		return exportstore.Artifact{}, fmt.Errorf("unsupported format %q", e.Format)
	}
	if err != nil {
		return exportstore.Artifact{}, err
	}

	size, err := s.blobs.Put(ctx, name, body)
	if err != nil {
		return exportstore.Artifact{}, fmt.Errorf("store artifact: %w", err)
	}
	return exportstore.Artifact{
		FilePath:    name,
		FileSize:    size,
		RecordCount: len(records),
		ExpiresAt:   time.Now().UTC().Add(audit.ExportArtifactTTL),
	}, nil
}

func (s *Service) collect(ctx context.Context, e *audit.Export) ([]*audit.Record, error) {
	filter := audit.RecordFilter{
		TenantID:     e.TenantID,
		ActorID:      e.Filters.ActorID,
		ResourceType: e.Filters.ResourceType,
		PHIOnly:      e.Filters.PHIOnly,
		Start:        e.DateFrom,
		End:          e.DateTo,
		Limit:        pageSize,
	}

	var all []*audit.Record
	for offset := 0; ; offset += pageSize {
		filter.Offset = offset
		page, total, err := s.records.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("collect records: %w", err)
		}
		if total > MaxRecords {
			return nil, fmt.Errorf("export matches %d records, limit is %d; narrow the date range", total, MaxRecords)
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			return all, nil
		}
	}
}
