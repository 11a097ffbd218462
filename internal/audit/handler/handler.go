// Package handler exposes the audit engine's HTTP surface: the query API for
// compliance officers, violation triage, settings, and exports.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"starline/internal/audit"
	"starline/internal/audit/alerts"
	"starline/internal/audit/export"
	exportstore "starline/internal/audit/store/export"
	"starline/internal/audit/store/record"
	"starline/internal/audit/store/violation"
	id "starline/pkg/domain"
	dErrors "starline/pkg/domain-errors"
	"starline/pkg/platform/httputil"
	"starline/pkg/requestcontext"
)

// RecordSource reads persisted audit records.
type RecordSource interface {
	Get(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*audit.Record, error)
	List(ctx context.Context, filter audit.RecordFilter) ([]*audit.Record, int, error)
}

// ViolationSource reads and transitions compliance violations.
type ViolationSource interface {
	List(ctx context.Context, filter audit.ViolationFilter) ([]*audit.Violation, error)
	Resolve(ctx context.Context, tenantID id.TenantID, violationID id.ViolationID, res violation.Resolution) (*audit.Violation, error)
}

// SettingsService reads and updates tenant audit settings.
type SettingsService interface {
	Get(ctx context.Context, tenantID id.TenantID) (*audit.Settings, error)
	Update(ctx context.Context, tenantID id.TenantID, update audit.SettingsUpdate) (*audit.Settings, error)
}

// Reporter assembles compliance reports.
type Reporter interface {
	Generate(ctx context.Context, tenantID id.TenantID, start, end time.Time) (*audit.Report, error)
}

// Exporter schedules and serves bulk exports.
type Exporter interface {
	Submit(ctx context.Context, req export.Request) (*audit.Export, error)
	Status(ctx context.Context, tenantID id.TenantID, exportID id.ExportID) (*audit.Export, error)
	Download(ctx context.Context, tenantID id.TenantID, exportID id.ExportID) (io.ReadCloser, *audit.Export, error)
}

// DeadLetterSource exposes alerts that could not be delivered.
type DeadLetterSource interface {
	DeadLetters() []alerts.DeadLetter
}

// Handler wires audit endpoints to the audit services.
type Handler struct {
	records     RecordSource
	violations  ViolationSource
	settings    SettingsService
	reporter    Reporter
	exporter    Exporter
	deadLetters DeadLetterSource
	logger      *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(records RecordSource, violations ViolationSource, settings SettingsService, reporter Reporter, exporter Exporter, deadLetters DeadLetterSource, logger *slog.Logger) *Handler {
	return &Handler{
		records:     records,
		violations:  violations,
		settings:    settings,
		reporter:    reporter,
		exporter:    exporter,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/logs", h.HandleListLogs)
	r.Get("/audit/logs/{id}", h.HandleGetLog)
	r.Get("/audit/users/{id}/activity", h.HandleUserActivity)
	r.Get("/audit/resources/{type}/{id}/history", h.HandleResourceHistory)
	r.Get("/audit/phi-access", h.HandlePHIAccess)
	r.Get("/audit/compliance/report", h.HandleComplianceReport)
	r.Get("/audit/violations", h.HandleListViolations)
	r.Post("/audit/violations/{id}/acknowledge", h.HandleAcknowledgeViolation)
	r.Get("/audit/settings", h.HandleGetSettings)
	r.Put("/audit/settings", h.HandleUpdateSettings)
	r.Post("/audit/exports", h.HandleCreateExport)
	r.Get("/audit/exports/{id}/status", h.HandleExportStatus)
	r.Get("/audit/exports/{id}/download", h.HandleExportDownload)
	r.Get("/audit/alerts/dead-letter", h.HandleDeadLetters)
}

// tenant extracts the authenticated tenant or writes a 401.
func (h *Handler) tenant(w http.ResponseWriter, ctx context.Context) (id.TenantID, bool) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return tenantID, false
	}
	return tenantID, true
}

// HandleListLogs handles GET /audit/logs requests.
func (h *Handler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	filter, err := filterFromQuery(r, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.listRecords(w, r, filter)
}

// HandleGetLog handles GET /audit/logs/{id} requests.
func (h *Handler) HandleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "record id is not a valid uuid"))
		return
	}

	rec, err := h.records.Get(ctx, tenantID, recordID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit record not found"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to load audit record", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleUserActivity handles GET /audit/users/{id}/activity requests.
func (h *Handler) HandleUserActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	actorID, err := id.ParseActorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "user id is not a valid uuid"))
		return
	}

	filter, err := filterFromQuery(r, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter.ActorID = actorID

	h.listRecords(w, r, filter)
}

// HandleResourceHistory handles GET /audit/resources/{type}/{id}/history requests.
func (h *Handler) HandleResourceHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	resourceID, err := id.ParseResourceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "resource id is not a valid uuid"))
		return
	}

	filter, err := filterFromQuery(r, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter.ResourceType = chi.URLParam(r, "type")
	filter.ResourceID = resourceID

	h.listRecords(w, r, filter)
}

// HandlePHIAccess handles GET /audit/phi-access requests.
func (h *Handler) HandlePHIAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	filter, err := filterFromQuery(r, tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter.PHIOnly = true

	h.listRecords(w, r, filter)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request, filter audit.RecordFilter) {
	ctx := r.Context()
	filter.Normalize()

	records, total, err := h.records.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit records",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to list audit records", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(records, total, filter))
}

// HandleComplianceReport handles GET /audit/compliance/report requests.
func (h *Handler) HandleComplianceReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	start, err := timeParam(r, "start")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	end, err := timeParam(r, "end")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.reporter.Generate(ctx, tenantID, start, end)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleListViolations handles GET /audit/violations requests.
func (h *Handler) HandleListViolations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	filter := audit.ViolationFilter{
		TenantID: tenantID,
		Status:   audit.ViolationStatus(r.URL.Query().Get("status")),
		Severity: audit.Severity(r.URL.Query().Get("severity")),
	}
	filter.Normalize()

	violations, err := h.violations.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list violations",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to list violations", err))
		return
	}

	out := make([]ViolationResponse, 0, len(violations))
	for _, v := range violations {
		out = append(out, FromViolation(v))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"violations": out})
}

// HandleAcknowledgeViolation handles POST /audit/violations/{id}/acknowledge requests.
func (h *Handler) HandleAcknowledgeViolation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	violationID, err := id.ParseViolationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "violation id is not a valid uuid"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[AcknowledgeViolationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	resolved, err := h.violations.Resolve(ctx, tenantID, violationID, violation.Resolution{
		Status:           req.ParsedStatus(),
		By:               requestcontext.ActorID(ctx),
		Notes:            req.ResolutionNotes,
		CorrectiveAction: req.CorrectiveAction,
	})
	if err != nil {
		switch {
		case errors.Is(err, violation.ErrAlreadyResolved):
			httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "violation has already been resolved"))
		case errors.Is(err, violation.ErrNotFound):
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "violation not found"))
		default:
			h.logger.ErrorContext(ctx, "failed to acknowledge violation",
				"request_id", requestID,
				"violation_id", violationID,
				"error", err,
			)
			httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to acknowledge violation", err))
		}
		return
	}

	h.logger.InfoContext(ctx, "violation acknowledged",
		"request_id", requestID,
		"violation_id", violationID,
		"status", string(resolved.Status),
	)
	httputil.WriteJSON(w, http.StatusOK, FromViolation(resolved))
}

// HandleGetSettings handles GET /audit/settings requests.
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	cfg, err := h.settings.Get(ctx, tenantID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to load audit settings", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSettings(cfg))
}

// HandleUpdateSettings handles PUT /audit/settings requests.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateSettingsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cfg, err := h.settings.Update(ctx, tenantID, req.SettingsUpdate)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update audit settings",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to update audit settings", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSettings(cfg))
}

// HandleCreateExport handles POST /audit/exports requests.
func (h *Handler) HandleCreateExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateExportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	domainReq := export.Request{
		TenantID:     tenantID,
		RequestedBy:  requestcontext.ActorID(ctx),
		Format:       req.Format,
		DateFrom:     req.DateFrom,
		DateTo:       req.DateTo,
		Purpose:      req.Purpose,
		AuthorizedBy: req.AuthorizedBy,
		AuditRef:     req.AuditRef,
	}
	if req.Filters.ActorID != "" {
		actorID, err := id.ParseActorID(req.Filters.ActorID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "filters.actor_id is not a valid uuid"))
			return
		}
		domainReq.Filters.ActorID = actorID
	}
	domainReq.Filters.ResourceType = req.Filters.ResourceType
	domainReq.Filters.PHIOnly = req.Filters.PHIOnly

	e, err := h.exporter.Submit(ctx, domainReq)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "export requested",
		"request_id", requestID,
		"export_id", e.ID,
		"format", string(e.Format),
	)
	httputil.WriteJSON(w, http.StatusAccepted, FromExport(e))
}

// HandleExportStatus handles GET /audit/exports/{id}/status requests.
func (h *Handler) HandleExportStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	exportID, err := id.ParseExportID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "export id is not a valid uuid"))
		return
	}

	e, err := h.exporter.Status(ctx, tenantID, exportID)
	if err != nil {
		if errors.Is(err, exportstore.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "export not found"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "failed to load export", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromExport(e))
}

// HandleExportDownload handles GET /audit/exports/{id}/download requests.
func (h *Handler) HandleExportDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenant(w, ctx)
	if !ok {
		return
	}

	exportID, err := id.ParseExportID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "export id is not a valid uuid"))
		return
	}

	body, e, err := h.exporter.Download(ctx, tenantID, exportID)
	if err != nil {
		if errors.Is(err, exportstore.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "export not found"))
			return
		}
		httputil.WriteError(w, err)
		return
	}
	defer body.Close()

	contentType := "application/json"
	ext := "json"
	if e.Format == audit.ExportCSV {
		contentType = "text/csv"
		ext = "csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-export-"+e.ID.String()+"."+ext))
	if e.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(e.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.ErrorContext(ctx, "failed to stream export artifact",
			"export_id", exportID,
			"error", err,
		)
	}
}

// HandleDeadLetters handles GET /audit/alerts/dead-letter requests.
func (h *Handler) HandleDeadLetters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.tenant(w, ctx); !ok {
		return
	}

	letters := h.deadLetters.DeadLetters()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": letters,
		"count":  len(letters),
	})
}

// filterFromQuery builds a record filter from common query parameters.
func filterFromQuery(r *http.Request, tenantID id.TenantID) (audit.RecordFilter, error) {
	q := r.URL.Query()
	filter := audit.RecordFilter{
		TenantID:     tenantID,
		ResourceType: q.Get("resource_type"),
	}

	if raw := q.Get("actor_id"); raw != "" {
		actorID, err := id.ParseActorID(raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "actor_id is not a valid uuid")
		}
		filter.ActorID = actorID
	}
	if raw := q.Get("action"); raw != "" {
		action, ok := audit.ParseAction(raw)
		if !ok {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "unknown action")
		}
		filter.Action = action
	}
	if raw := q.Get("classification"); raw != "" {
		classification, ok := audit.ParseClassification(raw)
		if !ok {
			return filter, dErrors.New(dErrors.CodeInvalidInput, "unknown classification")
		}
		filter.Classification = classification
	}
	if q.Get("phi_only") == "true" {
		filter.PHIOnly = true
	}
	if q.Get("failed_only") == "true" {
		filter.FailedOnly = true
	}

	var err error
	if filter.Start, err = optionalTimeParam(r, "start"); err != nil {
		return filter, err
	}
	if filter.End, err = optionalTimeParam(r, "end"); err != nil {
		return filter, err
	}
	filter.Limit = intParam(r, "limit")
	filter.Offset = intParam(r, "offset")
	return filter, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, name+" is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, name+" must be an RFC 3339 timestamp")
	}
	return t, nil
}

func optionalTimeParam(r *http.Request, name string) (time.Time, error) {
	if r.URL.Query().Get(name) == "" {
		return time.Time{}, nil
	}
	return timeParam(r, name)
}

func intParam(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
