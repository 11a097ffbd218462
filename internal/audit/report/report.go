// Package report assembles compliance summaries. All counting happens in the
// stores; this service only validates the window and stitches the store
// aggregates together.
package report

import (
	"context"
	"time"

	"starline/internal/audit"
	"starline/internal/audit/store/record"
	"starline/internal/audit/store/violation"
	id "starline/pkg/domain"
	dErrors "starline/pkg/domain-errors"
)

// Service generates compliance reports.
type Service struct {
	records    record.Store
	violations violation.Store
}

// New creates a report Service.
func New(records record.Store, violations violation.Store) *Service {
	return &Service{records: records, violations: violations}
}

// Generate builds a report for the tenant over [start, end].
func (s *Service) Generate(ctx context.Context, tenantID id.TenantID, start, end time.Time) (*audit.Report, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if start.IsZero() || end.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "report period is required")
	}
	if end.Before(start) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "report period end precedes start")
	}

	totals, err := s.records.Totals(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	activity, err := s.records.ActivityByActor(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	detected, err := s.violations.List(ctx, audit.ViolationFilter{
		TenantID: tenantID,
		Start:    start,
		End:      end,
		Limit:    1000,
	})
	if err != nil {
		return nil, err
	}

	open := 0
	bySeverity := make(map[audit.Severity]int)
	summaries := make([]audit.ReportViolation, 0, len(detected))
	for _, v := range detected {
		bySeverity[v.Severity]++
		if v.Status == audit.ViolationOpen {
			open++
		}
		summaries = append(summaries, audit.ReportViolation{
			ID:          v.ID,
			Type:        v.Type,
			Severity:    v.Severity,
			Status:      v.Status,
			Description: v.Description,
			DetectedAt:  v.DetectedAt,
		})
	}

	return &audit.Report{
		TenantID:             tenantID,
		PeriodStart:          start,
		PeriodEnd:            end,
		GeneratedAt:          time.Now().UTC(),
		TotalEvents:          totals.TotalEvents,
		ByAction:             totals.ByAction,
		ByClassification:     totals.ByClassification,
		PHIAccessCount:       totals.PHIAccessCount,
		FailedEventCount:     totals.FailedEventCount,
		UniqueActors:         totals.UniqueActors,
		ActorActivity:        activity,
		OpenViolations:       open,
		ViolationsBySeverity: bySeverity,
		Violations:           summaries,
	}, nil
}
