package record

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"starline/internal/audit"
	id "starline/pkg/domain"
)

// InMemoryStore keeps records in a slice. Used in tests and single-node
// development runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *InMemoryStore) Insert(_ context.Context, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
		rec.CreatedAt = stored.CreatedAt
	}
	s.records = append(s.records, &stored)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, recordID id.RecordID) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == recordID && rec.TenantID == tenantID {
			out := *rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, filter audit.RecordFilter) ([]*audit.Record, int, error) {
	filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*audit.Record
	for _, rec := range s.records {
		if matches(rec, filter) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}

	page := make([]*audit.Record, 0, end-start)
	for _, rec := range matched[start:end] {
		out := *rec
		page = append(page, &out)
	}
	return page, total, nil
}

func (s *InMemoryStore) Count(_ context.Context, filter audit.RecordFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if matches(rec, filter) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) Totals(_ context.Context, tenantID id.TenantID, start, end time.Time) (*audit.RecordTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := &audit.RecordTotals{
		ByAction:         make(map[audit.Action]int),
		ByClassification: make(map[audit.Classification]int),
	}
	actors := make(map[id.ActorID]struct{})

	for _, rec := range s.records {
		if rec.TenantID != tenantID {
			continue
		}
		if rec.CreatedAt.Before(start) || rec.CreatedAt.After(end) {
			continue
		}
		totals.TotalEvents++
		totals.ByAction[rec.Action]++
		totals.ByClassification[rec.Classification]++
		if rec.PHIAccessed {
			totals.PHIAccessCount++
		}
		if rec.Failed() {
			totals.FailedEventCount++
		}
		if !rec.ActorID.IsNil() {
			actors[rec.ActorID] = struct{}{}
		}
	}
	totals.UniqueActors = len(actors)
	return totals, nil
}

func (s *InMemoryStore) ActivityByActor(_ context.Context, tenantID id.TenantID, start, end time.Time) ([]audit.ActorActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byActor := make(map[id.ActorID]*audit.ActorActivity)
	for _, rec := range s.records {
		if rec.TenantID != tenantID || rec.ActorID.IsNil() {
			continue
		}
		if rec.CreatedAt.Before(start) || rec.CreatedAt.After(end) {
			continue
		}
		entry, ok := byActor[rec.ActorID]
		if !ok {
			entry = &audit.ActorActivity{ActorID: rec.ActorID}
			byActor[rec.ActorID] = entry
		}
		entry.EventCount++
		if rec.PHIAccessed {
			entry.PHIAccessCount++
		}
	}

	out := make([]audit.ActorActivity, 0, len(byActor))
	for _, entry := range byActor {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventCount != out[j].EventCount {
			return out[i].EventCount > out[j].EventCount
		}
		return out[i].ActorID.String() < out[j].ActorID.String()
	})
	return out, nil
}

func (s *InMemoryStore) DeleteOlderThan(_ context.Context, tenantID id.TenantID, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*audit.Record
	var removed int64
	for _, rec := range s.records {
		if rec.TenantID == tenantID && rec.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

func matches(rec *audit.Record, f audit.RecordFilter) bool {
	if !f.TenantID.IsNil() && rec.TenantID != f.TenantID {
		return false
	}
	if !f.ActorID.IsNil() && rec.ActorID != f.ActorID {
		return false
	}
	if f.ResourceType != "" && !strings.EqualFold(rec.ResourceType, f.ResourceType) {
		return false
	}
	if !f.ResourceID.IsNil() && rec.ResourceID != f.ResourceID {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if f.Classification != "" && rec.Classification != f.Classification {
		return false
	}
	if f.PHIOnly && !rec.PHIAccessed {
		return false
	}
	if f.FailedOnly && !rec.Failed() {
		return false
	}
	if !f.Start.IsZero() && rec.CreatedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && rec.CreatedAt.After(f.End) {
		return false
	}
	return true
}
