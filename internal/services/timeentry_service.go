package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
	"fatture/internal/storage"
)

// TimeEntryService manages manual entries and the start/stop timer pair.
type TimeEntryService struct {
	storage *storage.SQLiteRepository
	now     core.Clock
}

func NewTimeEntryService(st *storage.SQLiteRepository, clock core.Clock) *TimeEntryService {
	if clock == nil {
		clock = time.Now
	}
	return &TimeEntryService{storage: st, now: clock}
}

// CreateEntry records a manual time entry.
func (s *TimeEntryService) CreateEntry(ctx context.Context, e core.TimeEntry) (int64, error) {
	if e.DurationMinutes < 0 {
		return 0, fmt.Errorf("%w: negative duration", core.ErrInvalidInput)
	}
	if e.HourlyRate != nil && e.HourlyRate.IsNegative() {
		return 0, fmt.Errorf("%w: negative hourly rate", core.ErrInvalidInput)
	}
	if e.Day.IsEmpty() {
		e.Day = core.DateOf(s.now())
	}
	e.Status = core.BillingUnbilled
	return s.storage.CreateTimeEntry(ctx, e, nil)
}

// StartTimer opens a running entry for the project. Duration stays zero
// until the matching StopTimer call.
func (s *TimeEntryService) StartTimer(ctx context.Context, projectID int64, note string, hourlyRate *decimal.Decimal) (int64, error) {
	if hourlyRate != nil && hourlyRate.IsNegative() {
		return 0, fmt.Errorf("%w: negative hourly rate", core.ErrInvalidInput)
	}
	now := s.now()
	e := core.TimeEntry{
		ProjectID:  projectID,
		Note:       note,
		Day:        core.DateOf(now),
		HourlyRate: hourlyRate,
		Status:     core.BillingUnbilled,
	}
	return s.storage.CreateTimeEntry(ctx, e, &now)
}

// StopTimer closes a running entry, recording whole elapsed minutes
// (rounded up, so sub-minute work never bills as zero).
func (s *TimeEntryService) StopTimer(ctx context.Context, id int64) (int64, error) {
	startedAt, err := s.storage.GetRunningTimer(ctx, id)
	if err != nil {
		return 0, err
	}

	elapsed := s.now().Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	minutes := int64((elapsed + time.Minute - 1) / time.Minute)

	if err := s.storage.StopTimer(ctx, id, minutes); err != nil {
		return 0, err
	}
	return minutes, nil
}

// DeleteEntry removes an unbilled entry; invoiced entries are locked.
func (s *TimeEntryService) DeleteEntry(ctx context.Context, id int64) error {
	return s.storage.DeleteTimeEntry(ctx, id)
}

// ListUnbilled returns the billable candidates for a project.
func (s *TimeEntryService) ListUnbilled(ctx context.Context, projectID int64) ([]core.TimeEntry, error) {
	return s.storage.ListUnbilledEntries(ctx, projectID)
}
