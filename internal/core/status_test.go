package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveStatus(t *testing.T) {
	// Fixed "now" with a time-of-day on purpose: comparison must be
	// date-only.
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	yesterday := NewDate(2026, 3, 14)
	today := NewDate(2026, 3, 15)
	tomorrow := NewDate(2026, 3, 16)

	cases := []struct {
		name   string
		stored StoredStatus
		due    Date
		want   ResolvedStatus
	}{
		{"paid dominates overdue", StatusPaid, yesterday, ResolvedPaid},
		{"cancelled passes through", StatusCancelled, yesterday, ResolvedCancelled},
		{"issued past due is overdue", StatusIssued, yesterday, ResolvedOverdue},
		{"same-day due is not overdue", StatusIssued, today, ResolvedIssued},
		{"future due stays issued", StatusIssued, tomorrow, ResolvedIssued},
		{"draft past due is overdue", StatusDraft, yesterday, ResolvedOverdue},
		{"draft without due date", StatusDraft, Date{}, ResolvedDraft},
		{"issued without due date", StatusIssued, Date{}, ResolvedIssued},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveStatus(Invoice{Status: tc.stored, DueDate: tc.due}, now)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveStatusIgnoresTimeOfDay(t *testing.T) {
	// Due at 23:59 yesterday vs now at 00:01 today: still overdue by one
	// calendar day, not by an hour count.
	inv := Invoice{
		Status:  StatusIssued,
		DueDate: Date{Time: time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)},
	}
	now := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, ResolvedOverdue, ResolveStatus(inv, now))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to StoredStatus
		want     bool
	}{
		{StatusDraft, StatusIssued, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusPaid, false},
		{StatusIssued, StatusPaid, true},
		{StatusIssued, StatusCancelled, true},
		{StatusIssued, StatusDraft, false},
		{StatusPaid, StatusIssued, false},
		{StatusPaid, StatusCancelled, false},
		{StatusCancelled, StatusIssued, false},
		{StatusCancelled, StatusPaid, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
