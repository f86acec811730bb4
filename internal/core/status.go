package core

import "time"

// Clock supplies the current time. Status derivation never reads the
// global clock, so it stays deterministic in tests.
type Clock func() time.Time

// ResolveStatus derives the status shown to users from the stored status
// and the due date, evaluated fresh on every read. "overdue" is never
// written back to storage.
//
// Paid and cancelled are terminal and pass through unchanged. An invoice
// is overdue only when its due date is strictly before today; both sides
// are compared date-only, so a same-day due date never reads as overdue.
func ResolveStatus(inv Invoice, now time.Time) ResolvedStatus {
	switch inv.Status {
	case StatusPaid:
		return ResolvedPaid
	case StatusCancelled:
		return ResolvedCancelled
	}
	if !inv.DueDate.IsEmpty() && dayOrdinal(inv.DueDate.Time).Before(dayOrdinal(now)) {
		return ResolvedOverdue
	}
	return ResolvedStatus(inv.Status)
}

// dayOrdinal collapses a timestamp to its calendar day in UTC so that
// due-date comparison ignores both time-of-day and location.
func dayOrdinal(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CanTransition reports whether the stored-status change is a legal
// lifecycle step. Paid and cancelled are terminal; paid requires a prior
// issue so the paid date is always written by an explicit pay action.
func CanTransition(from, to StoredStatus) bool {
	switch from {
	case StatusDraft:
		return to == StatusIssued || to == StatusCancelled
	case StatusIssued:
		return to == StatusPaid || to == StatusCancelled
	}
	return false
}
