// Package storage persists invoices and time entries in SQLite.
//
// Monetary columns are stored as fixed-point text produced by
// decimal.Decimal, never floats, so amounts round-trip exactly.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/core"

	_ "modernc.org/sqlite"
)

const dayFormat = "2006-01-02"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrEntryLocked is returned when deleting a time entry that has
	// already been invoiced. Deletion is reserved for unbilled entries.
	ErrEntryLocked = errors.New("time entry already invoiced")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateInvoice inserts an invoice and its ordered items in one
// transaction and returns the new id.
func (r *SQLiteRepository) CreateInvoice(ctx context.Context, inv core.Invoice) (int64, error) {
	return r.CreateInvoiceWithEntryRefs(ctx, inv, nil)
}

// UpdateInvoice replaces the invoice's stored fields and its full item
// list. Totals are expected to be recomputed by the caller before this
// call; the repository never derives them.
func (r *SQLiteRepository) UpdateInvoice(ctx context.Context, inv core.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE invoices SET customer_id = ?, number = ?, discount_percent = ?, currency = ?,
			subtotal = ?, vat_amount = ?, total = ?, avg_vat_rate = ?,
			exchange_rate = ?, converted_total = ?, status = ?,
			issue_date = ?, due_date = ?, paid_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		inv.CustomerID, inv.Number, inv.DiscountPercent.String(), inv.Currency,
		inv.Subtotal.StringFixed(core.MinorUnits), inv.VATAmount.StringFixed(core.MinorUnits),
		inv.Total.StringFixed(core.MinorUnits), inv.AvgVATRate.String(),
		nullDecimal(inv.ExchangeRate), nullFixedDecimal(inv.ConvertedTotal),
		string(inv.Status), inv.IssueDate.Format(dayFormat),
		nullDay(inv.DueDate), nullDay(inv.PaidDate), inv.ID)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invoice %d: %w", inv.ID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM invoice_items WHERE invoice_id = ?", inv.ID); err != nil {
		return fmt.Errorf("clear invoice items: %w", err)
	}
	if err := insertItems(ctx, tx, inv.ID, inv.Items, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invoice update: %w", err)
	}

	slog.InfoContext(ctx, "Invoice updated",
		"invoice_id", inv.ID,
		"total", inv.Total.StringFixed(core.MinorUnits))

	return nil
}

// CreateInvoiceWithEntryRefs is CreateInvoice plus a per-item back
// reference to the time entry each item was aggregated from. entryIDs is
// parallel to inv.Items; a zero id means the item has no source entry.
func (r *SQLiteRepository) CreateInvoiceWithEntryRefs(ctx context.Context, inv core.Invoice, entryIDs []int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (customer_id, number, discount_percent, currency,
			subtotal, vat_amount, total, avg_vat_rate, exchange_rate, converted_total,
			status, issue_date, due_date, paid_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.CustomerID, inv.Number, inv.DiscountPercent.String(), inv.Currency,
		inv.Subtotal.StringFixed(core.MinorUnits), inv.VATAmount.StringFixed(core.MinorUnits),
		inv.Total.StringFixed(core.MinorUnits), inv.AvgVATRate.String(),
		nullDecimal(inv.ExchangeRate), nullFixedDecimal(inv.ConvertedTotal),
		string(inv.Status), inv.IssueDate.Format(dayFormat),
		nullDay(inv.DueDate), nullDay(inv.PaidDate))
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("invoice id: %w", err)
	}

	if err := insertItems(ctx, tx, id, inv.Items, entryIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit invoice: %w", err)
	}

	slog.InfoContext(ctx, "Invoice saved",
		"invoice_id", id,
		"currency", inv.Currency,
		"total", inv.Total.StringFixed(core.MinorUnits),
		"items", len(inv.Items),
		"entries", len(entryIDs))

	return id, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, invoiceID int64, items []core.LineItem, entryIDs []int64) error {
	for i, it := range items {
		var entryRef any
		if entryIDs != nil && entryIDs[i] != 0 {
			entryRef = entryIDs[i]
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, position, description, quantity, um, unit_price, vat_rate, time_entry_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			invoiceID, i, it.Description, it.Quantity.String(), it.UnitMultiplier.String(),
			it.UnitPrice.String(), it.VATRate.String(), entryRef)
		if err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	return nil
}

// GetInvoice loads an invoice with its items in display order.
func (r *SQLiteRepository) GetInvoice(ctx context.Context, id int64) (core.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, number, discount_percent, currency, subtotal, vat_amount,
			total, avg_vat_rate, exchange_rate, converted_total, status, issue_date, due_date, paid_date
		FROM invoices WHERE id = ?`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		return core.Invoice{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT description, quantity, um, unit_price, vat_rate
		FROM invoice_items WHERE invoice_id = ? ORDER BY position`, id)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it core.LineItem
		var qty, um, price, vat string
		if err := rows.Scan(&it.Description, &qty, &um, &price, &vat); err != nil {
			return core.Invoice{}, fmt.Errorf("scan item: %w", err)
		}
		if it.Quantity, err = decimal.NewFromString(qty); err != nil {
			return core.Invoice{}, fmt.Errorf("parse quantity %q: %w", qty, err)
		}
		if it.UnitMultiplier, err = decimal.NewFromString(um); err != nil {
			return core.Invoice{}, fmt.Errorf("parse um %q: %w", um, err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return core.Invoice{}, fmt.Errorf("parse unit price %q: %w", price, err)
		}
		if it.VATRate, err = decimal.NewFromString(vat); err != nil {
			return core.Invoice{}, fmt.Errorf("parse vat rate %q: %w", vat, err)
		}
		inv.Items = append(inv.Items, it)
	}
	if err := rows.Err(); err != nil {
		return core.Invoice{}, fmt.Errorf("iterate items: %w", err)
	}

	return inv, nil
}

// ListInvoices returns invoice headers (no items), newest first.
func (r *SQLiteRepository) ListInvoices(ctx context.Context) ([]core.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, number, discount_percent, currency, subtotal, vat_amount,
			total, avg_vat_rate, exchange_rate, converted_total, status, issue_date, due_date, paid_date
		FROM invoices ORDER BY issue_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var out []core.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// SetInvoiceStatus writes an explicit status transition. paidDate is
// recorded only for the paid status and cleared otherwise.
func (r *SQLiteRepository) SetInvoiceStatus(ctx context.Context, id int64, status core.StoredStatus, paidDate core.Date) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, paid_date = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), nullDay(paidDate), id)
	if err != nil {
		return fmt.Errorf("set invoice status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invoice %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Invoice status changed",
		"invoice_id", id,
		"status", string(status))

	return nil
}

// CreateTimeEntry inserts a time entry and returns its id. startedAt is
// non-nil only for a running timer.
func (r *SQLiteRepository) CreateTimeEntry(ctx context.Context, e core.TimeEntry, startedAt *time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO time_entries (project_id, note, day, duration_minutes, hourly_rate, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.Note, e.Day.Format(dayFormat), e.DurationMinutes,
		nullDecimal(e.HourlyRate), string(e.Status), nullTime(startedAt))
	if err != nil {
		return 0, fmt.Errorf("insert time entry: %w", err)
	}
	return res.LastInsertId()
}

// StopTimer closes a running timer, writing the measured duration.
func (r *SQLiteRepository) StopTimer(ctx context.Context, id int64, durationMinutes int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE time_entries SET duration_minutes = ?, started_at = NULL
		WHERE id = ? AND started_at IS NOT NULL`, durationMinutes, id)
	if err != nil {
		return fmt.Errorf("stop timer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("running timer %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetRunningTimer returns the started_at of a running entry.
func (r *SQLiteRepository) GetRunningTimer(ctx context.Context, id int64) (time.Time, error) {
	var raw sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT started_at FROM time_entries WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return time.Time{}, fmt.Errorf("running timer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query timer: %w", err)
	}
	return raw.Time, nil
}

// GetTimeEntries loads the given entries, preserving input order.
func (r *SQLiteRepository) GetTimeEntries(ctx context.Context, ids []int64) ([]core.TimeEntry, error) {
	byID := make(map[int64]core.TimeEntry, len(ids))
	for _, id := range ids {
		e, err := r.getTimeEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		byID[id] = e
	}
	out := make([]core.TimeEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

// ListUnbilledEntries returns billable candidates for invoicing.
func (r *SQLiteRepository) ListUnbilledEntries(ctx context.Context, projectID int64) ([]core.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, note, day, duration_minutes, hourly_rate, status, invoice_id
		FROM time_entries
		WHERE status = ? AND project_id = ? AND started_at IS NULL
		ORDER BY day, id`, string(core.BillingUnbilled), projectID)
	if err != nil {
		return nil, fmt.Errorf("query unbilled entries: %w", err)
	}
	defer rows.Close()

	var out []core.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteTimeEntry removes an entry. Entries already folded into an
// invoice are never deleted.
func (r *SQLiteRepository) DeleteTimeEntry(ctx context.Context, id int64) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM time_entries WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("time entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query time entry: %w", err)
	}
	if core.BillingStatus(status) != core.BillingUnbilled {
		return fmt.Errorf("time entry %d: %w", id, ErrEntryLocked)
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ? AND status = ?`,
		id, string(core.BillingUnbilled))
	if err != nil {
		return fmt.Errorf("delete time entry: %w", err)
	}
	return nil
}

// MarkEntriesInvoiced flips the given entries unbilled -> invoiced with
// the invoice's id, all in one transaction. The call is idempotent:
// entries already invoiced to the same invoice are left untouched, so the
// reconcile worker can retry it safely. An entry bound to a different
// invoice fails the whole batch.
func (r *SQLiteRepository) MarkEntriesInvoiced(ctx context.Context, invoiceID int64, entryIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range entryIDs {
		var status string
		var boundTo sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT status, invoice_id FROM time_entries WHERE id = ?`, id).
			Scan(&status, &boundTo)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("time entry %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query time entry %d: %w", id, err)
		}

		if core.BillingStatus(status) != core.BillingUnbilled {
			if boundTo.Valid && boundTo.Int64 == invoiceID {
				continue // already reconciled
			}
			return fmt.Errorf("time entry %d bound to invoice %d: %w", id, boundTo.Int64, ErrEntryLocked)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE time_entries SET status = ?, invoice_id = ? WHERE id = ?`,
			string(core.BillingInvoiced), invoiceID, id); err != nil {
			return fmt.Errorf("mark entry %d invoiced: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entry statuses: %w", err)
	}

	slog.InfoContext(ctx, "Time entries marked invoiced",
		"invoice_id", invoiceID,
		"entries", len(entryIDs))

	return nil
}

// MarkEntriesPaidForInvoice moves all of an invoice's entries invoiced ->
// paid, used when the invoice itself is marked paid.
func (r *SQLiteRepository) MarkEntriesPaidForInvoice(ctx context.Context, invoiceID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE time_entries SET status = ? WHERE invoice_id = ? AND status = ?`,
		string(core.BillingPaid), invoiceID, string(core.BillingInvoiced))
	if err != nil {
		return fmt.Errorf("mark entries paid: %w", err)
	}
	return nil
}

// UnreconciledEntry is a time entry referenced by a saved invoice item
// but still in the unbilled state: the second half of an invoice-from-
// entries write that has not landed yet.
type UnreconciledEntry struct {
	EntryID   int64
	InvoiceID int64
}

// GetUnreconciledEntries is the backup scan behind the reconcile worker:
// reconcile messages can be lost, the join cannot.
func (r *SQLiteRepository) GetUnreconciledEntries(ctx context.Context, limit int) ([]UnreconciledEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT te.id, ii.invoice_id
		FROM time_entries te
		JOIN invoice_items ii ON ii.time_entry_id = te.id
		WHERE te.status = ?
		ORDER BY te.id
		LIMIT ?`, string(core.BillingUnbilled), limit)
	if err != nil {
		return nil, fmt.Errorf("query unreconciled entries: %w", err)
	}
	defer rows.Close()

	var out []UnreconciledEntry
	for rows.Next() {
		var u UnreconciledEntry
		if err := rows.Scan(&u.EntryID, &u.InvoiceID); err != nil {
			return nil, fmt.Errorf("scan unreconciled entry: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) getTimeEntry(ctx context.Context, id int64) (core.TimeEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, note, day, duration_minutes, hourly_rate, status, invoice_id
		FROM time_entries WHERE id = ?`, id)
	e, err := scanTimeEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TimeEntry{}, fmt.Errorf("time entry %d: %w", id, ErrNotFound)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (core.Invoice, error) {
	var inv core.Invoice
	var discount, subtotal, vatAmount, total, avgVAT, status, issue string
	var rate, converted, due, paid sql.NullString

	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.Number, &discount, &inv.Currency,
		&subtotal, &vatAmount, &total, &avgVAT, &rate, &converted, &status, &issue, &due, &paid)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, ErrNotFound
	}
	if err != nil {
		return core.Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}

	if inv.DiscountPercent, err = decimal.NewFromString(discount); err != nil {
		return core.Invoice{}, fmt.Errorf("parse discount %q: %w", discount, err)
	}
	if inv.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return core.Invoice{}, fmt.Errorf("parse subtotal %q: %w", subtotal, err)
	}
	if inv.VATAmount, err = decimal.NewFromString(vatAmount); err != nil {
		return core.Invoice{}, fmt.Errorf("parse vat amount %q: %w", vatAmount, err)
	}
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return core.Invoice{}, fmt.Errorf("parse total %q: %w", total, err)
	}
	if inv.AvgVATRate, err = decimal.NewFromString(avgVAT); err != nil {
		return core.Invoice{}, fmt.Errorf("parse avg vat rate %q: %w", avgVAT, err)
	}
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return core.Invoice{}, fmt.Errorf("parse exchange rate %q: %w", rate.String, err)
		}
		inv.ExchangeRate = &d
	}
	if converted.Valid {
		d, err := decimal.NewFromString(converted.String)
		if err != nil {
			return core.Invoice{}, fmt.Errorf("parse converted total %q: %w", converted.String, err)
		}
		inv.ConvertedTotal = &d
	}

	inv.Status = core.StoredStatus(status)
	if inv.IssueDate, err = parseDay(issue); err != nil {
		return core.Invoice{}, err
	}
	if due.Valid {
		if inv.DueDate, err = parseDay(due.String); err != nil {
			return core.Invoice{}, err
		}
	}
	if paid.Valid {
		if inv.PaidDate, err = parseDay(paid.String); err != nil {
			return core.Invoice{}, err
		}
	}

	return inv, nil
}

func scanTimeEntry(row scanner) (core.TimeEntry, error) {
	var e core.TimeEntry
	var day, status string
	var rate sql.NullString
	var invoiceID sql.NullInt64

	err := row.Scan(&e.ID, &e.ProjectID, &e.Note, &day, &e.DurationMinutes, &rate, &status, &invoiceID)
	if err != nil {
		return core.TimeEntry{}, err
	}

	if e.Day, err = parseDay(day); err != nil {
		return core.TimeEntry{}, err
	}
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return core.TimeEntry{}, fmt.Errorf("parse hourly rate %q: %w", rate.String, err)
		}
		e.HourlyRate = &d
	}
	e.Status = core.BillingStatus(status)
	if invoiceID.Valid {
		e.InvoiceID = &invoiceID.Int64
	}

	return e, nil
}

func parseDay(s string) (core.Date, error) {
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

func nullDay(d core.Date) any {
	if d.IsEmpty() {
		return nil
	}
	return d.Format(dayFormat)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullFixedDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(core.MinorUnits)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
