// Package services orchestrates the invoice calculation engine over
// storage, the exchange-rate provider and the reconcile queue.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/amqp"
	"fatture/internal/core"
	"fatture/internal/rates"
	"fatture/internal/storage"
)

// InvoiceService owns every write of derived invoice fields: totals,
// average VAT rate and the converted amount are computed here on each
// create and on each edit that touches items, discount or currency,
// never hand-edited.
type InvoiceService struct {
	storage         *storage.SQLiteRepository
	rates           rates.Source
	amqpClient      *amqp.Client
	accountCurrency string
	now             core.Clock
}

func NewInvoiceService(st *storage.SQLiteRepository, rateSource rates.Source, amqpClient *amqp.Client, accountCurrency string, clock core.Clock) *InvoiceService {
	if clock == nil {
		clock = time.Now
	}
	return &InvoiceService{
		storage:         st,
		rates:           rateSource,
		amqpClient:      amqpClient,
		accountCurrency: accountCurrency,
		now:             clock,
	}
}

// CreateInvoice validates, computes the total set and persists a new
// invoice. Validation failures carry the item index and field so the
// caller can present them contextually; a missing exchange rate never
// blocks the save.
func (s *InvoiceService) CreateInvoice(ctx context.Context, inv core.Invoice) (core.Invoice, error) {
	// Paid and cancelled are reached through the pay and cancel actions
	// only; an invoice never starts life in a terminal state.
	if inv.Status == core.StatusPaid || inv.Status == core.StatusCancelled {
		return core.Invoice{}, &core.ItemValidationError{Index: -1, Field: "status", Reason: "new invoices start as draft or issued"}
	}
	if err := s.prepare(ctx, &inv); err != nil {
		return core.Invoice{}, err
	}

	id, err := s.storage.CreateInvoice(ctx, inv)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("save invoice: %w", err)
	}
	inv.ID = id
	return inv, nil
}

// UpdateInvoice recomputes and persists an edited invoice. The same item
// predicate as CreateInvoice applies. Edits never move the lifecycle: the
// stored status and paid date are carried over, and a payload naming a
// different status is rejected so state changes go through Issue, MarkPaid
// and Cancel alone.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, inv core.Invoice) (core.Invoice, error) {
	current, err := s.storage.GetInvoice(ctx, inv.ID)
	if err != nil {
		return core.Invoice{}, err
	}
	if inv.Status != "" && inv.Status != current.Status {
		return core.Invoice{}, &core.ItemValidationError{Index: -1, Field: "status", Reason: "status changes only through the issue, pay and cancel actions"}
	}
	inv.Status = current.Status
	inv.PaidDate = current.PaidDate

	if err := s.prepare(ctx, &inv); err != nil {
		return core.Invoice{}, err
	}

	if err := s.storage.UpdateInvoice(ctx, inv); err != nil {
		return core.Invoice{}, fmt.Errorf("update invoice: %w", err)
	}
	return inv, nil
}

// prepare runs validation, totals and currency reconciliation in place.
func (s *InvoiceService) prepare(ctx context.Context, inv *core.Invoice) error {
	if err := core.ValidateItems(inv.Items); err != nil {
		return err
	}
	if err := core.ValidateDiscount(inv.DiscountPercent); err != nil {
		return err
	}
	if inv.Currency == "" {
		return &core.ItemValidationError{Index: -1, Field: "currency", Reason: "must not be empty"}
	}
	if inv.Status == "" {
		inv.Status = core.StatusDraft
	}
	if !inv.Status.Valid() {
		return &core.ItemValidationError{Index: -1, Field: "status", Reason: fmt.Sprintf("unknown status %q", inv.Status)}
	}
	if inv.IssueDate.IsEmpty() {
		inv.IssueDate = core.DateOf(s.now())
	}

	totals, err := core.Aggregate(inv.Items, inv.DiscountPercent)
	if err != nil {
		return err
	}
	inv.Subtotal = totals.Subtotal
	inv.VATAmount = totals.VATAmount
	inv.Total = totals.Total
	inv.AvgVATRate = core.AverageVATRate(totals.VATAmount, totals.Subtotal)

	s.reconcileCurrency(ctx, inv)
	return nil
}

// reconcileCurrency fills ExchangeRate and ConvertedTotal when the
// invoice currency differs from the account currency. Failure to obtain
// a quote is a recoverable degradation: the invoice is self-consistent
// in its own currency, so the converted fields are simply left absent.
func (s *InvoiceService) reconcileCurrency(ctx context.Context, inv *core.Invoice) {
	inv.ExchangeRate = nil
	inv.ConvertedTotal = nil

	if s.accountCurrency == "" || !core.NeedsConversion(inv.Currency, s.accountCurrency) {
		return
	}
	if s.rates == nil {
		slog.WarnContext(ctx, "No rate source configured, saving invoice without converted total",
			"currency", inv.Currency,
			"account_currency", s.accountCurrency)
		return
	}

	quote, err := s.rates.GetRate(ctx, inv.Currency, s.accountCurrency, inv.IssueDate)
	if err != nil {
		slog.WarnContext(ctx, "Exchange rate unavailable, saving invoice without converted total",
			"currency", inv.Currency,
			"account_currency", s.accountCurrency,
			"issue_date", inv.IssueDate.Format("2006-01-02"),
			"error", err)
		return
	}

	converted, err := core.Convert(inv.Total, inv.Currency, s.accountCurrency, quote.Rate)
	if err != nil {
		slog.ErrorContext(ctx, "Conversion failed on fetched rate",
			"rate", quote.Rate.String(),
			"error", err)
		return
	}

	inv.ExchangeRate = &quote.Rate
	inv.ConvertedTotal = &converted
}

// InvoiceView pairs a stored invoice with its resolved display status.
type InvoiceView struct {
	core.Invoice
	Resolved core.ResolvedStatus
}

// GetInvoice loads one invoice with its resolved status.
func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (InvoiceView, error) {
	inv, err := s.storage.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceView{}, err
	}
	return InvoiceView{Invoice: inv, Resolved: core.ResolveStatus(inv, s.now())}, nil
}

// ListInvoices returns all invoices with statuses resolved fresh against
// the injected clock; overdue is computed, never read from storage.
func (s *InvoiceService) ListInvoices(ctx context.Context) ([]InvoiceView, error) {
	invoices, err := s.storage.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]InvoiceView, len(invoices))
	for i, inv := range invoices {
		out[i] = InvoiceView{Invoice: inv, Resolved: core.ResolveStatus(inv, now)}
	}
	return out, nil
}

// MarkPaid is the explicit user action that writes the paid status and
// date. The invoice's time entries follow invoiced -> paid.
func (s *InvoiceService) MarkPaid(ctx context.Context, id int64) error {
	if err := s.guardTransition(ctx, id, core.StatusPaid); err != nil {
		return err
	}
	if err := s.storage.SetInvoiceStatus(ctx, id, core.StatusPaid, core.DateOf(s.now())); err != nil {
		return err
	}
	if err := s.storage.MarkEntriesPaidForInvoice(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Invoice paid but entry statuses not updated",
			"invoice_id", id,
			"error", err)
		return fmt.Errorf("invoice %d: %w", id, core.ErrPartialInvoicing)
	}
	return nil
}

// Issue transitions a draft to issued.
func (s *InvoiceService) Issue(ctx context.Context, id int64) error {
	if err := s.guardTransition(ctx, id, core.StatusIssued); err != nil {
		return err
	}
	return s.storage.SetInvoiceStatus(ctx, id, core.StatusIssued, core.Date{})
}

// Cancel moves an invoice to the stored-only terminal state.
func (s *InvoiceService) Cancel(ctx context.Context, id int64) error {
	if err := s.guardTransition(ctx, id, core.StatusCancelled); err != nil {
		return err
	}
	return s.storage.SetInvoiceStatus(ctx, id, core.StatusCancelled, core.Date{})
}

// guardTransition enforces the lifecycle: paid and cancelled are terminal
// and paying requires a prior issue (the paid date is written by the pay
// action, never invented for a draft).
func (s *InvoiceService) guardTransition(ctx context.Context, id int64, to core.StoredStatus) error {
	current, err := s.storage.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if !core.CanTransition(current.Status, to) {
		return fmt.Errorf("invoice %d is %s, cannot become %s: %w", id, current.Status, to, core.ErrInvalidInput)
	}
	return nil
}

// FromEntriesParams describes an invoice built from unbilled time
// entries. VATRate applies to every synthetic item, since entries carry
// no VAT of their own.
type FromEntriesParams struct {
	CustomerID int64
	Number     string
	Currency   string
	EntryIDs   []int64
	Discount   decimal.Decimal
	VATRate    decimal.Decimal
	IssueDate  core.Date
	DueDate    core.Date
}

// CreateInvoiceFromEntries folds the selected entries into a new invoice
// and flips each entry unbilled -> invoiced with the invoice id.
//
// The two writes are logically separate. If the entry flip fails after
// the invoice is saved, the invoice is NOT rolled back — discarding an
// issued document is worse than a transiently stale entry status — and
// the returned error wraps core.ErrPartialInvoicing while a reconcile
// message is queued for the worker to retry.
func (s *InvoiceService) CreateInvoiceFromEntries(ctx context.Context, params FromEntriesParams) (core.Invoice, error) {
	if len(params.EntryIDs) == 0 {
		return core.Invoice{}, core.ErrEmptyBatch
	}

	// A selection may name the same entry twice (double click, retried
	// request); each entry is folded in exactly once.
	entries, err := s.storage.GetTimeEntries(ctx, dedupIDs(params.EntryIDs))
	if err != nil {
		return core.Invoice{}, fmt.Errorf("load entries: %w", err)
	}

	items := make([]core.LineItem, 0, len(entries))
	entryIDs := make([]int64, 0, len(entries))
	for _, e := range entries {
		it, err := core.EntryToLineItem(e, params.VATRate)
		if err != nil {
			return core.Invoice{}, err
		}
		items = append(items, it)
		entryIDs = append(entryIDs, e.ID)
	}

	inv := core.Invoice{
		CustomerID:      params.CustomerID,
		Number:          params.Number,
		Items:           items,
		DiscountPercent: params.Discount,
		Currency:        params.Currency,
		Status:          core.StatusDraft,
		IssueDate:       params.IssueDate,
		DueDate:         params.DueDate,
	}
	if err := s.prepare(ctx, &inv); err != nil {
		return core.Invoice{}, err
	}

	id, err := s.storage.CreateInvoiceWithEntryRefs(ctx, inv, entryIDs)
	if err != nil {
		return core.Invoice{}, fmt.Errorf("save invoice: %w", err)
	}
	inv.ID = id

	if err := s.storage.MarkEntriesInvoiced(ctx, id, entryIDs); err != nil {
		slog.ErrorContext(ctx, "Invoice saved but entries not marked invoiced",
			"invoice_id", id,
			"entries", len(entryIDs),
			"error", err)
		s.queueReconcile(ctx, id, entryIDs)
		return inv, fmt.Errorf("invoice %d: %w: %v", id, core.ErrPartialInvoicing, err)
	}

	return inv, nil
}

// ReconcileEntries retries the entry-status half of an invoice-from-
// entries write. Safe to call repeatedly; used by the worker.
func (s *InvoiceService) ReconcileEntries(ctx context.Context, invoiceID int64, entryIDs []int64) error {
	return s.storage.MarkEntriesInvoiced(ctx, invoiceID, entryIDs)
}

func (s *InvoiceService) queueReconcile(ctx context.Context, invoiceID int64, entryIDs []int64) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, reconcile left to the backup scan",
			"invoice_id", invoiceID)
		return
	}
	if err := s.amqpClient.PublishBillingReconcile(ctx, invoiceID, entryIDs); err != nil {
		slog.ErrorContext(ctx, "Failed to publish reconcile message",
			"invoice_id", invoiceID,
			"error", err)
	}
}

// SummarizeSelection previews a batch of entries before invoicing.
func (s *InvoiceService) SummarizeSelection(ctx context.Context, entryIDs []int64) (core.TimesheetSummary, error) {
	if len(entryIDs) == 0 {
		return core.TimesheetSummary{}, core.ErrEmptyBatch
	}
	entries, err := s.storage.GetTimeEntries(ctx, dedupIDs(entryIDs))
	if err != nil {
		return core.TimesheetSummary{}, fmt.Errorf("load entries: %w", err)
	}
	return core.SummarizeEntries(entries)
}

// dedupIDs drops repeated ids, keeping first-seen order.
func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Close releases the service's connections.
func (s *InvoiceService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	return errors.Join(errs...)
}
