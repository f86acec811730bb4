// Package worker closes the gap left by partial invoicing: invoices that
// saved while their time entries failed to flip to invoiced.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fatture/internal/amqp"
	"fatture/internal/storage"
)

// ReconcileWorker retries the entry-status half of invoice-from-entries
// writes until both sides agree.
type ReconcileWorker struct {
	storage   *storage.SQLiteRepository
	batchSize int
}

func NewReconcileWorker(st *storage.SQLiteRepository, batchSize int) *ReconcileWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ReconcileWorker{storage: st, batchSize: batchSize}
}

// HandleReconcileMessage processes one queued reconcile request. The
// underlying update is idempotent, so redelivered messages are harmless.
func (w *ReconcileWorker) HandleReconcileMessage(ctx context.Context, msg *amqp.BillingReconcileMessage) error {
	slog.InfoContext(ctx, "Processing reconcile message",
		"invoice_id", msg.InvoiceID,
		"entries", len(msg.EntryIDs))

	if err := w.storage.MarkEntriesInvoiced(ctx, msg.InvoiceID, msg.EntryIDs); err != nil {
		return fmt.Errorf("mark entries invoiced: %w", err)
	}
	return nil
}

// ProcessPending scans for entries referenced by a saved invoice but
// still unbilled. Backup mechanism for lost messages; the item-to-entry
// back reference in storage is the source of truth.
func (w *ReconcileWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetUnreconciledEntries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get unreconciled entries: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Reconciling entries missed by the queue", "count", len(pending))

	// Group by invoice so each invoice gets one idempotent update.
	byInvoice := make(map[int64][]int64)
	for _, p := range pending {
		byInvoice[p.InvoiceID] = append(byInvoice[p.InvoiceID], p.EntryID)
	}

	var firstErr error
	for invoiceID, entryIDs := range byInvoice {
		if err := w.storage.MarkEntriesInvoiced(ctx, invoiceID, entryIDs); err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile invoice entries",
				"invoice_id", invoiceID,
				"entries", len(entryIDs),
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		slog.InfoContext(ctx, "Invoice entries reconciled",
			"invoice_id", invoiceID,
			"entries", len(entryIDs))
	}

	return firstErr
}
