package http

import (
	"context"
	"errors"
	"net/http"

	"fatture/internal/core"
	"fatture/internal/services"
)

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	inv, err := req.toDomain()
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	created, err := s.invoices.CreateInvoice(r.Context(), inv)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.invoices.GetInvoice(r.Context(), created.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoiceToResponse(view))
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var req invoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	inv, err := req.toDomain()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	inv.ID = id

	if _, err := s.invoices.UpdateInvoice(r.Context(), inv); err != nil {
		writeError(w, err)
		return
	}

	view, err := s.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceToResponse(view))
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	view, err := s.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceToResponse(view))
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	views, err := s.invoices.ListInvoices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]invoiceResponse, len(views))
	for i, v := range views {
		out[i] = invoiceToResponse(v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIssueInvoice(w http.ResponseWriter, r *http.Request) {
	s.handleStatusAction(w, r, s.invoices.Issue)
}

func (s *Server) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	s.handleStatusAction(w, r, s.invoices.MarkPaid)
}

func (s *Server) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	s.handleStatusAction(w, r, s.invoices.Cancel)
}

func (s *Server) handleStatusAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) error) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := action(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	view, err := s.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceToResponse(view))
}

func (s *Server) handleInvoiceFromEntries(w http.ResponseWriter, r *http.Request) {
	var req fromEntriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	discount, err := parseNumber(req.Discount, "discount_percent")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	vatRate, err := parseNumber(req.VATRate, "vat_rate")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	issue, err := parseDay(req.IssueDate, "issue_date")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	due, err := parseDay(req.DueDate, "due_date")
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	inv, err := s.invoices.CreateInvoiceFromEntries(r.Context(), services.FromEntriesParams{
		CustomerID: req.CustomerID,
		Number:     req.Number,
		Currency:   req.Currency,
		EntryIDs:   req.EntryIDs,
		Discount:   discount,
		VATRate:    vatRate,
		IssueDate:  issue,
		DueDate:    due,
	})
	if err != nil && errors.Is(err, core.ErrPartialInvoicing) {
		// The invoice is saved; the entry flip will be retried by the
		// reconcile worker. Tell the caller both facts.
		view, verr := s.invoices.GetInvoice(r.Context(), inv.ID)
		if verr != nil {
			writeError(w, verr)
			return
		}
		writeJSON(w, http.StatusAccepted, struct {
			Invoice invoiceResponse `json:"invoice"`
			Warning string          `json:"warning"`
		}{invoiceToResponse(view), "time entries pending reconciliation"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.invoices.GetInvoice(r.Context(), inv.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoiceToResponse(view))
}
