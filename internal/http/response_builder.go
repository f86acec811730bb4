package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fatture/internal/core"
	"fatture/internal/services"
	"fatture/internal/storage"
)

type itemResponse struct {
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	UnitMultiplier string `json:"um"`
	UnitPrice      string `json:"unit_price"`
	VATRate        string `json:"vat_rate"`
	Total          string `json:"total"`
}

type invoiceResponse struct {
	ID              int64          `json:"id"`
	CustomerID      int64          `json:"customer_id"`
	Number          string         `json:"number"`
	Currency        string         `json:"currency"`
	DiscountPercent string         `json:"discount_percent"`
	Subtotal        string         `json:"subtotal"`
	VATAmount       string         `json:"vat_amount"`
	Total           string         `json:"total"`
	AvgVATRate      string         `json:"avg_vat_rate"`
	ExchangeRate    *string        `json:"exchange_rate,omitempty"`
	ConvertedTotal  *string        `json:"converted_total,omitempty"`
	Status          string         `json:"status"`
	ResolvedStatus  string         `json:"resolved_status"`
	IssueDate       string         `json:"issue_date"`
	DueDate         string         `json:"due_date,omitempty"`
	PaidDate        string         `json:"paid_date,omitempty"`
	Items           []itemResponse `json:"items,omitempty"`
}

type timeEntryResponse struct {
	ID              int64   `json:"id"`
	ProjectID       int64   `json:"project_id"`
	Note            string  `json:"note,omitempty"`
	Day             string  `json:"day"`
	DurationMinutes int64   `json:"duration_minutes"`
	HourlyRate      *string `json:"hourly_rate,omitempty"`
	Status          string  `json:"status"`
	InvoiceID       *int64  `json:"invoice_id,omitempty"`
}

type summaryResponse struct {
	TotalMinutes int64  `json:"total_minutes"`
	TotalHours   string `json:"total_hours"`
	HourlyRate   string `json:"hourly_rate"`
	TotalAmount  string `json:"total_amount"`
	From         string `json:"from"`
	To           string `json:"to"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	ItemIndex *int   `json:"item_index,omitempty"`
}

func invoiceToResponse(v services.InvoiceView) invoiceResponse {
	resp := invoiceResponse{
		ID:              v.ID,
		CustomerID:      v.CustomerID,
		Number:          v.Number,
		Currency:        v.Currency,
		DiscountPercent: v.DiscountPercent.String(),
		Subtotal:        v.Subtotal.StringFixed(core.MinorUnits),
		VATAmount:       v.VATAmount.StringFixed(core.MinorUnits),
		Total:           v.Total.StringFixed(core.MinorUnits),
		AvgVATRate:      v.AvgVATRate.String(),
		Status:          string(v.Status),
		ResolvedStatus:  string(v.Resolved),
		IssueDate:       v.IssueDate.Format(dayFormat),
	}
	if v.ExchangeRate != nil {
		s := v.ExchangeRate.String()
		resp.ExchangeRate = &s
	}
	if v.ConvertedTotal != nil {
		s := v.ConvertedTotal.StringFixed(core.MinorUnits)
		resp.ConvertedTotal = &s
	}
	if !v.DueDate.IsEmpty() {
		resp.DueDate = v.DueDate.Format(dayFormat)
	}
	if !v.PaidDate.IsEmpty() {
		resp.PaidDate = v.PaidDate.Format(dayFormat)
	}
	for _, it := range v.Items {
		// Items are validated before they ever reach storage, so the
		// per-item total cannot fail here.
		total, _ := core.LineItemTotal(it)
		resp.Items = append(resp.Items, itemResponse{
			Description:    it.Description,
			Quantity:       it.Quantity.String(),
			UnitMultiplier: it.UnitMultiplier.String(),
			UnitPrice:      it.UnitPrice.String(),
			VATRate:        it.VATRate.String(),
			Total:          total.StringFixed(core.MinorUnits),
		})
	}
	return resp
}

func entryToResponse(e core.TimeEntry) timeEntryResponse {
	resp := timeEntryResponse{
		ID:              e.ID,
		ProjectID:       e.ProjectID,
		Note:            e.Note,
		Day:             e.Day.Format(dayFormat),
		DurationMinutes: e.DurationMinutes,
		Status:          string(e.Status),
		InvoiceID:       e.InvoiceID,
	}
	if e.HourlyRate != nil {
		s := e.HourlyRate.String()
		resp.HourlyRate = &s
	}
	return resp
}

func summaryToResponse(s core.TimesheetSummary) summaryResponse {
	return summaryResponse{
		TotalMinutes: s.TotalMinutes,
		TotalHours:   s.TotalHours.StringFixed(core.MinorUnits),
		HourlyRate:   s.HourlyRate.String(),
		TotalAmount:  s.TotalAmount.StringFixed(core.MinorUnits),
		From:         s.From.Format(dayFormat),
		To:           s.To.Format(dayFormat),
	}
}

var errInvalidProject = errors.New("project_id query parameter required")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses: field-level
// validation and empty selections are 422 with a fixable complaint,
// locked entries conflict, unknown records 404, engine misuse 400.
func writeError(w http.ResponseWriter, err error) {
	var verr *core.ItemValidationError
	switch {
	case errors.As(err, &verr):
		resp := errorResponse{Error: verr.Error(), Field: verr.Field}
		if verr.Index >= 0 {
			idx := verr.Index
			resp.ItemIndex = &idx
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, core.ErrEmptyBatch):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "no time entries selected"})
	case errors.Is(err, core.ErrNotBillable):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrEntryLocked):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}
