package http

import (
	"net/http"
	"strconv"

	"fatture/internal/core"
)

func (s *Server) handleCreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req timeEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	day, err := parseDay(req.Day, "day")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	rate, err := parseOptionalRate(req.HourlyRate)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	id, err := s.entries.CreateEntry(r.Context(), core.TimeEntry{
		ProjectID:       req.ProjectID,
		Note:            req.Note,
		Day:             day,
		DurationMinutes: req.DurationMinutes,
		HourlyRate:      rate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleDeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := s.entries.DeleteEntry(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListUnbilled(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		writeBadRequest(w, errInvalidProject)
		return
	}

	entries, err := s.entries.ListUnbilled(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]timeEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = entryToResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummarizeEntries(w http.ResponseWriter, r *http.Request) {
	var req entrySelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	summary, err := s.invoices.SummarizeSelection(r.Context(), req.EntryIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryToResponse(summary))
}

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	var req startTimerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	rate, err := parseOptionalRate(req.HourlyRate)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	id, err := s.entries.StartTimer(r.Context(), req.ProjectID, req.Note, rate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	minutes, err := s.entries.StopTimer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id, "duration_minutes": minutes})
}
