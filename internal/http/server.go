// Package http exposes the invoicing API: invoice create/update/list with
// derived totals, status actions, time entries and the timer pair.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fatture/internal/log"
	"fatture/internal/middleware/ratelimit"
	"fatture/internal/services"
)

type Server struct {
	invoices *services.InvoiceService
	entries  *services.TimeEntryService
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	httpSrv  *http.Server
}

func NewServer(port string, invoices *services.InvoiceService, entries *services.TimeEntryService, logger *log.Logger) *Server {
	s := &Server{
		invoices: invoices,
		entries:  entries,
		logger:   logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/invoices", s.handleCreateInvoice)
	mux.HandleFunc("GET /api/invoices", s.handleListInvoices)
	mux.HandleFunc("GET /api/invoices/{id}", s.handleGetInvoice)
	mux.HandleFunc("PUT /api/invoices/{id}", s.handleUpdateInvoice)
	mux.HandleFunc("POST /api/invoices/{id}/issue", s.handleIssueInvoice)
	mux.HandleFunc("POST /api/invoices/{id}/pay", s.handlePayInvoice)
	mux.HandleFunc("POST /api/invoices/{id}/cancel", s.handleCancelInvoice)
	mux.HandleFunc("POST /api/invoices/from-entries", s.handleInvoiceFromEntries)

	mux.HandleFunc("POST /api/time-entries", s.handleCreateTimeEntry)
	mux.HandleFunc("DELETE /api/time-entries/{id}", s.handleDeleteTimeEntry)
	mux.HandleFunc("GET /api/time-entries/unbilled", s.handleListUnbilled)
	mux.HandleFunc("POST /api/time-entries/summary", s.handleSummarizeEntries)
	mux.HandleFunc("POST /api/timers/start", s.handleStartTimer)
	mux.HandleFunc("POST /api/timers/{id}/stop", s.handleStopTimer)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.httpSrv = &http.Server{
		Addr:         ":" + port,
		Handler:      log.RequestLogger(s.logger)(s.limiter.Middleware(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("HTTP server listening", "addr", s.httpSrv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.limiter.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
