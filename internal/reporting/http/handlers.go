// Package http exposes the financial reports over a JSON API with CSV
// export for the trial balance.
package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/atlas-ledger/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-ledger/atlas-ledger/internal/reporting"
	"github.com/atlas-ledger/atlas-ledger/internal/reporting/aggregate"
)

const dateLayout = "2006-01-02"

// Handler wires company report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *reporting.Service
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the reporting handler. Exports are rate-limited per
// client because they bypass any response caching.
func NewHandler(logger *slog.Logger, service *reporting.Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rateLimit: httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports/companies/{companyID}", func(r chi.Router) {
		r.Get("/trial-balance", h.handleTrialBalance)
		r.With(h.rateLimit).Get("/trial-balance/export.csv", h.handleTrialBalanceCSV)
		r.Get("/balance-sheet", h.handleBalanceSheet)
		r.Get("/income-statement", h.handleIncomeStatement)
		r.Get("/cash-flow", h.handleCashFlow)
	})
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, asOf, opts, ok := h.parseCommon(w, r)
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), companyID, asOf, opts)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, tb)
}

func (h *Handler) handleTrialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	companyID, asOf, opts, ok := h.parseCommon(w, r)
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), companyID, asOf, opts)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	_ = writer.Write([]string{"Code", "Account", "Debit", "Credit"})
	for _, row := range tb.Rows {
		_ = writer.Write([]string{
			row.Code,
			row.Name,
			row.Debit.Value.StringFixed(2),
			row.Credit.Value.StringFixed(2),
		})
	}
	_ = writer.Write([]string{"", "Total",
		tb.TotalDebits.Value.StringFixed(2),
		tb.TotalCredits.Value.StringFixed(2),
	})
	writer.Flush()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=trial_balance.csv")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	companyID, asOf, opts, ok := h.parseCommon(w, r)
	if !ok {
		return
	}
	var comparative *time.Time
	if raw := r.URL.Query().Get("comparative"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid comparative date")
			return
		}
		comparative = &t
	}
	bs, err := h.service.BalanceSheet(r.Context(), companyID, asOf, comparative, opts)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, bs)
}

func (h *Handler) handleIncomeStatement(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.companyID(w, r)
	if !ok {
		return
	}
	opts := reporting.Options{IncludeZeroBalances: r.URL.Query().Get("includeZero") == "true"}

	if period := r.URL.Query().Get("period"); period != "" {
		is, err := h.service.IncomeStatementForPeriod(r.Context(), companyID, period, opts)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, is)
		return
	}

	start, end, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	is, err := h.service.IncomeStatement(r.Context(), companyID, start, end, opts)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, is)
}

func (h *Handler) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.companyID(w, r)
	if !ok {
		return
	}
	opts := reporting.Options{IncludeZeroBalances: r.URL.Query().Get("includeZero") == "true"}

	if period := r.URL.Query().Get("period"); period != "" {
		cf, err := h.service.CashFlowForPeriod(r.Context(), companyID, period, opts)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusOK, cf)
		return
	}

	start, end, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	cf, err := h.service.CashFlowStatement(r.Context(), companyID, start, end, opts)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cf)
}

func (h *Handler) companyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "companyID"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid company id")
		return 0, false
	}
	return id, true
}

func (h *Handler) parseCommon(w http.ResponseWriter, r *http.Request) (int64, time.Time, reporting.Options, bool) {
	companyID, ok := h.companyID(w, r)
	if !ok {
		return 0, time.Time{}, reporting.Options{}, false
	}
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid asOf date")
			return 0, time.Time{}, reporting.Options{}, false
		}
		// Include the whole day.
		asOf = t.Add(24*time.Hour - time.Nanosecond)
	}
	opts := reporting.Options{IncludeZeroBalances: r.URL.Query().Get("includeZero") == "true"}
	return companyID, asOf, opts, true
}

func (h *Handler) parseWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	start, err := time.Parse(dateLayout, r.URL.Query().Get("from"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid or missing from date")
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("to"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid or missing to date")
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		h.respondError(w, http.StatusBadRequest, "to date precedes from date")
		return time.Time{}, time.Time{}, false
	}
	return start, end.Add(24*time.Hour - time.Nanosecond), true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var unknownCompany reporting.UnknownCompanyError
	var orphaned aggregate.OrphanedLineError
	switch {
	case errors.As(err, &unknownCompany), errors.Is(err, reporting.ErrPeriodNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &orphaned):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("build report",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	httpx.JSON(w, status, payload)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	httpx.Problem(w, status, http.StatusText(status), message)
}
