// Package http exposes consolidation runs over a JSON API.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/atlas-ledger/atlas-ledger/internal/consol"
	"github.com/atlas-ledger/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-ledger/atlas-ledger/jobs"
)

// RunEnqueuer submits consolidation runs to the background queue.
type RunEnqueuer interface {
	EnqueueConsolRun(ctx context.Context, payload jobs.ConsolRunPayload) (*asynq.TaskInfo, error)
}

// Handler wires consolidation run endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *consol.Service
	enqueuer  RunEnqueuer
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the consolidation handler. Run creation is
// rate-limited per client because a run fans out into heavy queries.
func NewHandler(logger *slog.Logger, service *consol.Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validate:  validator.New(),
		rateLimit: httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}

// WithEnqueuer enables async run submission through the background queue.
func (h *Handler) WithEnqueuer(enqueuer RunEnqueuer) *Handler {
	h.enqueuer = enqueuer
	return h
}

// MountRoutes registers consolidation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consolidation", func(r chi.Router) {
		r.With(h.rateLimit).Post("/groups/{groupID}/runs", h.handleStartRun)
		r.Get("/groups/{groupID}/runs", h.handleListRuns)
		r.Get("/runs/{runID}", h.handleGetRun)
		r.Get("/runs/{runID}/trial-balance", h.handleGetTrialBalance)
	})
}

type startRunRequest struct {
	Period                         string `json:"period" validate:"required"`
	SkipValidation                 bool   `json:"skipValidation"`
	ContinueOnWarnings             bool   `json:"continueOnWarnings"`
	IncludeEquityMethodInvestments bool   `json:"includeEquityMethodInvestments"`
	ForceRegeneration              bool   `json:"forceRegeneration"`
	// Async queues the run instead of executing it on the request.
	Async bool `json:"async"`
}

func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}

	var req startRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Async {
		h.enqueueRun(w, r, groupID, req)
		return
	}

	opts := consol.Options{
		SkipValidation:                 req.SkipValidation,
		ContinueOnWarnings:             req.ContinueOnWarnings,
		IncludeEquityMethodInvestments: req.IncludeEquityMethodInvestments,
		ForceRegeneration:              req.ForceRegeneration,
	}
	run, err := h.service.StartRun(r.Context(), groupID, req.Period, opts, actorID(r))
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusCreated, run)
	case errors.Is(err, consol.ErrGroupNotFound), errors.Is(err, consol.ErrPeriodNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, consol.ErrRunConflict), errors.Is(err, consol.ErrRunLocked):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, consol.ErrValidationFailed):
		// The run record carries the full issue list.
		h.respondJSON(w, http.StatusUnprocessableEntity, run)
	case run.Status == consol.RunFailed:
		h.respondJSON(w, http.StatusUnprocessableEntity, run)
	default:
		h.logger.Error("start consolidation run",
			slog.Int64("group_id", groupID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) enqueueRun(w http.ResponseWriter, r *http.Request, groupID int64, req startRunRequest) {
	if h.enqueuer == nil {
		h.respondError(w, http.StatusServiceUnavailable, "background queue not configured")
		return
	}
	info, err := h.enqueuer.EnqueueConsolRun(r.Context(), jobs.ConsolRunPayload{
		GroupID:            groupID,
		Period:             req.Period,
		ContinueOnWarnings: req.ContinueOnWarnings,
		ForceRegeneration:  req.ForceRegeneration,
	})
	if err != nil {
		h.logger.Error("enqueue consolidation run",
			slog.Int64("group_id", groupID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{
		"taskId": info.ID,
		"queue":  info.Queue,
	})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.service.ListRuns(r.Context(), groupID, limit)
	if err != nil {
		h.logger.Error("list consolidation runs",
			slog.Int64("group_id", groupID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := h.service.GetRun(r.Context(), id)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusOK, run)
	case errors.Is(err, consol.ErrRunNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("get consolidation run",
			slog.String("run_id", id.String()), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleGetTrialBalance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	tb, err := h.service.GetTrialBalance(r.Context(), id)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusOK, tb)
	case errors.Is(err, consol.ErrRunNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.respondError(w, http.StatusConflict, err.Error())
	}
}

// actorID resolves the acting user from the auth middleware header. Zero
// means unauthenticated contexts such as internal jobs.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	httpx.JSON(w, status, payload)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	httpx.Problem(w, status, http.StatusText(status), message)
}
