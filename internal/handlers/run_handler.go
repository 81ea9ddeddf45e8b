package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/runs"
)

// RunController is the run surface used by the HTTP API
type RunController interface {
	Start(ctx context.Context) (string, error)
	ConfirmLogin() error
	Stop() error
	Status() runs.Snapshot
	Entities(ctx context.Context) ([]models.Entity, error)
}

// RunHandler exposes start, login confirmation, stop and status of runs
type RunHandler struct {
	runs   RunController
	logger arbor.ILogger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs RunController, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: logger,
	}
}

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Run      runs.Snapshot   `json:"run"`
	Counts   map[string]int  `json:"counts,omitempty"`
	Entities []models.Entity `json:"entities,omitempty"`
	Error    string          `json:"ledger_error,omitempty"`
}

// StartHandler handles POST /api/run
func (h *RunHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	runID, err := h.runs.Start(r.Context())
	if err != nil {
		if errors.Is(err, runs.ErrRunInProgress) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Failed to start run")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"run_id": runID,
	})
}

// ConfirmLoginHandler handles POST /api/login/confirm
func (h *RunHandler) ConfirmLoginHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := h.runs.ConfirmLogin(); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	WriteSuccess(w, "Login confirmed")
}

// StopHandler handles POST /api/stop
func (h *RunHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := h.runs.Stop(); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	WriteSuccess(w, "Stop requested, the run ends after the current entity")
}

// StatusHandler handles GET /api/status
func (h *RunHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	resp := StatusResponse{Run: h.runs.Status()}
	entities, err := h.runs.Entities(r.Context())
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Entities = entities
		resp.Counts = models.CountStatuses(entities)
	}

	WriteJSON(w, http.StatusOK, resp)
}
