package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/release-relay/internal/checker"
	"github.com/yourorg/release-relay/internal/ledger"
	"github.com/yourorg/release-relay/internal/model"
)

type handler struct {
	service string
	ledger  LedgerView
	cycles  CycleReporter
	trigger Trigger
	logger  *slog.Logger
}

// LedgerResponse is the body of GET /ledger
type LedgerResponse struct {
	Watermark string         `json:"watermark"`
	Entries   []ledger.Entry `json:"entries"`
	LastCycle *checker.Cycle `json:"last_cycle,omitempty"`
}

// handleHealth handles health check requests
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Entries(r.Context())
	if err != nil {
		writeJSON(w, h.logger, http.StatusServiceUnavailable, &model.HealthStatus{
			Status:    "unhealthy",
			Service:   h.service,
			Version:   model.Version,
			Watermark: h.ledger.Watermark(),
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, &model.HealthStatus{
		Status:    "healthy",
		Service:   h.service,
		Version:   model.Version,
		Watermark: h.ledger.Watermark(),
		Entries:   len(entries),
	})
}

func (h *handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Entries(r.Context())
	if err != nil {
		h.logger.Error("Failed to list ledger entries", "error", err)
		writeError(w, h.logger, err, http.StatusInternalServerError)
		return
	}

	resp := &LedgerResponse{
		Watermark: h.ledger.Watermark().UTC().Format(time.RFC3339Nano),
		Entries:   entries,
	}
	if h.cycles != nil {
		resp.LastCycle = h.cycles.LastCycle()
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		writeJSON(w, h.logger, http.StatusNotImplemented, map[string]string{"error": "manual trigger not available"})
		return
	}
	if err := h.trigger.TriggerCheck(r.Context()); err != nil {
		writeError(w, h.logger, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, map[string]string{"status": "scheduled"})
}
