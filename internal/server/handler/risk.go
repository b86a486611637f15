package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/risk"
)

// RiskGate defines the breaker methods the risk endpoints require.
type RiskGate interface {
	Status() risk.Status
	Positions() []domain.Position
	UnrealizedPnL() float64
	DailyMetrics() domain.DailyMetrics
	ManualReset()
	ManualTrip(reason string)
}

// RiskHandler serves circuit breaker and position endpoints.
type RiskHandler struct {
	gate   RiskGate
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler over the given risk gate.
func NewRiskHandler(gate RiskGate, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{gate: gate, logger: logger}
}

// GetCircuitBreaker returns the breaker state plus the running daily totals.
// GET /api/risk/circuit-breaker
func (h *RiskHandler) GetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"circuit_breaker": h.gate.Status(),
		"daily":           h.gate.DailyMetrics(),
	})
}

// ResetCircuitBreaker forces the breaker closed.
// POST /api/risk/circuit-breaker/reset
func (h *RiskHandler) ResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	h.gate.ManualReset()
	h.logger.InfoContext(r.Context(), "handler: circuit breaker manually reset")

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "circuit breaker manually reset",
		"circuit_breaker": h.gate.Status(),
	})
}

// tripRequest is the body of a manual trip call.
type tripRequest struct {
	Reason string `json:"reason"`
}

// TripCircuitBreaker forces the breaker open. The optional JSON body names
// a reason; without one a generic reason is recorded.
// POST /api/risk/circuit-breaker/trip
func (h *RiskHandler) TripCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	var req tripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual trip"
	}

	h.gate.ManualTrip(req.Reason)
	h.logger.WarnContext(r.Context(), "handler: circuit breaker manually tripped",
		slog.String("reason", req.Reason))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         "circuit breaker manually tripped: " + req.Reason,
		"circuit_breaker": h.gate.Status(),
	})
}

// ListPositions returns open positions with aggregate unrealized PnL.
// GET /api/risk/positions
func (h *RiskHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.gate.Positions()
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions":          positions,
		"count":              len(positions),
		"unrealized_pnl_usd": h.gate.UnrealizedPnL(),
	})
}
