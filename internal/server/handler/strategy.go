package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/strategy"
)

// StrategyStore defines the registry methods the strategy endpoints require.
type StrategyStore interface {
	All() map[domain.Strategy]strategy.Settings
	Settings(s domain.Strategy) (strategy.Settings, bool)
	SetEnabled(s domain.Strategy, enabled bool)
}

// StrategyHandler serves per-strategy runtime settings endpoints.
type StrategyHandler struct {
	registry StrategyStore
	logger   *slog.Logger
}

// NewStrategyHandler creates a StrategyHandler over the given registry.
func NewStrategyHandler(registry StrategyStore, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{registry: registry, logger: logger}
}

// ListStrategies returns the settings of every known strategy.
// GET /api/strategies
func (h *StrategyHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": h.registry.All(),
	})
}

// updateStrategyRequest toggles one strategy.
type updateStrategyRequest struct {
	Enabled bool `json:"enabled"`
}

// UpdateStrategy enables or disables one strategy at runtime.
// PUT /api/strategies/{name}
func (h *StrategyHandler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	name := domain.Strategy(r.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing strategy name")
		return
	}
	if _, ok := h.registry.Settings(name); !ok {
		writeError(w, http.StatusNotFound, "unknown strategy")
		return
	}

	var req updateStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.registry.SetEnabled(name, req.Enabled)
	h.logger.InfoContext(r.Context(), "handler: strategy toggled",
		slog.String("strategy", string(name)),
		slog.Bool("enabled", req.Enabled))

	settings, _ := h.registry.Settings(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "updated",
		"strategy": name,
		"settings": settings,
	})
}
