package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/engine"
	"github.com/oddslab/arbscan/internal/execution"
	"github.com/oddslab/arbscan/internal/risk"
	"github.com/oddslab/arbscan/internal/strategy"
)

// Detector defines the engine methods the arbitrage endpoints require.
type Detector interface {
	Opportunities(f engine.Filter) []domain.Opportunity
	Opportunity(id string) (domain.Opportunity, bool)
	Signals(limit int) []domain.Signal
	Alerts(unackedOnly bool) []domain.Alert
	AcknowledgeAlert(id string) bool
	OrderBook(marketID string) (domain.OrderBook, bool)
	YesPrices() map[string]float64
}

// TradeGate validates proposed trade sizes against risk limits. An approval
// reserves position headroom, so callers that do not go on to trade must
// hand the reservation back.
type TradeGate interface {
	ValidateTrade(marketID string, sizeUSD, estimatedLossUSD float64) domain.ValidationResult
	ReleaseReservation(marketID string, sizeUSD float64)
	Status() risk.Status
}

const (
	defaultAnalyzeSizeUSD = 1000.0
	defaultMaxLossUSD     = 5.0
)

// ArbitrageHandler serves opportunity, signal, alert, and analysis endpoints.
type ArbitrageHandler struct {
	detector Detector
	calc     *execution.Calculator
	gate     TradeGate
	logger   *slog.Logger
}

// NewArbitrageHandler creates an ArbitrageHandler with the given detector,
// VWAP calculator, and risk gate.
func NewArbitrageHandler(detector Detector, calc *execution.Calculator, gate TradeGate, logger *slog.Logger) *ArbitrageHandler {
	return &ArbitrageHandler{detector: detector, calc: calc, gate: gate, logger: logger}
}

// listOpportunitiesResponse wraps the opportunity list response.
type listOpportunitiesResponse struct {
	Opportunities  []domain.Opportunity `json:"opportunities"`
	Count          int                  `json:"count"`
	Timestamp      string               `json:"timestamp"`
	CircuitBreaker risk.Status          `json:"circuit_breaker_status"`
}

// ListOpportunities returns active opportunities sorted by net profit.
// GET /api/arbitrage/opportunities?min_profit=0.5&max_risk=5&strategy=single_market&limit=50
func (h *ArbitrageHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := engine.Filter{
		Strategy:       domain.Strategy(q.Get("strategy")),
		MinProfitCents: queryFloat(r, "min_profit", 0),
		MaxRisk:        queryInt(r, "max_risk", 0, 10),
	}

	opps := h.detector.Opportunities(filter)

	limit := queryInt(r, "limit", 50, 200)
	if len(opps) > limit {
		opps = opps[:limit]
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{
		Opportunities:  opps,
		Count:          len(opps),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		CircuitBreaker: h.gate.Status(),
	})
}

// GetOpportunity returns a single opportunity by id.
// GET /api/arbitrage/opportunities/{id}
func (h *ArbitrageHandler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}
	opp, ok := h.detector.Opportunity(id)
	if !ok {
		writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

// ListSignals returns the most recent signals, newest first.
// GET /api/arbitrage/signals?limit=20
func (h *ArbitrageHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 200)

	signals := h.detector.Signals(limit)
	if signals == nil {
		signals = []domain.Signal{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"signals": signals,
		"count":   len(signals),
	})
}

// ListAlerts returns alerts, optionally only unacknowledged ones.
// GET /api/arbitrage/alerts?unacked=true
func (h *ArbitrageHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	unacked := r.URL.Query().Get("unacked") == "true"

	alerts := h.detector.Alerts(unacked)
	if alerts == nil {
		alerts = []domain.Alert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// AcknowledgeAlert marks an alert as acknowledged.
// POST /api/arbitrage/alerts/{id}/acknowledge
func (h *ArbitrageHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing alert id")
		return
	}
	if !h.detector.AcknowledgeAlert(id) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"acknowledged": true,
		"alert_id":     id,
	})
}

// riskAssessment grades an opportunity's liquidity, execution, and timing
// risk on a 1-10 scale and rolls them into one label.
type riskAssessment struct {
	OverallRisk   string   `json:"overall_risk"`
	LiquidityRisk int      `json:"liquidity_risk"`
	ExecutionRisk int      `json:"execution_risk"`
	TimingRisk    int      `json:"timing_risk"`
	Warnings      []string `json:"warnings"`
}

// executionPlan sizes both legs of an approved trade.
type executionPlan struct {
	YesLegSizeUSD     float64 `json:"yes_leg_size_usd"`
	NoLegSizeUSD      float64 `json:"no_leg_size_usd"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	ExpectedProfitUSD float64 `json:"expected_profit_usd"`
}

type revalidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// analyzeResponse is the full pre-trade analysis for one opportunity.
type analyzeResponse struct {
	OpportunityID         string                  `json:"opportunity_id"`
	CanExecute            bool                    `json:"can_execute"`
	OptimalSizeUSD        float64                 `json:"optimal_size_usd"`
	ExpectedSlippageCents float64                 `json:"expected_slippage_cents"`
	VWAPYesCents          float64                 `json:"vwap_yes_cents"`
	VWAPNoCents           float64                 `json:"vwap_no_cents"`
	ConfidenceScore       float64                 `json:"confidence_score"`
	RiskAssessment        riskAssessment          `json:"risk_assessment"`
	ExecutionPlan         *executionPlan          `json:"execution_plan"`
	Validation            domain.ValidationResult `json:"validation"`
	Revalidation          revalidationResult      `json:"revalidation"`
	CircuitBreaker        risk.Status             `json:"circuit_breaker"`
}

// Analyze sizes an opportunity against live order book depth and the risk
// gate: VWAP both legs, cap at the thinner side, validate the optimal size
// against the circuit breaker, and recompute confidence with the realized
// slippage. Analysis never trades, so an approved reservation is released
// before responding.
// GET /api/arbitrage/analyze/{id}?size=1000
func (h *ArbitrageHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}
	opp, ok := h.detector.Opportunity(id)
	if !ok {
		writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}

	size := queryFloat(r, "size", defaultAnalyzeSizeUSD)
	if size <= 0 {
		writeError(w, http.StatusBadRequest, "size must be positive")
		return
	}

	yesBook, okYes := h.detector.OrderBook(opp.MarketID + "-yes")
	noBook, okNo := h.detector.OrderBook(opp.MarketID + "-no")
	if !okYes || !okNo {
		h.logger.WarnContext(r.Context(), "handler: analyze missing order books",
			slog.String("market_id", opp.MarketID))
		writeError(w, http.StatusNotFound, "order book not available for market")
		return
	}

	vwap := h.calc.ArbitrageVWAP(yesBook, noBook, size)
	optimal := vwap.CombinedOptimalSizeUSD

	canExecute := vwap.CanExecute && optimal >= opp.MinSizeUSD

	validation := h.gate.ValidateTrade(opp.MarketID, optimal, defaultMaxLossUSD)
	if validation.CanExecute {
		h.gate.ReleaseReservation(opp.MarketID, optimal)
	} else {
		canExecute = false
	}

	confidence := strategy.Confidence(
		opp.NetProfitCents, opp.AvailableLiquidityUSD, opp.RiskScore, vwap.TotalSlippageCents)

	valid, reason := strategy.Revalidate(opp, h.detector.YesPrices(), 0, time.Now())

	var plan *executionPlan
	if canExecute {
		plan = &executionPlan{
			YesLegSizeUSD: optimal,
			NoLegSizeUSD:  optimal,
			TotalCostUSD: optimal*vwap.YesLeg.VWAPCents/100 +
				optimal*vwap.NoLeg.VWAPCents/100,
			ExpectedProfitUSD: optimal*(1-vwap.YesLeg.VWAPCents/100) +
				optimal*(1-vwap.NoLeg.VWAPCents/100),
		}
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		OpportunityID:         id,
		CanExecute:            canExecute,
		OptimalSizeUSD:        optimal,
		ExpectedSlippageCents: vwap.TotalSlippageCents,
		VWAPYesCents:          vwap.YesLeg.VWAPCents,
		VWAPNoCents:           vwap.NoLeg.VWAPCents,
		ConfidenceScore:       confidence,
		RiskAssessment:        assessRisk(opp, vwap.TotalSlippageCents),
		ExecutionPlan:         plan,
		Validation:            validation,
		Revalidation:          revalidationResult{Valid: valid, Reason: reason},
		CircuitBreaker:        h.gate.Status(),
	})
}

// assessRisk grades liquidity, execution, and timing risk for an
// opportunity at the given expected slippage. Weights favor execution risk.
func assessRisk(opp domain.Opportunity, slippageCents float64) riskAssessment {
	liquidityRisk := 3
	if opp.AvailableLiquidityUSD < 1000 {
		liquidityRisk = 8
	}
	executionRisk := 3
	if slippageCents > 2 {
		executionRisk = 7
	}
	timingRisk := 2
	if opp.TimeSensitive {
		timingRisk = 6
	}

	score := float64(liquidityRisk)*0.3 + float64(executionRisk)*0.4 + float64(timingRisk)*0.3

	overall := "extreme"
	switch {
	case score <= 3:
		overall = "low"
	case score <= 5:
		overall = "medium"
	case score <= 7:
		overall = "high"
	}

	warnings := []string{}
	if liquidityRisk >= 7 {
		warnings = append(warnings, "Low liquidity - high slippage expected")
	}
	if executionRisk >= 7 {
		warnings = append(warnings, "High expected slippage")
	}
	if timingRisk >= 6 {
		warnings = append(warnings, "Time-sensitive opportunity - requires fast execution")
	}

	return riskAssessment{
		OverallRisk:   overall,
		LiquidityRisk: liquidityRisk,
		ExecutionRisk: executionRisk,
		TimingRisk:    timingRisk,
		Warnings:      warnings,
	}
}
