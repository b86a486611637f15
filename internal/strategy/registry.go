package strategy

import (
	"sync"

	"github.com/oddslab/arbscan/internal/domain"
)

// Settings holds the per-strategy tuning knobs. Enabled gates whether the
// engine runs the detector at all. MinProfitCents and MaxRiskLevel are
// advisory metadata surfaced through the API; detectors themselves emit
// every opportunity with positive profit.
type Settings struct {
	Enabled        bool    `json:"enabled"`
	MinProfitCents float64 `json:"min_profit_cents"`
	MaxRiskLevel   int     `json:"max_risk_level"`
	FeesCents      float64 `json:"fees_cents"`
	Description    string  `json:"description"`
}

// Registry tracks which strategies are active and their settings. Safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	settings map[domain.Strategy]Settings
}

// NewRegistry returns a registry seeded with the default settings for every
// known strategy.
func NewRegistry() *Registry {
	return &Registry{
		settings: map[domain.Strategy]Settings{
			domain.StrategySingleMarket: {
				Enabled:        true,
				MinProfitCents: 2,
				MaxRiskLevel:   1,
				FeesCents:      3,
				Description:    "YES + NO < $1 on the same market. Binary outcomes only.",
			},
			domain.StrategyCrossPlatform: {
				Enabled:        true,
				MinProfitCents: 3,
				MaxRiskLevel:   2,
				FeesCents:      3,
				Description:    "YES on one platform + NO on the other < $1 for the same event.",
			},
			domain.StrategyMultiOutcome: {
				Enabled:        true,
				MinProfitCents: 3,
				MaxRiskLevel:   2,
				FeesCents:      3,
				Description:    "Sum of all YES outcomes < $1. Markets with 3+ candidates.",
			},
			domain.StrategyThreeWay: {
				Enabled:        true,
				MinProfitCents: 3,
				MaxRiskLevel:   3,
				FeesCents:      3,
				Description:    "Cheaper two-leg cover of a three-way sports market < $1.",
			},
		},
	}
}

// Enabled reports whether the strategy should be scanned. Unknown
// strategies are disabled.
func (r *Registry) Enabled(s domain.Strategy) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[s].Enabled
}

// SetEnabled toggles a strategy. Toggling an unknown strategy is a no-op.
func (r *Registry) SetEnabled(s domain.Strategy, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.settings[s]
	if !ok {
		return
	}
	cfg.Enabled = enabled
	r.settings[s] = cfg
}

// Apply replaces the tunable fields for a known strategy, preserving its
// description. Applying to an unknown strategy is a no-op.
func (r *Registry) Apply(s domain.Strategy, set Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.settings[s]
	if !ok {
		return
	}
	cur.Enabled = set.Enabled
	cur.MinProfitCents = set.MinProfitCents
	cur.MaxRiskLevel = set.MaxRiskLevel
	cur.FeesCents = set.FeesCents
	r.settings[s] = cur
}

// Settings returns the current settings for a strategy.
func (r *Registry) Settings(s domain.Strategy) (Settings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.settings[s]
	return cfg, ok
}

// All returns a snapshot of every strategy's settings.
func (r *Registry) All() map[domain.Strategy]Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.Strategy]Settings, len(r.settings))
	for s, cfg := range r.settings {
		out[s] = cfg
	}
	return out
}

// EnabledStrategies lists the strategies the engine should scan, in the
// canonical order.
func (r *Registry) EnabledStrategies() []domain.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Strategy
	for _, s := range domain.Strategies() {
		if r.settings[s].Enabled {
			out = append(out, s)
		}
	}
	return out
}
