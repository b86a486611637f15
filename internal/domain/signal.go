package domain

import "time"

// SignalStrength buckets a signal by net profit percentage.
type SignalStrength string

const (
	SignalWeak       SignalStrength = "weak"
	SignalModerate   SignalStrength = "moderate"
	SignalStrong     SignalStrength = "strong"
	SignalVeryStrong SignalStrength = "very_strong"
)

// Recommendation is the suggested action for a signal.
type Recommendation string

const (
	RecommendExecute Recommendation = "execute"
	RecommendWait    Recommendation = "wait"
	RecommendSkip    Recommendation = "skip"
)

// Urgency indicates how quickly a recommendation should be acted on.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencySoon      Urgency = "soon"
	UrgencyMonitor   Urgency = "monitor"
)

// Signal is the actionable view of an opportunity, generated exactly once
// per new opportunity key. It stays valid for a fixed window after
// generation.
type Signal struct {
	ID              string         `json:"id"`
	OpportunityID   string         `json:"opportunity_id"`
	Type            string         `json:"type"` // "entry"
	Strength        SignalStrength `json:"strength"`
	ConfidenceScore float64        `json:"confidence_score"` // 0-100
	EntryPriceCents float64        `json:"entry_price_cents"`
	TargetProfitPct float64        `json:"target_profit_pct"`
	StopLossPct     float64        `json:"stop_loss_pct"`
	Recommendation  Recommendation `json:"recommendation"`
	Urgency         Urgency        `json:"urgency"`
	Rationale       string         `json:"rationale"`
	GeneratedAt     time.Time      `json:"generated_at"`
	ValidUntil      time.Time      `json:"valid_until"`
	Status          string         `json:"status"`
}

// Valid reports whether the signal is still inside its validity window.
func (s Signal) Valid(now time.Time) bool {
	return now.Before(s.ValidUntil)
}
