package domain

import "time"

// AlertPriority classifies how urgently an alert should be surfaced.
type AlertPriority string

const (
	AlertLow    AlertPriority = "low"
	AlertMedium AlertPriority = "medium"
	AlertHigh   AlertPriority = "high"
)

// Rank orders priorities for threshold comparisons (low < medium < high).
func (p AlertPriority) Rank() int {
	switch p {
	case AlertHigh:
		return 2
	case AlertMedium:
		return 1
	default:
		return 0
	}
}

// Alert is raised when an opportunity's spread crosses the high-spread
// threshold. Acknowledged is the only mutable field, flipped by an
// explicit acknowledge call.
type Alert struct {
	ID            string        `json:"id"`
	OpportunityID string        `json:"opportunity_id"`
	Priority      AlertPriority `json:"priority"`
	Category      string        `json:"category"`
	Title         string        `json:"title"`
	Message       string        `json:"message"`
	CreatedAt     time.Time     `json:"created_at"`
	Acknowledged  bool          `json:"acknowledged"`
}
