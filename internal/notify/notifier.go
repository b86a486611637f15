// Package notify delivers arbitrage alerts to operator channels. Alerts are
// dispatched to every registered sender and filtered by a priority floor so
// operators only hear about spreads worth acting on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oddslab/arbscan/internal/domain"
)

// Sender is one delivery channel for alerts.
type Sender interface {
	// Send delivers a single alert.
	Send(ctx context.Context, alert domain.Alert) error
	// Name returns the channel identifier (e.g. "telegram").
	Name() string
}

// Notifier fans alerts out to its senders. Alerts below the configured
// minimum priority are dropped before dispatch.
type Notifier struct {
	senders     []Sender
	minPriority domain.AlertPriority
	logger      *slog.Logger
}

// NewNotifier creates a Notifier that delivers to the given senders. An empty
// minPriority admits every alert.
func NewNotifier(senders []Sender, minPriority domain.AlertPriority, logger *slog.Logger) *Notifier {
	if minPriority == "" {
		minPriority = domain.AlertLow
	}
	return &Notifier{
		senders:     senders,
		minPriority: minPriority,
		logger:      logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every sender when it meets the priority floor.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) error {
	if alert.Priority.Rank() < n.minPriority.Rank() {
		n.logger.DebugContext(ctx, "alert below notification priority",
			slog.String("alert_id", alert.ID),
			slog.String("priority", string(alert.Priority)),
		)
		return nil
	}
	return n.dispatch(ctx, alert)
}

// Announce delivers an operational message regardless of the priority floor.
// Used for lifecycle events such as startup and circuit breaker trips.
func (n *Notifier) Announce(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, domain.Alert{
		Priority: domain.AlertHigh,
		Category: "system",
		Title:    title,
		Message:  message,
	})
}

// dispatch sends the alert through every sender. Errors are collected and
// returned combined; one failing channel does not block the others.
func (n *Notifier) dispatch(ctx context.Context, alert domain.Alert) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("title", alert.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
