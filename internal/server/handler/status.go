package handler

import (
	"net/http"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/engine"
	"github.com/oddslab/arbscan/internal/feed"
	"github.com/oddslab/arbscan/internal/risk"
)

// EngineStatus reports detection engine health.
type EngineStatus interface {
	Status() engine.Status
}

// FeedStatus reports streaming source and client-sink state.
type FeedStatus interface {
	Status() feed.Status
}

// PollerStatus reports the state of one polled source.
type PollerStatus interface {
	Status() domain.SourceInfo
}

// BreakerStatus reports the risk gate summary.
type BreakerStatus interface {
	Status() risk.Status
}

// StatusHandler serves the combined service status: engine counters, data
// source connections, and the circuit breaker summary.
type StatusHandler struct {
	engine  EngineStatus
	feed    FeedStatus
	poller  PollerStatus // optional; nil when no polled source is configured
	breaker BreakerStatus
}

// NewStatusHandler creates a StatusHandler over the given status providers.
func NewStatusHandler(eng EngineStatus, fd FeedStatus, breaker BreakerStatus) *StatusHandler {
	return &StatusHandler{engine: eng, feed: fd, breaker: breaker}
}

// WithPoller adds a polled source to the connection report.
func (h *StatusHandler) WithPoller(p PollerStatus) *StatusHandler {
	h.poller = p
	return h
}

// statusResponse is the combined status payload.
type statusResponse struct {
	Engine         engine.Status     `json:"engine"`
	Connections    connectionsStatus `json:"connections"`
	CircuitBreaker risk.Status       `json:"circuit_breaker"`
}

type connectionsStatus struct {
	Sources []domain.SourceInfo `json:"sources"`
	Clients int                 `json:"clients"`
	Running bool                `json:"running"`
}

// GetStatus responds with engine counters, every data source connection
// (streamed and polled), and the circuit breaker summary.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	fs := h.feed.Status()

	conns := connectionsStatus{
		Sources: fs.Sources,
		Clients: fs.Clients,
		Running: fs.Running,
	}
	if h.poller != nil {
		conns.Sources = append(conns.Sources, h.poller.Status())
	}
	if conns.Sources == nil {
		conns.Sources = []domain.SourceInfo{}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Engine:         h.engine.Status(),
		Connections:    conns,
		CircuitBreaker: h.breaker.Status(),
	})
}
