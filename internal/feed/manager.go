// Package feed maintains the pool of reconnecting source connections and
// fans handler output out to client sinks through a single broadcast
// queue. The manager owns no wire protocol itself; venue adapters supply a
// Dial function and a Handler per source.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
	"github.com/oddslab/arbscan/internal/metrics"
)

// Transport is one live connection to a source. ReadMessage blocks until a
// message arrives or the transport fails; Close must unblock a pending
// read.
type Transport interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a transport to an endpoint, performing any subscribe
// handshake the venue needs.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// Handler processes one inbound message. A non-nil payload is broadcast to
// every sink; a nil payload with nil error means the message produced
// nothing to forward. An error skips the message without tearing down the
// connection.
type Handler func(ctx context.Context, raw []byte) ([]byte, error)

// SourceSpec describes one source registration.
type SourceSpec struct {
	Name          string
	Endpoint      string
	Subscriptions []string
	Dial          Dialer
	Handle        Handler
}

// Config tunes reconnection and queueing.
type Config struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	QueueSize   int
}

// DefaultConfig returns the standard reconnection parameters.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		MaxAttempts: 10,
		QueueSize:   256,
	}
}

// Envelope is the broadcast wire format: handler output tagged with its
// source and wall-clock receipt time.
type Envelope struct {
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Status summarizes the manager for health reporting.
type Status struct {
	Sources []domain.SourceInfo `json:"sources"`
	Clients int                 `json:"clients"`
	Running bool                `json:"running"`
}

type source struct {
	info   domain.SourceInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns N source connections and M client sinks. Source loops and
// the broadcast worker are explicit tasks cancelled through contexts; all
// externally visible state is behind one mutex.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	queue chan Envelope

	mu      sync.RWMutex
	sources map[string]*source
	sinks   map[string]domain.Sink
	running bool
}

// NewManager builds a manager with the given reconnection parameters.
// Zero-valued config fields fall back to defaults.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "feed_manager")),
		now:     time.Now,
		queue:   make(chan Envelope, cfg.QueueSize),
		sources: make(map[string]*source),
		sinks:   make(map[string]domain.Sink),
	}
}

// Run drains the broadcast queue and fans each envelope out to every sink
// until ctx is cancelled. A sink whose send fails is removed; a
// reconnecting client is expected to re-register.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.InfoContext(ctx, "broadcast worker started", slog.Int("queue_size", m.cfg.QueueSize))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-m.queue:
			metrics.BroadcastQueueDepth.Set(float64(len(m.queue)))
			m.fanOut(ctx, env)
		}
	}
}

func (m *Manager) fanOut(ctx context.Context, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		m.logger.ErrorContext(ctx, "marshal broadcast envelope", slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	var dropped []string
	for id, sink := range m.sinks {
		if err := sink.Send(data); err != nil {
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		delete(m.sinks, id)
	}
	m.mu.Unlock()

	metrics.MessagesBroadcastTotal.Inc()
	for _, id := range dropped {
		metrics.SinkDropsTotal.Inc()
		m.logger.WarnContext(ctx, "sink dropped after send failure", slog.String("sink_id", id))
	}
}

// Broadcast enqueues a payload for fan-out on behalf of an internal
// producer (e.g. the detection engine's snapshots). Returns ErrQueueFull
// when the queue cannot accept the payload without blocking.
func (m *Manager) Broadcast(sourceName string, data []byte) error {
	return m.enqueue(Envelope{Source: sourceName, Timestamp: m.now(), Data: data})
}

func (m *Manager) enqueue(env Envelope) error {
	select {
	case m.queue <- env:
		metrics.BroadcastQueueDepth.Set(float64(len(m.queue)))
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// AddSink registers a client sink for broadcasts. A sink with the same ID
// replaces the previous registration.
func (m *Manager) AddSink(sink domain.Sink) {
	m.mu.Lock()
	m.sinks[sink.ID()] = sink
	total := len(m.sinks)
	m.mu.Unlock()
	m.logger.Info("sink registered", slog.String("sink_id", sink.ID()), slog.Int("total_sinks", total))
}

// RemoveSink drops a client sink. Idempotent.
func (m *Manager) RemoveSink(id string) {
	m.mu.Lock()
	_, ok := m.sinks[id]
	delete(m.sinks, id)
	total := len(m.sinks)
	m.mu.Unlock()
	if ok {
		m.logger.Info("sink removed", slog.String("sink_id", id), slog.Int("total_sinks", total))
	}
}

// RegisterSource starts the connect-and-receive loop for a source. The
// loop runs until ctx is cancelled, RemoveSource is called, or the
// reconnection budget is exhausted. Failures surface through Status, never
// synchronously.
func (m *Manager) RegisterSource(ctx context.Context, spec SourceSpec) error {
	if spec.Name == "" || spec.Dial == nil || spec.Handle == nil {
		return domain.ErrInvalidConfig
	}

	m.mu.Lock()
	if _, ok := m.sources[spec.Name]; ok {
		m.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s := &source{
		info: domain.SourceInfo{
			Name:          spec.Name,
			Endpoint:      spec.Endpoint,
			Status:        domain.SourceConnecting,
			Subscriptions: spec.Subscriptions,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.sources[spec.Name] = s
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "source registered",
		slog.String("source", spec.Name),
		slog.String("endpoint", spec.Endpoint))

	go m.runSource(loopCtx, s, spec)
	return nil
}

// RemoveSource cancels a source's loop and drops its registration.
// Idempotent; returns ErrSourceNotFound when the source was never
// registered.
func (m *Manager) RemoveSource(name string) error {
	m.mu.Lock()
	s, ok := m.sources[name]
	if ok {
		delete(m.sources, name)
	}
	m.mu.Unlock()
	if !ok {
		return domain.ErrSourceNotFound
	}

	s.cancel()
	<-s.done
	m.logger.Info("source removed", slog.String("source", name))
	return nil
}

// runSource is the per-source task: dial, receive until failure, back off,
// retry. Both dial and receive failures consume the attempt budget; a
// successful connect resets it.
func (m *Manager) runSource(ctx context.Context, s *source, spec SourceSpec) {
	defer close(s.done)

	attempts := 0
	for {
		if ctx.Err() != nil {
			m.setStatus(s, domain.SourceDisconnected)
			return
		}

		m.setStatus(s, domain.SourceConnecting)
		transport, err := spec.Dial(ctx, spec.Endpoint)
		if err == nil {
			attempts = 0
			m.markConnected(s)
			metrics.SetConnectionStatus(spec.Name, true)
			m.logger.InfoContext(ctx, "source connected", slog.String("source", spec.Name))

			err = m.receive(ctx, s, spec, transport)
			transport.Close()
			metrics.SetConnectionStatus(spec.Name, false)
			if ctx.Err() != nil {
				m.setStatus(s, domain.SourceDisconnected)
				return
			}
		}

		attempts++
		m.setError(s, attempts, err)
		metrics.ReconnectsTotal.WithLabelValues(spec.Name).Inc()

		if attempts >= m.cfg.MaxAttempts {
			// Keep the last error visible for diagnostics.
			m.setStatus(s, domain.SourceDisconnected)
			m.logger.ErrorContext(ctx, "max reconnection attempts reached",
				slog.String("source", spec.Name),
				slog.Int("attempts", attempts))
			return
		}

		delay := Backoff(m.cfg.BaseDelay, m.cfg.MaxDelay, attempts)
		m.setStatus(s, domain.SourceReconnecting)
		m.logger.WarnContext(ctx, "source connection failed, retrying",
			slog.String("source", spec.Name),
			slog.Int("attempt", attempts),
			slog.Duration("delay", delay),
			slog.String("error", errText(err)))

		select {
		case <-ctx.Done():
			m.setStatus(s, domain.SourceDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// receive pumps messages from the transport until it fails or ctx is
// cancelled. Handler errors skip the message; they never tear down the
// connection.
func (m *Manager) receive(ctx context.Context, s *source, spec SourceSpec, transport Transport) error {
	// Close unblocks a pending ReadMessage when the loop is cancelled.
	stop := context.AfterFunc(ctx, func() { transport.Close() })
	defer stop()

	for {
		raw, err := transport.ReadMessage()
		if err != nil {
			return err
		}

		receivedAt := m.now()
		m.touch(s, receivedAt)
		metrics.MessagesReceived.WithLabelValues(spec.Name).Inc()

		out, err := spec.Handle(ctx, raw)
		if err != nil {
			m.logger.WarnContext(ctx, "message handling failed",
				slog.String("source", spec.Name),
				slog.String("error", err.Error()))
			continue
		}
		if out == nil {
			continue
		}

		if err := m.enqueue(Envelope{Source: spec.Name, Timestamp: receivedAt, Data: out}); err != nil {
			m.logger.WarnContext(ctx, "broadcast queue full, dropping message",
				slog.String("source", spec.Name))
		}
	}
}

// Status reports every source's connection state plus sink count, for
// health endpoints and broadcast snapshots.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sources := make([]domain.SourceInfo, 0, len(m.sources))
	for _, s := range m.sources {
		sources = append(sources, s.info)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })

	return Status{
		Sources: sources,
		Clients: len(m.sinks),
		Running: m.running,
	}
}

// SourceStatus returns one source's connection state.
func (m *Manager) SourceStatus(name string) (domain.SourceInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[name]
	if !ok {
		return domain.SourceInfo{}, false
	}
	return s.info, true
}

func (m *Manager) setStatus(s *source, status domain.SourceStatus) {
	m.mu.Lock()
	s.info.Status = status
	m.mu.Unlock()
}

func (m *Manager) markConnected(s *source) {
	m.mu.Lock()
	s.info.Status = domain.SourceConnected
	s.info.Error = ""
	s.info.ReconnectAttempts = 0
	m.mu.Unlock()
}

func (m *Manager) setError(s *source, attempts int, err error) {
	m.mu.Lock()
	s.info.Status = domain.SourceError
	s.info.Error = errText(err)
	s.info.ReconnectAttempts = attempts
	m.mu.Unlock()
}

func (m *Manager) touch(s *source, at time.Time) {
	m.mu.Lock()
	s.info.LastMessageAt = at
	m.mu.Unlock()
}

// Backoff returns the delay before reconnect attempt n (1-based):
// min(base * 2^(n-1), max).
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func errText(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
