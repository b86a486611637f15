package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oddslab/arbscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport replays scripted messages, then blocks until closed.
type fakeTransport struct {
	mu        sync.Mutex
	msgs      [][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport(msgs ...string) *fakeTransport {
	t := &fakeTransport{closed: make(chan struct{})}
	for _, m := range msgs {
		t.msgs = append(t.msgs, []byte(m))
	}
	return t
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	t.mu.Lock()
	if len(t.msgs) > 0 {
		msg := t.msgs[0]
		t.msgs = t.msgs[1:]
		t.mu.Unlock()
		return msg, nil
	}
	t.mu.Unlock()
	<-t.closed
	return nil, errors.New("transport closed")
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// chanSink captures broadcast payloads for assertions.
type chanSink struct {
	id   string
	ch   chan []byte
	fail bool
}

func newChanSink(id string) *chanSink {
	return &chanSink{id: id, ch: make(chan []byte, 16)}
}

func (s *chanSink) ID() string { return s.id }

func (s *chanSink) Send(msg []byte) error {
	if s.fail {
		return errors.New("send failed")
	}
	s.ch <- msg
	return nil
}

func (s *chanSink) receive(t *testing.T) Envelope {
	t.Helper()
	select {
	case data := <-s.ch:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return Envelope{}
	}
}

func passthrough(_ context.Context, raw []byte) ([]byte, error) {
	return raw, nil
}

func TestBackoff(t *testing.T) {
	base, max := time.Second, 60*time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second}, // 64s capped at max
		{10, 60 * time.Second},
	}
	for _, c := range cases {
		if got := Backoff(base, max, c.attempt); got != c.want {
			t.Fatalf("Backoff(attempt=%d) got=%v want=%v", c.attempt, got, c.want)
		}
	}
}

func TestSourceMessageReachesSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())
	go m.Run(ctx)

	sink := newChanSink("client-1")
	m.AddSink(sink)

	transport := newFakeTransport(`{"price":42}`)
	err := m.RegisterSource(ctx, SourceSpec{
		Name:     "polymarket",
		Endpoint: "wss://example/ws",
		Dial:     func(context.Context, string) (Transport, error) { return transport, nil },
		Handle:   passthrough,
	})
	if err != nil {
		t.Fatalf("RegisterSource error: %v", err)
	}

	env := sink.receive(t)
	if env.Source != "polymarket" {
		t.Fatalf("Source got=%q want=%q", env.Source, "polymarket")
	}
	if string(env.Data) != `{"price":42}` {
		t.Fatalf("Data got=%s want=%s", env.Data, `{"price":42}`)
	}
	if env.Timestamp.IsZero() {
		t.Fatal("expected a receipt timestamp")
	}
}

func TestHandlerErrorSkipsMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())
	go m.Run(ctx)

	sink := newChanSink("client-1")
	m.AddSink(sink)

	transport := newFakeTransport("garbage", `{"ok":true}`)
	err := m.RegisterSource(ctx, SourceSpec{
		Name: "polymarket",
		Dial: func(context.Context, string) (Transport, error) { return transport, nil },
		Handle: func(_ context.Context, raw []byte) ([]byte, error) {
			if string(raw) == "garbage" {
				return nil, errors.New("unparseable")
			}
			return raw, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterSource error: %v", err)
	}

	// The bad message is skipped without tearing down the connection; the
	// good one comes through first and only.
	env := sink.receive(t)
	if string(env.Data) != `{"ok":true}` {
		t.Fatalf("Data got=%s want the good message", env.Data)
	}

	st, ok := m.SourceStatus("polymarket")
	if !ok {
		t.Fatal("expected source to exist")
	}
	if st.Status != domain.SourceConnected {
		t.Fatalf("Status got=%s want=%s", st.Status, domain.SourceConnected)
	}
}

func TestNilHandlerOutputNotBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())
	go m.Run(ctx)

	sink := newChanSink("client-1")
	m.AddSink(sink)

	transport := newFakeTransport("heartbeat", `{"real":1}`)
	m.RegisterSource(ctx, SourceSpec{
		Name: "polymarket",
		Dial: func(context.Context, string) (Transport, error) { return transport, nil },
		Handle: func(_ context.Context, raw []byte) ([]byte, error) {
			if string(raw) == "heartbeat" {
				return nil, nil
			}
			return raw, nil
		},
	})

	env := sink.receive(t)
	if string(env.Data) != `{"real":1}` {
		t.Fatalf("Data got=%s want the non-heartbeat message", env.Data)
	}
}

func TestBroadcastOrderPreserved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())
	go m.Run(ctx)

	sink := newChanSink("client-1")
	m.AddSink(sink)

	for i := 0; i < 5; i++ {
		if err := m.Broadcast("engine", []byte(fmt.Sprintf(`{"seq":%d}`, i))); err != nil {
			t.Fatalf("Broadcast error: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		env := sink.receive(t)
		want := fmt.Sprintf(`{"seq":%d}`, i)
		if string(env.Data) != want {
			t.Fatalf("Data got=%s want=%s", env.Data, want)
		}
	}
}

func TestFailingSinkRemoved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())
	go m.Run(ctx)

	bad := &chanSink{id: "bad", ch: make(chan []byte, 1), fail: true}
	good := newChanSink("good")
	m.AddSink(bad)
	m.AddSink(good)

	if err := m.Broadcast("engine", []byte(`{}`)); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}

	// The good sink still receives; the failing sink is dropped.
	good.receive(t)

	deadline := time.After(2 * time.Second)
	for {
		if m.Status().Clients == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Clients got=%d want=%d", m.Status().Clients, 1)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestQueueFull(t *testing.T) {
	// No drain worker running: the queue fills at its configured size.
	m := NewManager(Config{QueueSize: 1}, testLogger())

	if err := m.Broadcast("engine", []byte(`{}`)); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
	if err := m.Broadcast("engine", []byte(`{}`)); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("error got=%v want=%v", err, domain.ErrQueueFull)
	}
}

func TestMaxAttemptsDisconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(Config{
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		MaxAttempts: 3,
	}, testLogger())

	err := m.RegisterSource(ctx, SourceSpec{
		Name: "flaky",
		Dial: func(context.Context, string) (Transport, error) {
			return nil, errors.New("connection refused")
		},
		Handle: passthrough,
	})
	if err != nil {
		t.Fatalf("RegisterSource error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		st, ok := m.SourceStatus("flaky")
		if !ok {
			t.Fatal("expected source to stay registered after giving up")
		}
		if st.Status == domain.SourceDisconnected {
			if st.ReconnectAttempts != 3 {
				t.Fatalf("ReconnectAttempts got=%d want=%d", st.ReconnectAttempts, 3)
			}
			if st.Error == "" {
				t.Fatal("expected the last error to stay visible")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("source never disconnected, status=%s", st.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRegisterSourceValidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())

	err := m.RegisterSource(ctx, SourceSpec{Name: ""})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("error got=%v want=%v", err, domain.ErrInvalidConfig)
	}

	spec := SourceSpec{
		Name:   "dup",
		Dial:   func(context.Context, string) (Transport, error) { return newFakeTransport(), nil },
		Handle: passthrough,
	}
	if err := m.RegisterSource(ctx, spec); err != nil {
		t.Fatalf("RegisterSource error: %v", err)
	}
	if err := m.RegisterSource(ctx, spec); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("error got=%v want=%v", err, domain.ErrAlreadyExists)
	}
}

func TestRemoveSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())

	transport := newFakeTransport()
	m.RegisterSource(ctx, SourceSpec{
		Name:   "polymarket",
		Dial:   func(context.Context, string) (Transport, error) { return transport, nil },
		Handle: passthrough,
	})

	if err := m.RemoveSource("polymarket"); err != nil {
		t.Fatalf("RemoveSource error: %v", err)
	}
	if _, ok := m.SourceStatus("polymarket"); ok {
		t.Fatal("expected source to be gone")
	}
	if err := m.RemoveSource("polymarket"); !errors.Is(err, domain.ErrSourceNotFound) {
		t.Fatalf("error got=%v want=%v", err, domain.ErrSourceNotFound)
	}
}

func TestStatusSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(DefaultConfig(), testLogger())
	go m.Run(ctx)

	m.AddSink(newChanSink("client-1"))
	m.RegisterSource(ctx, SourceSpec{
		Name:          "limitless",
		Endpoint:      "https://api.limitless.exchange",
		Subscriptions: []string{"markets"},
		Dial:          func(context.Context, string) (Transport, error) { return newFakeTransport(), nil },
		Handle:        passthrough,
	})

	st := m.Status()
	if st.Clients != 1 {
		t.Fatalf("Clients got=%d want=%d", st.Clients, 1)
	}
	if len(st.Sources) != 1 {
		t.Fatalf("Sources got=%d want=%d", len(st.Sources), 1)
	}
	if st.Sources[0].Name != "limitless" {
		t.Fatalf("Name got=%q want=%q", st.Sources[0].Name, "limitless")
	}
	if len(st.Sources[0].Subscriptions) != 1 {
		t.Fatalf("Subscriptions got=%v want one entry", st.Sources[0].Subscriptions)
	}
}
