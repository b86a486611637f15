package domain

import "time"

// SourceStatus is the externally observable state of a source connection.
type SourceStatus string

const (
	SourceConnecting   SourceStatus = "connecting"
	SourceConnected    SourceStatus = "connected"
	SourceDisconnected SourceStatus = "disconnected"
	SourceReconnecting SourceStatus = "reconnecting"
	SourceError        SourceStatus = "error"
)

// SourceInfo is the status-query view of one source connection.
type SourceInfo struct {
	Name              string       `json:"name"`
	Endpoint          string       `json:"endpoint"`
	Status            SourceStatus `json:"status"`
	LastMessageAt     time.Time    `json:"last_message_at,omitzero"`
	ReconnectAttempts int          `json:"reconnect_attempts"`
	Error             string       `json:"error,omitempty"`
	Subscriptions     []string     `json:"subscriptions,omitempty"`
}

// Sink is an opaque outbound consumer of broadcasts. A Send failure causes
// the sink to be dropped from the fan-out set; a reconnecting client is
// expected to re-register.
type Sink interface {
	ID() string
	Send(msg []byte) error
}
