package channels

import (
	"context"
	"time"

	"gembot/pkg/protocol"
)

// ChannelAdapter defines the interface for all channel implementations
type ChannelAdapter interface {
	// Name returns the human-readable name for this adapter
	Name() string

	// Type returns the adapter type (e.g., "telegram")
	Type() string

	// Start initializes and starts the adapter
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter
	Stop() error

	// SendReply sends an outgoing reply through this channel
	SendReply(reply *protocol.Reply) error

	// ReceiveEvents returns a channel for incoming user events
	ReceiveEvents() <-chan *protocol.Event

	// Status returns the current adapter status
	Status() ChannelStatus

	// IsHealthy returns whether the adapter is functioning properly
	IsHealthy() bool
}

// ChannelStatus represents the current status of a channel adapter
type ChannelStatus struct {
	Status    StatusCode             `json:"status"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// StatusCode represents the various states an adapter can be in
type StatusCode string

const (
	StatusInitializing StatusCode = "initializing"
	StatusOnline       StatusCode = "online"
	StatusOffline      StatusCode = "offline"
	StatusError        StatusCode = "error"
)

// TypingIndicator is an optional interface for adapters that can show
// progress while a response is being prepared
type TypingIndicator interface {
	// SendTypingIndicator shows a "typing" hint to the user
	SendTypingIndicator(identity string) error

	// SendUploadIndicator shows an "uploading photo" hint to the user
	SendUploadIndicator(identity string) error
}

// PhotoFetcher is an optional interface for adapters that can download
// photo payloads referenced by incoming events
type PhotoFetcher interface {
	FetchPhoto(ctx context.Context, photoRef string) ([]byte, error)
}
