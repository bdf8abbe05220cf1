package domain

import "context"

// InboundMessage is a message received from a channel (user input).
type InboundMessage struct {
	SessionID   string
	Content     string
	ChannelName string

	// Optional channel-specific context.
	SenderID string
	ThreadID string
	Metadata map[string]string
}

// OutboundMessage is a message sent back to a channel (pipeline reply).
type OutboundMessage struct {
	SessionID string
	Content   string
	IsError   bool
	ThreadID  string
}

// MessageHandler is a callback the channel invokes when it receives input.
type MessageHandler func(ctx context.Context, msg InboundMessage) error

// Channel is the interface for user-facing I/O adapters.
type Channel interface {
	Start(ctx context.Context, handler MessageHandler) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg OutboundMessage) error
	Name() string
}
