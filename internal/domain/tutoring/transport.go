package tutoring

import "context"

// ConnectConfig is what a transport needs to open a conversation.
type ConnectConfig struct {
	SessionID    string
	UserID       string
	Mode         Mode
	SystemPrompt string
}

// TransportEventKind classifies what a provider reports back.
type TransportEventKind string

const (
	TransportMessage     TransportEventKind = "message"
	TransportSpeechStart TransportEventKind = "speech_start"
	TransportSpeechEnd   TransportEventKind = "speech_end"
	TransportError       TransportEventKind = "error"
	TransportClosed      TransportEventKind = "closed"
)

// TransportEvent is one provider notification.
type TransportEvent struct {
	Kind TransportEventKind
	Text string
	Err  error
}

// Sink receives provider notifications. Transports may call it from any
// goroutine, including synchronously from inside Conn.Send.
type Sink func(TransportEvent)

// Transport opens provider conversations.
type Transport interface {
	Connect(ctx context.Context, cfg ConnectConfig, sink Sink) (Conn, error)
}

// Conn is one open provider conversation.
type Conn interface {
	// Send delivers a user utterance.
	Send(ctx context.Context, text string) error

	// SetMuted stops or resumes capturing the user's microphone.
	SetMuted(muted bool) error

	// Close hangs up. It must be safe to call once after any failure.
	Close() error
}
