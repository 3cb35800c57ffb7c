package tutor

import (
	"context"
	"sync"

	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/internal/domain/tutoring"
	"github.com/notewise/notewise-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

var _ tutoring.Transport = (*Transport)(nil)

// Transport adapts Client to tutoring.Transport. Each conversation keeps its
// own history and replays it on every request; replies are delivered to the
// sink before Send returns.
type Transport struct {
	client *Client
}

// NewTransport creates a text transport over client.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

// Connect opens a conversation. It refuses while the provider's breaker is open.
func (t *Transport) Connect(ctx context.Context, cfg tutoring.ConnectConfig, sink tutoring.Sink) (tutoring.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !t.client.Available() {
		return nil, shared.ErrTutorUnavailable
	}

	t.client.logger.Debug("tutor conversation opened",
		logger.SessionID(cfg.SessionID),
		logger.UserID(cfg.UserID),
		logger.String("mode", string(cfg.Mode)),
	)
	return &conversation{
		client: t.client,
		cfg:    cfg,
		sink:   sink,
		system: ChatMessage{Role: "system", Content: cfg.SystemPrompt},
	}, nil
}

// conversation is one open chat.
type conversation struct {
	client *Client
	cfg    tutoring.ConnectConfig
	sink   tutoring.Sink
	system ChatMessage

	// sendMu serializes turns so the history stays in order.
	sendMu sync.Mutex

	mu      sync.Mutex
	history []ChatMessage
	muted   bool
	closed  bool
}

// Send sends one user turn and reports the reply through the sink.
func (c *conversation) Send(ctx context.Context, text string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return shared.ErrTutorUnavailable
	}
	c.history = append(c.history, ChatMessage{Role: "user", Content: text})
	messages := c.requestMessagesLocked()
	c.mu.Unlock()

	reply, err := c.client.Complete(ctx, messages)
	if err != nil {
		c.sink(tutoring.TransportEvent{Kind: tutoring.TransportError, Err: err})
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.history = append(c.history, ChatMessage{Role: "assistant", Content: reply})
	c.mu.Unlock()

	c.sink(tutoring.TransportEvent{Kind: tutoring.TransportSpeechStart})
	c.sink(tutoring.TransportEvent{Kind: tutoring.TransportMessage, Text: reply})
	c.sink(tutoring.TransportEvent{Kind: tutoring.TransportSpeechEnd})
	return nil
}

// requestMessagesLocked returns the system prompt plus the most recent turns.
func (c *conversation) requestMessagesLocked() []ChatMessage {
	history := c.history
	if limit := c.client.config.MaxHistory; len(history) > limit {
		history = history[len(history)-limit:]
	}

	out := make([]ChatMessage, 0, len(history)+1)
	out = append(out, c.system)
	return append(out, history...)
}

// SetMuted only records the flag; a text conversation has no microphone.
func (c *conversation) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return shared.ErrTutorUnavailable
	}
	c.muted = muted
	return nil
}

// Close ends the conversation. Calling it more than once is a no-op.
func (c *conversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.history = nil
	c.client.logger.Debug("tutor conversation closed", logger.SessionID(c.cfg.SessionID))
	return nil
}
