package tutoring

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the lifecycle stage of a session.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StateEnded  State = "ended"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript line.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// EventKind classifies session events.
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventMessage     EventKind = "message"
	EventSpeechStart EventKind = "speech_start"
	EventSpeechEnd   EventKind = "speech_end"
	EventMuteChanged EventKind = "mute_changed"
	EventError       EventKind = "error"
	EventEnded       EventKind = "ended"
)

// Event is delivered on Session.Events.
type Event struct {
	Kind      EventKind
	SessionID string
	Message   *Message
	Muted     bool
	Err       error
	At        time.Time
}

// Summary describes a finished session.
type Summary struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Mode         Mode      `json:"mode"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	UserMessages int       `json:"user_messages"`
	Messages     int       `json:"messages"`
	Minutes      int       `json:"minutes"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is one tutoring conversation. All methods are safe for concurrent use.
type Session struct {
	id        string
	userID    string
	mode      Mode
	notes     string
	transport Transport
	clock     timeutil.Clock

	mu           sync.Mutex
	state        State
	conn         Conn
	muted        bool
	transcript   []Message
	startedAt    time.Time
	endedAt      time.Time
	lastActivity time.Time
	events       chan Event
	dropped      int
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// NewSession creates an idle session for userID over notes.
func NewSession(userID string, notes string, mode Mode, transport Transport, opts ...Option) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrInvalidUserID
	}
	if !mode.IsValid() {
		return nil, shared.ErrInvalidMode
	}

	s := &Session{
		id:        uuid.NewString(),
		userID:    userID,
		mode:      mode,
		notes:     notes,
		transport: transport,
		clock:     timeutil.SystemClock{},
		state:     StateIdle,
		events:    make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActivity = s.clock.Now()
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.userID }

// Mode returns the study mode.
func (s *Session) Mode() Mode { return s.mode }

// Events returns the event stream. It is closed when the session ends.
// Events are dropped rather than blocking when nobody reads the channel.
func (s *Session) Events() <-chan Event { return s.events }

// State returns the lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Muted reports whether the microphone is muted.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// LastActivity returns when the session last saw traffic.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Dropped returns how many events were discarded on a full channel.
func (s *Session) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Start connects to the provider. A failed start leaves the session idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return shared.ErrSessionStarted
	}
	s.mu.Unlock()

	cfg := ConnectConfig{
		SessionID:    s.id,
		UserID:       s.userID,
		Mode:         s.mode,
		SystemPrompt: SystemPrompt(s.mode, s.notes),
	}
	conn, err := s.transport.Connect(ctx, cfg, s.handleTransportEvent)
	if err != nil {
		return shared.WrapError("tutoring", "Start", shared.ErrServiceUnavailable, "connect to tutor", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		_ = conn.Close()
		if s.state == StateEnded {
			return shared.ErrSessionAlreadyEnded
		}
		return shared.ErrSessionStarted
	}
	now := s.clock.Now()
	s.conn = conn
	s.state = StateActive
	s.startedAt = now
	s.lastActivity = now
	s.emitLocked(Event{Kind: EventStarted})
	return nil
}

// Send delivers a user message to the tutor.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return shared.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return shared.ErrSessionNotActive
	}
	msg := Message{Role: RoleUser, Content: text, At: s.clock.Now()}
	s.transcript = append(s.transcript, msg)
	s.lastActivity = msg.At
	conn := s.conn
	s.mu.Unlock()

	// The lock is released here: transports may report replies from inside Send.
	if err := conn.Send(ctx, text); err != nil {
		return shared.WrapError("tutoring", "Send", shared.ErrExternalService, "deliver message", err)
	}
	return nil
}

// ToggleMute flips the microphone state and returns the new value.
func (s *Session) ToggleMute() (bool, error) {
	s.mu.Lock()
	if s.state != StateActive {
		muted := s.muted
		s.mu.Unlock()
		return muted, shared.ErrSessionNotActive
	}
	want := !s.muted
	conn := s.conn
	s.mu.Unlock()

	if err := conn.SetMuted(want); err != nil {
		return !want, shared.WrapError("tutoring", "ToggleMute", shared.ErrExternalService, "set mute", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = want
	if s.state == StateActive {
		s.emitLocked(Event{Kind: EventMuteChanged, Muted: want})
	}
	return want, nil
}

// End hangs up and closes the event stream. Ending an idle session is allowed
// and yields an empty summary; ending twice is an error.
func (s *Session) End(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	if s.state == StateEnded {
		summary := s.summaryLocked()
		s.mu.Unlock()
		return summary, shared.ErrSessionAlreadyEnded
	}

	s.endedAt = s.clock.Now()
	if s.startedAt.IsZero() {
		s.startedAt = s.endedAt
	}
	s.state = StateEnded
	s.emitLocked(Event{Kind: EventEnded})
	close(s.events)
	summary := s.summaryLocked()
	conn := s.conn
	s.mu.Unlock()

	// Transport events arriving from Close are ignored once the state is ended.
	if conn != nil {
		if err := conn.Close(); err != nil {
			return summary, shared.WrapError("tutoring", "End", shared.ErrExternalService, "close connection", err)
		}
	}
	return summary, nil
}

func (s *Session) handleTransportEvent(te TransportEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEnded {
		return
	}
	now := s.clock.Now()

	switch te.Kind {
	case TransportMessage:
		msg := Message{Role: RoleAssistant, Content: te.Text, At: now}
		s.transcript = append(s.transcript, msg)
		s.lastActivity = now
		s.emitLocked(Event{Kind: EventMessage, Message: &msg})
	case TransportSpeechStart:
		s.lastActivity = now
		s.emitLocked(Event{Kind: EventSpeechStart})
	case TransportSpeechEnd:
		s.emitLocked(Event{Kind: EventSpeechEnd})
	case TransportError:
		s.emitLocked(Event{Kind: EventError, Err: te.Err})
	case TransportClosed:
		s.emitLocked(Event{Kind: EventError, Err: shared.ErrTutorUnavailable})
	}
}

// emitLocked must be called with s.mu held and before the channel is closed.
func (s *Session) emitLocked(e Event) {
	e.SessionID = s.id
	if e.At.IsZero() {
		e.At = s.clock.Now()
	}
	select {
	case s.events <- e:
	default:
		s.dropped++
	}
}

func (s *Session) summaryLocked() Summary {
	sum := Summary{
		SessionID: s.id,
		UserID:    s.userID,
		Mode:      s.mode,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		Messages:  len(s.transcript),
	}
	for _, m := range s.transcript {
		if m.Role == RoleUser {
			sum.UserMessages++
		}
	}

	sum.Minutes = int(s.endedAt.Sub(s.startedAt) / time.Minute)
	if sum.Minutes == 0 && sum.UserMessages > 0 {
		sum.Minutes = 1
	}
	return sum
}
