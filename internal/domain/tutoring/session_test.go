package tutoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// echoTransport answers every message synchronously from inside Send.
type echoTransport struct {
	mu         sync.Mutex
	connectErr error
	sendErr    error
	cfg        ConnectConfig
	conn       *echoConn
}

type echoConn struct {
	mu     sync.Mutex
	sink   Sink
	muted  bool
	closed bool
	sent   []string
	t      *echoTransport
}

func (t *echoTransport) Connect(ctx context.Context, cfg ConnectConfig, sink Sink) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	t.cfg = cfg
	t.conn = &echoConn{sink: sink, t: t}
	return t.conn, nil
}

func (c *echoConn) Send(ctx context.Context, text string) error {
	if c.t.sendErr != nil {
		return c.t.sendErr
	}
	c.mu.Lock()
	c.sent = append(c.sent, text)
	c.mu.Unlock()

	c.sink(TransportEvent{Kind: TransportSpeechStart})
	c.sink(TransportEvent{Kind: TransportMessage, Text: "echo: " + text})
	c.sink(TransportEvent{Kind: TransportSpeechEnd})
	return nil
}

func (c *echoConn) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	return nil
}

func (c *echoConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	// Providers often report the hangup; the session must ignore it.
	c.sink(TransportEvent{Kind: TransportClosed})
	return nil
}

func newTestSession(t *testing.T, tr Transport, clock *timeutil.FixedClock) *Session {
	t.Helper()
	s, err := NewSession("user-1", "Photosynthesis converts light into chemical energy.", ModeExplanation, tr,
		WithClock(clock), WithID("sess-1"))
	require.NoError(t, err)
	return s
}

func drain(ch <-chan Event) []EventKind {
	var kinds []EventKind
	for e := range ch {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestSession_FullLifecycle(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	tr := &echoTransport{}
	s := newTestSession(t, tr, clock)

	assert.Equal(t, StateIdle, s.State())
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "sess-1", tr.cfg.SessionID)
	assert.Contains(t, tr.cfg.SystemPrompt, "Photosynthesis")
	assert.Contains(t, tr.cfg.SystemPrompt, "Mode: explanation")

	clock.Advance(2 * time.Minute)
	require.NoError(t, s.Send(context.Background(), "  what is chlorophyll? "))

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, "what is chlorophyll?", transcript[0].Content)
	assert.Equal(t, RoleAssistant, transcript[1].Role)
	assert.Equal(t, "echo: what is chlorophyll?", transcript[1].Content)

	muted, err := s.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)
	assert.True(t, tr.conn.muted)

	clock.Advance(5*time.Minute + 30*time.Second)
	summary, err := s.End(context.Background())
	require.NoError(t, err)
	assert.True(t, tr.conn.closed)
	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, 7, summary.Minutes)
	assert.Equal(t, 1, summary.UserMessages)
	assert.Equal(t, 2, summary.Messages)
	assert.Equal(t, ModeExplanation, summary.Mode)

	assert.Equal(t, []EventKind{
		EventStarted, EventSpeechStart, EventMessage, EventSpeechEnd, EventMuteChanged, EventEnded,
	}, drain(s.Events()))
}

func TestSession_ShortSessionWithMessagesCountsOneMinute(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	s := newTestSession(t, &echoTransport{}, clock)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Send(context.Background(), "hi"))
	clock.Advance(20 * time.Second)

	summary, err := s.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Minutes)
}

func TestSession_StateGuards(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	s := newTestSession(t, &echoTransport{}, clock)

	assert.ErrorIs(t, s.Send(context.Background(), "early"), shared.ErrInvalidState)
	_, err := s.ToggleMute()
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), shared.ErrStateTransition)
	assert.ErrorIs(t, s.Send(context.Background(), "   "), shared.ErrInvalidInput)

	_, err = s.End(context.Background())
	require.NoError(t, err)
	_, err = s.End(context.Background())
	assert.ErrorIs(t, err, shared.ErrSessionAlreadyEnded)
	assert.ErrorIs(t, s.Send(context.Background(), "late"), shared.ErrInvalidState)
}

func TestSession_EndWhileIdle(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	s := newTestSession(t, &echoTransport{}, clock)

	summary, err := s.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Minutes)
	assert.Equal(t, []EventKind{EventEnded}, drain(s.Events()))
}

func TestSession_ConnectFailureLeavesIdle(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	tr := &echoTransport{connectErr: shared.ErrTutorRateLimited}
	s := newTestSession(t, tr, clock)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.ErrorIs(t, err, shared.ErrRateLimited)
	assert.Equal(t, StateIdle, s.State())

	tr.connectErr = nil
	assert.NoError(t, s.Start(context.Background()))
}

func TestSession_SendFailureIsExternal(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	tr := &echoTransport{}
	s := newTestSession(t, tr, clock)
	require.NoError(t, s.Start(context.Background()))

	tr.sendErr = errors.New("socket reset")
	err := s.Send(context.Background(), "hello")
	assert.True(t, shared.IsExternalService(err))
}

func TestSession_DropsEventsWhenNobodyListens(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	s, err := NewSession("user-1", "", ModeQuestion, &echoTransport{}, WithClock(clock), WithEventBuffer(2))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Send(context.Background(), "one"))
	require.NoError(t, s.Send(context.Background(), "two"))

	assert.Greater(t, s.Dropped(), 0)
	assert.Len(t, s.Transcript(), 4)
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession("", "", ModeQuestion, &echoTransport{})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewSession("u", "", Mode("karaoke"), &echoTransport{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	s, err := NewSession("u", "", ModeSummary, &echoTransport{})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
}

func TestParseModeAndPrompt(t *testing.T) {
	m, err := ParseMode(" Practice ")
	require.NoError(t, err)
	assert.Equal(t, ModePractice, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeQuestion, m)

	_, err = ParseMode("quiz")
	assert.ErrorIs(t, err, shared.ErrInvalidMode)

	long := strings.Repeat("é", maxNotesChars)
	prompt := SystemPrompt(ModeSummary, long)
	assert.LessOrEqual(t, len(prompt), maxNotesChars+400)
	assert.True(t, strings.HasPrefix(prompt, "You are NoteWise"))
	assert.Len(t, Modes(), 4)
}
