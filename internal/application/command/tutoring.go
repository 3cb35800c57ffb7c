package command

import (
	"context"
	"sync"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/internal/domain/tutoring"
	"github.com/notewise/notewise-backend/pkg/logger"
	"github.com/notewise/notewise-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TUTORING SESSIONS
// Owns the open tutoring sessions of this process. Closing a session turns
// its length into tutoring XP through RecordProgressHandler.
// ══════════════════════════════════════════════════════════════════════════════

// OpenTutoringCommand starts a tutoring session.
type OpenTutoringCommand struct {
	UserID string
	Notes  string
	Mode   string
}

// SendTutoringResult is the tutor's answer to one message.
type SendTutoringResult struct {
	SessionID string             `json:"session_id"`
	Replies   []tutoring.Message `json:"replies"`
}

// CloseTutoringResult describes a finished session.
type CloseTutoringResult struct {
	Summary  tutoring.Summary      `json:"summary"`
	Progress *RecordProgressResult `json:"progress,omitempty"`
}

// TutoringManagerConfig contains configuration for the manager.
type TutoringManagerConfig struct {
	// MaxSessionsPerUser bounds concurrently open sessions per user.
	MaxSessionsPerUser int
	Clock              timeutil.Clock
	Logger             *logger.Logger
}

// TutoringManager is the registry of open sessions.
type TutoringManager struct {
	transport tutoring.Transport
	recorder  *RecordProgressHandler
	config    TutoringManagerConfig
	logger    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*tutoring.Session

	// opening counts per user the sessions still connecting.
	opening map[string]int

	// unrecorded holds ended sessions whose XP write failed, by session ID.
	unrecorded map[string]tutoring.Summary
}

// NewTutoringManager creates a manager. recorder may be nil, in which case
// no XP is awarded.
func NewTutoringManager(transport tutoring.Transport, recorder *RecordProgressHandler, config TutoringManagerConfig) *TutoringManager {
	if config.MaxSessionsPerUser <= 0 {
		config.MaxSessionsPerUser = 2
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = logger.Default()
	}

	return &TutoringManager{
		transport:  transport,
		recorder:   recorder,
		config:     config,
		logger:     config.Logger.With(logger.Component("tutoring_manager")),
		sessions:   make(map[string]*tutoring.Session),
		opening:    make(map[string]int),
		unrecorded: make(map[string]tutoring.Summary),
	}
}

// Open creates and starts a session.
func (m *TutoringManager) Open(ctx context.Context, cmd OpenTutoringCommand) (*tutoring.Session, error) {
	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}
	mode, err := tutoring.ParseMode(cmd.Mode)
	if err != nil {
		return nil, err
	}

	if !m.reserve(userID.String()) {
		return nil, shared.NewDomainError("tutoring", "Open", shared.ErrRateLimited, "too many open tutoring sessions")
	}

	session, err := tutoring.NewSession(userID.String(), cmd.Notes, mode, m.transport,
		tutoring.WithClock(m.config.Clock))
	if err == nil {
		err = session.Start(ctx)
	}

	m.mu.Lock()
	m.releaseLocked(userID.String())
	if err == nil {
		m.sessions[session.ID()] = session
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.logger.Info("tutoring session opened",
		logger.SessionID(session.ID()),
		logger.UserID(userID.String()),
		logger.String("mode", string(mode)),
	)
	return session, nil
}

// Get returns an open session.
func (m *TutoringManager) Get(sessionID string) (*tutoring.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, shared.ErrSessionNotFound
	}
	return s, nil
}

// Send delivers a user message and returns the tutor replies it produced.
func (m *TutoringManager) Send(ctx context.Context, sessionID, text string) (*SendTutoringResult, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	before := len(s.Transcript())
	if err := s.Send(ctx, text); err != nil {
		return nil, err
	}

	var replies []tutoring.Message
	for _, msg := range s.Transcript()[before:] {
		if msg.Role == tutoring.RoleAssistant {
			replies = append(replies, msg)
		}
	}
	return &SendTutoringResult{SessionID: sessionID, Replies: replies}, nil
}

// ToggleMute flips the microphone of an open session.
func (m *TutoringManager) ToggleMute(sessionID string) (bool, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return false, err
	}
	return s.ToggleMute()
}

// Close ends a session and awards tutoring XP for its length. Sessions in
// which the user never spoke award nothing. When the XP write fails the
// summary is kept and closing the same session ID again retries the award.
func (m *TutoringManager) Close(ctx context.Context, sessionID string) (*CloseTutoringResult, error) {
	m.mu.Lock()
	s, live := m.sessions[sessionID]
	summary, owed := m.unrecorded[sessionID]
	delete(m.sessions, sessionID)
	delete(m.unrecorded, sessionID)
	m.mu.Unlock()

	switch {
	case live:
		var err error
		summary, err = s.End(ctx)
		if err != nil && !shared.IsExternalService(err) {
			return nil, err
		}
		if err != nil {
			m.logger.Warn("tutor hangup failed", logger.SessionID(sessionID), logger.Err(err))
		}
	case !owed:
		return nil, shared.ErrSessionNotFound
	}

	result := &CloseTutoringResult{Summary: summary}
	res, err := m.award(ctx, sessionID, summary)
	if err != nil {
		m.mu.Lock()
		m.unrecorded[sessionID] = summary
		m.mu.Unlock()
		m.logger.Warn("tutoring XP not recorded, kept for retry",
			logger.SessionID(sessionID),
			logger.UserID(summary.UserID),
			logger.Int("minutes", summary.Minutes),
			logger.Err(err),
		)
		return result, err
	}
	result.Progress = res

	m.logger.Info("tutoring session closed",
		logger.SessionID(sessionID),
		logger.UserID(summary.UserID),
		logger.Int("minutes", summary.Minutes),
		logger.Int("user_messages", summary.UserMessages),
	)
	return result, nil
}

func (m *TutoringManager) award(ctx context.Context, sessionID string, summary tutoring.Summary) (*RecordProgressResult, error) {
	if m.recorder == nil || summary.UserMessages == 0 {
		return nil, nil
	}
	minutes := min(summary.Minutes, m.recorder.Rules().MaxSessionMinutes)
	return m.recorder.Handle(ctx, RecordProgressCommand{
		UserID:        summary.UserID,
		Action:        progress.TutoringSession(minutes),
		CorrelationID: sessionID,
	})
}

// ReapIdle closes sessions without traffic for longer than maxIdle and
// returns how many were closed.
func (m *TutoringManager) ReapIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := m.config.Clock.Now().Add(-maxIdle)

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	owed := make([]string, 0, len(m.unrecorded))
	for id := range m.unrecorded {
		owed = append(owed, id)
	}
	m.mu.Unlock()

	for _, id := range owed {
		if _, err := m.Close(ctx, id); err != nil && !shared.IsNotFound(err) {
			m.logger.Warn("tutoring XP retry failed", logger.SessionID(id), logger.Err(err))
		}
	}

	reaped := 0
	for _, id := range idle {
		if _, err := m.Close(ctx, id); err != nil {
			if shared.IsNotFound(err) {
				continue
			}
			m.logger.Warn("failed to close idle tutoring session", logger.SessionID(id), logger.Err(err))
		}
		reaped++
	}
	if reaped > 0 {
		m.logger.Info("reaped idle tutoring sessions", logger.Int("count", reaped))
	}
	return reaped
}

// CloseAll ends every open session, typically at shutdown.
func (m *TutoringManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, err := m.Close(ctx, id); err != nil && !shared.IsNotFound(err) {
			m.logger.Warn("failed to close tutoring session", logger.SessionID(id), logger.Err(err))
		}
	}
}

// Unrecorded returns the number of ended sessions still owed XP.
func (m *TutoringManager) Unrecorded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unrecorded)
}

// Active returns the number of open sessions.
func (m *TutoringManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// reserve claims a session slot for userID before connecting.
func (m *TutoringManager) reserve(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countLocked(userID)+m.opening[userID] >= m.config.MaxSessionsPerUser {
		return false
	}
	m.opening[userID]++
	return true
}

func (m *TutoringManager) releaseLocked(userID string) {
	if m.opening[userID] <= 1 {
		delete(m.opening, userID)
		return
	}
	m.opening[userID]--
}

func (m *TutoringManager) countLocked(userID string) int {
	n := 0
	for _, s := range m.sessions {
		if s.UserID() == userID {
			n++
		}
	}
	return n
}
