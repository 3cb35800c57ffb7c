package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/notewise/notewise-backend/internal/application/command"
	"github.com/notewise/notewise-backend/internal/application/query"
	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
	"github.com/notewise/notewise-backend/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type studySessionRequest struct {
	Minutes int `json:"minutes"`
}

type grantRequest struct {
	Amount int64 `json:"amount"`
}

type openTutoringRequest struct {
	Mode  string `json:"mode"`
	Notes string `json:"notes"`
}

type tutoringMessageRequest struct {
	Text string `json:"text"`
}

type tutoringSessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Mode      string `json:"mode"`
	State     string `json:"state"`
}

// bindJSON decodes the body into dst and answers 400 on malformed input.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		handlers.RespondError(c, shared.WrapError("http", "Bind", shared.ErrInvalidInput, "malformed request body", err))
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetProgress(c *gin.Context) {
	view, err := s.deps.GetProgress.Handle(c.Request.Context(), query.GetProgressQuery{
		UserID: c.Param("userId"),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, view)
}

func (s *Server) handleTouch(c *gin.Context) {
	s.record(c, progress.DailyLogin())
}

func (s *Server) handleStudySession(c *gin.Context) {
	var req studySessionRequest
	if !bindJSON(c, &req) {
		return
	}
	s.record(c, progress.StudySession(req.Minutes))
}

func (s *Server) handleGrant(c *gin.Context) {
	var req grantRequest
	if !bindJSON(c, &req) {
		return
	}
	s.record(c, progress.ManualGrant(req.Amount))
}

func (s *Server) record(c *gin.Context, action progress.Action) {
	res, err := s.deps.RecordProgress.Handle(c.Request.Context(), command.RecordProgressCommand{
		UserID:        c.Param("userId"),
		Action:        action,
		CorrelationID: handlers.RequestIDFrom(c),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetLeaderboard(c *gin.Context) {
	q := query.GetLeaderboardQuery{}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			handlers.RespondError(c, shared.NewDomainError("http", "Query", shared.ErrInvalidInput, "limit must be an integer"))
			return
		}
		q.Limit = limit
	}

	view, err := s.deps.GetLeaderboard.Handle(c.Request.Context(), q)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// TUTORING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleOpenTutoring(c *gin.Context) {
	var req openTutoringRequest
	if !bindJSON(c, &req) {
		return
	}

	if allowed := s.deps.TutoringAllowed; allowed != nil && !allowed(c.Param("userId")) {
		handlers.RespondError(c, shared.NewDomainError("tutoring", "Open", shared.ErrForbidden, "tutoring is not available for this user"))
		return
	}

	session, err := s.deps.Tutoring.Open(c.Request.Context(), command.OpenTutoringCommand{
		UserID: c.Param("userId"),
		Notes:  req.Notes,
		Mode:   req.Mode,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.Respond(c, http.StatusCreated, tutoringSessionResponse{
		SessionID: session.ID(),
		UserID:    session.UserID(),
		Mode:      string(session.Mode()),
		State:     string(session.State()),
	})
}

func (s *Server) handleTutoringMessage(c *gin.Context) {
	var req tutoringMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.Tutoring.Send(c.Request.Context(), c.Param("sessionId"), req.Text)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, res)
}

func (s *Server) handleTutoringMute(c *gin.Context) {
	muted, err := s.deps.Tutoring.ToggleMute(c.Param("sessionId"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, gin.H{"muted": muted})
}

func (s *Server) handleCloseTutoring(c *gin.Context) {
	res, err := s.deps.Tutoring.Close(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, res)
}
