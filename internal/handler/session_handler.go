package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stemsi/pisaprep/internal/session"
	"github.com/stemsi/pisaprep/internal/validator"
)

// SessionHandler exposes the exam session engine over HTTP.
type SessionHandler struct {
	ctrl *session.Controller
	log  zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(ctrl *session.Controller, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		ctrl: ctrl,
		log:  log.With().Str("component", "session_handler").Logger(),
	}
}

type selectResult struct {
	Accepted bool             `json:"accepted"`
	Session  session.Snapshot `json:"session"`
}

type moveResult struct {
	Moved   bool             `json:"moved"`
	Session session.Snapshot `json:"session"`
}

type visibilityResult struct {
	Verdict string           `json:"verdict"`
	Session session.Snapshot `json:"session"`
}

// Start godoc
// POST /api/v1/session/start
// Starts a new attempt or resumes the stored IN_PROGRESS one for the pack.
func (h *SessionHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.ctrl.Start(c.Request.Context(), req.PackID, req.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// State godoc
// GET /api/v1/session/state
func (h *SessionHandler) State(c *gin.Context) {
	response.Success(c, http.StatusOK, h.ctrl.Snapshot())
}

// Select godoc
// POST /api/v1/session/select
// Answers the current question. Selections inside the lock window are
// reported as not accepted.
func (h *SessionHandler) Select(c *gin.Context) {
	var req model.SelectOptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if !h.requireActive(c) {
		return
	}

	accepted, err := h.ctrl.SelectOption(c.Request.Context(), req.OptionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, selectResult{Accepted: accepted, Session: h.ctrl.Snapshot()})
}

// Next godoc
// POST /api/v1/session/next
func (h *SessionHandler) Next(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}
	moved := h.ctrl.Next()
	response.Success(c, http.StatusOK, moveResult{Moved: moved, Session: h.ctrl.Snapshot()})
}

// Prev godoc
// POST /api/v1/session/prev
func (h *SessionHandler) Prev(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}
	moved := h.ctrl.Prev()
	response.Success(c, http.StatusOK, moveResult{Moved: moved, Session: h.ctrl.Snapshot()})
}

// Submit godoc
// POST /api/v1/session/submit
// Finishes the attempt as COMPLETED. Submitting a finished attempt returns
// its final state unchanged.
func (h *SessionHandler) Submit(c *gin.Context) {
	if h.ctrl.Snapshot().Stage == session.StageStart {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return
	}

	snap, err := h.ctrl.SubmitNow(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// VisibilityLost godoc
// POST /api/v1/session/visibility-lost
// Reports that the app left the foreground.
func (h *SessionHandler) VisibilityLost(c *gin.Context) {
	if !h.requireActive(c) {
		return
	}

	verdict, err := h.ctrl.OnVisibilityLost(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, visibilityResult{Verdict: verdict.String(), Session: h.ctrl.Snapshot()})
}

// DismissWarning godoc
// POST /api/v1/session/warning/dismiss
func (h *SessionHandler) DismissWarning(c *gin.Context) {
	h.ctrl.DismissWarning()
	response.Success(c, http.StatusOK, h.ctrl.Snapshot())
}

func (h *SessionHandler) requireActive(c *gin.Context) bool {
	if h.ctrl.Snapshot().Stage != session.StageInProgress {
		response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		return false
	}
	return true
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, code := sessionError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Session operation failed")
	}
	response.Fail(c, status, code)
}

// sessionError maps engine errors to HTTP status and error code.
func sessionError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, session.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.Is(err, session.ErrSessionActive):
		return http.StatusConflict, response.ErrSessionActive
	case errors.Is(err, session.ErrUnknownOption):
		return http.StatusUnprocessableEntity, response.ErrUnknownOption
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, response.ErrSessionClosed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
