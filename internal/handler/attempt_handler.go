package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/repository"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stemsi/pisaprep/internal/session"
	"github.com/stemsi/pisaprep/internal/validator"
)

const defaultPerPage = 20

// AttemptHandler serves the local attempt history.
type AttemptHandler struct {
	attempts repository.AttemptRepository
	ctrl     *session.Controller
	ownerID  string
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts repository.AttemptRepository, ctrl *session.Controller, ownerID string, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		ctrl:     ctrl,
		ownerID:  ownerID,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

type attemptListQuery struct {
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=100"`
	PackID  string `form:"pack_id" binding:"omitempty,max=64,identifier"`
	Status  string `form:"status" binding:"omitempty,oneof=IN_PROGRESS COMPLETED AUTO_SUBMIT CANCELLED_CHEAT"`
}

// List godoc
// GET /api/v1/attempts?page=1&per_page=20&pack_id=&status=
// Returns the device owner's attempts, newest first.
func (h *AttemptHandler) List(c *gin.Context) {
	var q attemptListQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultPerPage
	}

	filter := repository.AttemptFilter{
		OwnerID: h.ownerID,
		PackID:  q.PackID,
		Limit:   q.PerPage,
		Offset:  (q.Page - 1) * q.PerPage,
	}
	if q.Status != "" {
		filter.Status = []model.AttemptStatus{model.AttemptStatus(q.Status)}
	}

	ctx := c.Request.Context()
	total, err := h.attempts.Count(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Count attempts failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	attempts, err := h.attempts.List(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("List attempts failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, response.NewPagination(q.Page, q.PerPage, total))
}

// Result godoc
// GET /api/v1/attempts/:id/result
// Returns an attempt with its answers and summary for review.
func (h *AttemptHandler) Result(c *gin.Context) {
	id := c.Param("id")
	if id == "" || len(id) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.ctrl.LoadResult(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("attempt_id", id).Msg("Load result failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if result.Attempt.OwnerID != h.ownerID {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, result)
}
