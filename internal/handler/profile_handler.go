package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/pisaprep/internal/model"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stemsi/pisaprep/internal/service"
	"github.com/stemsi/pisaprep/internal/validator"
)

// ProfileHandler serves the owner profile.
type ProfileHandler struct {
	profiles *service.ProfileService
	ownerID  string
	onChange func()
	log      zerolog.Logger
}

// NewProfileHandler creates a new ProfileHandler. onChange, when non-nil,
// runs after a profile mutation.
func NewProfileHandler(profiles *service.ProfileService, ownerID string, onChange func(), log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		ownerID:  ownerID,
		onChange: onChange,
		log:      log.With().Str("component", "profile_handler").Logger(),
	}
}

// Get godoc
// GET /api/v1/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), h.ownerID)
	if err != nil {
		h.log.Error().Err(err).Msg("Get profile failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// SelectCosmetic godoc
// PUT /api/v1/profile/cosmetic
func (h *ProfileHandler) SelectCosmetic(c *gin.Context) {
	var req model.SelectCosmeticRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.profiles.SelectCosmetic(c.Request.Context(), h.ownerID, req.CosmeticID)
	if err != nil {
		h.log.Error().Err(err).Msg("Select cosmetic failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if h.onChange != nil {
		h.onChange()
	}
	response.Success(c, http.StatusOK, p)
}
