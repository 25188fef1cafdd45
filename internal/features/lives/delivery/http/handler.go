package http

import (
	"errors"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	"barn-economy-backend/internal/features/lives/service"

	"github.com/gin-gonic/gin"
)

type LivesHandler struct {
	service *service.LivesService
}

func NewLivesHandler(service *service.LivesService) *LivesHandler {
	return &LivesHandler{service: service}
}

func (h *LivesHandler) RegisterRoutes(router *gin.RouterGroup) {
	lives := router.Group("/lives")
	{
		lives.GET("/status", h.getStatus)
		lives.POST("/consume", h.consume)
		lives.POST("/end", h.end)
	}
}

// @Summary Lives status
// @Description Current lives (or attempts), next regeneration time and play eligibility
// @Tags lives
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.Status}
// @Failure 401 {object} response.Envelope
// @Router /lives/status [get]
func (h *LivesHandler) getStatus(c *gin.Context) {
	status, err := h.service.GetStatus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(apperrors.NewDatabaseError("get lives status", err))
		return
	}
	response.OK(c, status)
}

// @Summary Start a game
// @Description Spends one life or attempt. Free while a play pass is active.
// @Tags lives
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.ConsumeResult}
// @Failure 400 {object} response.Envelope "NO_LIVES_REMAINING or COOLDOWN_ACTIVE"
// @Failure 401 {object} response.Envelope
// @Router /lives/consume [post]
func (h *LivesHandler) consume(c *gin.Context) {
	result, err := h.service.Consume(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(mapError(err))
		return
	}
	response.OK(c, result)
}

// @Summary End the active game
// @Description Clears the active game flag without submitting a score
// @Tags lives
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.Status}
// @Router /lives/end [post]
func (h *LivesHandler) end(c *gin.Context) {
	status, err := h.service.EndGame(c.Request.Context(), middleware.UserID(c), 0, false)
	if err != nil {
		c.Error(mapError(err))
		return
	}
	response.OK(c, status)
}

func mapError(err error) error {
	var noLives *service.NoLivesError
	if errors.As(err, &noLives) {
		appErr := apperrors.New(apperrors.ErrCodeNoLivesRemaining, "no lives remaining")
		if noLives.NextLifeAt != nil {
			appErr.WithDetail("nextLifeAt", noLives.NextLifeAt)
		}
		return appErr
	}
	var cooldown *service.CooldownError
	if errors.As(err, &cooldown) {
		return apperrors.NewCooldownError(apperrors.ErrCodeCooldownActive, "attempts cooldown active", cooldown.Remaining).
			WithDetail("cooldownEndsAt", cooldown.EndsAt)
	}
	return apperrors.NewDatabaseError("update lives", err)
}
