package http

import (
	"errors"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	claimhttp "barn-economy-backend/internal/features/claim/delivery/http"
	claimmodels "barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/streak/service"

	"github.com/gin-gonic/gin"
)

type StreakHandler struct {
	service *service.DailyBonusService
}

func NewStreakHandler(service *service.DailyBonusService) *StreakHandler {
	return &StreakHandler{service: service}
}

func (h *StreakHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/claim/daily-bonus", h.status)
	router.POST("/claim/daily-bonus", h.claim)
}

// @Summary Daily streak status
// @Tags streak
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.StreakStatus}
// @Router /claim/daily-bonus [get]
func (h *StreakHandler) status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(MapError(err))
		return
	}
	response.OK(c, status)
}

// @Summary Claim the daily bonus
// @Description Advances the streak and pays the day's reward. A transfer that cannot complete leaves the claim pending and the response status "pending".
// @Tags streak
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.DailyBonusResult}
// @Failure 400 {object} response.Envelope "ALREADY_CLAIMED or COOLDOWN_ACTIVE with remainingMs"
// @Failure 429 {object} response.Envelope
// @Router /claim/daily-bonus [post]
func (h *StreakHandler) claim(c *gin.Context) {
	result, err := h.service.Claim(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(MapError(err))
		return
	}
	if result.Status == string(claimmodels.StatusPending) {
		response.Pending(c, result)
		return
	}
	response.OK(c, result)
}

// MapError translates daily bonus errors into API errors.
func MapError(err error) error {
	var cooldown *service.CooldownError
	if errors.As(err, &cooldown) {
		return apperrors.NewCooldownError(apperrors.ErrCodeCooldownActive, "daily bonus cooldown active", cooldown.Remaining)
	}
	var limited *service.RateLimitError
	if errors.As(err, &limited) {
		return apperrors.NewRateLimitError(service.RateLimitScope, limited.RetryAfter)
	}
	switch {
	case errors.Is(err, service.ErrAlreadyClaimed):
		return apperrors.New(apperrors.ErrCodeAlreadyClaimed, "daily bonus already claimed today")
	case errors.Is(err, service.ErrUserNotFound):
		return apperrors.NewNotFoundError("user")
	}
	return claimhttp.MapError(err)
}
