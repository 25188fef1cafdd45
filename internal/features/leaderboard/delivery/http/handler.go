package http

import (
	"errors"
	"strconv"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	"barn-economy-backend/internal/common/validation"
	"barn-economy-backend/internal/features/leaderboard/models"
	"barn-economy-backend/internal/features/leaderboard/service"

	"github.com/gin-gonic/gin"
)

type LeaderboardHandler struct {
	service      *service.LeaderboardService
	defaultLimit int
	maxLimit     int
}

func NewLeaderboardHandler(service *service.LeaderboardService, defaultLimit, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{service: service, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// RegisterRoutes expects a group with optional authentication.
func (h *LeaderboardHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/leaderboard", h.get)
}

// @Summary Monthly leaderboard
// @Description Ranked standings for a game type and month. Wallets are masked. Authenticated callers also get their own entry.
// @Tags leaderboard
// @Produce json
// @Param gameType query string false "Game type" default(barn)
// @Param period query string false "Period YYYY-MM, defaults to the current month"
// @Param limit query int false "Page size (max 100)" default(50)
// @Param offset query int false "Offset" default(0)
// @Param stats query bool false "Include period totals"
// @Success 200 {object} response.Envelope{data=models.Leaderboard}
// @Failure 400 {object} response.Envelope
// @Router /leaderboard [get]
func (h *LeaderboardHandler) get(c *gin.Context) {
	limit, offset, err := validation.Pagination(c.Query("limit"), c.Query("offset"), h.defaultLimit, h.maxLimit)
	if err != nil {
		c.Error(err)
		return
	}

	var stats bool
	if raw := c.Query("stats"); raw != "" {
		if stats, err = strconv.ParseBool(raw); err != nil {
			c.Error(apperrors.NewValidationError("stats", "must be a boolean"))
			return
		}
	}

	board, err := h.service.Get(c.Request.Context(), models.Query{
		GameType: c.Query("gameType"),
		Period:   c.Query("period"),
		Limit:    limit,
		Offset:   offset,
		Stats:    stats,
		UserID:   middleware.UserID(c),
	})
	if err != nil {
		c.Error(mapError(err))
		return
	}
	response.OK(c, board)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrUnknownGameType):
		return apperrors.NewValidationError("gameType", "unknown game type")
	case errors.Is(err, service.ErrInvalidPeriod):
		return apperrors.NewValidationError("period", "must be YYYY-MM")
	default:
		return apperrors.NewDatabaseError("load leaderboard", err)
	}
}
