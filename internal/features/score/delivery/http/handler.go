package http

import (
	"errors"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	"barn-economy-backend/internal/common/validation"
	claimhttp "barn-economy-backend/internal/features/claim/delivery/http"
	"barn-economy-backend/internal/features/score/models"
	"barn-economy-backend/internal/features/score/service"

	"github.com/gin-gonic/gin"
)

type ScoreHandler struct {
	service *service.ScoreService
}

func NewScoreHandler(service *service.ScoreService) *ScoreHandler {
	return &ScoreHandler{service: service}
}

func (h *ScoreHandler) RegisterRoutes(router *gin.RouterGroup) {
	scores := router.Group("/scores")
	{
		scores.POST("/submit", h.submit)
		scores.GET("/me", h.listMine)
	}
}

// @Summary Submit a score
// @Description Validates a finished run and records it on the current monthly leaderboard. Qualifying scores open a reward claim; a reward that cannot be paid is reported in rewardError without failing the submission.
// @Tags scores
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.Submission true "Finished run"
// @Success 200 {object} response.Envelope{data=models.SubmitResult}
// @Failure 400 {object} response.Envelope "VALIDATION_ERROR, INVALID_TIMING, DUPLICATE_SUBMISSION or SCORE_REJECTED"
// @Failure 429 {object} response.Envelope
// @Router /scores/submit [post]
func (h *ScoreHandler) submit(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.Error(validation.BindingError(err))
		return
	}

	result, err := h.service.Submit(c.Request.Context(), middleware.UserID(c), &sub)
	if err != nil {
		c.Error(MapError(err))
		return
	}
	response.OK(c, result)
}

// @Summary My scores
// @Tags scores
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} response.Envelope{data=models.ScoreList}
// @Router /scores/me [get]
func (h *ScoreHandler) listMine(c *gin.Context) {
	limit, offset, err := validation.Pagination(c.Query("limit"), c.Query("offset"), 20, 100)
	if err != nil {
		c.Error(err)
		return
	}
	list, err := h.service.ListMine(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		c.Error(apperrors.NewDatabaseError("list scores", err))
		return
	}
	response.OK(c, list)
}

// MapError translates score errors into API errors.
func MapError(err error) error {
	var rejected *service.RejectedError
	if errors.As(err, &rejected) {
		return apperrors.New(apperrors.ErrCodeScoreRejected, "score failed validation").
			WithDetail("flags", rejected.Flags)
	}
	var limited *service.RateLimitError
	if errors.As(err, &limited) {
		return apperrors.NewRateLimitError(service.RateLimitScope, limited.RetryAfter)
	}
	switch {
	case errors.Is(err, service.ErrMissingScore):
		return apperrors.NewValidationError("score", "score is required")
	case errors.Is(err, service.ErrInvalidTiming):
		return apperrors.New(apperrors.ErrCodeInvalidTiming, err.Error())
	case errors.Is(err, service.ErrUnknownGameType):
		return apperrors.NewValidationError("gameType", "unknown game type")
	case errors.Is(err, service.ErrDuplicateSubmission):
		return apperrors.New(apperrors.ErrCodeDuplicateSubmission, "session already submitted")
	case errors.Is(err, service.ErrScoreNotFound):
		return apperrors.NewNotFoundError("score")
	case errors.Is(err, service.ErrNotRewardable):
		return apperrors.NewValidationError("scoreId", "score does not qualify for a reward")
	}
	return claimhttp.MapError(err)
}
