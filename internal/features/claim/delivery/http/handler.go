package http

import (
	"context"
	"errors"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	"barn-economy-backend/internal/common/validation"
	"barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/claim/service"

	"github.com/gin-gonic/gin"
)

// DailySignatureIssuer consumes daily bonus eligibility for a gasless claim.
type DailySignatureIssuer interface {
	ClaimSignature(ctx context.Context, userID string) (*models.SignatureClaim, error)
}

// GameSignatureIssuer authorizes the reward of one validated score.
type GameSignatureIssuer interface {
	ClaimSignature(ctx context.Context, userID, scoreID string) (*models.SignatureClaim, error)
}

// Issuers plugs the feature services that own claim eligibility into the
// signature endpoint, together with their error translation.
type Issuers struct {
	Daily       DailySignatureIssuer
	DailyErrors func(error) error
	Game        GameSignatureIssuer
	GameErrors  func(error) error
}

type ClaimHandler struct {
	ledger       *service.Ledger
	issuers      Issuers
	defaultLimit int
	maxLimit     int
}

func NewClaimHandler(ledger *service.Ledger, issuers Issuers) *ClaimHandler {
	if issuers.DailyErrors == nil {
		issuers.DailyErrors = MapError
	}
	if issuers.GameErrors == nil {
		issuers.GameErrors = MapError
	}
	return &ClaimHandler{ledger: ledger, issuers: issuers, defaultLimit: 20, maxLimit: 100}
}

func (h *ClaimHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/claims", h.list)
	router.GET("/claims/:id", h.get)
	router.POST("/claim/signature", h.signature)
}

func (h *ClaimHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	router.POST("/claims/:id/retry", h.retry)
}

// @Summary List my claims
// @Tags claims
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} response.Envelope{data=models.ClaimList}
// @Failure 400 {object} response.Envelope
// @Router /claims [get]
func (h *ClaimHandler) list(c *gin.Context) {
	limit, offset, err := validation.Pagination(c.Query("limit"), c.Query("offset"), h.defaultLimit, h.maxLimit)
	if err != nil {
		c.Error(err)
		return
	}
	claims, err := h.ledger.List(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		c.Error(apperrors.NewDatabaseError("list claims", err))
		return
	}
	response.OK(c, claims)
}

// @Summary Get a claim
// @Tags claims
// @Produce json
// @Security BearerAuth
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope{data=models.ClaimResponse}
// @Failure 404 {object} response.Envelope
// @Router /claims/{id} [get]
func (h *ClaimHandler) get(c *gin.Context) {
	claim, err := h.ledger.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.Error(MapError(err))
		return
	}
	response.OK(c, claim)
}

type signatureRequest struct {
	ClaimType models.Kind `json:"claimType" binding:"required,oneof=daily_bonus game_reward"`
	ScoreID   string      `json:"scoreId" binding:"omitempty,uuid"`
}

// @Summary Gasless claim signature
// @Description Opens a pending claim and returns an EIP-712 authorization the client redeems on the claim contract
// @Tags claims
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body signatureRequest true "Claim type and score id for game rewards"
// @Success 200 {object} response.Envelope{data=models.SignatureClaim}
// @Failure 400 {object} response.Envelope "ALREADY_CLAIMED, COOLDOWN_ACTIVE or VALIDATION_ERROR"
// @Failure 429 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /claim/signature [post]
func (h *ClaimHandler) signature(c *gin.Context) {
	var req signatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(validation.BindingError(err))
		return
	}
	if !h.ledger.SignerEnabled() {
		c.Error(apperrors.New(apperrors.ErrCodeGatewayUnavailable, "gasless claims are not configured"))
		return
	}

	userID := middleware.UserID(c)
	var (
		signed *models.SignatureClaim
		err    error
	)
	switch req.ClaimType {
	case models.KindDailyBonus:
		if signed, err = h.issuers.Daily.ClaimSignature(c.Request.Context(), userID); err != nil {
			c.Error(h.issuers.DailyErrors(err))
			return
		}
	case models.KindGameReward:
		if req.ScoreID == "" {
			c.Error(apperrors.NewValidationError("scoreId", "is required for game_reward"))
			return
		}
		if signed, err = h.issuers.Game.ClaimSignature(c.Request.Context(), userID, req.ScoreID); err != nil {
			c.Error(h.issuers.GameErrors(err))
			return
		}
	}
	response.OK(c, signed)
}

// @Summary Retry a pending claim
// @Description Re-dispatches a pending transfer claim without a tx hash, or reconciles one that has a hash
// @Tags admin
// @Produce json
// @Param X-Admin-Token header string true "Admin token"
// @Param id path string true "Claim ID"
// @Success 200 {object} response.Envelope{data=models.ClaimResponse}
// @Failure 409 {object} response.Envelope "INVALID_CLAIM_STATE"
// @Router /admin/claims/{id}/retry [post]
func (h *ClaimHandler) retry(c *gin.Context) {
	out, err := h.ledger.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(MapError(err))
		return
	}

	body := h.ledger.ToResponse(out.Claim)
	if out.Pending() {
		response.Pending(c, body)
		return
	}
	response.OK(c, body)
}

// MapError translates ledger errors into API errors.
func MapError(err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, service.ErrClaimNotFound):
		return apperrors.NewNotFoundError("claim")
	case errors.Is(err, service.ErrAlreadyClaimed):
		return apperrors.New(apperrors.ErrCodeAlreadyClaimed, "reward already claimed")
	case errors.Is(err, service.ErrInvalidClaimState):
		return apperrors.New(apperrors.ErrCodeInvalidClaimState, "claim is not pending")
	case errors.Is(err, service.ErrDispatchInProgress):
		return apperrors.New(apperrors.ErrCodeInvalidClaimState, "claim dispatch already in progress")
	case errors.Is(err, service.ErrSignerNotConfigured):
		return apperrors.New(apperrors.ErrCodeGatewayUnavailable, "gasless claims are not configured")
	default:
		return apperrors.NewInternalError(err)
	}
}
