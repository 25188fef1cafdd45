package http

import (
	"errors"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	"barn-economy-backend/internal/features/user/service"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	service service.UserService
}

func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/users")
	{
		users.GET("/me", h.getMe)
	}
}

// @Summary Get current user
// @Description Profile of the authenticated player including streak state
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.UserResponse}
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/me [get]
func (h *UserHandler) getMe(c *gin.Context) {
	user, err := h.service.GetMe(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.Error(apperrors.NewNotFoundError("user"))
			return
		}
		c.Error(apperrors.NewDatabaseError("get user", err))
		return
	}
	response.OK(c, user)
}
