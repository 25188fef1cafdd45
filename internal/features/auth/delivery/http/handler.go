package http

import (
	"barn-economy-backend/internal/common/middleware"
	"barn-economy-backend/internal/common/response"
	"barn-economy-backend/internal/features/auth/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		auth.POST("/logout", h.logout)
	}
}

// @Summary Log out
// @Description Invalidates the bearer session. A storage failure is reported so the client can retry.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	if token := middleware.BearerToken(c); token != "" {
		if err := h.service.Logout(c.Request.Context(), token); err != nil {
			_ = c.Error(err)
			return
		}
	}
	response.OK(c, gin.H{"loggedOut": true})
}
