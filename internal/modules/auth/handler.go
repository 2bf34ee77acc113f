package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"segportal/internal/pkg/apperr"
	"segportal/internal/pkg/response"
	"segportal/internal/session"
)

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service  *Service
	sessions *session.Issuer
}

func NewHandler(service *Service, sessions *session.Issuer) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.GET("/user", h.GetUser)
		authGroup.POST("/logout", h.Logout)
	}
}

// Login authenticates against the identity provider and opens a session.
// @Summary     Log in through the identity provider
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       request body LoginRequest true "username and password"
// @Success     200 {object} LoginResponse
// @Failure     400,401,500 {object} map[string]interface{}
// @Router      /auth/login [POST]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	res, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if _, err := h.sessions.Start(c, res.Username, res.Token); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":       res.Token,
		"username":    res.Username,
		"is_new_user": res.IsNewUser,
	})
}

// GetUser reports whether the request carries a live session.
// @Summary     Current session user
// @Tags        Auth
// @Produce     json
// @Success     200 {object} UserResponse
// @Failure     401 {object} UserResponse
// @Router      /auth/user [GET]
func (h *Handler) GetUser(c *gin.Context) {
	username, err := h.sessions.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, UserResponse{Authenticated: false})
		return
	}

	u, err := h.service.GetUser(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, UserResponse{Authenticated: false})
			return
		}
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, UserResponse{Authenticated: true, User: u})
}

// Logout ends the session; calling it without one is harmless.
// @Summary     Log out
// @Tags        Auth
// @Produce     json
// @Success     200 {object} map[string]interface{}
// @Router      /auth/logout [POST]
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.End(c); err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
