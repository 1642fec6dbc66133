package api

import (
	stderrors "errors"
	"net/http"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/service"
	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *service.UserService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("invalid signup request").WithDetails(err.Error()))
		return
	}

	user, token, err := h.service.CreateUser(c.Request.Context(), &req)
	if err != nil {
		if stderrors.Is(err, service.ErrUserAlreadyExists) {
			c.Error(errors.NewConflictError("USER_EXISTS", "a user with this email already exists"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "failed to create user account").WithCause(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("invalid login request").WithDetails(err.Error()))
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		if stderrors.Is(err, service.ErrInvalidCredentials) {
			c.Error(errors.NewUnauthorizedError("INVALID_CREDENTIALS", "invalid email or password"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "an error occurred during login").WithCause(err))
		return
	}

	h.logger.Info("user logged in", "user_id", user.ID, "role", user.Role)

	c.JSON(http.StatusOK, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError(errors.CodeUnauthorized, "authentication required"))
		return
	}

	user, err := h.service.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if stderrors.Is(err, service.ErrUserNotFound) {
			c.Error(errors.NewNotFoundError(errors.CodeNotFound, "user not found"))
			return
		}
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "failed to retrieve user").WithCause(err))
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}
