package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sekolahub/backend/internal/auth"
	"github.com/sekolahub/backend/internal/middleware"
	"github.com/sekolahub/backend/internal/models"
	"github.com/sekolahub/backend/internal/repository"
)

type AuthHandler struct {
	userRepo   *repository.UserRepository
	jwtService *auth.JWTService
}

func NewAuthHandler(userRepo *repository.UserRepository, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		userRepo:   userRepo,
		jwtService: jwtService,
	}
}

// Login authenticates a staff account and issues a tenant-scoped token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userRepo.GetByEmail(req.Email)
	if err != nil || user == nil {
		ErrorResponse(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := auth.CheckPassword(req.Password, user.PasswordHash); err != nil {
		ErrorResponse(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.TenantID, user.Email)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token: token,
		User:  *user,
	})
}

// GetMe returns the authenticated account.
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, err := h.userRepo.GetByID(middleware.GetUserID(c))
	if err != nil || user == nil {
		ErrorResponse(c, http.StatusNotFound, "user not found")
		return
	}

	c.JSON(http.StatusOK, user)
}
