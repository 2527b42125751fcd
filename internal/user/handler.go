package user

import (
	"event-scheduler/auth"
	"event-scheduler/internal/config"
	"event-scheduler/internal/errors"
	"event-scheduler/redis"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for users
type Handler struct {
	service Service
}

// NewHandler creates a new user handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// FormLogin represents login form data
type FormLogin struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// FormRegister represents registration form data
type FormRegister struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register handles user registration
func (h *Handler) Register(c *gin.Context) {
	var form FormRegister
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	user := &User{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
		IsActive: true,
	}

	if err := h.service.Register(user); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user.ToSafeUser()})
}

// Login handles user login
func (h *Handler) Login(c *gin.Context) {
	var form FormLogin
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	user, err := h.service.Login(form.Email, form.Password)
	if err != nil {
		c.Error(err)
		return
	}

	accessToken, err := auth.GenerateJWT(user.ID)
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}

	// register the session so logout can revoke it
	if err := redis.StoreToken(c.Request.Context(), accessToken, config.AppConfig.TokenTTL); err != nil {
		log.Printf("Failed to store session token: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"token_type":   "bearer",
		"user":         user.ToSafeUser(),
	})
}

// Refresh issues a fresh token for the current bearer identity. The old
// token keeps its own TTL and stays valid until it expires or is revoked
// by logout.
func (h *Handler) Refresh(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.Error(errors.Unauthorized("User not found", nil))
		return
	}

	accessToken, err := auth.GenerateJWT(userID.(uint64))
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}

	if err := redis.StoreToken(c.Request.Context(), accessToken, config.AppConfig.TokenTTL); err != nil {
		log.Printf("Failed to store session token: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"token_type":   "bearer",
	})
}

// Logout handles user logout
func (h *Handler) Logout(c *gin.Context) {
	token, exists := c.Get("jwt_token")
	if exists {
		if err := redis.DeleteToken(c.Request.Context(), token.(string)); err != nil {
			log.Printf("Failed to revoke session token: %v", err)
		}
	}

	c.Status(http.StatusNoContent)
}

// GetProfile handles getting the current user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.Error(errors.Unauthorized("User not found", nil))
		return
	}

	user, err := h.service.GetUserByID(userID.(uint64))
	if err != nil {
		c.Error(errors.NotFound("User not found", err))
		return
	}

	c.JSON(http.StatusOK, user.ToSafeUser())
}
