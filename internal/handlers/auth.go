// internal/handlers/auth.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mediscan-back/internal/auth"
	"mediscan-back/internal/config"
	"mediscan-back/internal/middleware"
	"mediscan-back/internal/models"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
}

// TokenResponse is the /auth/token payload consumed by the frontend.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      uint   `json:"user_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
}

// Register creates a doctor account and signs the caller in.
func Register(db *gorm.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		var existing models.User
		if err := db.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error; err == nil {
			c.JSON(http.StatusConflict, gin.H{"detail": "Username or email already registered"})
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to hash password"})
			return
		}

		user := models.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hashed),
			FullName:     req.FullName,
			Role:         models.RoleDoctor,
			IsActive:     true,
		}
		if err := db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to create user"})
			return
		}

		token, err := auth.GenerateToken(&user, cfg.App.SecretKey, tokenExpiry(cfg))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate token"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"token": tokenPayload(token, &user),
			"user":  user,
		})
	}
}

// Token is the password grant: form-encoded credentials in, bearer token out.
func Token(db *gorm.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.PostForm("username")
		password := c.PostForm("password")
		if username == "" || password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "username and password are required"})
			return
		}

		var user models.User
		if err := db.Where("username = ?", username).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Inactive user"})
			return
		}

		token, err := auth.GenerateToken(&user, cfg.App.SecretKey, tokenExpiry(cfg))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate token"})
			return
		}

		c.JSON(http.StatusOK, tokenPayload(token, &user))
	}
}

// Me returns the authenticated user's record.
func Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{
			"id":        user.ID,
			"username":  user.Username,
			"email":     user.Email,
			"full_name": user.FullName,
			"role":      user.Role,
			"is_active": user.IsActive,
		})
	}
}

// VerifyToken lets the frontend probe token validity without a full profile
// fetch.
func VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{
			"valid":     true,
			"user_id":   user.ID,
			"role":      user.Role,
			"username":  user.Username,
			"full_name": user.FullName,
		})
	}
}

func tokenExpiry(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Auth.TokenExpiryMinutes) * time.Minute
}

func tokenPayload(token string, user *models.User) TokenResponse {
	return TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		FullName:    user.FullName,
	}
}
