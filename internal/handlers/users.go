// internal/handlers/users.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mediscan-back/internal/middleware"
	"mediscan-back/internal/models"
)

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=doctor reviewer admin"`
}

type UpdateUserRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email" binding:"omitempty,email"`
	IsActive *bool   `json:"is_active"`
	Role     *string `json:"role" binding:"omitempty,oneof=doctor reviewer admin"`
}

// CreateUser provisions an account with an explicit role. Admin only
// (enforced by the route's role guard).
func CreateUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		var existing models.User
		if err := db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Username already registered"})
			return
		}
		if err := db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
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
			Role:         req.Role,
			IsActive:     true,
		}
		if err := db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to create user"})
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func ListUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, limit := pagination(c)

		var users []models.User
		if err := db.Offset(skip).Limit(limit).Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch users"})
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// GetUser returns a user record. Non-admins may only read themselves.
func GetUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := middleware.CurrentUser(c)
		targetID, _ := strconv.ParseUint(c.Param("id"), 10, 32)

		if current.Role != models.RoleAdmin && current.ID != uint(targetID) {
			c.JSON(http.StatusForbidden, gin.H{"detail": "Not enough permissions"})
			return
		}

		var user models.User
		if err := db.First(&user, targetID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// UpdateUser applies a partial profile update. Non-admins may only update
// themselves and may not touch role or active status.
func UpdateUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := middleware.CurrentUser(c)
		targetID, _ := strconv.ParseUint(c.Param("id"), 10, 32)

		if current.Role != models.RoleAdmin && current.ID != uint(targetID) {
			c.JSON(http.StatusForbidden, gin.H{"detail": "Not enough permissions"})
			return
		}

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if current.Role != models.RoleAdmin && (req.Role != nil || req.IsActive != nil) {
			c.JSON(http.StatusForbidden, gin.H{"detail": "Not enough permissions"})
			return
		}

		var user models.User
		if err := db.First(&user, targetID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}

		updates := map[string]interface{}{}
		if req.FullName != nil {
			updates["full_name"] = *req.FullName
		}
		if req.Email != nil {
			updates["email"] = *req.Email
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
		if req.Role != nil {
			updates["role"] = *req.Role
		}
		if len(updates) > 0 {
			if err := db.Model(&user).Updates(updates).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to update user"})
				return
			}
		}
		c.JSON(http.StatusOK, user)
	}
}

// DeleteUser soft-deletes an account. Admins cannot delete themselves.
func DeleteUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := middleware.CurrentUser(c)

		var user models.User
		if err := db.First(&user, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		if user.ID == current.ID {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Cannot delete your own account"})
			return
		}

		if err := db.Delete(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to delete user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
	}
}
