// internal/handlers/feedback.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mediscan-back/internal/middleware"
	"mediscan-back/internal/models"
)

type FeedbackRequest struct {
	Rating        int    `json:"rating" binding:"required,min=1,max=5"`
	OverrideLabel string `json:"override_label"`
	Comment       string `json:"comment"`
}

// UpsertFeedback creates or updates the single feedback row for a prediction
// (the :id route param is the prediction id) and marks the prediction
// reviewed. POST and PUT share this path.
func UpsertFeedback(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.CtxUserID)

		var req FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		var prediction models.Prediction
		if err := db.First(&prediction, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
			return
		}

		var feedback models.Feedback
		err := db.Where("prediction_id = ?", prediction.ID).First(&feedback).Error
		created := false
		switch {
		case err == nil:
			feedback.UserID = userID
			feedback.Rating = req.Rating
			feedback.OverrideLabel = req.OverrideLabel
			feedback.Comment = req.Comment
			if err := db.Save(&feedback).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to update feedback"})
				return
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			feedback = models.Feedback{
				PredictionID:  prediction.ID,
				UserID:        userID,
				Rating:        req.Rating,
				OverrideLabel: req.OverrideLabel,
				Comment:       req.Comment,
			}
			if err := db.Create(&feedback).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to save feedback"})
				return
			}
			created = true
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to load feedback"})
			return
		}

		if prediction.Status != models.StatusReviewed {
			if err := db.Model(&prediction).Update("status", models.StatusReviewed).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to update prediction status"})
				return
			}
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, feedback)
	}
}

// GetFeedback fetches the feedback row for a prediction.
func GetFeedback(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var prediction models.Prediction
		if err := db.First(&prediction, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
			return
		}

		var feedback models.Feedback
		if err := db.Where("prediction_id = ?", prediction.ID).First(&feedback).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "No feedback for this prediction"})
			return
		}
		c.JSON(http.StatusOK, feedback)
	}
}

// DeleteFeedback removes the feedback row (author or admin only) and reverts
// the prediction to completed.
func DeleteFeedback(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		var prediction models.Prediction
		if err := db.First(&prediction, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
			return
		}

		var feedback models.Feedback
		if err := db.Where("prediction_id = ?", prediction.ID).First(&feedback).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "No feedback for this prediction"})
			return
		}

		if user.Role != models.RoleAdmin && feedback.UserID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"detail": "Not enough permissions"})
			return
		}

		if err := db.Delete(&feedback).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to delete feedback"})
			return
		}
		if prediction.Status == models.StatusReviewed {
			if err := db.Model(&prediction).Update("status", models.StatusCompleted).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to update prediction status"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "Feedback deleted successfully"})
	}
}
