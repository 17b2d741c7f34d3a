// internal/handlers/predictions.go
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediscan-back/internal/config"
	"mediscan-back/internal/inference"
	"mediscan-back/internal/middleware"
	"mediscan-back/internal/models"
	"mediscan-back/internal/storage"
)

type PredictionRequest struct {
	ImageID   uint   `json:"image_id" binding:"required"`
	ModelName string `json:"model_name"`
}

// PredictionResponse mirrors the stored row plus the label→heatmap-path map
// assembled from the heatmap rows.
type PredictionResponse struct {
	models.Prediction
	HeatmapPaths map[string]string `json:"heatmap_paths"`
}

// CreatePrediction runs inference synchronously and persists the completed
// row; heatmaps are generated afterwards in a detached goroutine. An
// inference failure leaves no row behind.
func CreatePrediction(db *gorm.DB, store storage.ObjectStore, infer *inference.Client, cfg *config.Config, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.CtxUserID)

		var req PredictionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if req.ModelName == "" && len(cfg.Models) > 0 {
			req.ModelName = cfg.Models[0].Name
		}

		var img models.Image
		if err := db.First(&img, req.ImageID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Image not found"})
			return
		}

		model, ok := cfg.FindModel(req.ModelName)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Model %s not found", req.ModelName)})
			return
		}

		obj, err := store.Open(c.Request.Context(), img.ObjectPath)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Stored image could not be read"})
			return
		}
		data := &bytes.Buffer{}
		_, err = io.Copy(data, obj)
		obj.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Stored image could not be read"})
			return
		}

		result, err := infer.Predict(c.Request.Context(), model, img.OriginalFilename, bytes.NewReader(data.Bytes()))
		if err != nil {
			log.Error("inference failed",
				zap.String("model", model.Name),
				zap.Uint("image_id", img.ID),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Prediction error: %s", err.Error())})
			return
		}

		prediction := models.Prediction{
			ImageID:         img.ID,
			UserID:          userID,
			ModelName:       model.Name,
			Predictions:     result.Predictions,
			ConfidenceScore: result.Confidence,
			Status:          models.StatusCompleted,
		}
		if err := db.Create(&prediction).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to save prediction"})
			return
		}

		if model.Explanation != "" {
			go generateHeatmaps(db, store, infer, cfg, log, prediction, img, model, data.Bytes())
		}

		c.JSON(http.StatusCreated, PredictionResponse{Prediction: prediction, HeatmapPaths: map[string]string{}})
	}
}

// generateHeatmaps asks the model service to explain each label above the
// model's confidence threshold and stores one artifact per label. Runs
// detached from the initiating request; failures are logged only.
func generateHeatmaps(db *gorm.DB, store storage.ObjectStore, infer *inference.Client, cfg *config.Config, log *zap.Logger,
	prediction models.Prediction, img models.Image, model *config.Model, imageData []byte) {

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for label, confidence := range prediction.Predictions {
		if confidence <= model.ConfThreshold {
			continue
		}

		data, err := infer.Explain(ctx, model, img.OriginalFilename, bytes.NewReader(imageData), label)
		if err != nil {
			log.Error("heatmap generation failed",
				zap.Uint("prediction_id", prediction.ID),
				zap.String("label", label),
				zap.Error(err))
			continue
		}

		objectName := storage.ObjectName(cfg.Storage.HeatmapsPrefix, "heatmap.png")
		if err := store.Save(ctx, objectName, bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
			log.Error("heatmap upload failed",
				zap.Uint("prediction_id", prediction.ID),
				zap.String("label", label),
				zap.Error(err))
			continue
		}

		heatmap := models.Heatmap{
			PredictionID: prediction.ID,
			ObjectPath:   objectName,
			Method:       model.Explanation,
			Label:        label,
		}
		if err := db.Create(&heatmap).Error; err != nil {
			log.Error("heatmap record failed",
				zap.Uint("prediction_id", prediction.ID),
				zap.String("label", label),
				zap.Error(err))
		}
	}
}

func ListPredictions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, limit := pagination(c)

		query := db.Model(&models.Prediction{})
		if imageID := c.Query("image_id"); imageID != "" {
			query = query.Where("image_id = ?", imageID)
		}

		var predictions []models.Prediction
		if err := query.Order("created_at DESC").Offset(skip).Limit(limit).Find(&predictions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch predictions"})
			return
		}

		out := make([]PredictionResponse, 0, len(predictions))
		for _, p := range predictions {
			out = append(out, PredictionResponse{Prediction: p, HeatmapPaths: heatmapPaths(db, p.ID)})
		}
		c.JSON(http.StatusOK, out)
	}
}

func GetPrediction(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var prediction models.Prediction
		if err := db.Preload("Heatmaps").First(&prediction, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
			return
		}

		paths := make(map[string]string, len(prediction.Heatmaps))
		for _, h := range prediction.Heatmaps {
			paths[h.Label] = h.ObjectPath
		}
		c.JSON(http.StatusOK, PredictionResponse{Prediction: prediction, HeatmapPaths: paths})
	}
}

func GetPredictionHeatmaps(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var prediction models.Prediction
		if err := db.First(&prediction, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
			return
		}

		var heatmaps []models.Heatmap
		if err := db.Where("prediction_id = ?", prediction.ID).Find(&heatmaps).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch heatmaps"})
			return
		}
		c.JSON(http.StatusOK, heatmaps)
	}
}

// GetHeatmapFile streams one heatmap PNG.
func GetHeatmapFile(db *gorm.DB, store storage.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var heatmap models.Heatmap
		if err := db.First(&heatmap, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Heatmap not found"})
			return
		}

		obj, err := store.Open(c.Request.Context(), heatmap.ObjectPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to read heatmap"})
			return
		}
		defer obj.Close()

		c.DataFromReader(http.StatusOK, -1, "image/png", obj, nil)
	}
}

func heatmapPaths(db *gorm.DB, predictionID uint) map[string]string {
	var heatmaps []models.Heatmap
	db.Where("prediction_id = ?", predictionID).Find(&heatmaps)
	paths := make(map[string]string, len(heatmaps))
	for _, h := range heatmaps {
		paths[h.Label] = h.ObjectPath
	}
	return paths
}
