// internal/handlers/reports.go
package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediscan-back/internal/config"
	"mediscan-back/internal/models"
	"mediscan-back/internal/report"
	"mediscan-back/internal/storage"
)

type ReportRequest struct {
	PredictionID    uint   `json:"prediction_id" binding:"required"`
	ReportType      string `json:"report_type"`
	IncludeHeatmaps *bool  `json:"include_heatmaps"`
	AdditionalNotes string `json:"additional_notes"`
}

// CreateReport renders the document, stores the artifact and persists the
// row, all within the request.
func CreateReport(db *gorm.DB, store storage.ObjectStore, cfg *config.Config, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		if req.ReportType == "" {
			req.ReportType = "pdf"
		}
		if req.ReportType != "pdf" && req.ReportType != "txt" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid report type. Must be 'pdf' or 'txt'"})
			return
		}
		includeHeatmaps := req.IncludeHeatmaps == nil || *req.IncludeHeatmaps

		var prediction models.Prediction
		if err := db.First(&prediction, req.PredictionID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
			return
		}
		var img models.Image
		if err := db.First(&img, prediction.ImageID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Image not found"})
			return
		}

		data := report.Data{
			Prediction:      prediction,
			Image:           img,
			Notes:           req.AdditionalNotes,
			IncludeHeatmaps: includeHeatmaps,
			GeneratedAt:     time.Now(),
		}

		var feedback models.Feedback
		if err := db.Where("prediction_id = ?", prediction.ID).First(&feedback).Error; err == nil {
			data.Feedback = &feedback
		}
		if includeHeatmaps {
			db.Where("prediction_id = ?", prediction.ID).Find(&data.Heatmaps)
		}

		var artifact []byte
		var contentType string
		switch req.ReportType {
		case "pdf":
			rendered, err := report.RenderPDF(data)
			if err != nil {
				log.Error("report rendering failed",
					zap.Uint("prediction_id", prediction.ID),
					zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to render report"})
				return
			}
			artifact, contentType = rendered, "application/pdf"
		case "txt":
			artifact, contentType = report.RenderText(data), "text/plain"
		}

		objectName := storage.ObjectName(cfg.Storage.ReportsPrefix, "report."+req.ReportType)
		if err := store.Save(c.Request.Context(), objectName, bytes.NewReader(artifact), int64(len(artifact)), contentType); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to store report"})
			return
		}

		row := models.Report{
			PredictionID: prediction.ID,
			ObjectPath:   objectName,
			ReportType:   req.ReportType,
		}
		if err := db.Create(&row).Error; err != nil {
			store.Delete(c.Request.Context(), objectName)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to save report record"})
			return
		}

		c.JSON(http.StatusCreated, row)
	}
}

func ListReports(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, limit := pagination(c)

		var reports []models.Report
		if err := db.Order("generated_at DESC").Offset(skip).Limit(limit).Find(&reports).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch reports"})
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func GetReport(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var row models.Report
		if err := db.First(&row, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Report not found"})
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func GetReportsByPrediction(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var reports []models.Report
		if err := db.Where("prediction_id = ?", c.Param("id")).Find(&reports).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch reports"})
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

// DownloadReport streams the artifact as an attachment.
func DownloadReport(db *gorm.DB, store storage.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var row models.Report
		if err := db.First(&row, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Report not found"})
			return
		}

		obj, err := store.Open(c.Request.Context(), row.ObjectPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to read report"})
			return
		}
		defer obj.Close()

		contentType := "application/pdf"
		if row.ReportType == "txt" {
			contentType = "text/plain"
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=report_%d.%s", row.ID, row.ReportType))
		c.DataFromReader(http.StatusOK, -1, contentType, obj, nil)
	}
}
