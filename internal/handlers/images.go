// internal/handlers/images.go
package handlers

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"time"

	// Dimension probing for the two accepted upload formats.
	_ "image/jpeg"
	_ "image/png"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mediscan-back/internal/config"
	"mediscan-back/internal/middleware"
	"mediscan-back/internal/models"
	"mediscan-back/internal/storage"
)

// UploadImage accepts a multipart medical image, validates it, writes the
// object, then the row. The size cap is enforced before anything is stored.
func UploadImage(db *gorm.DB, store storage.ObjectStore, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.CtxUserID)

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "No image file provided"})
			return
		}
		imageType := c.PostForm("image_type")
		if imageType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "image_type form field is required"})
			return
		}

		if file.Size > cfg.MaxUploadBytes() {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"detail": fmt.Sprintf("File too large. Maximum size is %dMB", cfg.Storage.MaxUploadSizeMB),
			})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Failed to read uploaded file"})
			return
		}
		defer src.Close()

		data := &bytes.Buffer{}
		if _, err := data.ReadFrom(src); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Failed to read uploaded file"})
			return
		}

		// Sniff the content type rather than trusting the client header.
		contentType := http.DetectContentType(data.Bytes())
		if contentType != "image/jpeg" && contentType != "image/png" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Only JPEG and PNG files are allowed"})
			return
		}

		dims, _, err := image.DecodeConfig(bytes.NewReader(data.Bytes()))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Invalid image: %s", err.Error())})
			return
		}

		objectName := storage.ObjectName(cfg.Storage.UploadsPrefix, file.Filename)
		if err := store.Save(c.Request.Context(), objectName, bytes.NewReader(data.Bytes()), int64(data.Len()), contentType); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to upload to storage"})
			return
		}

		img := models.Image{
			OwnerID:          userID,
			Filename:         objectName,
			OriginalFilename: file.Filename,
			ObjectPath:       objectName,
			FileSize:         int64(data.Len()),
			MimeType:         contentType,
			ImageType:        imageType,
			Width:            dims.Width,
			Height:           dims.Height,
		}
		if err := db.Create(&img).Error; err != nil {
			store.Delete(c.Request.Context(), objectName)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to save image record"})
			return
		}

		c.JSON(http.StatusCreated, img)
	}
}

func ListImages(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		skip, limit := pagination(c)

		var images []models.Image
		if err := db.Order("uploaded_at DESC").Offset(skip).Limit(limit).Find(&images).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch images"})
			return
		}
		c.JSON(http.StatusOK, images)
	}
}

// GetImage returns metadata; a download URL is attached when the store can
// presign one.
func GetImage(db *gorm.DB, store storage.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var img models.Image
		if err := db.First(&img, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Image not found"})
			return
		}

		response := gin.H{
			"id":                img.ID,
			"owner_id":          img.OwnerID,
			"filename":          img.Filename,
			"original_filename": img.OriginalFilename,
			"file_size":         img.FileSize,
			"mime_type":         img.MimeType,
			"image_type":        img.ImageType,
			"width":             img.Width,
			"height":            img.Height,
			"uploaded_at":       img.UploadedAt,
		}
		if url, err := store.PresignedURL(c.Request.Context(), img.ObjectPath, time.Hour); err == nil {
			response["download_url"] = url
		}
		c.JSON(http.StatusOK, response)
	}
}

// GetImageFile streams the stored bytes.
func GetImageFile(db *gorm.DB, store storage.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var img models.Image
		if err := db.First(&img, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Image not found"})
			return
		}

		obj, err := store.Open(c.Request.Context(), img.ObjectPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to read stored image"})
			return
		}
		defer obj.Close()

		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%s", img.OriginalFilename))
		c.DataFromReader(http.StatusOK, img.FileSize, img.MimeType, obj, nil)
	}
}

// DeleteImage removes the object then the row. Admin only (enforced by the
// route's role guard).
func DeleteImage(db *gorm.DB, store storage.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var img models.Image
		if err := db.First(&img, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Image not found"})
			return
		}

		if err := store.Delete(c.Request.Context(), img.ObjectPath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to delete stored file"})
			return
		}
		if err := db.Delete(&img).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to delete image record"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
	}
}

// pagination reads skip/limit query params with sane bounds.
func pagination(c *gin.Context) (int, int) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return skip, limit
}
