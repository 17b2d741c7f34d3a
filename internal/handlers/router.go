// internal/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediscan-back/internal/config"
	"mediscan-back/internal/inference"
	"mediscan-back/internal/middleware"
	"mediscan-back/internal/models"
	"mediscan-back/internal/storage"
)

// NewRouter assembles the full API surface.
func NewRouter(db *gorm.DB, store storage.ObjectStore, infer *inference.Client, cfg *config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))
	r.MaxMultipartMemory = cfg.MaxUploadBytes()

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": cfg.App.Name, "version": cfg.App.Version})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", Register(db, cfg))
		authGroup.POST("/token", Token(db, cfg))
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(db, cfg.App.SecretKey))
	{
		protected.GET("/auth/me", Me())
		protected.POST("/auth/verify-token", VerifyToken())

		images := protected.Group("/images")
		{
			images.POST("/", UploadImage(db, store, cfg))
			images.GET("/", ListImages(db))
			images.GET("/:id", GetImage(db, store))
			images.GET("/:id/file", GetImageFile(db, store))
			images.DELETE("/:id", middleware.RequireRoles(), DeleteImage(db, store))
		}

		predictions := protected.Group("/predictions")
		{
			predictions.POST("/", middleware.RequireRoles(models.RoleDoctor), CreatePrediction(db, store, infer, cfg, log))
			predictions.GET("/", ListPredictions(db))
			predictions.GET("/:id", GetPrediction(db))
			predictions.GET("/:id/heatmaps", GetPredictionHeatmaps(db))
		}
		protected.GET("/heatmaps/:id/file", GetHeatmapFile(db, store))

		feedback := protected.Group("/feedback")
		feedback.Use(middleware.RequireRoles(models.RoleDoctor, models.RoleReviewer))
		{
			feedback.POST("/:id", UpsertFeedback(db))
			feedback.PUT("/:id", UpsertFeedback(db))
			feedback.GET("/:id", GetFeedback(db))
			feedback.DELETE("/:id", DeleteFeedback(db))
		}

		reports := protected.Group("/reports")
		{
			reports.POST("/", middleware.RequireRoles(models.RoleDoctor), CreateReport(db, store, cfg, log))
			reports.GET("/", ListReports(db))
			reports.GET("/:id", GetReport(db))
			reports.GET("/:id/download", DownloadReport(db, store))
			reports.GET("/by-prediction/:id", GetReportsByPrediction(db))
		}

		users := protected.Group("/users")
		{
			users.POST("/", middleware.RequireRoles(), CreateUser(db))
			users.GET("/", middleware.RequireRoles(), ListUsers(db))
			users.GET("/:id", GetUser(db))
			users.PUT("/:id", UpdateUser(db))
			users.DELETE("/:id", middleware.RequireRoles(), DeleteUser(db))
		}
	}

	return r
}
