// cmd/server/main.go
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mediscan-back/internal/config"
	"mediscan-back/internal/database"
	"mediscan-back/internal/handlers"
	"mediscan-back/internal/inference"
	"mediscan-back/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate models
	if err := database.MigrateDB(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	store, err := storage.NewFromEnv(cfg.Storage.LocalDir)
	if err != nil {
		log.Fatal("Failed to initialize object store:", err)
	}

	infer := inference.NewClient(logger)

	r := handlers.NewRouter(db, store, infer, cfg, logger)

	// Get port from env or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("server starting", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
