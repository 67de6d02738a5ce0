package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"coa-docket/handlers"
	"coa-docket/repository"
	"coa-docket/storage"
	"coa-docket/utils"
)

func main() {
	logger := utils.NewLogger(os.Stderr, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			logger.Warn("no .env file found, using environment variables")
		}
	}

	// Initialize storage
	artifacts, err := storage.NewStorage(storage.ConfigFromEnv(storage.StorageConfig{}))
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("storage initialized")

	// Results come from Postgres when configured, else from the output files
	var reader handlers.CaseReader
	if connString := os.Getenv("DATABASE_URL"); connString != "" {
		db, err := initPostgres(connString)
		if err != nil {
			logger.Error("failed to initialize Postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		reader = repository.NewCaseRepository(db)
		logger.Info("serving results from Postgres")
	} else {
		outputDir := utils.GetStringEnv("OUTPUT_DIR", "./output")
		reader = repository.NewSnapshotReader(outputDir)
		logger.Info("serving results from output directory", "dir", outputDir)
	}

	caseHandler := handlers.NewCaseHandler(reader, artifacts, logger)

	// Setup Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	caseHandler.RegisterRoutes(api)

	// Start server
	port := utils.GetStringEnv("PORT", "8080")

	logger.Info("server starting", "port", port)
	if err := r.Run(":" + port); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

func initPostgres(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
