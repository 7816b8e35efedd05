package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dataset-platform/api/rest/routes"
	"dataset-platform/config"
	"dataset-platform/core/auth"
	"dataset-platform/core/batches"
	"dataset-platform/core/export"
	"dataset-platform/core/qc"
	"dataset-platform/core/repository"
	"dataset-platform/core/tasks"
	"dataset-platform/core/uploads"
	"dataset-platform/queue"
	"dataset-platform/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := config.Load()
	ctx := context.Background()

	// Database
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}
	logger.Info("database ready")

	// Repositories
	batchRepo := repository.NewBatchRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	runRepo := repository.NewRunRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	annotationRepo := repository.NewAnnotationRepository(db)
	exportRepo := repository.NewExportRepository(db)
	userRepo := repository.NewUserRepository(db)

	if err := auth.SeedUsers(ctx, userRepo); err != nil {
		logger.Fatal("seed users", zap.Error(err))
	}

	// Object store
	store, err := storage.New(ctx, cfg.S3)
	if err != nil {
		logger.Fatal("connect object store", zap.Error(err))
	}
	for _, bucket := range []string{cfg.S3.BucketAssets, cfg.S3.BucketExports} {
		if err := store.EnsureBucket(ctx, bucket); err != nil {
			logger.Fatal("ensure bucket", zap.String("bucket", bucket), zap.Error(err))
		}
	}

	// Job queue
	jobQueue, err := queue.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("connect job queue", zap.Error(err))
	}
	defer jobQueue.Close()

	// Services
	tokens := auth.NewTokenManager(cfg.JWTSecret,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	batchService := batches.NewService(batchRepo)
	uploadService := uploads.NewService(batchRepo, assetRepo, store, cfg.S3.BucketAssets, cfg.S3.PresignExpiresS)
	qcService := qc.NewService(batchRepo, assetRepo, runRepo, jobQueue)
	taskService := tasks.NewService(taskRepo, batchRepo, assetRepo, annotationRepo)
	exportBuilder := export.NewBuilder(
		batchRepo, assetRepo, runRepo, annotationRepo, exportRepo, store, cfg.S3.BucketExports)

	r := mux.NewRouter()
	routes.SetupRoutes(r, routes.Services{
		Users:   userRepo,
		Tokens:  tokens,
		Batches: batchService,
		Uploads: uploadService,
		QC:      qcService,
		Tasks:   taskService,
		Exports: exportBuilder,
	})

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
