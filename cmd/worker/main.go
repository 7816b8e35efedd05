package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"dataset-platform/config"
	"dataset-platform/core/qc"
	"dataset-platform/core/repository"
	"dataset-platform/core/tasks"
	"dataset-platform/queue"
)

const consumerName = "qc-worker"

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := config.Load()

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	assetRepo := repository.NewAssetRepository(db)
	runRepo := repository.NewRunRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)

	arbiter := tasks.NewArbiter(taskRepo, assetRepo, userRepo)
	runner := qc.NewRunner(runRepo, assetRepo, qc.ConstantScorer{Value: 0.5}, arbiter)

	jobQueue, err := queue.Connect(cfg.NATSURL)
	if err != nil {
		logger.Fatal("connect job queue", zap.Error(err))
	}
	defer jobQueue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker")
		cancel()
	}()

	logger.Info("worker consuming qc jobs", zap.String("consumer", consumerName))
	err = jobQueue.ConsumeQCRuns(ctx, consumerName, func(ctx context.Context, job queue.QCRunJob) error {
		return runner.Process(ctx, job.RunID)
	})
	if err != nil {
		logger.Fatal("consume qc jobs", zap.Error(err))
	}
	logger.Info("worker exited")
}
