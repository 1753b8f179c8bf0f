/**
 * HealthScan Scan Worker - Main Entry Point
 *
 * Go worker for medical lab document recognition.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed scan queue
 * - Recognition ensemble: preprocessing profiles x engines x modes on a
 *   bounded worker pool, winner chosen by the shared confidence estimator
 * - Engines: embedded Tesseract plus EasyOCR/PaddleOCR HTTP sidecars
 * - Clinical metric extraction and reference-range flagging
 * - PostgreSQL persistence, Redis pub/sub lifecycle events
 */

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/healthscan/scan-worker/internal/config"
	"github.com/healthscan/scan-worker/internal/logging"
	"github.com/healthscan/scan-worker/internal/metrics"
	"github.com/healthscan/scan-worker/internal/ocr"
	"github.com/healthscan/scan-worker/internal/processor"
	"github.com/healthscan/scan-worker/internal/queue"
	"github.com/healthscan/scan-worker/internal/storage"
)

func main() {
	logger := logging.NewLogger("worker")

	if err := godotenv.Load(); err != nil {
		logger.Warn(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("HealthScan scan worker starting",
		"env", cfg.Env, "queue", cfg.QueueName, "concurrency", cfg.WorkerConcurrency)

	store, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("PostgreSQL connected")

	events, err := queue.NewEventPublisher(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to connect event publisher", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	resolver := metrics.NewResolver(metrics.ResolverConfig{
		CriticalLowRatio:  cfg.CriticalLowRatio,
		CriticalHighRatio: cfg.CriticalHighRatio,
	})
	extractor := metrics.NewExtractor(metrics.ExtractorConfig{
		MinConfidence: cfg.MinMetricConfidence,
		Resolver:      resolver,
	})

	engines := []ocr.Engine{
		ocr.NewTesseractEngine(cfg.TesseractLang),
	}
	if cfg.EasyOCRURL != "" {
		engines = append(engines, ocr.NewEasyOCREngine(cfg.EasyOCRURL))
	}
	if cfg.PaddleOCRURL != "" {
		engines = append(engines, ocr.NewPaddleOCREngine(cfg.PaddleOCRURL))
	}

	proc, err := processor.NewDocumentProcessor(&processor.Config{
		Engines:          engines,
		Workers:          cfg.EnsembleWorkers,
		CandidateTimeout: time.Duration(cfg.CandidateTimeoutMs) * time.Millisecond,
		RequestDeadline:  time.Duration(cfg.RequestDeadlineMs) * time.Millisecond,
		Extractor:        extractor,
	})
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		os.Exit(1)
	}
	logger.Info("Document processor initialized", "engines", proc.AvailableEngines())

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		MaxFileSize:       cfg.MaxFileSize,
		ProcessingTimeout: cfg.ProcessingTimeout,
		Processor:         proc,
		Store:             store,
		Events:            events,
	})
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	if err := consumer.Start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker ready, waiting for jobs",
		"queue", cfg.QueueName, "workers", cfg.WorkerConcurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig)

	if err := consumer.Stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
}
