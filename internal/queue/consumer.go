/**
 * Queue consumer for the HealthScan scan worker
 *
 * Consumes scan jobs from the Redis-backed queue via Asynq, drives the
 * document processor, persists results, and publishes lifecycle events.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	scanerrors "github.com/healthscan/scan-worker/internal/errors"
	"github.com/healthscan/scan-worker/internal/logging"
	"github.com/healthscan/scan-worker/internal/metrics"
	"github.com/healthscan/scan-worker/internal/processor"
	"github.com/healthscan/scan-worker/internal/storage"
)

// TaskTypeProcessScan is the Asynq task type for scan processing jobs.
const TaskTypeProcessScan = "process-scan"

// JobData is the queue payload enqueued by the upload API. FileBuffer is
// base64 in the JSON wire form; encoding/json decodes it transparently.
type JobData struct {
	JobID      string            `json:"jobId"`
	UserID     string            `json:"userId"`
	Filename   string            `json:"filename"`
	MimeType   string            `json:"mimeType,omitempty"`
	FileBuffer []byte            `json:"fileBuffer"`
	Options    processor.Options `json:"options,omitempty"`
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxFileSize       int64
	ProcessingTimeout int // per-job timeout in milliseconds

	Processor *processor.DocumentProcessor
	Store     *storage.PostgresClient
	Events    *EventPublisher
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor *processor.DocumentProcessor
	store     *storage.PostgresClient
	events    *EventPublisher
	config    *ConsumerConfig
	logger    *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("Store is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("consumer")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		store:     cfg.Store,
		events:    cfg.Events,
		config:    cfg,
		logger:    logger,
	}

	mux.HandleFunc(TaskTypeProcessScan, consumer.handleProcessScan)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.logger.Error("Queue consumer error", "error", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleProcessScan processes one scan job end to end.
func (c *Consumer) handleProcessScan(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var jobData JobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if jobData.JobID == "" {
		return fmt.Errorf("job data missing jobId: %w", asynq.SkipRetry)
	}

	c.logger.Info("Processing scan",
		"job", jobData.JobID, "filename", jobData.Filename,
		"size", len(jobData.FileBuffer), "user", jobData.UserID)

	if c.config.MaxFileSize > 0 && int64(len(jobData.FileBuffer)) > c.config.MaxFileSize {
		err := fmt.Errorf("file exceeds size limit: %d > %d bytes",
			len(jobData.FileBuffer), c.config.MaxFileSize)
		c.failJob(ctx, &jobData, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	c.setStatus(ctx, &jobData, "processing", nil)

	timeout := 180 * time.Second
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.ProcessDocument(processCtx, &processor.ProcessRequest{
		ScanID:   jobData.JobID,
		Data:     jobData.FileBuffer,
		MimeType: jobData.MimeType,
		Options:  jobData.Options,
	})

	duration := time.Since(startTime)

	if err != nil {
		return c.handleProcessingError(ctx, &jobData, err, duration)
	}

	extracted := c.processor.ExtractHealthMetrics(result.Text)

	resultID, storeErr := c.persistResult(ctx, jobData.JobID, result, extracted)
	if storeErr != nil {
		storageErr := scanerrors.NewStorageFailedError(jobData.JobID, storeErr)
		c.logger.Error("Failed to persist results", "job", jobData.JobID, "error", storageErr)
		c.failJob(ctx, &jobData, storageErr.ToMap())
		return storageErr
	}

	c.logger.Info("Scan completed",
		"job", jobData.JobID, "duration", duration,
		"confidence", fmt.Sprintf("%.2f", result.Confidence),
		"selection", result.SelectionMethod, "metrics", len(extracted))

	c.setStatus(ctx, &jobData, "completed", map[string]interface{}{
		"resultId":        resultID,
		"confidence":      result.Confidence,
		"selectionMethod": result.SelectionMethod,
		"metricCount":     len(extracted),
		"processingTime":  duration.Milliseconds(),
	})

	return nil
}

// handleProcessingError maps fatal processor errors to job status and retry
// policy. Unsupported input never retries; transient exhaustion does.
func (c *Consumer) handleProcessingError(ctx context.Context, jobData *JobData, err error, duration time.Duration) error {
	details := map[string]interface{}{
		"error":          err.Error(),
		"processingTime": duration.Milliseconds(),
	}
	if se, ok := asScanError(err); ok {
		details = se.ToMap()
		details["processingTime"] = duration.Milliseconds()
	}

	c.logger.Error("Scan failed", "job", jobData.JobID, "duration", duration, "error", err)
	c.failJob(ctx, jobData, details)

	// A wrong MIME type will never succeed on retry. Engine exhaustion and
	// deadline expiry may: another worker replica can have healthy sidecars.
	if scanerrors.IsCode(err, scanerrors.ErrorUnsupportedMimeType) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	return fmt.Errorf("scan processing failed: %w", err)
}

// persistResult stores the transcription and its metrics, returning the
// result row id.
func (c *Consumer) persistResult(ctx context.Context, jobID string, result *processor.TranscriptionResult, extracted []metrics.HealthMetric) (string, error) {
	resultID, err := c.store.StoreScanResult(ctx, jobID, result)
	if err != nil {
		return "", err
	}
	if err := c.store.StoreHealthMetrics(ctx, resultID, extracted); err != nil {
		return "", err
	}
	return resultID, nil
}

func (c *Consumer) setStatus(ctx context.Context, jobData *JobData, status string, metadata map[string]interface{}) {
	if err := c.store.UpsertJobStatus(ctx, &storage.JobUpdate{
		JobID:    jobData.JobID,
		Status:   status,
		Metadata: metadata,
	}); err != nil {
		c.logger.Warn("Failed to update job status",
			"job", jobData.JobID, "status", status, "error", err)
	}
	if c.events != nil {
		c.events.Publish(ctx, jobData.JobID, jobData.UserID, status, metadata)
	}
}

func (c *Consumer) failJob(ctx context.Context, jobData *JobData, details map[string]interface{}) {
	update := &storage.JobUpdate{
		JobID:    jobData.JobID,
		Status:   "failed",
		Metadata: details,
	}
	if code, ok := details["error_code"].(string); ok {
		update.ErrorCode = code
	}
	if msg, ok := details["message"].(string); ok {
		update.ErrorMessage = msg
	} else if msg, ok := details["error"].(string); ok {
		update.ErrorMessage = msg
	}

	if err := c.store.UpsertJobStatus(ctx, update); err != nil {
		c.logger.Warn("Failed to update job status",
			"job", jobData.JobID, "status", "failed", "error", err)
	}
	if c.events != nil {
		c.events.Publish(ctx, jobData.JobID, jobData.UserID, "failed", details)
	}
}

func asScanError(err error) (*scanerrors.ScanError, bool) {
	var se *scanerrors.ScanError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
