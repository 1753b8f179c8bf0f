/**
 * Scan lifecycle event publisher
 *
 * Publishes job status transitions on a Redis pub/sub channel so the API
 * layer can stream progress to clients. Publishing is best-effort: a lost
 * event never fails the job.
 */

package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/healthscan/scan-worker/internal/logging"
)

// EventChannel is the pub/sub channel for scan lifecycle events.
const EventChannel = "scan:events"

// ScanEvent is one job status transition.
type ScanEvent struct {
	EventID   string                 `json:"eventId"`
	JobID     string                 `json:"jobId"`
	UserID    string                 `json:"userId,omitempty"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// EventPublisher publishes scan events to Redis.
type EventPublisher struct {
	client *redis.Client
	logger *logging.Logger
}

// NewEventPublisher creates a publisher from a Redis URL.
func NewEventPublisher(redisURL string) (*EventPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return &EventPublisher{
		client: redis.NewClient(opt),
		logger: logging.NewLogger("events"),
	}, nil
}

// Publish emits a status transition for a job. Failures are logged and
// swallowed; event delivery must never affect job outcome.
func (p *EventPublisher) Publish(ctx context.Context, jobID, userID, status string, details map[string]interface{}) {
	event := ScanEvent{
		EventID:   uuid.NewString(),
		JobID:     jobID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Failed to marshal scan event", "job", jobID, "status", status, "error", err)
		return
	}

	if err := p.client.Publish(ctx, EventChannel, payload).Err(); err != nil {
		p.logger.Warn("Failed to publish scan event", "job", jobID, "status", status, "error", err)
	}
}

// Close releases the Redis connection.
func (p *EventPublisher) Close() error {
	return p.client.Close()
}
