/**
 * PostgreSQL client for the HealthScan scan worker
 *
 * Persists job tracking, winning transcriptions, and extracted metrics. The
 * recognition core has no awareness of this layer; it is plumbing around it.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/healthscan/scan-worker/internal/metrics"
	"github.com/healthscan/scan-worker/internal/processor"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a scan job status update
type JobUpdate struct {
	JobID        string
	Status       string
	ErrorCode    string
	ErrorMessage string
	Metadata     map[string]interface{}
}

// sanitizeConfidence rounds a [0,100] confidence to 4 decimal places and
// clamps it; FLOAT values with excess precision trip NUMERIC casts otherwise.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpsertJobStatus creates or updates the job record. Idempotent: the worker
// may see a job before the upload API has written its row.
func (p *PostgresClient) UpsertJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO healthscan.scan_jobs (
			id, status, error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, ''), NULLIF($4, ''),
			COALESCE($5::jsonb, '{}'::jsonb), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			metadata = COALESCE(EXCLUDED.metadata, healthscan.scan_jobs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,
		update.Status,
		update.ErrorCode,
		update.ErrorMessage,
		metadataJSON,
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to upsert job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// StoreScanResult persists the winning transcription along with the losing
// candidates for auditing, returning the result row id.
func (p *PostgresClient) StoreScanResult(ctx context.Context, jobID string, result *processor.TranscriptionResult) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job ID is required")
	}
	if result == nil {
		return "", fmt.Errorf("result is required")
	}

	alternatesJSON, err := json.Marshal(result.Alternates)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alternates: %w", err)
	}

	query := `
		INSERT INTO healthscan.scan_results (
			job_id, text, confidence, page_count, selection_method,
			profiles_tried, alternates, elapsed_ms, created_at
		) VALUES ($1::uuid, $2, $3::NUMERIC(7,4), $4, $5, $6, $7, $8, NOW())
		RETURNING id
	`

	var resultID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		jobID,
		result.Text,
		sanitizeConfidence(result.Confidence),
		result.PageCount,
		result.SelectionMethod,
		pq.Array(result.ProfilesTried),
		alternatesJSON,
		result.ElapsedMs,
	).Scan(&resultID)

	if err != nil {
		return "", fmt.Errorf("failed to store scan result (job=%s): %w", jobID, err)
	}

	return resultID, nil
}

// StoreHealthMetrics persists extracted metrics for a scan result in one
// transaction; either the full list lands or none of it does.
func (p *PostgresClient) StoreHealthMetrics(ctx context.Context, resultID string, items []metrics.HealthMetric) error {
	if resultID == "" {
		return fmt.Errorf("result ID is required")
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO healthscan.health_metrics (
			result_id, category, name, value, unit, flag,
			range_low, range_high, extraction_confidence, extraction_method, created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC(7,4), $10, NOW())
	`

	for _, m := range items {
		var rangeLow, rangeHigh sql.NullFloat64
		if m.NormalRange != nil {
			rangeLow = sql.NullFloat64{Float64: m.NormalRange.Low, Valid: true}
			rangeHigh = sql.NullFloat64{Float64: m.NormalRange.High, Valid: true}
		}

		if _, err := tx.ExecContext(
			ctx,
			query,
			resultID,
			m.Category,
			m.Name,
			m.Value,
			m.Unit,
			string(m.Flag),
			rangeLow,
			rangeHigh,
			sanitizeConfidence(m.ExtractionConfidence),
			m.ExtractionMethod,
		); err != nil {
			return fmt.Errorf("failed to store metric %q: %w", m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics: %w", err)
	}

	return nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
