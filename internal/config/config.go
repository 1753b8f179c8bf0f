/**
 * Configuration for the HealthScan scan worker
 *
 * Loads configuration from environment variables matching .env
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration
	DatabaseURL string

	// Neural engine sidecar URLs (empty disables the engine)
	EasyOCRURL   string
	PaddleOCRURL string

	// Tesseract configuration
	TesseractLang string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // per-job timeout in milliseconds

	// Ensemble configuration
	EnsembleWorkers    int
	CandidateTimeoutMs int
	RequestDeadlineMs  int

	// Clinical reference configuration
	CriticalLowRatio    float64
	CriticalHighRatio   float64
	MinMetricConfidence float64

	// Node environment
	Env string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://healthscan-redis:6379"),
		QueueName:           getEnvOrDefault("QUEUE_NAME", "scan:process"),
		DatabaseURL:         getEnvOrThrow("DATABASE_URL"),
		EasyOCRURL:          getEnvOrDefault("EASYOCR_URL", "http://healthscan-easyocr:8501"),
		PaddleOCRURL:        getEnvOrDefault("PADDLEOCR_URL", "http://healthscan-paddleocr:8502"),
		TesseractLang:       getEnvOrDefault("TESSERACT_LANG", "eng"),
		WorkerConcurrency:   getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxFileSize:         getEnvAsInt64OrDefault("MAX_FILE_SIZE", 20971520), // 20MB
		ProcessingTimeout:   getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 180000), // 3 minutes
		EnsembleWorkers:     getEnvAsIntOrDefault("ENSEMBLE_WORKERS", 4),
		CandidateTimeoutMs:  getEnvAsIntOrDefault("CANDIDATE_TIMEOUT_MS", 20000),
		RequestDeadlineMs:   getEnvAsIntOrDefault("REQUEST_DEADLINE_MS", 90000),
		CriticalLowRatio:    getEnvAsFloatOrDefault("CRITICAL_LOW_RATIO", 0.6),
		CriticalHighRatio:   getEnvAsFloatOrDefault("CRITICAL_HIGH_RATIO", 1.5),
		MinMetricConfidence: getEnvAsFloatOrDefault("MIN_METRIC_CONFIDENCE", 40),
		Env:                 getEnvOrDefault("ENV", "development"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.EnsembleWorkers < 1 || c.EnsembleWorkers > 32 {
		return fmt.Errorf("ENSEMBLE_WORKERS must be between 1 and 32, got %d", c.EnsembleWorkers)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 1GB, got %d", c.MaxFileSize)
	}

	if c.CandidateTimeoutMs < 1000 {
		return fmt.Errorf("CANDIDATE_TIMEOUT_MS must be at least 1000, got %d", c.CandidateTimeoutMs)
	}

	if c.RequestDeadlineMs < c.CandidateTimeoutMs {
		return fmt.Errorf("REQUEST_DEADLINE_MS must be >= CANDIDATE_TIMEOUT_MS, got %d < %d",
			c.RequestDeadlineMs, c.CandidateTimeoutMs)
	}

	if c.CriticalLowRatio <= 0 || c.CriticalLowRatio >= 1 {
		return fmt.Errorf("CRITICAL_LOW_RATIO must be in (0,1), got %f", c.CriticalLowRatio)
	}

	if c.CriticalHighRatio <= 1 {
		return fmt.Errorf("CRITICAL_HIGH_RATIO must be > 1, got %f", c.CriticalHighRatio)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics when unset
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
