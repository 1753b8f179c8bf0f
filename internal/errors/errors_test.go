package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanErrorMessage(t *testing.T) {
	err := NewEngineUnavailableError("easyocr", errors.New("connection refused"))
	assert.Contains(t, err.Error(), "ENGINE_UNAVAILABLE")
	assert.Contains(t, err.Error(), "easyocr")
	assert.Contains(t, err.Error(), "connection refused")

	noCause := NewAllEnginesFailedError(12)
	assert.Contains(t, noCause.Error(), "ALL_ENGINES_FAILED")
	assert.NotContains(t, noCause.Error(), "caused by")
}

func TestIsCode(t *testing.T) {
	err := NewUnsupportedMimeTypeError("application/pdf")
	assert.True(t, IsCode(err, ErrorUnsupportedMimeType))
	assert.False(t, IsCode(err, ErrorAllEnginesFailed))
	assert.False(t, IsCode(errors.New("plain"), ErrorUnsupportedMimeType))
	assert.False(t, IsCode(nil, ErrorUnsupportedMimeType))
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := NewRequestDeadlineExceededError(90 * time.Second)
	wrapped := fmt.Errorf("scan processing failed: %w", inner)
	assert.True(t, IsCode(wrapped, ErrorRequestDeadlineExceeded))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageFailedError("job-1", cause)
	assert.ErrorIs(t, err, cause)
}

func TestToMap(t *testing.T) {
	err := NewRecognitionTimeoutError("tesseract", "medical", "block", 20*time.Second)
	m := err.ToMap()

	assert.Equal(t, "RECOGNITION_TIMEOUT", m["error_code"])
	assert.Equal(t, "tesseract", m["engine_id"])
	assert.Equal(t, "medical", m["profile_id"])
	assert.Equal(t, "block", m["mode"])
	assert.NotNil(t, m["timestamp"])
	_, hasCause := m["cause"]
	assert.False(t, hasCause)
}

func TestToMapIncludesCause(t *testing.T) {
	err := NewImageDecodeError("high-contrast", errors.New("bad header"))
	m := err.ToMap()
	require.Contains(t, m, "cause")
	assert.Equal(t, "bad header", m["cause"])
	assert.Equal(t, "high-contrast", m["profile_id"])
}
