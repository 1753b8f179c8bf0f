package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteEngineModes(t *testing.T) {
	easy := NewEasyOCREngine("http://unused")
	assert.Equal(t, "easyocr", easy.ID())
	assert.Equal(t, []Mode{ModeBlock, ModeSparse, ModeLine}, easy.Modes())

	paddle := NewPaddleOCREngine("http://unused")
	assert.Equal(t, "paddleocr", paddle.ID())
	assert.Equal(t, []Mode{ModeBlock, ModeColumn, ModeTable}, paddle.Modes())
}

func TestRemoteEngineProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := NewEasyOCREngine(srv.URL)
	assert.NoError(t, engine.Probe(context.Background()))
}

func TestRemoteEngineProbeFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	engine := NewEasyOCREngine(srv.URL)
	assert.Error(t, engine.Probe(context.Background()))

	unconfigured := NewEasyOCREngine("")
	assert.Error(t, unconfigured.Probe(context.Background()))
}

func TestRemoteEngineRecognize(t *testing.T) {
	imageBytes := []byte{0x89, 0x50, 0x4E, 0x47}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/recognize", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Image  string `json:"image"`
			Format string `json:"format"`
			Mode   string `json:"mode"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, base64.StdEncoding.EncodeToString(imageBytes), req.Image)
		assert.Equal(t, "base64", req.Format)
		assert.Equal(t, "table", req.Mode)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":    true,
			"text":       "Glucose 95 mg/dL",
			"confidence": 88.5,
		})
	}))
	defer srv.Close()

	engine := NewPaddleOCREngine(srv.URL)
	rec, err := engine.Recognize(context.Background(), imageBytes, ModeTable)
	require.NoError(t, err)
	assert.Equal(t, "Glucose 95 mg/dL", rec.Text)
	require.NotNil(t, rec.SelfConfidence)
	assert.Equal(t, 88.5, *rec.SelfConfidence)
}

func TestRemoteEngineRecognizeWithoutConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"text":    "TSH: 2.5 mIU/L",
		})
	}))
	defer srv.Close()

	engine := NewEasyOCREngine(srv.URL)
	rec, err := engine.Recognize(context.Background(), []byte{1, 2, 3}, ModeBlock)
	require.NoError(t, err)
	assert.Equal(t, "TSH: 2.5 mIU/L", rec.Text)
	assert.Nil(t, rec.SelfConfidence)
}

func TestRemoteEngineRecognizeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "unreadable input",
		})
	}))
	defer srv.Close()

	engine := NewEasyOCREngine(srv.URL)
	_, err := engine.Recognize(context.Background(), []byte{1}, ModeBlock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable input")
}

func TestRemoteEngineRecognizeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := NewEasyOCREngine(srv.URL)
	_, err := engine.Recognize(context.Background(), []byte{1}, ModeBlock)
	assert.Error(t, err)
}

func TestRemoteEngineRecognizeHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEasyOCREngine(srv.URL)
	_, err := engine.Recognize(ctx, []byte{1}, ModeBlock)
	assert.Error(t, err)
}
