/**
 * Remote engine adapter - neural-detection-based recognition sidecars
 *
 * EasyOCR and PaddleOCR run as HTTP sidecar services; this client wraps one
 * sidecar behind the Engine interface. The sidecar is health-probed once at
 * process start and excluded from the ensemble for the process lifetime when
 * the probe fails (re-checked only on restart).
 */

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/healthscan/scan-worker/internal/logging"
)

// RemoteEngine wraps one neural recognition sidecar reachable over HTTP.
type RemoteEngine struct {
	id         string
	baseURL    string
	modes      []Mode
	httpClient *http.Client
	logger     *logging.Logger
}

// recognizeRequest is the sidecar wire format for a recognition call.
type recognizeRequest struct {
	Image    string `json:"image"` // Base64 encoded image
	Format   string `json:"format"`
	Mode     string `json:"mode"`
	Language string `json:"language,omitempty"`
}

// recognizeResponse is the sidecar wire format for a recognition result.
// Confidence is the engine's self-reported score in [0,100]; omitted when the
// engine does not produce one.
type recognizeResponse struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// NewEasyOCREngine creates the adapter for the EasyOCR sidecar.
func NewEasyOCREngine(baseURL string) *RemoteEngine {
	return newRemoteEngine("easyocr", baseURL, []Mode{ModeBlock, ModeSparse, ModeLine})
}

// NewPaddleOCREngine creates the adapter for the PaddleOCR sidecar.
func NewPaddleOCREngine(baseURL string) *RemoteEngine {
	return newRemoteEngine("paddleocr", baseURL, []Mode{ModeBlock, ModeColumn, ModeTable})
}

func newRemoteEngine(id, baseURL string, modes []Mode) *RemoteEngine {
	return &RemoteEngine{
		id:      id,
		baseURL: baseURL,
		modes:   modes,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NewLogger(id),
	}
}

func (e *RemoteEngine) ID() string { return e.id }

func (e *RemoteEngine) Modes() []Mode {
	out := make([]Mode, len(e.modes))
	copy(out, e.modes)
	return out
}

// Probe checks the sidecar health endpoint.
func (e *RemoteEngine) Probe(ctx context.Context) error {
	if e.baseURL == "" {
		return fmt.Errorf("no sidecar URL configured for %s", e.id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Recognize submits the image to the sidecar's /recognize endpoint.
func (e *RemoteEngine) Recognize(ctx context.Context, image []byte, mode Mode) (Recognition, error) {
	payload := recognizeRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Format: "base64",
		Mode:   string(mode),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Recognition{}, fmt.Errorf("marshal recognize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return Recognition{}, fmt.Errorf("build recognize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Recognition{}, fmt.Errorf("recognize call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Recognition{}, fmt.Errorf("read recognize response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Recognition{}, fmt.Errorf("recognize returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed recognizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Recognition{}, fmt.Errorf("unmarshal recognize response: %w", err)
	}

	if !parsed.Success {
		return Recognition{}, fmt.Errorf("recognition rejected by %s: %s", e.id, parsed.Message)
	}

	e.logger.Debug("Recognition complete", "mode", mode, "chars", len(parsed.Text))

	return Recognition{
		Text:           parsed.Text,
		SelfConfidence: parsed.Confidence,
	}, nil
}
