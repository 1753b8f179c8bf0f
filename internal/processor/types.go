/**
 * Request and result types for the document processor
 */

package processor

import (
	"github.com/healthscan/scan-worker/internal/ocr"
)

// SelectionEnsemble is the SelectionMethod value when the winner came out of
// the full cross-product rather than a single requested engine.
const SelectionEnsemble = "ensemble"

// Options controls how a single document is processed.
type Options struct {
	// PreferredEngine is an engine id ("tesseract", "easyocr", "paddleocr")
	// or "ensemble" (the default when empty).
	PreferredEngine string `json:"preferredEngine,omitempty"`
	// EnhancedPreprocessing widens a single-engine run to every profile and
	// recognition mode instead of the defaults.
	EnhancedPreprocessing bool `json:"enhancedPreprocessing,omitempty"`
}

// ProcessRequest represents one document processing request. Data is owned by
// the processor for the duration of the call and never retained.
type ProcessRequest struct {
	ScanID   string
	Data     []byte
	MimeType string
	Options  Options
}

// EngineCandidate is one engine/profile/mode attempt's output. Ephemeral:
// produced and consumed within one request, with losers retained on the
// result for diagnostics.
type EngineCandidate struct {
	Text string `json:"text"`
	// SelfConfidence is the engine's own estimate in [0,100]; advisory only,
	// nil when the engine reported none.
	SelfConfidence *float64 `json:"selfConfidence,omitempty"`
	// EstimatedConfidence is the shared estimator's score in [0,95] and is
	// authoritative for ranking.
	EstimatedConfidence float64  `json:"estimatedConfidence"`
	EngineID            string   `json:"engineId"`
	ProfileID           string   `json:"profileId"`
	Mode                ocr.Mode `json:"mode"`
	ElapsedMs           int64    `json:"elapsedMs"`
}

// TranscriptionResult is the output of ProcessDocument.
// Confidence always equals the winning candidate's EstimatedConfidence.
type TranscriptionResult struct {
	Text            string            `json:"text"`
	Confidence      float64           `json:"confidence"`
	PageCount       int               `json:"pageCount"`
	SelectionMethod string            `json:"selectionMethod"`
	Alternates      []EngineCandidate `json:"alternates,omitempty"`
	ProfilesTried   []string          `json:"preprocessingProfilesTried"`
	ElapsedMs       int64             `json:"elapsedMs"`
}
