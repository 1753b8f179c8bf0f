/**
 * OCR engine adapter contract for the HealthScan scan worker
 *
 * Each adapter wraps one recognition capability behind a uniform interface.
 * Adapters are probed once at process start; an adapter that fails its probe
 * is excluded from the ensemble for the process lifetime.
 */

package ocr

import "context"

// Mode is a layout hint passed to an engine, analogous to a page-segmentation
// strategy. Clinical reports mix running text with tabular numeric blocks, so
// the right hint changes recognition quality substantially.
type Mode string

const (
	ModeBlock  Mode = "block"  // uniform block of text
	ModeColumn Mode = "column" // single column of variable-width text
	ModeSparse Mode = "sparse" // sparse text, find as much as possible
	ModeTable  Mode = "table"  // table-oriented, preserve interword spacing
	ModeLine   Mode = "line"   // single text line
)

// Recognition is one engine attempt's raw output. SelfConfidence is the
// engine's own estimate in [0,100] and is nil when the engine does not
// report one; it is advisory only and never used for ranking.
type Recognition struct {
	Text           string
	SelfConfidence *float64
}

// Engine is the uniform adapter contract over the underlying recognition
// capabilities (classical segmentation-based or neural-detection-based).
type Engine interface {
	ID() string
	Modes() []Mode
	// Probe verifies the engine can serve requests. Called once at startup.
	Probe(ctx context.Context) error
	Recognize(ctx context.Context, image []byte, mode Mode) (Recognition, error)
}

// Float64 returns a pointer to v; convenience for SelfConfidence fields.
func Float64(v float64) *float64 {
	return &v
}
