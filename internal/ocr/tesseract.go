/**
 * Tesseract adapter - classical LSTM-based recognition
 *
 * Always configured; serves as the fallback engine when a preferred engine
 * is unavailable.
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

const TesseractEngineID = "tesseract"

// TesseractEngine wraps the local Tesseract installation via gosseract.
type TesseractEngine struct {
	language      string
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine creates a Tesseract-backed engine adapter.
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{
		language:      language,
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) ID() string { return TesseractEngineID }

func (e *TesseractEngine) Modes() []Mode {
	return []Mode{ModeBlock, ModeColumn, ModeSparse, ModeTable, ModeLine}
}

// Probe runs a recognition round-trip on a generated blank image to verify
// the native library and trained data are usable.
func (e *TesseractEngine) Probe(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.language); err != nil {
		return fmt.Errorf("set language %q: %w", e.language, err)
	}
	if err := c.SetImageFromBytes(probeImage()); err != nil {
		return fmt.Errorf("set probe image: %w", err)
	}
	if _, err := c.Text(); err != nil {
		return fmt.Errorf("probe recognition: %w", err)
	}
	return nil
}

// Recognize performs OCR with the page-segmentation strategy mapped from mode.
func (e *TesseractEngine) Recognize(ctx context.Context, img []byte, mode Mode) (Recognition, error) {
	select {
	case <-ctx.Done():
		return Recognition{}, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(e.language); err != nil {
		return Recognition{}, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(pageSegMode(mode)); err != nil {
		return Recognition{}, fmt.Errorf("set page segmentation mode: %w", err)
	}
	if mode == ModeTable {
		// Column alignment in numeric blocks survives only with spacing kept.
		if err := c.SetVariable(gosseract.SettableVariable("preserve_interword_spaces"), "1"); err != nil {
			return Recognition{}, fmt.Errorf("set preserve_interword_spaces: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	return Recognition{
		Text:           text,
		SelfConfidence: wordConfidence(c),
	}, nil
}

func pageSegMode(mode Mode) gosseract.PageSegMode {
	switch mode {
	case ModeBlock:
		return gosseract.PSM_SINGLE_BLOCK
	case ModeColumn:
		return gosseract.PSM_SINGLE_COLUMN
	case ModeSparse:
		return gosseract.PSM_SPARSE_TEXT
	case ModeLine:
		return gosseract.PSM_SINGLE_LINE
	default:
		return gosseract.PSM_AUTO
	}
}

// wordConfidence averages Tesseract's per-word confidences into a [0,100]
// self-reported score; nil when no words were recognized.
func wordConfidence(c *gosseract.Client) *float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return Float64(sum / float64(len(boxes)))
}

func probeImage() []byte {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
