package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthscan/scan-worker/internal/confidence"
	scanerrors "github.com/healthscan/scan-worker/internal/errors"
	"github.com/healthscan/scan-worker/internal/ocr"
)

const clinicalText = `Hemoglobin: 9.5 g/dL [12.0-16.0]
Glucose: 150 mg/dL
Serum Creatinine: 1.0 mg/dL
TSH: 2.5 mIU/L`

const garbledText = "###@@@###||| ??? *** ~~noise~~"

// fakeEngine is a scripted Engine for pool and selection tests.
type fakeEngine struct {
	id       string
	modes    []ocr.Mode
	probeErr error
	text     string
	err      error
	delay    time.Duration
}

func (f *fakeEngine) ID() string        { return f.id }
func (f *fakeEngine) Modes() []ocr.Mode { return f.modes }

func (f *fakeEngine) Probe(ctx context.Context) error { return f.probeErr }

func (f *fakeEngine) Recognize(ctx context.Context, image []byte, mode ocr.Mode) (ocr.Recognition, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ocr.Recognition{}, ctx.Err()
		}
	}
	if f.err != nil {
		return ocr.Recognition{}, f.err
	}
	return ocr.Recognition{Text: f.text}, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			v := uint8(30 + x*20)
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newProcessor(t *testing.T, engines ...ocr.Engine) *DocumentProcessor {
	t.Helper()
	p, err := NewDocumentProcessor(&Config{
		Engines:          engines,
		Workers:          4,
		CandidateTimeout: 5 * time.Second,
		RequestDeadline:  30 * time.Second,
		ProbeTimeout:     time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestNewDocumentProcessorExcludesFailedProbes(t *testing.T) {
	good := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText}
	bad := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, probeErr: errors.New("sidecar down")}

	p := newProcessor(t, good, bad)
	assert.Equal(t, []string{"tesseract"}, p.AvailableEngines())
}

func TestProcessDocumentEnsembleWinner(t *testing.T) {
	noisy := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, text: garbledText}
	clean := &fakeEngine{id: "paddleocr", modes: []ocr.Mode{ocr.ModeBlock, ocr.ModeTable}, text: clinicalText}

	p := newProcessor(t, noisy, clean)
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-1",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.NoError(t, err)

	assert.Equal(t, clinicalText, result.Text)
	assert.Equal(t, confidence.Estimate(clinicalText), result.Confidence)
	assert.Equal(t, SelectionEnsemble, result.SelectionMethod)
	assert.Equal(t, 1, result.PageCount)
	assert.NotEmpty(t, result.Alternates)
	assert.Len(t, result.ProfilesTried, 4)
	assert.Greater(t, result.ElapsedMs, int64(-1))
}

func TestProcessDocumentAlternatesSorted(t *testing.T) {
	noisy := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, text: garbledText}
	clean := &fakeEngine{id: "paddleocr", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText}

	p := newProcessor(t, noisy, clean)
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-2",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.NoError(t, err)

	prev := result.Confidence
	for _, alt := range result.Alternates {
		assert.LessOrEqual(t, alt.EstimatedConfidence, prev)
		prev = alt.EstimatedConfidence
	}
}

func TestProcessDocumentTieBreaksOnElapsed(t *testing.T) {
	// Both modes return identical text; the slower mode must never win.
	engine := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock, ocr.ModeLine}, text: clinicalText}
	slowPart := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText, delay: 300 * time.Millisecond}

	p := newProcessor(t, engine, slowPart)
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-3",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.NoError(t, err)

	// 4 profiles x (2 fast modes + 1 slow mode) = 12 candidates; all slow
	// candidates must be among the alternates.
	slowAlternates := 0
	for _, alt := range result.Alternates {
		if alt.EngineID == "easyocr" {
			assert.GreaterOrEqual(t, alt.ElapsedMs, int64(250))
			slowAlternates++
		}
	}
	assert.Equal(t, 4, slowAlternates)
}

func TestProcessDocumentUnsupportedMimeType(t *testing.T) {
	p := newProcessor(t, &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText})

	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-4",
		Data:     []byte("%PDF-1.7 ..."),
		MimeType: "application/pdf",
	})
	require.Error(t, err)
	assert.True(t, scanerrors.IsCode(err, scanerrors.ErrorUnsupportedMimeType))
}

func TestProcessDocumentSniffsGenericMimeType(t *testing.T) {
	p := newProcessor(t, &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText})

	// Declared octet-stream but actual PNG content is accepted.
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-5",
		Data:     testPNG(t),
		MimeType: "application/octet-stream",
	})
	require.NoError(t, err)
	assert.Equal(t, clinicalText, result.Text)

	// Declared octet-stream with PDF content is rejected as PDF.
	_, err = p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-6",
		Data:     []byte("%PDF-1.7 ..."),
		MimeType: "application/octet-stream",
	})
	require.Error(t, err)
	assert.True(t, scanerrors.IsCode(err, scanerrors.ErrorUnsupportedMimeType))
}

func TestProcessDocumentZeroEngines(t *testing.T) {
	down := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, probeErr: errors.New("down")}

	p := newProcessor(t, down)
	require.Empty(t, p.AvailableEngines())

	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-7",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.Error(t, err)
	assert.True(t, scanerrors.IsCode(err, scanerrors.ErrorAllEnginesFailed))
}

func TestProcessDocumentAllRecognitionsFail(t *testing.T) {
	broken := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, err: errors.New("segfault in recognizer")}

	p := newProcessor(t, broken)
	_, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-8",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.Error(t, err)
	assert.True(t, scanerrors.IsCode(err, scanerrors.ErrorAllEnginesFailed))
}

func TestProcessDocumentGracefulDegradation(t *testing.T) {
	// One engine errors on every attempt; the other still produces a winner.
	broken := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, err: errors.New("model crash")}
	working := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText}

	p := newProcessor(t, broken, working)
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-9",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.NoError(t, err)
	assert.Equal(t, clinicalText, result.Text)
}

func TestProcessDocumentPreferredEngine(t *testing.T) {
	tess := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock, ocr.ModeLine}, text: clinicalText}
	easy := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, text: garbledText}

	p := newProcessor(t, tess, easy)
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-10",
		Data:     testPNG(t),
		MimeType: MimePNG,
		Options:  Options{PreferredEngine: "tesseract"},
	})
	require.NoError(t, err)

	// Single engine, default profile, first mode only.
	assert.Equal(t, "tesseract", result.SelectionMethod)
	assert.Equal(t, []string{"medical"}, result.ProfilesTried)
	assert.Empty(t, result.Alternates)
}

func TestProcessDocumentPreferredEngineFallback(t *testing.T) {
	tess := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText}

	p := newProcessor(t, tess)
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-11",
		Data:     testPNG(t),
		MimeType: MimePNG,
		Options:  Options{PreferredEngine: "paddleocr"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tesseract", result.SelectionMethod)
}

func TestProcessDocumentEnhancedPreprocessing(t *testing.T) {
	tess := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock, ocr.ModeLine}, text: clinicalText}

	p := newProcessor(t, tess)
	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-12",
		Data:     testPNG(t),
		MimeType: MimePNG,
		Options:  Options{PreferredEngine: "tesseract", EnhancedPreprocessing: true},
	})
	require.NoError(t, err)

	assert.Equal(t, "tesseract", result.SelectionMethod)
	assert.Len(t, result.ProfilesTried, 4)
	// 4 profiles x 2 modes, minus the winner.
	assert.Len(t, result.Alternates, 7)
}

func TestProcessDocumentDeadlineWithZeroCandidates(t *testing.T) {
	stalled := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText, delay: 5 * time.Second}

	p, err := NewDocumentProcessor(&Config{
		Engines:          []ocr.Engine{stalled},
		Workers:          2,
		CandidateTimeout: 2 * time.Second,
		RequestDeadline:  150 * time.Millisecond,
		ProbeTimeout:     time.Second,
	})
	require.NoError(t, err)

	_, err = p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-13",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.Error(t, err)
	assert.True(t, scanerrors.IsCode(err, scanerrors.ErrorRequestDeadlineExceeded))
}

func TestProcessDocumentDeadlineKeepsPartialResults(t *testing.T) {
	fast := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText}
	stalled := &fakeEngine{id: "easyocr", modes: []ocr.Mode{ocr.ModeBlock}, text: garbledText, delay: 5 * time.Second}

	p, err := NewDocumentProcessor(&Config{
		Engines:          []ocr.Engine{fast, stalled},
		Workers:          4,
		CandidateTimeout: 2 * time.Second,
		RequestDeadline:  500 * time.Millisecond,
		ProbeTimeout:     time.Second,
	})
	require.NoError(t, err)

	result, err := p.ProcessDocument(context.Background(), &ProcessRequest{
		ScanID:   "scan-14",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.NoError(t, err)
	assert.Equal(t, clinicalText, result.Text)
}

func TestProcessDocumentCallerCancellation(t *testing.T) {
	stalled := &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText, delay: 5 * time.Second}

	p := newProcessor(t, stalled)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := p.ProcessDocument(ctx, &ProcessRequest{
		ScanID:   "scan-15",
		Data:     testPNG(t),
		MimeType: MimePNG,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractHealthMetricsIntegration(t *testing.T) {
	p := newProcessor(t, &fakeEngine{id: "tesseract", modes: []ocr.Mode{ocr.ModeBlock}, text: clinicalText})

	extracted := p.ExtractHealthMetrics(clinicalText)
	require.NotEmpty(t, extracted)

	names := make(map[string]bool)
	for _, m := range extracted {
		names[m.Name] = true
	}
	assert.True(t, names["Hemoglobin"])
	assert.True(t, names["Glucose"])
}
