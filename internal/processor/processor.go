/**
 * Document processor for the HealthScan scan worker
 *
 * Drives the recognition ensemble: preprocessing profiles x engine adapters
 * x recognition modes, executed concurrently on a bounded worker pool, with
 * every candidate transcription ranked by the shared confidence estimator.
 * Candidate-level failures degrade gracefully; only pool exhaustion and
 * pre-flight validation surface to the caller.
 */

package processor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/healthscan/scan-worker/internal/confidence"
	scanerrors "github.com/healthscan/scan-worker/internal/errors"
	"github.com/healthscan/scan-worker/internal/logging"
	"github.com/healthscan/scan-worker/internal/metrics"
	"github.com/healthscan/scan-worker/internal/ocr"
	"github.com/healthscan/scan-worker/internal/preprocess"
)

// Config holds processor configuration.
type Config struct {
	// Engines lists every configured adapter; each is probed once here and
	// excluded for the process lifetime when the probe fails.
	Engines []ocr.Engine

	// Workers bounds the candidate pool (CPU-bound transforms plus the
	// native recognition process oversubscribe quickly).
	Workers int

	CandidateTimeout time.Duration
	RequestDeadline  time.Duration
	ProbeTimeout     time.Duration

	Extractor *metrics.Extractor
}

// DocumentProcessor orchestrates the recognition ensemble and metric
// extraction. Construct once per process and inject into callers; the
// availability table is computed here and never rewritten mid-request.
type DocumentProcessor struct {
	available        []ocr.Engine
	workers          int
	candidateTimeout time.Duration
	requestDeadline  time.Duration
	extractor        *metrics.Extractor
	logger           *logging.Logger
}

// NewDocumentProcessor probes the configured engines and builds the
// processor. A processor with zero available engines is still returned:
// requests against it fail with ALL_ENGINES_FAILED rather than startup
// aborting, matching how sidecar outages are handled operationally.
func NewDocumentProcessor(cfg *Config) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	logger := logging.NewLogger("processor")

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}

	available := make([]ocr.Engine, 0, len(cfg.Engines))
	for _, engine := range cfg.Engines {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := engine.Probe(ctx)
		cancel()
		if err != nil {
			unavailable := scanerrors.NewEngineUnavailableError(engine.ID(), err)
			logger.Warn("Engine failed startup probe, excluding for process lifetime",
				"engine", engine.ID(), "error", unavailable)
			continue
		}
		logger.Info("Engine available", "engine", engine.ID(), "modes", len(engine.Modes()))
		available = append(available, engine)
	}

	p := &DocumentProcessor{
		available:        available,
		workers:          cfg.Workers,
		candidateTimeout: cfg.CandidateTimeout,
		requestDeadline:  cfg.RequestDeadline,
		extractor:        cfg.Extractor,
		logger:           logger,
	}
	if p.workers <= 0 {
		p.workers = 4
	}
	if p.candidateTimeout <= 0 {
		p.candidateTimeout = 20 * time.Second
	}
	if p.requestDeadline <= 0 {
		p.requestDeadline = 90 * time.Second
	}
	if p.extractor == nil {
		p.extractor = metrics.NewExtractor(metrics.ExtractorConfig{})
	}
	return p, nil
}

// AvailableEngines returns the ids of engines that passed the startup probe.
func (p *DocumentProcessor) AvailableEngines() []string {
	ids := make([]string, 0, len(p.available))
	for _, e := range p.available {
		ids = append(ids, e.ID())
	}
	return ids
}

// ExtractHealthMetrics parses transcribed text into structured measurements.
// Usable independently of ProcessDocument, e.g. to re-parse saved text.
func (p *DocumentProcessor) ExtractHealthMetrics(text string) []metrics.HealthMetric {
	return p.extractor.Extract(text)
}

// attempt is one engine/profile/mode combination scheduled on the pool.
type attempt struct {
	engine  ocr.Engine
	profile string
	image   []byte
	mode    ocr.Mode
}

// ProcessDocument produces the best-available transcription for a document.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*TranscriptionResult, error) {
	start := time.Now()

	mimeType := resolveMimeType(req.MimeType, req.Data)
	if !IsSupportedMimeType(mimeType) {
		return nil, scanerrors.NewUnsupportedMimeTypeError(mimeType)
	}

	engines, selection := p.planEngines(req.Options)
	profiles, modesFor := p.planCoverage(engines, req.Options, selection)

	// Normalize once per profile; a decode failure excludes only that
	// profile from this request's pool.
	images := make(map[string][]byte, len(profiles))
	tried := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		normalized, err := preprocess.Normalize(req.Data, profile)
		if err != nil {
			p.logger.Warn("Profile excluded from candidate pool",
				"scan", req.ScanID, "profile", profile.ID, "error", err)
			continue
		}
		images[profile.ID] = normalized
		tried = append(tried, profile.ID)
	}

	attempts := make([]attempt, 0, len(tried)*len(engines)*2)
	for _, profile := range profiles {
		image, ok := images[profile.ID]
		if !ok {
			continue
		}
		for _, engine := range engines {
			for _, mode := range modesFor(engine) {
				attempts = append(attempts, attempt{
					engine:  engine,
					profile: profile.ID,
					image:   image,
					mode:    mode,
				})
			}
		}
	}

	if len(attempts) == 0 {
		return nil, scanerrors.NewAllEnginesFailedError(0)
	}

	candidates, err := p.runAttempts(ctx, req.ScanID, attempts)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, scanerrors.NewAllEnginesFailedError(len(attempts))
	}

	// Estimated confidence is authoritative; ties break on the faster
	// candidate so selection stays deterministic and reproducible.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].EstimatedConfidence != candidates[j].EstimatedConfidence {
			return candidates[i].EstimatedConfidence > candidates[j].EstimatedConfidence
		}
		return candidates[i].ElapsedMs < candidates[j].ElapsedMs
	})

	winner := candidates[0]

	return &TranscriptionResult{
		Text:            winner.Text,
		Confidence:      winner.EstimatedConfidence,
		PageCount:       1,
		SelectionMethod: selection,
		Alternates:      candidates[1:],
		ProfilesTried:   tried,
		ElapsedMs:       time.Since(start).Milliseconds(),
	}, nil
}

// planEngines resolves the request's engine preference against the
// availability table. A missing preferred engine falls back to the classical
// adapter; with that gone too the request degrades to whatever remains.
func (p *DocumentProcessor) planEngines(opts Options) ([]ocr.Engine, string) {
	pref := opts.PreferredEngine
	if pref == "" || pref == SelectionEnsemble {
		return p.available, SelectionEnsemble
	}

	if engine := p.engineByID(pref); engine != nil {
		return []ocr.Engine{engine}, engine.ID()
	}

	if engine := p.engineByID(ocr.TesseractEngineID); engine != nil {
		p.logger.Warn("Preferred engine unavailable, falling back to classical adapter",
			"preferred", pref)
		return []ocr.Engine{engine}, engine.ID()
	}

	p.logger.Warn("Preferred engine and classical fallback unavailable, using ensemble",
		"preferred", pref)
	return p.available, SelectionEnsemble
}

// planCoverage picks the profile and mode coverage: the full cross-product
// for ensemble runs, a narrow default for single-engine runs unless enhanced
// preprocessing was requested.
func (p *DocumentProcessor) planCoverage(engines []ocr.Engine, opts Options, selection string) ([]preprocess.Profile, func(ocr.Engine) []ocr.Mode) {
	if selection == SelectionEnsemble || opts.EnhancedPreprocessing {
		return preprocess.Profiles(), func(e ocr.Engine) []ocr.Mode { return e.Modes() }
	}

	return []preprocess.Profile{preprocess.DefaultProfile()}, func(e ocr.Engine) []ocr.Mode {
		modes := e.Modes()
		if len(modes) == 0 {
			return nil
		}
		return modes[:1]
	}
}

func (p *DocumentProcessor) engineByID(id string) ocr.Engine {
	for _, e := range p.available {
		if e.ID() == id {
			return e
		}
	}
	return nil
}

// runAttempts executes the attempts on a bounded pool and fans results in.
// On request-deadline expiry it returns whatever candidates completed; only
// zero completions is an error, distinct from ALL_ENGINES_FAILED.
func (p *DocumentProcessor) runAttempts(ctx context.Context, scanID string, attempts []attempt) ([]EngineCandidate, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.requestDeadline)
	defer cancel()

	var (
		mu         sync.Mutex
		candidates []EngineCandidate
	)

	jobs := make(chan attempt)
	var wg sync.WaitGroup

	workers := p.workers
	if workers > len(attempts) {
		workers = len(attempts)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				cand, ok := p.runAttempt(reqCtx, scanID, a)
				if !ok {
					continue
				}
				mu.Lock()
				candidates = append(candidates, cand)
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, a := range attempts {
			select {
			case jobs <- a:
			case <-reqCtx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-reqCtx.Done():
		// Proceed with whatever completed instead of blocking; in-flight
		// attempts observe reqCtx and unwind on their own.
	}

	// Caller cancellation propagates as-is.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu.Lock()
	collected := make([]EngineCandidate, len(candidates))
	copy(collected, candidates)
	mu.Unlock()

	if reqCtx.Err() != nil && len(collected) == 0 {
		return nil, scanerrors.NewRequestDeadlineExceededError(p.requestDeadline)
	}
	return collected, nil
}

// runAttempt executes one candidate with its individual timeout. Errors are
// logged with full context and drop only this candidate.
func (p *DocumentProcessor) runAttempt(ctx context.Context, scanID string, a attempt) (EngineCandidate, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.candidateTimeout)
	defer cancel()

	started := time.Now()
	rec, err := a.engine.Recognize(attemptCtx, a.image, a.mode)
	elapsed := time.Since(started).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			timeoutErr := scanerrors.NewRecognitionTimeoutError(
				a.engine.ID(), a.profile, string(a.mode), p.candidateTimeout)
			p.logger.Warn("Candidate timed out", "scan", scanID, "error", timeoutErr)
		} else if ctx.Err() == nil {
			p.logger.Warn("Candidate failed", "scan", scanID,
				"engine", a.engine.ID(), "profile", a.profile, "mode", a.mode, "error", err)
		}
		return EngineCandidate{}, false
	}

	return EngineCandidate{
		Text:                rec.Text,
		SelfConfidence:      rec.SelfConfidence,
		EstimatedConfidence: confidence.Estimate(rec.Text),
		EngineID:            a.engine.ID(),
		ProfileID:           a.profile,
		Mode:                a.mode,
		ElapsedMs:           elapsed,
	}, true
}
