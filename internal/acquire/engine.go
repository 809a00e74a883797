package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/artur/peaktube/internal/logging"
)

// State is a step of a single acquisition.
type State string

const (
	StateIdle               State = "idle"
	StateExtracting         State = "extracting"
	StateDelivering         State = "delivering"
	StateFallbackExtracting State = "fallback_extracting"
	StateCompleted          State = "completed"
	StateFallbackCompleted  State = "fallback_completed"
	StateFailed             State = "failed"
)

const DefaultProgressInterval = time.Second

var log = logging.For("acquire")

// Options configures an Engine.
type Options struct {
	WorkDir          string
	ProgressInterval time.Duration
	// OnState, if set, observes every state the engine enters.
	OnState func(resourceID string, s State)
}

// Engine runs the primary path and the single fallback escalation.
type Engine struct {
	primary Extractor
	prober  Prober
	minter  LinkMinter
	opts    Options
	now     func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(primary Extractor, prober Prober, minter LinkMinter, opts Options) *Engine {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Engine{
		primary: primary,
		prober:  prober,
		minter:  minter,
		opts:    opts,
		now:     time.Now,
	}
}

// Extract returns metadata for a resource using the primary extractor,
// falling back to the prober's view when the primary cannot describe it.
func (e *Engine) Extract(ctx context.Context, resourceID string) (*Metadata, error) {
	meta, err := e.primary.Extract(ctx, resourceID)
	if err == nil {
		return meta, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	primaryErr := &StageError{Stage: StageExtract, ResourceID: resourceID, Err: err}

	probe, perr := e.prober.Probe(ctx, resourceID)
	if perr != nil {
		return nil, errors.Join(primaryErr, &StageError{Stage: StageFallback, ResourceID: resourceID, Err: perr})
	}
	return &probe.Metadata, nil
}

// Acquire runs one acquisition. The returned error is non-nil only when ctx
// was cancelled; every other failure is reported as a Failed outcome.
func (e *Engine) Acquire(ctx context.Context, req Request, sink ProgressSink) (Outcome, error) {
	entry := log.WithField("resource_id", req.ResourceID)
	e.enter(req.ResourceID, StateIdle)

	e.enter(req.ResourceID, StateExtracting)
	out, err := e.primaryPath(ctx, req, sink)
	if err == nil {
		e.enter(req.ResourceID, StateCompleted)
		return out, nil
	}
	if ctx.Err() != nil {
		entry.WithField("stage", stageOf(err)).Info("Acquisition cancelled")
		return nil, ctx.Err()
	}
	entry.WithError(err).WithField("stage", stageOf(err)).Warn("Primary path failed, trying direct link")

	e.enter(req.ResourceID, StateFallbackExtracting)
	link, err := e.fallbackPath(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		entry.WithError(err).WithField("stage", stageOf(err)).Error("Fallback failed")
		e.enter(req.ResourceID, StateFailed)
		return Failed{Reason: "download unavailable", Err: err}, nil
	}

	e.enter(req.ResourceID, StateFallbackCompleted)
	return link, nil
}

func (e *Engine) primaryPath(ctx context.Context, req Request, sink ProgressSink) (Outcome, error) {
	meta, err := e.primary.Extract(ctx, req.ResourceID)
	if err != nil {
		return nil, &StageError{Stage: StageExtract, ResourceID: req.ResourceID, Err: err}
	}

	height := req.Height
	if req.Rendition != RenditionAudio {
		var ok bool
		height, ok = clampToAvailable(meta.Heights(), req.Height)
		if !ok {
			return nil, &StageError{
				Stage:      StageExtract,
				ResourceID: req.ResourceID,
				Err:        fmt.Errorf("%w: %dp", ErrNoFormatWithinCap, req.Height),
			}
		}
		if height != req.Height {
			log.WithFields(logrus.Fields{
				"resource_id": req.ResourceID,
				"requested":   req.Height,
				"effective":   height,
			}).Debug("Clamped height to available formats")
		}
	}

	dir, err := os.MkdirTemp(e.opts.WorkDir, "acq-*")
	if err != nil {
		return nil, &StageError{Stage: StageTransfer, ResourceID: req.ResourceID, Err: err}
	}

	e.enter(req.ResourceID, StateDelivering)
	relay := newProgressRelay(sink, e.opts.ProgressInterval, e.now)
	path, err := e.primary.Fetch(ctx, FetchRequest{
		Metadata:  meta,
		Rendition: req.Rendition,
		Height:    height,
		Dir:       dir,
	}, relay.report)
	relay.close()
	if err != nil {
		os.RemoveAll(dir)
		return nil, &StageError{Stage: StageTransfer, ResourceID: req.ResourceID, Err: err}
	}

	return Downloaded{Path: path, Dir: dir, Metadata: *meta, Height: height}, nil
}

func (e *Engine) fallbackPath(ctx context.Context, req Request) (Outcome, error) {
	probe, err := e.prober.Probe(ctx, req.ResourceID)
	if err != nil {
		return nil, &StageError{Stage: StageFallback, ResourceID: req.ResourceID, Err: err}
	}

	directURL := bestDirectURL(probe)
	if directURL == "" {
		return nil, &StageError{Stage: StageFallback, ResourceID: req.ResourceID, Err: ErrNoDirectURL}
	}

	sourceURL := probe.Metadata.SourceURL
	if sourceURL == "" {
		sourceURL = req.ResourceID
	}
	link, err := e.minter.Mint(ctx, sourceURL, directURL, probe.Metadata.Title)
	if err != nil {
		return nil, &StageError{Stage: StageMint, ResourceID: req.ResourceID, Err: fmt.Errorf("mint link: %w", err)}
	}

	return FallbackLink{Link: link, Metadata: probe.Metadata}, nil
}

func (e *Engine) enter(resourceID string, s State) {
	if e.opts.OnState != nil {
		e.opts.OnState(resourceID, s)
	}
}

func stageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// clampToAvailable picks the largest available height not above want. It
// never returns more than want; ok is false when every height is above it.
// With nothing reported want is kept.
func clampToAvailable(heights []int, want int) (int, bool) {
	if len(heights) == 0 {
		return want, true
	}

	best := -1
	for _, h := range heights {
		if h <= want && h > best {
			best = h
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// bestDirectURL prefers the probe's own URL, then the format with the highest
// quality score; the first one wins a tie.
func bestDirectURL(p *ProbeResult) string {
	if p == nil {
		return ""
	}
	if p.URL != "" {
		return p.URL
	}

	var (
		best  string
		score float64
		found bool
	)
	for _, f := range p.Formats {
		if f.URL == "" {
			continue
		}
		if !found || f.Quality > score {
			best, score, found = f.URL, f.Quality, true
		}
	}
	return best
}
