// Package pipeline drives one download request from entitlement check to
// delivery: gate on quota, acquire, post-process, deliver, then consume.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/artur/peaktube/internal/acquire"
	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/entitlement"
	"github.com/artur/peaktube/internal/logging"
	"github.com/artur/peaktube/internal/postprocess"
	"github.com/artur/peaktube/internal/quota"
)

var log = logging.For("pipeline")

// RejectReason says why a request was refused before acquisition.
type RejectReason string

const (
	RejectQuotaExceeded  RejectReason = "quota_exceeded"
	RejectSubtitleLocked RejectReason = "subtitle_locked"
)

// QuotaStore is the part of the quota store the pipeline uses.
type QuotaStore interface {
	GetSnapshot(ctx context.Context, userID int64) models.QuotaRecord
	ReserveDownload(ctx context.Context, userID int64, limit int) (*quota.Reservation, bool)
	TryConsumeDownload(ctx context.Context, userID int64) (bool, error)
}

// Engine is the acquisition engine.
type Engine interface {
	Extract(ctx context.Context, resourceID string) (*acquire.Metadata, error)
	Acquire(ctx context.Context, req acquire.Request, sink acquire.ProgressSink) (acquire.Outcome, error)
}

// PostProcessor turns a downloaded file into the final deliverable.
type PostProcessor interface {
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
	AttachSubtitles(ctx context.Context, resourceID, videoPath, lang string, burnIn bool) (*postprocess.SubtitleResult, error)
}

// LinkPublisher turns a minted link into the URL shown to the user.
type LinkPublisher interface {
	PublicURL(link *models.DirectLink) string
}

// DeliveryRecorder stores delivery history.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d *models.Delivery) error
}

// DeliverFunc hands a finished result to the user. The request only counts
// as delivered, and quota is only consumed, if it returns nil.
type DeliverFunc func(ctx context.Context, res *Result) error

// RunOptions are per-request callbacks.
type RunOptions struct {
	Progress acquire.ProgressSink
	Deliver  DeliverFunc
}

// Result describes how a request ended. File paths are only valid inside
// the Deliver callback; the working files are removed afterwards.
type Result struct {
	RequestID string
	State     State
	Trace     []State
	Rendition acquire.Rendition
	Metadata  acquire.Metadata

	Height     int
	Downgraded bool

	FilePath     string
	SubtitlePath string
	BurnedIn     bool

	LinkURL       string
	LinkExpiresAt time.Time

	RejectReason RejectReason
	Warnings     []postprocess.Warning
	Err          error
}

// Orchestrator runs download requests.
type Orchestrator struct {
	quota      QuotaStore
	engine     Engine
	post       PostProcessor
	links      LinkPublisher
	deliveries DeliveryRecorder
	payments   PaymentsFlag
}

func New(q QuotaStore, engine Engine, post PostProcessor, links LinkPublisher, deliveries DeliveryRecorder, payments PaymentsFlag) *Orchestrator {
	return &Orchestrator{
		quota:      q,
		engine:     engine,
		post:       post,
		links:      links,
		deliveries: deliveries,
		payments:   payments,
	}
}

// ResolveEntitlement returns what the user may currently do.
func (o *Orchestrator) ResolveEntitlement(ctx context.Context, userID int64) entitlement.Snapshot {
	rec := o.quota.GetSnapshot(ctx, userID)
	plan, _ := entitlement.ParsePlan(rec.Plan)
	return entitlement.Resolve(plan, o.payments.Enabled())
}

// Inspect returns the metadata used to build the quality menu.
func (o *Orchestrator) Inspect(ctx context.Context, resourceID string) (*acquire.Metadata, error) {
	return o.engine.Extract(ctx, resourceID)
}

// ListAvailableQualities builds the quality menu for a resource.
func (o *Orchestrator) ListAvailableQualities(meta *acquire.Metadata, snap entitlement.Snapshot) []entitlement.QualityOption {
	return entitlement.ListAvailableQualities(meta.Heights(), snap)
}

// RunVideoDownload fetches a video at up to targetHeight. A non-empty
// subtitleLang attaches that track as a separate file.
func (o *Orchestrator) RunVideoDownload(ctx context.Context, userID int64, resourceID string, targetHeight int, subtitleLang string, opts RunOptions) *Result {
	return o.run(ctx, userID, job{
		resourceID: resourceID,
		rendition:  acquire.RenditionVideo,
		height:     targetHeight,
		lang:       subtitleLang,
	}, opts)
}

// RunAudioDownload fetches the audio track as MP3.
func (o *Orchestrator) RunAudioDownload(ctx context.Context, userID int64, resourceID string, opts RunOptions) *Result {
	return o.run(ctx, userID, job{
		resourceID: resourceID,
		rendition:  acquire.RenditionAudio,
	}, opts)
}

// RunSubtitledVideoDownload fetches a video with subtitles, burned in when
// the plan allows it.
func (o *Orchestrator) RunSubtitledVideoDownload(ctx context.Context, userID int64, resourceID string, targetHeight int, lang string, opts RunOptions) *Result {
	return o.run(ctx, userID, job{
		resourceID: resourceID,
		rendition:  acquire.RenditionSubtitledVideo,
		height:     targetHeight,
		lang:       lang,
		wantBurnIn: true,
	}, opts)
}

type job struct {
	resourceID string
	rendition  acquire.Rendition
	height     int
	lang       string
	wantBurnIn bool
}

// request carries the mutable state of one run.
type request struct {
	sm      *stateMachine
	res     *Result
	entry   *logrus.Entry
	reserve *quota.Reservation
}

func (r *request) to(next State) {
	if err := r.sm.to(next); err != nil {
		// Programming error; keep the request terminal rather than panic.
		r.entry.WithError(err).Error("State machine violation")
		r.sm.state = StateFailed
		r.sm.trace = append(r.sm.trace, StateFailed)
		return
	}
	r.entry.WithField("state", next).Debug("Request state changed")
}

func (r *request) finish() *Result {
	r.res.State = r.sm.state
	r.res.Trace = append([]State(nil), r.sm.trace...)
	return r.res
}

func (o *Orchestrator) run(ctx context.Context, userID int64, j job, opts RunOptions) *Result {
	id := uuid.NewString()
	req := &request{
		sm:  newStateMachine(),
		res: &Result{RequestID: id, Rendition: j.rendition},
		entry: log.WithFields(logrus.Fields{
			"request_id":  id,
			"user_id":     userID,
			"resource_id": j.resourceID,
			"rendition":   j.rendition,
		}),
	}

	if ctx.Err() != nil {
		req.to(StateAborted)
		return req.finish()
	}

	// Gating
	req.to(StateGating)
	snap := o.ResolveEntitlement(ctx, userID)

	if j.lang != "" && snap.SubtitleLocked {
		req.res.RejectReason = RejectSubtitleLocked
		req.to(StateRejected)
		return req.finish()
	}

	height := j.height
	if j.rendition != acquire.RenditionAudio {
		if height <= 0 {
			height = snap.MaxResolutionHeight
		}
		height, req.res.Downgraded = entitlement.CapResolution(snap, height)
	}
	req.res.Height = height

	if snap.PaymentsEnabled {
		r, ok := o.quota.ReserveDownload(ctx, userID, snap.DailyLimit)
		if !ok {
			req.res.RejectReason = RejectQuotaExceeded
			req.to(StateRejected)
			return req.finish()
		}
		req.reserve = r
	}
	// Released unless committed; a no-op after Commit.
	defer req.reserve.Release()

	// Acquiring
	req.to(StateAcquiring)
	outcome, err := o.engine.Acquire(ctx, acquire.Request{
		ResourceID: j.resourceID,
		Rendition:  j.rendition,
		Height:     height,
	}, opts.Progress)
	if err != nil {
		req.res.Err = err
		req.to(StateAborted)
		return req.finish()
	}

	switch out := outcome.(type) {
	case acquire.Downloaded:
		defer os.RemoveAll(out.Dir)
		req.res.Metadata = out.Metadata
		req.res.Height = out.Height
		req.res.FilePath = out.Path
		req.to(StateProcessing)
		o.process(ctx, req, j, snap, out)
		if req.sm.state != StateProcessing {
			return req.finish()
		}
		o.deliver(ctx, req, userID, j, opts, StateDelivered, models.DeliveryFile)

	case acquire.FallbackLink:
		req.res.Metadata = out.Metadata
		req.res.LinkURL = o.links.PublicURL(out.Link)
		req.res.LinkExpiresAt = out.Link.ExpiresAt
		o.deliver(ctx, req, userID, j, opts, StateFallbackDelivered, models.DeliveryLink)

	case acquire.Failed:
		req.res.Err = out.Err
		req.to(StateFailed)
	}

	return req.finish()
}

// process applies the rendition-specific post-processing in place on req.
func (o *Orchestrator) process(ctx context.Context, req *request, j job, snap entitlement.Snapshot, out acquire.Downloaded) {
	switch j.rendition {
	case acquire.RenditionAudio:
		mp3, err := o.post.ExtractAudio(ctx, out.Path)
		var te *postprocess.TranscodeError
		switch {
		case err == nil:
			req.res.FilePath = mp3
		case errors.As(err, &te):
			req.entry.WithError(err).Warn("Audio transcode failed, delivering original file")
			req.res.Warnings = append(req.res.Warnings, postprocess.WarnAudioConversionFailed)
		case ctx.Err() != nil:
			req.res.Err = err
			req.to(StateAborted)
		default:
			req.res.Err = err
			req.to(StateFailed)
		}

	default:
		if j.lang == "" {
			return
		}
		burnIn := j.wantBurnIn && snap.BurnInAllowed
		sr, err := o.post.AttachSubtitles(ctx, j.resourceID, out.Path, j.lang, burnIn)
		if err != nil {
			req.res.Err = err
			if ctx.Err() != nil {
				req.to(StateAborted)
			} else {
				req.to(StateFailed)
			}
			return
		}
		req.res.FilePath = sr.VideoPath
		req.res.SubtitlePath = sr.SubtitlePath
		req.res.BurnedIn = sr.BurnedIn
		req.res.Warnings = append(req.res.Warnings, sr.Warnings...)
	}
}

// deliver hands the result over, then consumes quota and records history.
func (o *Orchestrator) deliver(ctx context.Context, req *request, userID int64, j job, opts RunOptions, final State, kind string) {
	if opts.Deliver != nil {
		if err := opts.Deliver(ctx, req.res); err != nil {
			req.res.Err = fmt.Errorf("deliver: %w", err)
			if ctx.Err() != nil {
				req.to(StateAborted)
			} else {
				req.entry.WithError(err).Error("Delivery failed")
				req.to(StateFailed)
			}
			return
		}
	}

	o.consume(ctx, req, userID)
	req.to(final)

	d := &models.Delivery{
		UserID:     userID,
		ResourceID: j.resourceID,
		Rendition:  string(j.rendition),
		Quality:    qualityLabel(j.rendition, req.res.Height),
		Kind:       kind,
		Title:      req.res.Metadata.Title,
		ExecutedAt: time.Now(),
	}
	if kind == models.DeliveryFile {
		if fi, err := os.Stat(req.res.FilePath); err == nil {
			d.FileSizeBytes = fi.Size()
		}
	}
	if o.deliveries != nil {
		if err := o.deliveries.RecordDelivery(context.WithoutCancel(ctx), d); err != nil {
			req.entry.WithError(err).Warn("Failed to record delivery")
		}
	}
	req.entry.WithField("kind", kind).Info("Request delivered")
}

func (o *Orchestrator) consume(ctx context.Context, req *request, userID int64) {
	// The artifact is already with the user; a late cancel must not skip this.
	ctx = context.WithoutCancel(ctx)

	var (
		ok  bool
		err error
	)
	if req.reserve != nil {
		ok, err = req.reserve.Commit(ctx)
	} else {
		ok, err = o.quota.TryConsumeDownload(ctx, userID)
		if !ok && err == nil {
			// Plan limits are off; the counter simply stays at its cap.
			return
		}
	}
	if err != nil {
		req.entry.WithError(err).Error("Failed to consume download quota")
		return
	}
	if !ok {
		req.entry.Warn("Quota was exhausted at commit time")
	}
}

func qualityLabel(r acquire.Rendition, height int) string {
	if r == acquire.RenditionAudio {
		return "mp3"
	}
	if height <= 0 || entitlement.IsUnbounded(height) {
		return "best"
	}
	return fmt.Sprintf("%dp", height)
}
