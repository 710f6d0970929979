package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediafetch/internal/core/domain"
	"mediafetch/internal/core/ports"
)

// Observer is told about every state transition of every job.
type Observer func(job domain.Job, from, to domain.JobState)

// Dependencies are the ports the orchestrator drives.
type Dependencies struct {
	Extractor   ports.Extractor
	Fetcher     ports.Fetcher
	Transcoder  ports.Transcoder
	Workspace   ports.Workspace
	Credentials ports.CredentialSupplier
	Identity    ports.IdentityRotator
}

// Orchestrator coordinates the download-and-convert workflow.
type Orchestrator struct {
	deps             Dependencies
	policy           Policy
	minArtifactBytes int64
	observer         Observer
	afterJob         func()
	newID            func() string
	now              func() time.Time
	logger           zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers a transition observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithAfterJob registers a hook run once each job has released its resources.
func WithAfterJob(fn func()) Option {
	return func(o *Orchestrator) { o.afterJob = fn }
}

// WithMinArtifactBytes sets the smallest file accepted by validation.
func WithMinArtifactBytes(n int64) Option {
	return func(o *Orchestrator) { o.minArtifactBytes = n }
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(deps Dependencies, policy Policy, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:             deps,
		policy:           policy,
		minArtifactBytes: 1024,
		newID:            uuid.NewString,
		now:              time.Now,
		logger:           logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Delivery is a validated artifact ready to hand to the client. Exactly one
// of FilePath or Stream is set. Close must be called once the response is
// written, whether or not the transfer completed.
type Delivery struct {
	JobID           string
	Title           string
	DurationSeconds float64
	Ext             string
	ContentType     string

	FilePath string
	Size     int64

	Stream *ports.UpstreamStream

	closeOnce sync.Once
	closeErr  error
	release   func() error
}

// Close releases the job's scratch directory or upstream connection.
func (d *Delivery) Close() error {
	d.closeOnce.Do(func() {
		if d.release != nil {
			d.closeErr = d.release()
		}
	})
	return d.closeErr
}

// jobRun carries per-job state through the pipeline.
type jobRun struct {
	job     domain.Job
	log     zerolog.Logger
	plan    domain.FormatPlan
	request ports.ExtractionRequest
	cookie  string
}

// Run executes one job. On success the caller owns the returned Delivery and
// must Close it. On failure every temp artifact of the job is gone before the
// error is returned, and the error is a *domain.JobError.
func (o *Orchestrator) Run(ctx context.Context, req domain.JobRequest) (*Delivery, error) {
	r, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	info, err := o.extract(ctx, r)
	if err != nil {
		return nil, err
	}

	if req.OutputKind == domain.MuxedContainer && info.DirectURL != "" {
		return o.passthrough(ctx, r, info)
	}
	return o.materialize(ctx, r, info)
}

// Probe runs the pipeline up to extraction and returns the metadata only.
func (o *Orchestrator) Probe(ctx context.Context, req domain.JobRequest) (*domain.ExtractionResult, error) {
	r, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	info, err := o.extract(ctx, r)
	if err != nil {
		return nil, err
	}
	o.transition(r, domain.StateCompleted)
	o.finish()
	return info, nil
}

// prepare covers Received -> Paced -> IdentityBound.
func (o *Orchestrator) prepare(ctx context.Context, req domain.JobRequest) (*jobRun, error) {
	r := &jobRun{
		job: domain.Job{ID: o.newID(), Request: req, State: domain.StateReceived, CreatedAt: o.now()},
	}
	r.log = o.logger.With().Str("job_id", r.job.ID).Logger()
	r.log.Info().Str("url", req.SourceURL).Str("kind", string(req.OutputKind)).Msg("job received")
	o.notify(r.job, "", domain.StateReceived)

	if _, ok := domain.ParseOutputKind(string(req.OutputKind)); !ok {
		return nil, o.fail(r, domain.InvalidRequest("Invalid download type"))
	}

	delay, err := o.deps.Identity.Pace(ctx)
	if err != nil {
		return nil, o.fail(r, domain.NewError(domain.KindInternal, fmt.Errorf("pacing interrupted: %w", err)))
	}
	r.log.Debug().Dur("delay", delay).Msg("paced")
	o.transition(r, domain.StatePaced)

	identity := o.deps.Identity.Next()
	r.cookie, _ = o.deps.Credentials.Resolve()
	r.plan = o.policy.Resolve(req.OutputKind)
	if r.plan.NeedsTranscoder() && !o.deps.Transcoder.Available() {
		return nil, o.fail(r, domain.NewError(domain.KindDependencyMissing, fmt.Errorf("transcoder not available for %s output", req.OutputKind)))
	}
	r.request = ports.ExtractionRequest{
		SourceURL:      req.SourceURL,
		Selector:       r.plan.Selector,
		MergeContainer: r.plan.MergeContainer,
		Identity:       identity,
		CookieFile:     r.cookie,
	}
	r.log.Debug().
		Str("profile", identity.Profile).
		Bool("credential", r.cookie != "").
		Str("selector", r.plan.Selector).
		Msg("identity bound")
	o.transition(r, domain.StateIdentityBound)
	return r, nil
}

// extract covers IdentityBound -> Extracting and the probe call.
func (o *Orchestrator) extract(ctx context.Context, r *jobRun) (*domain.ExtractionResult, error) {
	o.transition(r, domain.StateExtracting)
	info, err := o.deps.Extractor.Probe(ctx, r.request)
	if err != nil {
		return nil, o.fail(r, err)
	}
	if info.IsLive {
		return nil, o.fail(r, &domain.JobError{
			Kind:    domain.KindUpstreamUnavailable,
			Message: domain.MsgLiveUnsupported,
			Err:     fmt.Errorf("source is live"),
		})
	}
	r.log.Info().Str("title", info.Title).Float64("duration", info.DurationSeconds).Msg("metadata resolved")
	return info, nil
}

func (o *Orchestrator) passthrough(ctx context.Context, r *jobRun, info *domain.ExtractionResult) (*Delivery, error) {
	if _, err := o.deps.Identity.Pace(ctx); err != nil {
		return nil, o.fail(r, domain.NewError(domain.KindInternal, fmt.Errorf("pacing interrupted: %w", err)))
	}
	o.transition(r, domain.StateStreamingPassthrough)

	stream, err := o.deps.Fetcher.Fetch(ctx, ports.FetchRequest{
		URL:        info.DirectURL,
		Identity:   r.request.Identity,
		Headers:    info.DirectHeaders,
		CookieFile: r.cookie,
		Range:      r.job.Request.RangeHint,
	})
	if err != nil {
		return nil, o.fail(r, err)
	}

	o.transition(r, domain.StateValidating)
	if stream.StatusCode != 200 && stream.StatusCode != 206 {
		stream.Body.Close()
		return nil, o.fail(r, domain.NewError(domain.KindUpstreamTransient, fmt.Errorf("upstream status %d", stream.StatusCode)))
	}

	if stream.ContentLength < 0 && stream.StatusCode == 200 && info.DirectSize > 0 {
		stream.ContentLength = info.DirectSize
	}

	ext := info.DirectExt
	if ext == "" {
		ext = r.plan.OutputExt
	}
	o.transition(r, domain.StateDelivering)
	return &Delivery{
		JobID:           r.job.ID,
		Title:           info.Title,
		DurationSeconds: info.DurationSeconds,
		Ext:             ext,
		ContentType:     streamContentType(ext, stream.ContentType),
		Stream:          stream,
		release: func() error {
			err := stream.Body.Close()
			o.transition(r, domain.StateCompleted)
			o.finish()
			return err
		},
	}, nil
}

// materialize covers DownloadingForTranscode -> Validating -> Delivering.
// Disk work is detached from the caller's cancellation so a client
// disconnect still lets the job finish and clean up; the engine and
// transcoder timeouts bound it.
func (o *Orchestrator) materialize(ctx context.Context, r *jobRun, info *domain.ExtractionResult) (*Delivery, error) {
	if _, err := o.deps.Identity.Pace(ctx); err != nil {
		return nil, o.fail(r, domain.NewError(domain.KindInternal, fmt.Errorf("pacing interrupted: %w", err)))
	}
	work := context.WithoutCancel(ctx)

	scratch, err := o.deps.Workspace.Acquire(work)
	if err != nil {
		return nil, o.fail(r, domain.NewError(domain.KindInternal, err))
	}
	release := func() error {
		if err := o.deps.Workspace.Release(scratch); err != nil {
			r.log.Error().Err(err).Str("dir", scratch.Dir).Msg("failed to release scratch")
			return err
		}
		r.log.Debug().Dur("held", o.now().Sub(scratch.CreatedAt)).Msg("scratch released")
		return nil
	}
	r.log.Debug().Str("dir", scratch.Dir).Msg("scratch acquired")
	o.transition(r, domain.StateDownloadingForTranscode)

	path, err := o.download(work, r, scratch)
	if err != nil {
		release()
		return nil, o.fail(r, err)
	}

	o.transition(r, domain.StateValidating)
	size, err := o.validate(path, scratch)
	if err != nil {
		release()
		return nil, o.fail(r, err)
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	o.transition(r, domain.StateDelivering)
	r.log.Info().Str("path", path).Int64("bytes", size).Msg("artifact ready")
	return &Delivery{
		JobID:           r.job.ID,
		Title:           info.Title,
		DurationSeconds: info.DurationSeconds,
		Ext:             ext,
		ContentType:     ContentTypeFor(ext),
		FilePath:        path,
		Size:            size,
		release: func() error {
			err := release()
			o.transition(r, domain.StateCompleted)
			o.finish()
			return err
		},
	}, nil
}

// download has the engine materialize the selection, then applies the plan's
// post-processing steps in order. It returns the final artifact path.
// A remux is best effort: when the transcoder is missing or rejects the
// copy, the engine's native container is delivered as is.
func (o *Orchestrator) download(ctx context.Context, r *jobRun, scratch domain.Scratch) (string, error) {
	res, err := o.deps.Extractor.Download(ctx, r.request, scratch.OutputTemplate("source"))
	if err != nil {
		return "", err
	}
	path := res.LocalArtifactPath
	if filepath.Dir(path) != filepath.Clean(scratch.Dir) {
		return "", domain.NewError(domain.KindArtifactValidation, fmt.Errorf("engine wrote %s outside scratch %s", path, scratch.Dir))
	}

	for _, step := range r.plan.PostProcess {
		remux := step.Kind == domain.ContainerRemux
		if remux && strings.EqualFold(filepath.Ext(path), "."+step.Codec) {
			continue
		}
		if !o.deps.Transcoder.Available() {
			if remux {
				r.log.Warn().Str("ext", filepath.Ext(path)).Msg("transcoder not available, keeping native container")
				continue
			}
			return "", domain.NewError(domain.KindDependencyMissing, fmt.Errorf("transcoder not available for %s", step.Kind))
		}
		dst := scratch.File(string(step.Kind), step.Codec)
		start := time.Now()
		if err := o.deps.Transcoder.Apply(ctx, step, path, dst); err != nil {
			if remux {
				_ = os.Remove(dst)
				r.log.Warn().Err(err).Str("ext", filepath.Ext(path)).Str("container", step.Codec).Msg("remux failed, keeping native container")
				continue
			}
			return "", err
		}
		r.log.Debug().Str("step", string(step.Kind)).Dur("took", time.Since(start)).Msg("post-processed")
		path = dst
	}
	return path, nil
}

func (o *Orchestrator) validate(path string, scratch domain.Scratch) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, domain.NewError(domain.KindArtifactValidation, fmt.Errorf("artifact missing: %w", err))
	}
	if !fi.Mode().IsRegular() {
		return 0, domain.NewError(domain.KindArtifactValidation, fmt.Errorf("artifact %s is not a regular file", path))
	}
	if fi.Size() < o.minArtifactBytes {
		return 0, domain.NewError(domain.KindArtifactValidation, fmt.Errorf("artifact %s is %d bytes, want at least %d", filepath.Base(path), fi.Size(), o.minArtifactBytes))
	}
	if !strings.HasPrefix(filepath.Base(path), scratch.ID) {
		return 0, domain.NewError(domain.KindArtifactValidation, fmt.Errorf("artifact %s does not belong to scratch %s", path, scratch.ID))
	}
	return fi.Size(), nil
}

func (o *Orchestrator) transition(r *jobRun, to domain.JobState) {
	from := r.job.State
	r.job.State = to
	r.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("transition")
	o.notify(r.job, from, to)
}

func (o *Orchestrator) notify(job domain.Job, from, to domain.JobState) {
	if o.observer != nil {
		o.observer(job, from, to)
	}
}

// fail moves the job to Failed and returns its classified error stamped with
// the stage it failed in. Callers release scratch before calling fail.
func (o *Orchestrator) fail(r *jobRun, err error) error {
	je := *domain.Classify(err)
	if je.Stage == "" {
		je.Stage = r.job.State
	}
	ev := r.log.Warn()
	if je.Kind == domain.KindInternal || je.Kind == domain.KindDependencyMissing {
		ev = r.log.Error()
	}
	ev.Err(je.Err).
		Str("kind", je.Kind.String()).
		Str("stage", string(je.Stage)).
		Dur("elapsed", o.now().Sub(r.job.CreatedAt)).
		Msg("job failed")
	o.transition(r, domain.StateFailed)
	o.finish()
	return &je
}

func (o *Orchestrator) finish() {
	if o.afterJob != nil {
		o.afterJob()
	}
}

// streamContentType prefers the extension's mimetype and falls back to the
// upstream header only when the extension is unknown.
func streamContentType(ext, upstream string) string {
	if ct := ContentTypeFor(ext); ct != "application/octet-stream" {
		return ct
	}
	if upstream != "" {
		return upstream
	}
	return "application/octet-stream"
}
