// Package build owns the build job state machine.
//
// Each submitted job gets one driver goroutine that performs every mutation of that job:
// transitions are persisted through the Repository first, then published on the events hub,
// so an observer reacting to an event always reads a store that already reflects it.
package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/events"
)

var (
	// errors
	ErrNotFound            = errors.New("build job not found")
	ErrInvalidRequest      = errors.New("invalid build request")
	ErrExecutorUnavailable = errors.New("build executor unavailable")
	ErrExecutorTimeout     = errors.New("build executor timed out")
	ErrMissingArtifact     = errors.New("build executor returned no artifact")
	ErrShuttingDown        = errors.New("build orchestrator is shutting down")

	DefaultWatchdogTimeout = 10 * time.Minute
)

// failure reasons not caused by the executor
const (
	ReasonCancelled = "cancelled"
	ReasonRestarted = "orchestrator restarted"
	ReasonShutdown  = "orchestrator shutting down"
)

type (
	// Repository persists build jobs. It holds no business logic.
	// Implementations must be safe for concurrent use on different job ids.
	Repository interface {
		CreateJob(ctx context.Context, job Job) error
		GetJob(ctx context.Context, id string) (Job, error) // ErrNotFound
		UpdateJob(ctx context.Context, job Job) error       // whole-record replace; ErrNotFound
		ListJobs(ctx context.Context, filter Filter) ([]Job, error)
	}

	Publisher interface {
		Publish(e events.Event)
	}

	Options struct {
		// WatchdogTimeout fails a job when its executor stays silent for that long.
		WatchdogTimeout time.Duration
		Observer        Observer
	}

	Service struct {
		repo     Repository
		exec     Executor
		hub      Publisher
		log      core.Logger
		obs      Observer
		watchdog time.Duration
		tracer   trace.Tracer

		now   func() time.Time
		newID func() string

		mu      sync.Mutex
		runs    map[string]*run
		closing bool
		stopCh  chan struct{}
		wg      sync.WaitGroup
	}

	// run is the driver state of an in-flight job.
	run struct {
		job        Job // only touched by the driver goroutine
		updates    chan Update
		cancel     chan struct{}
		cancelOnce sync.Once
		done       chan struct{}
	}

	execResult struct {
		artifact Artifact
		err      error
	}
)

func NewService(repo Repository, exec Executor, hub Publisher, log core.Logger, opts Options) *Service {
	if opts.WatchdogTimeout <= 0 {
		opts.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Service{
		repo:     repo,
		exec:     exec,
		hub:      hub,
		log:      log,
		obs:      opts.Observer,
		watchdog: opts.WatchdogTimeout,
		tracer:   otel.Tracer("github.com/trezcool/appgen/core/build"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		runs:     make(map[string]*run),
		stopCh:   make(chan struct{}),
	}
}

// Submit validates the request, persists a queued job and starts driving it.
// It returns as soon as the job is persisted; the build itself runs asynchronously.
func (svc *Service) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	ctx, span := svc.tracer.Start(ctx, "build.Submit")
	defer span.End()

	platform, kind, cfg, err := svc.validate(req)
	if err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return Job{}, err
	}

	svc.mu.Lock()
	closing := svc.closing
	svc.mu.Unlock()
	if closing {
		return Job{}, ErrShuttingDown
	}

	now := svc.now()
	job := Job{
		ID:             svc.newID(),
		Platform:       platform,
		AppKind:        kind,
		ConfigSnapshot: cfg.Clone(),
		Status:         StatusQueued,
		Log:            []LogEntry{{At: now, Message: "build queued"}},
		CreatedAt:      now,
	}
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.platform", string(platform)),
		attribute.String("job.app_kind", string(kind)),
	)
	if err := svc.repo.CreateJob(ctx, job); err != nil {
		span.RecordError(err)
		return Job{}, errors.Wrap(err, "creating build job")
	}
	svc.obs.JobSubmitted(platform, kind)
	svc.start(job)
	return job.Clone(), nil
}

func (svc *Service) validate(req SubmitRequest) (appconfig.Platform, appconfig.AppKind, appconfig.AppConfig, error) {
	var (
		fields    []core.FieldError
		cfg       appconfig.AppConfig
		badConfig bool
	)
	platform, err := appconfig.ParsePlatform(req.Platform)
	fields = append(fields, fieldErrors(err, "")...)
	kind, err := appconfig.ParseAppKind(req.AppKind)
	fields = append(fields, fieldErrors(err, "")...)

	if kind != "" {
		if cfg, err = appconfig.Resolve(req.Config, kind); err != nil {
			fields = append(fields, fieldErrors(err, "config.")...)
			badConfig = true
		} else if flds := buildRequirements(cfg); len(flds) > 0 {
			fields = append(fields, flds...)
			badConfig = true
		}
	}

	if len(fields) > 0 {
		cause := ErrInvalidRequest
		if badConfig {
			cause = appconfig.ErrInvalidConfig
		}
		return "", "", appconfig.AppConfig{}, core.NewValidationError(cause, fields...)
	}
	return platform, kind, cfg, nil
}

// buildRequirements checks the fields a config may omit while being edited, but not when built.
func buildRequirements(cfg appconfig.AppConfig) []core.FieldError {
	var fields []core.FieldError
	if cfg.Name == "" {
		fields = append(fields, core.FieldError{Field: "config.name", Error: "this field is required"})
	}
	if cfg.Version == "" {
		fields = append(fields, core.FieldError{Field: "config.version", Error: "this field is required"})
	}
	if cfg.BuildNumber < 1 {
		fields = append(fields, core.FieldError{Field: "config.buildNumber", Error: "buildNumber must be 1 or greater"})
	}
	return fields
}

func fieldErrors(err error, prefix string) []core.FieldError {
	if err == nil {
		return nil
	}
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		return []core.FieldError{{Field: prefix, Error: err.Error()}}
	}
	fields := make([]core.FieldError, len(vErr.Fields))
	for i, f := range vErr.Fields {
		fields[i] = core.FieldError{Field: prefix + f.Field, Error: f.Error}
	}
	return fields
}

func (svc *Service) start(job Job) {
	r := &run{
		job:     job.Clone(),
		updates: make(chan Update),
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	svc.mu.Lock()
	if svc.closing {
		svc.mu.Unlock()
		close(r.done)
		_ = svc.fail(context.Background(), r, ReasonShutdown)
		return
	}
	svc.runs[job.ID] = r
	svc.wg.Add(1)
	svc.mu.Unlock()

	go svc.drive(r)
}

func (svc *Service) forget(id string) {
	svc.mu.Lock()
	delete(svc.runs, id)
	svc.mu.Unlock()
}

func (svc *Service) lookup(id string) (*run, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	r, ok := svc.runs[id]
	return r, ok
}

// drive moves a job from queued to a terminal status.
func (svc *Service) drive(r *run) {
	defer svc.wg.Done()
	defer close(r.done)
	defer svc.forget(r.job.ID)

	// persistence must outlive executor cancellation
	ctx, span := svc.tracer.Start(context.Background(), "build.drive", trace.WithAttributes(
		attribute.String("job.id", r.job.ID),
		attribute.String("job.platform", string(r.job.Platform)),
		attribute.String("job.app_kind", string(r.job.AppKind)),
	))
	defer span.End()

	err := svc.execute(ctx, r)
	if err != nil && !r.job.Status.IsTerminal() {
		svc.log.Error(fmt.Sprintf("build: driving job %s: %v", r.job.ID, err), err)
		span.RecordError(err)
		if ferr := svc.fail(ctx, r, "internal error"); ferr != nil {
			// left unfinished in the store; marked failed by the next Recover
			svc.log.Error(fmt.Sprintf("build: failing job %s: %v", r.job.ID, ferr), ferr)
		}
	}
	if r.job.Status == StatusFailed {
		span.SetStatus(codes.Error, r.job.LastMessage())
	}
}

func (svc *Service) execute(ctx context.Context, r *run) error {
	// cancelled or stopped before being handed to the executor
	select {
	case <-r.cancel:
		return svc.fail(ctx, r, ReasonCancelled)
	case <-svc.stopCh:
		return svc.fail(ctx, r, ReasonShutdown)
	default:
	}

	msg := fmt.Sprintf("build started (%s, %s)", r.job.Platform, r.job.AppKind)
	if err := svc.commit(ctx, r, StatusStarting, msg, nil, func(j Job, at time.Time) events.Event {
		return events.Started(j.ID, at)
	}); err != nil {
		return err
	}

	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()

	req := ExecRequest{
		JobID:    r.job.ID,
		Platform: r.job.Platform,
		AppKind:  r.job.AppKind,
		Config:   r.job.ConfigSnapshot.Clone(),
	}
	results := make(chan execResult, 1)
	go func() {
		art, err := svc.exec.Execute(execCtx, req, func(percent int, message string) {
			select {
			case r.updates <- Update{Percent: percent, Message: message}:
			case <-execCtx.Done():
			}
		})
		results <- execResult{artifact: art, err: err}
	}()

	watchdog := time.NewTimer(svc.watchdog)
	defer watchdog.Stop()

	for !r.job.Status.IsTerminal() {
		var err error
		select {
		case u := <-r.updates:
			resetTimer(watchdog, svc.watchdog)
			err = svc.apply(ctx, r, u)
		case res := <-results:
			if res.err != nil {
				err = svc.fail(ctx, r, res.err.Error())
			} else {
				err = svc.complete(ctx, r, res.artifact.DownloadURL)
			}
		case <-watchdog.C:
			svc.log.Warn(fmt.Sprintf("build: no executor activity for job %s in %s", r.job.ID, svc.watchdog))
			err = svc.fail(ctx, r, fmt.Sprintf("%v: no activity in %s", ErrExecutorTimeout, svc.watchdog))
		case <-r.cancel:
			err = svc.fail(ctx, r, ReasonCancelled)
		case <-svc.stopCh:
			err = svc.fail(ctx, r, ReasonShutdown)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// apply handles one executor report for a job that is not terminal yet.
func (svc *Service) apply(ctx context.Context, r *run, u Update) error {
	switch {
	case u.isFailure():
		return svc.fail(ctx, r, u.Error)
	case u.isSuccess():
		return svc.complete(ctx, r, u.DownloadURL)
	}

	reported := clamp(u.Percent, 0, 100)
	msg := core.CleanString(u.Message)
	if msg == "" {
		msg = fmt.Sprintf("progress %d%%", reported)
	}
	stored := r.job.Progress
	if reported < stored {
		svc.log.Warn(fmt.Sprintf("build: job %s reported progress %d%% after %d%%, keeping %d%%", r.job.ID, reported, stored, stored))
		msg = fmt.Sprintf("%s (reported %d%%, kept %d%%)", msg, reported, stored)
	} else {
		stored = reported
	}

	return svc.commit(ctx, r, StatusBuilding, msg, func(j *Job, _ time.Time) {
		j.Progress = stored
	}, func(j Job, at time.Time) events.Event {
		return events.Progress(j.ID, j.Progress, msg, at)
	})
}

func (svc *Service) complete(ctx context.Context, r *run, downloadURL string) error {
	downloadURL = core.CleanString(downloadURL)
	if downloadURL == "" {
		return svc.fail(ctx, r, ErrMissingArtifact.Error())
	}
	return svc.commit(ctx, r, StatusCompleted, "build completed", func(j *Job, at time.Time) {
		j.Progress = 100
		j.DownloadURL = &downloadURL
		j.CompletedAt = &at
	}, func(j Job, at time.Time) events.Event {
		return events.Completed(j.ID, downloadURL, at)
	})
}

func (svc *Service) fail(ctx context.Context, r *run, reason string) error {
	return svc.commit(ctx, r, StatusFailed, "build failed: "+reason, func(j *Job, at time.Time) {
		j.CompletedAt = &at
	}, func(j Job, at time.Time) events.Event {
		return events.Failed(j.ID, j.Progress, reason, at)
	})
}

// commit applies one transition: the whole record is persisted, then the event is published.
func (svc *Service) commit(ctx context.Context, r *run, to Status, msg string, mutate func(*Job, time.Time), event func(Job, time.Time) events.Event) error {
	from := r.job.Status
	if !CanTransition(from, to) {
		return errors.Errorf("invalid transition of job %s: %s -> %s", r.job.ID, from, to)
	}

	at := svc.now()
	next := r.job.Clone()
	next.Status = to
	if mutate != nil {
		mutate(&next, at)
	}
	next.Log = append(next.Log, LogEntry{At: at, Message: msg})

	if err := svc.repo.UpdateJob(ctx, next); err != nil {
		return errors.Wrapf(err, "persisting job %s (%s -> %s)", next.ID, from, to)
	}
	r.job = next

	trace.SpanFromContext(ctx).AddEvent("transition", trace.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.Int("progress", next.Progress),
	))
	svc.hub.Publish(event(next, at))
	if to.IsTerminal() {
		svc.obs.JobFinished(next.Clone())
	}
	return nil
}

// Report routes an out-of-band executor report to the job's driver.
// Reports for finished jobs are discarded: they never change a terminal job.
func (svc *Service) Report(ctx context.Context, id string, u Update) error {
	id = core.CleanString(id)
	r, ok := svc.lookup(id)
	if !ok {
		job, err := svc.repo.GetJob(ctx, id)
		if err != nil {
			return err
		}
		svc.log.Warn(fmt.Sprintf("build: discarding executor report for %s job %s", job.Status, id))
		return nil
	}

	select {
	case r.updates <- u:
		return nil
	case <-r.done:
		svc.log.Warn(fmt.Sprintf("build: discarding executor report for finished job %s", id))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel fails an unfinished job with reason "cancelled" and returns its final state.
// Cancelling a finished job is a no-op.
func (svc *Service) Cancel(ctx context.Context, id string) (Job, error) {
	id = core.CleanString(id)
	if r, ok := svc.lookup(id); ok {
		r.cancelOnce.Do(func() { close(r.cancel) })
		select {
		case <-r.done:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
	return svc.repo.GetJob(ctx, id)
}

func (svc *Service) Get(ctx context.Context, id string) (Job, error) {
	return svc.repo.GetJob(ctx, core.CleanString(id))
}

// List returns the job history, newest first. The limit defaults to DefaultListLimit.
func (svc *Service) List(ctx context.Context, filter Filter) ([]Job, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	} else if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	return svc.repo.ListJobs(ctx, filter)
}

// Recover fails the unfinished jobs left by a previous process, since nothing drives them anymore.
// It must run before new jobs are submitted.
func (svc *Service) Recover(ctx context.Context) (int, error) {
	var n int
	for _, status := range []Status{StatusQueued, StatusStarting, StatusBuilding} {
		jobs, err := svc.repo.ListJobs(ctx, Filter{Status: status})
		if err != nil {
			return n, errors.Wrap(err, "listing unfinished jobs")
		}
		for _, job := range jobs {
			if _, running := svc.lookup(job.ID); running {
				continue
			}
			if err := svc.fail(ctx, &run{job: job}, ReasonRestarted); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// Shutdown fails every in-flight job and waits for their drivers to return.
// Jobs submitted afterwards are rejected with ErrShuttingDown.
func (svc *Service) Shutdown(ctx context.Context) error {
	svc.mu.Lock()
	if !svc.closing {
		svc.closing = true
		close(svc.stopCh)
	}
	svc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for build drivers")
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
