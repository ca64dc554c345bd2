package wait

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/unicode/norm"

	"github.com/openclaw/smartwaitd/internal/capture"
	"github.com/openclaw/smartwaitd/internal/logger"
	"github.com/openclaw/smartwaitd/internal/notify"
	"github.com/openclaw/smartwaitd/internal/store"
	"github.com/openclaw/smartwaitd/internal/task"
	"github.com/openclaw/smartwaitd/internal/vision"
)

// Recorder is the narrow slice of the store the engine writes to.
type Recorder interface {
	RecordCreated(rec store.Record) error
	RecordTerminal(id, status, resultMessage string, resolvedAt time.Time) error
	Get(id string) (*store.Record, error)
}

// Config holds the engine's timing knobs.
type Config struct {
	DefaultPollInterval time.Duration
	MinPollInterval     time.Duration
	MaxPollInterval     time.Duration
	StatePrefix         string // wake-text prefix, e.g. "smart_wait"
	Gate                capture.GateConfig
}

// Deps are the engine's external collaborators. Sink may be nil when the task
// subsystem is not wired.
type Deps struct {
	Logger    *logger.Logger
	Capturer  capture.Capturer
	Evaluator vision.Evaluator
	Notifier  notify.Notifier
	Recorder  Recorder
	Sink      task.Sink
	Registry  prometheus.Registerer
}

// RegisterRequest carries the arguments of a register call.
type RegisterRequest struct {
	Target              string
	Display             string
	Criteria            string
	TimeoutSeconds      int
	PollIntervalSeconds float64
	TaskID              string
}

// UpdateRequest carries the arguments of an update call. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Criteria       *string
	TimeoutSeconds *int
	Note           *string
}

// Engine is the smart-wait scheduler. One instance owns the active job set,
// the per-display capture arbiter, and the single terminal-transition path.
type Engine struct {
	cfg       Config
	logger    *logger.Logger
	capturer  capture.Capturer
	arbiter   *capture.Arbiter
	evaluator vision.Evaluator
	notifier  notify.Notifier
	recorder  Recorder
	sink      task.Sink
	metrics   *Metrics

	mu   sync.Mutex
	jobs map[string]*Job
	wake chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an engine. Start must be called before jobs make progress.
func New(cfg Config, deps Deps) *Engine {
	if cfg.DefaultPollInterval <= 0 {
		cfg.DefaultPollInterval = 2 * time.Second
	}
	if cfg.MinPollInterval <= 0 {
		cfg.MinPollInterval = 500 * time.Millisecond
	}
	if cfg.MaxPollInterval < cfg.MinPollInterval {
		cfg.MaxPollInterval = 5 * time.Second
	}
	if cfg.StatePrefix == "" {
		cfg.StatePrefix = "smart_wait"
	}

	return &Engine{
		cfg:       cfg,
		logger:    deps.Logger,
		capturer:  deps.Capturer,
		arbiter:   capture.NewArbiter(),
		evaluator: deps.Evaluator,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		sink:      deps.Sink,
		metrics:   NewMetrics(orNewRegistry(deps.Registry)),
		jobs:      make(map[string]*Job),
		wake:      make(chan struct{}, 1),
	}
}

func orNewRegistry(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.NewRegistry()
	}
	return reg
}

// Start launches the scheduler loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.started = true

	e.wg.Add(1)
	go e.run()

	e.logger.Info("wait engine started",
		logger.Field{Key: "min_poll", Value: e.cfg.MinPollInterval.String()},
		logger.Field{Key: "max_poll", Value: e.cfg.MaxPollInterval.String()})
	return nil
}

// Stop halts the scheduler and waits for in-flight evaluations and wake
// notifications to settle.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.logger.Info("wait engine stopped")
}

// Register creates a watching job and schedules its first evaluation
// immediately. The creation is persisted before the call returns.
func (e *Engine) Register(req RegisterRequest) (string, error) {
	target, err := capture.ParseTarget(req.Target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}
	criteria := norm.NFC.String(strings.TrimSpace(req.Criteria))
	if criteria == "" {
		return "", fmt.Errorf("%w: criteria must not be empty", ErrInvalidArg)
	}
	if req.TimeoutSeconds <= 0 {
		return "", fmt.Errorf("%w: timeout_s must be > 0", ErrInvalidArg)
	}
	if strings.TrimSpace(req.Display) == "" {
		return "", fmt.Errorf("%w: display must not be empty", ErrInvalidArg)
	}

	pollInterval := time.Duration(req.PollIntervalSeconds * float64(time.Second))
	if pollInterval <= 0 {
		pollInterval = e.cfg.DefaultPollInterval
	}

	now := time.Now()
	job := &Job{
		ID:             uuid.NewString()[:8],
		Target:         target,
		Display:        req.Display,
		Criteria:       criteria,
		TaskID:         req.TaskID,
		CreatedAt:      now,
		Deadline:       now.Add(time.Duration(req.TimeoutSeconds) * time.Second),
		TimeoutSeconds: req.TimeoutSeconds,
		PollInterval:   pollInterval,
		NextCheckAt:    now,
		Status:         StatusWatching,
		diffGate:       capture.NewDiffGate(e.cfg.Gate),
	}

	if err := e.recorder.RecordCreated(store.Record{
		ID:             job.ID,
		TaskID:         job.TaskID,
		TargetType:     string(target.Kind),
		TargetID:       targetID(target),
		Display:        job.Display,
		Criteria:       job.Criteria,
		TimeoutSeconds: job.TimeoutSeconds,
		PollInterval:   pollInterval.Seconds(),
		CreatedAt:      now,
	}); err != nil {
		return "", fmt.Errorf("failed to persist job creation: %w", err)
	}

	e.mu.Lock()
	e.jobs[job.ID] = job
	active := len(e.jobs)
	e.mu.Unlock()
	e.metrics.setActive(active)

	if job.TaskID != "" && e.sink != nil {
		if err := e.sink.WaitStarted(e.baseCtx(), job.TaskID, job.ID, target.String(), criteria, job.TimeoutSeconds); err != nil {
			e.logger.Warn("failed to link wait to task",
				logger.Field{Key: "job_id", Value: job.ID},
				logger.Field{Key: "task_id", Value: job.TaskID},
				logger.Field{Key: "error", Value: err})
		}
	}

	e.logger.Info("wait job registered",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "target", Value: target.String()},
		logger.Field{Key: "display", Value: job.Display},
		logger.Field{Key: "criteria", Value: criteria},
		logger.Field{Key: "timeout_s", Value: job.TimeoutSeconds})

	e.nudge()
	return job.ID, nil
}

// Status returns the snapshot for one job, consulting the store for terminal
// records already dropped from memory.
func (e *Engine) Status(id string) (Snapshot, error) {
	now := time.Now()

	e.mu.Lock()
	if job, ok := e.jobs[id]; ok {
		snap := job.snapshot(now)
		e.mu.Unlock()
		return snap, nil
	}
	e.mu.Unlock()

	rec, err := e.recorder.Get(id)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snapshotFromRecord(rec), nil
}

// StatusAll returns snapshots of every active job.
func (e *Engine) StatusAll() []Snapshot {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	snaps := make([]Snapshot, 0, len(e.jobs))
	for _, job := range e.jobs {
		snaps = append(snaps, job.snapshot(now))
	}
	return snaps
}

// Update replaces criteria and/or resets the deadline of a watching job and
// appends a note to its history. The deadline reset is atomic against the
// job still being watched; if a terminal transition won the race the update
// fails with ErrAlreadyTerminal.
func (e *Engine) Update(id string, req UpdateRequest) error {
	if req.Criteria != nil && norm.NFC.String(strings.TrimSpace(*req.Criteria)) == "" {
		return fmt.Errorf("%w: criteria must not be empty", ErrInvalidArg)
	}
	if req.TimeoutSeconds != nil && *req.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout_s must be > 0", ErrInvalidArg)
	}

	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		if rec, err := e.recorder.Get(id); err == nil && rec.Status != string(StatusWatching) {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, rec.Status)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := time.Now()
	if req.Criteria != nil {
		job.Criteria = norm.NFC.String(strings.TrimSpace(*req.Criteria))
		job.appendHistory(fmt.Sprintf("criteria updated: %s", job.Criteria))
	}
	if req.TimeoutSeconds != nil {
		job.TimeoutSeconds = *req.TimeoutSeconds
		job.Deadline = now.Add(time.Duration(*req.TimeoutSeconds) * time.Second)
		job.appendHistory(fmt.Sprintf("deadline reset to now + %ds", *req.TimeoutSeconds))
	}
	if req.Note != nil && strings.TrimSpace(*req.Note) != "" {
		job.appendHistory(norm.NFC.String(strings.TrimSpace(*req.Note)))
	}
	e.mu.Unlock()

	e.logger.Info("wait job updated", logger.Field{Key: "job_id", Value: id})
	e.nudge()
	return nil
}

// Cancel transitions a watching job to cancelled and notifies once.
// Cancelling an already-terminal job is a successful no-op.
func (e *Engine) Cancel(id, reason string) error {
	if e.complete(id, StatusCancelled, strings.TrimSpace(reason)) {
		return nil
	}

	// Not active: idempotent success if the store knows a terminal outcome.
	if rec, err := e.recorder.Get(id); err == nil && rec.Status != string(StatusWatching) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// baseCtx returns the engine context, or Background before Start.
func (e *Engine) baseCtx() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

// nudge wakes the scheduler without blocking.
func (e *Engine) nudge() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// run is the scheduler loop: sleep until the earliest due instant or a
// control nudge, then process one tick.
func (e *Engine) run() {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		var earliest time.Time
		for _, job := range e.jobs {
			next := job.NextCheckAt
			if job.Deadline.Before(next) {
				next = job.Deadline
			}
			if earliest.IsZero() || next.Before(earliest) {
				earliest = next
			}
		}
		e.mu.Unlock()

		var timerCh <-chan time.Time
		var timer *time.Timer
		if !earliest.IsZero() {
			d := time.Until(earliest)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerCh = timer.C
		}

		select {
		case <-e.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-e.wake:
			if timer != nil {
				timer.Stop()
			}
			continue // recompute the sleep with fresh deadlines
		case <-timerCh:
		}

		e.tick()
	}
}

// tick handles one scheduler wakeup: expired jobs time out first, then every
// due job is evaluated concurrently and the tick waits for the batch.
func (e *Engine) tick() {
	now := time.Now()

	e.mu.Lock()
	var due []*Job
	type expiry struct {
		id     string
		detail string
	}
	var expired []expiry
	for _, job := range e.jobs {
		if job.Status != StatusWatching || job.evaluating {
			continue
		}
		if !now.Before(job.Deadline) {
			detail := fmt.Sprintf("Timeout after %ds.", job.TimeoutSeconds)
			if job.LastDetail != "" {
				detail += " Last observation: " + job.LastDetail
			}
			expired = append(expired, expiry{id: job.ID, detail: detail})
			continue
		}
		if !job.NextCheckAt.After(now) {
			job.evaluating = true
			due = append(due, job)
		}
	}
	e.mu.Unlock()

	for _, ex := range expired {
		e.complete(ex.id, StatusTimeout, ex.detail)
	}

	var wg sync.WaitGroup
	for _, job := range due {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			e.evaluate(j)
		}(job)
	}
	wg.Wait()
}

// effectiveInterval clamps the job's base interval into the configured range.
func (e *Engine) effectiveInterval(job *Job) time.Duration {
	interval := job.PollInterval
	if interval < e.cfg.MinPollInterval {
		interval = e.cfg.MinPollInterval
	}
	if interval > e.cfg.MaxPollInterval {
		interval = e.cfg.MaxPollInterval
	}
	return interval
}

// reschedule sets the job's next due instant; callers hold no lock.
func (e *Engine) reschedule(job *Job, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j, ok := e.jobs[job.ID]; ok {
		if detail != "" {
			j.LastDetail = detail
		}
		j.NextCheckAt = time.Now().Add(e.effectiveInterval(j))
	}
}

// complete is the single terminal-transition path. The active-set check under
// the engine lock makes the first writer win; later attempts are no-ops. It
// returns whether this call performed the transition.
func (e *Engine) complete(id string, status Status, detail string) bool {
	now := time.Now()

	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok || job.Status != StatusWatching {
		e.mu.Unlock()
		return false
	}
	if status == StatusTimeout && job.Deadline.After(now) {
		// An update reset the deadline between detection and transition.
		e.mu.Unlock()
		return false
	}
	job.Status = status
	job.ResolvedAt = now
	job.Result = detail
	job.appendHistory(fmt.Sprintf("[%s] %s", status, detail))
	delete(e.jobs, id)

	criteria := job.Criteria
	taskID := job.TaskID
	active := len(e.jobs)
	e.mu.Unlock()

	e.metrics.setActive(active)
	e.metrics.recordTerminal(status)

	e.logger.Info("wait job finished",
		logger.Field{Key: "job_id", Value: id},
		logger.Field{Key: "status", Value: string(status)},
		logger.Field{Key: "detail", Value: detail})

	// Store commit failures are logged and do not hold the job hostage; it
	// has already left the active set.
	if err := e.recorder.RecordTerminal(id, string(status), detail, now); err != nil {
		e.logger.Error("failed to persist terminal state", err,
			logger.Field{Key: "job_id", Value: id})
	}

	if taskID != "" && e.sink != nil {
		content := fmt.Sprintf("Wait %s: %s → %s", status, criteria, detail)
		if err := e.sink.PostWaitMessage(e.baseCtx(), taskID, string(status), content); err != nil {
			e.logger.Warn("failed to post wait message to task",
				logger.Field{Key: "task_id", Value: taskID},
				logger.Field{Key: "error", Value: err})
		}
		if err := e.sink.UpdateWaitState(e.baseCtx(), taskID, task.WaitStateUpdate{
			RemoveID:    id,
			LastState:   string(status),
			LastEventAt: now,
		}); err != nil {
			e.logger.Warn("failed to update task wait state",
				logger.Field{Key: "task_id", Value: taskID},
				logger.Field{Key: "error", Value: err})
		}
	}

	text := e.wakeText(status, id, criteria, detail)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.notifier.Notify(e.baseCtx(), text); err != nil {
			e.metrics.recordWakeFailure()
			e.logger.Error("wake notification failed", err,
				logger.Field{Key: "job_id", Value: id})
		}
	}()

	return true
}

// wakeText renders the one-line wake summary for a terminal transition.
func (e *Engine) wakeText(status Status, id, criteria, detail string) string {
	prefix := fmt.Sprintf("[%s %s]", e.cfg.StatePrefix, status)
	switch status {
	case StatusResolved:
		return fmt.Sprintf("%s %s: %s → %s", prefix, id, criteria, detail)
	case StatusCancelled:
		if detail == "" {
			detail = "(no reason)"
		}
		return fmt.Sprintf("%s %s: %s — %s", prefix, id, criteria, detail)
	default: // timeout, error
		return fmt.Sprintf("%s %s: %s — %s", prefix, id, criteria, detail)
	}
}

func targetID(t capture.Target) string {
	switch t.Kind {
	case capture.TargetWindow:
		return t.Window
	case capture.TargetPty:
		return t.PtyID
	default:
		return "full"
	}
}

func snapshotFromRecord(rec *store.Record) Snapshot {
	snap := Snapshot{
		ID:             rec.ID,
		Status:         Status(rec.Status),
		Target:         rec.TargetType,
		Display:        rec.Display,
		Criteria:       rec.Criteria,
		LastDetail:     rec.ResultMessage,
		TimeoutSeconds: rec.TimeoutSeconds,
		PollSeconds:    rec.PollInterval,
		TaskID:         rec.TaskID,
		CreatedAt:      rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.TargetType == string(capture.TargetWindow) {
		snap.Target = "window:" + rec.TargetID
	} else if rec.TargetType == string(capture.TargetPty) {
		snap.Target = "pty:" + rec.TargetID
	}
	if rec.ResolvedAt != nil {
		snap.ResolvedAt = rec.ResolvedAt.UTC().Format(time.RFC3339)
		snap.ElapsedSeconds = rec.ResolvedAt.Sub(rec.CreatedAt).Seconds()
	}
	return snap
}
