package wait

import (
	"fmt"
	"time"

	"github.com/openclaw/smartwaitd/internal/capture"
	"github.com/openclaw/smartwaitd/internal/logger"
)

// evaluate runs one capture/diff/vision cycle for a job. It is the only
// goroutine touching the job's diff gate; the scheduler never dispatches a
// second evaluation while one is in flight. A panic anywhere in the cycle
// becomes a terminal error for this job only.
func (e *Engine) evaluate(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.logger.Error("evaluation panic recovered", err,
				logger.Field{Key: "job_id", Value: job.ID})
			e.complete(job.ID, StatusError, err.Error())
		}
		e.mu.Lock()
		if j, ok := e.jobs[job.ID]; ok {
			j.evaluating = false
		}
		e.mu.Unlock()
	}()

	e.mu.Lock()
	criteria := job.Criteria
	e.mu.Unlock()

	// Capture under the per-display lock; nothing else is.
	var frame *capture.Frame
	err := e.arbiter.WithLock(job.Display, func() error {
		f, captureErr := e.capturer.Capture(e.ctx, job.Display, job.Target)
		frame = f
		return captureErr
	})
	if err != nil {
		// Transient: the target may not exist yet. Retried until timeout.
		e.metrics.recordEvaluation("capture_failed")
		e.logger.Warn("frame capture failed",
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "display", Value: job.Display},
			logger.Field{Key: "error", Value: err})
		e.reschedule(job, "capture failed: "+err.Error())
		return
	}

	if !job.diffGate.ShouldEvaluate(frame) {
		e.metrics.recordEvaluation("no_change")
		e.logger.Debug("no visible change, skipping vision call",
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "diff_ratio", Value: job.diffGate.LastDiffRatio()})
		e.reschedule(job, "no visible change")
		return
	}

	start := time.Now()
	reply, err := e.evaluator.Evaluate(e.ctx, frame, criteria)
	e.metrics.observeVision(time.Since(start))
	if err != nil {
		e.metrics.recordEvaluation("vision_error")
		e.logger.Warn("vision call failed",
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "error", Value: err})
		e.reschedule(job, "vision call failed: "+err.Error())
		return
	}

	verdict := ParseVerdict(reply)
	e.logger.Info("evaluation verdict",
		logger.Field{Key: "job_id", Value: job.ID},
		logger.Field{Key: "resolved", Value: verdict.Resolved},
		logger.Field{Key: "detail", Value: verdict.Detail})

	if verdict.Resolved {
		e.metrics.recordEvaluation("resolved")
		e.complete(job.ID, StatusResolved, verdict.Detail)
		return
	}

	e.metrics.recordEvaluation("watching")
	e.mu.Lock()
	if j, ok := e.jobs[job.ID]; ok {
		j.appendHistory("[watching] " + verdict.Detail)
	}
	e.mu.Unlock()
	e.reschedule(job, verdict.Detail)
}
