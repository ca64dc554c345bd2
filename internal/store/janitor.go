package store

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openclaw/smartwaitd/internal/logger"
)

// Janitor prunes old terminal records on a cron schedule.
type Janitor struct {
	store     *Store
	cron      *cron.Cron
	logger    *logger.Logger
	retention time.Duration
}

// NewJanitor creates a janitor that deletes terminal records older than
// retentionDays according to schedule (standard 5-field cron expression).
func NewJanitor(s *Store, schedule string, retentionDays int, log *logger.Logger) (*Janitor, error) {
	j := &Janitor{
		store:     s,
		cron:      cron.New(),
		logger:    log,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}

	if _, err := j.cron.AddFunc(schedule, j.runOnce); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins scheduled pruning.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("store janitor started",
		logger.Field{Key: "retention", Value: j.retention.String()})
}

// Stop halts the schedule and waits for a running prune to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("store janitor stopped")
}

func (j *Janitor) runOnce() {
	cutoff := time.Now().Add(-j.retention)
	n, err := j.store.Prune(cutoff)
	if err != nil {
		j.logger.Error("failed to prune terminal records", err)
		return
	}
	if n > 0 {
		j.logger.Info("pruned terminal wait records",
			logger.Field{Key: "count", Value: n},
			logger.Field{Key: "cutoff", Value: cutoff.Format(time.RFC3339)})
	}
}
