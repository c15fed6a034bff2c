package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/cronexpr"
	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/coordinator"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

// RunFunc selects the workflow and triggers a build of the app.
type RunFunc func(ctx context.Context, appSlug, workflowID string, ref *state.GitReference) (*coordinator.Attempt, error)

// Trigger fires builds on cron schedules, ordered by next run time.
type Trigger struct {
	logger *zap.Logger
	runFn  RunFunc
	now    func() time.Time

	queue *runQueue
	lock  sync.Mutex

	stopCh   chan struct{}
	updateCh chan struct{}
	wg       sync.WaitGroup
}

type TriggerConfig struct {
	Logger *zap.Logger
	RunFn  RunFunc
}

func NewTrigger(cfg *TriggerConfig) *Trigger {
	return &Trigger{
		logger:   cfg.Logger.Named(logger.ComponentNameSchedule),
		runFn:    cfg.RunFn,
		now:      time.Now,
		queue:    newRunQueue(),
		stopCh:   make(chan struct{}),
		updateCh: make(chan struct{}, 1),
	}
}

func (tc *Trigger) Start() {
	tc.logger.Info("starting schedule trigger", zap.Int("entries", tc.Len()))

	tc.wg.Add(1)
	go tc.run()
}

// Stop waits for the scheduling loop to return. Submitted attempts are not
// waited for.
func (tc *Trigger) Stop() {
	tc.logger.Info("stopping schedule trigger")
	close(tc.stopCh)
	tc.wg.Wait()
}

// Add registers every cron expression of the schedule.
func (tc *Trigger) Add(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	tc.lock.Lock()
	defer tc.lock.Unlock()

	now := tc.now()

	for _, cron := range cfg.Crons {
		cronExpr, err := cronexpr.Parse(cron)
		if err != nil {
			return fmt.Errorf("failed to parse cron expression %q: %w", cron, err)
		}

		st := &entry{
			schedule: cfg,
			cron:     cron,
			expr:     cronExpr,
			nextRun:  cronExpr.Next(now),
		}
		if st.nextRun.IsZero() {
			tc.logger.Warn("cron expression has no future run, ignoring",
				zap.String("name", cfg.Name),
				zap.String("cron", cron))
			continue
		}
		tc.queue.push(st)

		tc.logger.Info("added schedule",
			zap.String("name", cfg.Name),
			zap.String("app_slug", cfg.AppSlug),
			zap.String("cron", cron),
			zap.Time("next_run", st.nextRun))
	}

	tc.signalUpdate()

	return nil
}

func (tc *Trigger) Len() int {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	return tc.queue.len()
}

// NextRun returns the earliest scheduled run, if any.
func (tc *Trigger) NextRun() (time.Time, bool) {
	tc.lock.Lock()
	defer tc.lock.Unlock()

	st, ok := tc.queue.peek()
	if !ok {
		return time.Time{}, false
	}
	return st.nextRun, true
}

func (tc *Trigger) run() {
	defer tc.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-tc.stopCh:
			return
		case <-ticker.C:
			tc.checkAndExecuteTriggers()
		case <-tc.updateCh:
			tc.checkAndExecuteTriggers()
		}
	}
}

func (tc *Trigger) checkAndExecuteTriggers() {
	now := tc.now()

	tc.lock.Lock()
	defer tc.lock.Unlock()

	for {
		st, ok := tc.queue.peek()
		if !ok || st.nextRun.After(now) {
			return
		}

		tc.executeTrigger(st)

		if !tc.queue.advance(st, now) {
			tc.logger.Info("schedule has no future run, removed",
				zap.String("name", st.schedule.Name),
				zap.String("cron", st.cron))
			continue
		}

		tc.logger.Debug("rescheduled trigger",
			zap.String("name", st.schedule.Name),
			zap.String("cron", st.cron),
			zap.Time("next_run", st.nextRun))
	}
}

func (tc *Trigger) executeTrigger(st *entry) {
	l := tc.logger.With(
		zap.String("name", st.schedule.Name),
		zap.String("app_slug", st.schedule.AppSlug),
		zap.Time("scheduled_time", st.nextRun))

	l.Info("executing scheduled trigger")

	attempt, err := tc.runFn(context.Background(), st.schedule.AppSlug, st.schedule.WorkflowID, nil)
	switch {
	case errors.Is(err, coordinator.ErrAlreadyInProgress):
		l.Warn("skipping scheduled trigger, build trigger already in progress")
	case err != nil:
		l.Error("failed to execute scheduled trigger", zap.Error(err))
	default:
		l.Info("successfully submitted scheduled trigger", zap.String("attempt_id", attempt.ID.String()))
	}
}

func (tc *Trigger) signalUpdate() {
	select {
	case tc.updateCh <- struct{}{}:
	default:
	}
}
