package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/cronexpr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hashicorp-forge/build-trigger/internal/controller/coordinator"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

type recorder struct {
	lock  sync.Mutex
	calls []string
	err   error
}

func (r *recorder) run(_ context.Context, appSlug, workflowID string, _ *state.GitReference) (*coordinator.Attempt, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.calls = append(r.calls, appSlug+"/"+workflowID)
	if r.err != nil {
		return nil, r.err
	}
	return &coordinator.Attempt{}, nil
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.calls)
}

func newTestTrigger(t *testing.T, rec *recorder, now time.Time) *Trigger {
	t.Helper()

	tc := NewTrigger(&TriggerConfig{Logger: zaptest.NewLogger(t), RunFn: rec.run})
	tc.now = func() time.Time { return now }
	return tc
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, (&Config{Name: "nightly", AppSlug: "app", Crons: []string{"0 2 * * *"}}).Validate())
	require.Error(t, (&Config{Name: "empty"}).Validate())
	require.Error(t, (&Config{Name: "bad", AppSlug: "app", Crons: []string{"not a cron"}}).Validate())
}

func TestTrigger_FiresDueEntries(t *testing.T) {
	start := time.Date(2024, 1, 1, 1, 59, 0, 0, time.UTC)
	rec := &recorder{}

	tc := newTestTrigger(t, rec, start)
	require.NoError(t, tc.Add(&Config{Name: "nightly", AppSlug: "app", WorkflowID: "primary", Crons: []string{"0 2 * * *"}}))
	require.NoError(t, tc.Add(&Config{Name: "hourly", AppSlug: "other", Crons: []string{"0 * * * *"}}))
	assert.Equal(t, 2, tc.Len())

	next, ok := tc.NextRun()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), next)

	tc.checkAndExecuteTriggers()
	assert.Equal(t, 0, rec.count())

	tc.now = func() time.Time { return start.Add(90 * time.Second) }
	tc.checkAndExecuteTriggers()

	require.Equal(t, 2, rec.count())
	assert.ElementsMatch(t, []string{"app/primary", "other/"}, rec.calls)

	next, ok = tc.NextRun()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), next)
	assert.Equal(t, 2, tc.Len())
}

func TestTrigger_SkipsWhenInProgress(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)
	rec := &recorder{err: coordinator.ErrAlreadyInProgress}

	tc := newTestTrigger(t, rec, start)
	require.NoError(t, tc.Add(&Config{Name: "minutely", AppSlug: "app", Crons: []string{"* * * * *"}}))

	tc.now = func() time.Time { return start.Add(time.Minute) }
	tc.checkAndExecuteTriggers()

	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 1, tc.Len())
}

func TestTrigger_IgnoresExpiredCron(t *testing.T) {
	tc := newTestTrigger(t, &recorder{}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, tc.Add(&Config{Name: "past", AppSlug: "app", Crons: []string{"0 0 1 1 * 2020"}}))

	assert.Equal(t, 0, tc.Len())
	_, ok := tc.NextRun()
	assert.False(t, ok)
}

func TestTrigger_StartStop(t *testing.T) {
	tc := newTestTrigger(t, &recorder{}, time.Now())
	tc.Start()
	tc.Stop()
}

func TestRunQueue(t *testing.T) {
	now := time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)

	newEntry := func(cron string) *entry {
		expr := cronexpr.MustParse(cron)
		return &entry{cron: cron, expr: expr, nextRun: expr.Next(now)}
	}

	q := newRunQueue()
	_, ok := q.peek()
	assert.False(t, ok)

	hourly := newEntry("0 * * * *")
	once := newEntry("30 23 31 12 * 2023")
	q.push(hourly)
	q.push(once)

	first, ok := q.peek()
	require.True(t, ok)
	assert.Equal(t, once, first)

	// The one-off expression has no match after it ran.
	assert.False(t, q.advance(once, once.nextRun))
	assert.Equal(t, 1, q.len())

	first, _ = q.peek()
	assert.Equal(t, hourly, first)

	require.True(t, q.advance(hourly, hourly.nextRun))
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), hourly.nextRun)
}
