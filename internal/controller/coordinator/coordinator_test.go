package coordinator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/dev"
	"github.com/hashicorp-forge/build-trigger/internal/helper"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

type recordingPublisher struct {
	lock   sync.Mutex
	events []*events.Event
}

func (r *recordingPublisher) Publish(e *events.Event) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) ofType(t events.Type) []*events.Event {
	r.lock.Lock()
	defer r.lock.Unlock()

	var out []*events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingPublisher) failureAlerts() []*events.Event {
	var out []*events.Event
	for _, e := range r.ofType(events.TypeAlertMessage) {
		if e.Failure {
			out = append(out, e)
		}
	}
	return out
}

type testHarness struct {
	coordinator *Coordinator
	publisher   *recordingPublisher
	state       serverstate.State
	calls       *atomic.Int32
}

func newTestHarness(t *testing.T, handler http.HandlerFunc) *testHarness {
	t.Helper()

	pub := &recordingPublisher{}
	h := newTestHarnessWithPublisher(t, handler, pub)
	h.publisher = pub
	return h
}

func newTestHarnessWithPublisher(t *testing.T, handler http.HandlerFunc, pub events.Publisher) *testHarness {
	t.Helper()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	h := &testHarness{
		state: dev.New(),
		calls: &calls,
	}

	h.coordinator = New("app", &Config{
		Logger:    zaptest.NewLogger(t),
		State:     h.state,
		Client:    api.NewClient(&api.Config{Address: srv.URL, TriggerTimeout: time.Second}),
		Publisher: pub,
	})

	return h
}

func (h *testHarness) configure(t *testing.T, token string) {
	t.Helper()

	_, err := h.state.TriggerConfigs().SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{
		AppSlug:  "app",
		APIToken: helper.PointerOf(token),
	})
	require.Nil(t, err)

	_, err = h.state.TriggerConfigs().SetGitReference(&serverstate.TriggerConfigsSetGitReferenceReq{
		AppSlug:      "app",
		GitReference: state.Branch("main"),
	})
	require.Nil(t, err)
}

func waitOutcome(t *testing.T, a *Attempt) *Outcome {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	o, err := a.Wait(ctx)
	require.NoError(t, err)
	return o
}

func TestCoordinator_MissingToken(t *testing.T) {
	h := newTestHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h.coordinator.SelectWorkflow("primary")

	attempt, err := h.coordinator.TriggerBuild(context.Background())
	require.Nil(t, attempt)
	require.ErrorIs(t, err, ErrConfiguration)

	assert.Equal(t, int32(0), h.calls.Load())
	assert.Equal(t, alertConfigurationError, h.coordinator.AlertMessage())
	assert.Equal(t, PhaseIdle, h.coordinator.State())
	assert.Empty(t, h.publisher.ofType(events.TypeBuildTriggered))
}

func TestCoordinator_MissingWorkflow(t *testing.T) {
	h := newTestHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h.configure(t, "T")

	_, err := h.coordinator.TriggerBuild(context.Background())
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, int32(0), h.calls.Load())
	assert.Len(t, h.publisher.failureAlerts(), 1)
}

func TestCoordinator_Triggered(t *testing.T) {
	h := newTestHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	h.configure(t, "T")
	h.coordinator.SelectWorkflow("primary")

	attempt, err := h.coordinator.TriggerBuild(context.Background())
	require.NoError(t, err)

	outcome := waitOutcome(t, attempt)
	require.NoError(t, outcome.Err)
	require.NotNil(t, outcome.Triggered)
	assert.Equal(t, `{"status":"ok"}`, outcome.Triggered.Body)

	triggered := h.publisher.ofType(events.TypeBuildTriggered)
	require.Len(t, triggered, 1)
	assert.Equal(t, attempt.ID, triggered[0].AttemptID)

	assert.Empty(t, h.publisher.failureAlerts())
	assert.Equal(t, "Success\n{\"status\":\"ok\"}", h.coordinator.AlertMessage())
	assert.Equal(t, PhaseIdle, h.coordinator.State())
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestCoordinator_ServerRejected(t *testing.T) {
	h := newTestHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	h.configure(t, "T")
	h.coordinator.SelectWorkflow("primary")

	attempt, err := h.coordinator.TriggerBuild(context.Background())
	require.NoError(t, err)

	outcome := waitOutcome(t, attempt)
	require.ErrorIs(t, outcome.Err, ErrServerRejected)
	assert.Nil(t, outcome.Triggered)

	assert.Empty(t, h.publisher.ofType(events.TypeBuildTriggered))
	require.Len(t, h.publisher.failureAlerts(), 1)
	assert.Equal(t, "Fail", h.coordinator.AlertMessage())
}

func TestCoordinator_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	pub := &recordingPublisher{}
	st := dev.New()

	c := New("app", &Config{
		Logger:    zaptest.NewLogger(t),
		State:     st,
		Client:    api.NewClient(&api.Config{Address: addr}),
		Publisher: pub,
	})
	_, stateErr := st.TriggerConfigs().SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{AppSlug: "app", APIToken: helper.PointerOf("T")})
	require.Nil(t, stateErr)
	c.SelectWorkflow("primary")

	attempt, err := c.TriggerBuild(context.Background())
	require.NoError(t, err)

	outcome := waitOutcome(t, attempt)

	var transportErr *TransportError
	require.True(t, errors.As(outcome.Err, &transportErr))
	assert.Equal(t, transportErr.Error(), c.AlertMessage())
	assert.Empty(t, pub.ofType(events.TypeBuildTriggered))
}

func TestCoordinator_AlreadyInProgress(t *testing.T) {
	release := make(chan struct{})

	h := newTestHarness(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	})
	h.configure(t, "T")
	h.coordinator.SelectWorkflow("primary")

	first, err := h.coordinator.TriggerBuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseSubmitting, h.coordinator.State())

	second, err := h.coordinator.TriggerBuild(context.Background())
	require.ErrorIs(t, err, ErrAlreadyInProgress)
	assert.Nil(t, second)
	assert.Nil(t, first.Outcome())

	close(release)

	outcome := waitOutcome(t, first)
	require.NoError(t, outcome.Err)
	assert.Len(t, h.publisher.ofType(events.TypeBuildTriggered), 1)
	assert.Equal(t, int32(1), h.calls.Load())

	third, err := h.coordinator.TriggerBuild(context.Background())
	require.NoError(t, err)
	waitOutcome(t, third)
	assert.Len(t, h.publisher.ofType(events.TypeBuildTriggered), 2)
}

// blockingPublisher holds the build triggered event until released.
type blockingPublisher struct {
	recordingPublisher
	entered chan struct{}
	release chan struct{}
}

func (b *blockingPublisher) Publish(e *events.Event) error {
	if e.Type == events.TypeBuildTriggered {
		close(b.entered)
		<-b.release
	}
	return b.recordingPublisher.Publish(e)
}

func TestCoordinator_AlreadyInProgressWhilePublishing(t *testing.T) {
	pub := &blockingPublisher{entered: make(chan struct{}), release: make(chan struct{})}

	var (
		inFlight    atomic.Int32
		maxInFlight atomic.Int32
	)

	h := newTestHarnessWithPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		w.WriteHeader(http.StatusCreated)
	}, pub)
	h.configure(t, "T")
	h.coordinator.SelectWorkflow("primary")

	first, err := h.coordinator.TriggerBuild(context.Background())
	require.NoError(t, err)

	select {
	case <-pub.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("outcome was never published")
	}
	assert.Equal(t, PhaseSucceeded, h.coordinator.State())

	for i := 0; i < 3; i++ {
		_, err := h.coordinator.TriggerBuild(context.Background())
		require.ErrorIs(t, err, ErrAlreadyInProgress)
	}
	assert.Equal(t, PhaseSucceeded, h.coordinator.State())
	assert.Nil(t, first.Outcome())

	close(pub.release)

	outcome := waitOutcome(t, first)
	require.NoError(t, outcome.Err)
	assert.Equal(t, PhaseIdle, h.coordinator.State())
	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestCoordinator_OutcomeOnBus(t *testing.T) {
	bus := events.NewBus(zaptest.NewLogger(t))
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A subscriber that never reads must not hold up the attempt.
	_, err := bus.SubscribeAll(ctx, "")
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, bus.Publish(events.NewAlert("other", "noise", false)))
	}

	appEvents, err := bus.SubscribeAll(ctx, "app")
	require.NoError(t, err)

	h := newTestHarnessWithPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}, bus)
	h.configure(t, "T")
	h.coordinator.SelectWorkflow("primary")

	attempt, err := h.coordinator.TriggerBuild(context.Background())
	require.NoError(t, err)

	outcome := waitOutcome(t, attempt)
	require.NoError(t, outcome.Err)
	assert.Equal(t, PhaseIdle, h.coordinator.State())

	// Both events are queued before the attempt completes.
	var received []*events.Event
	for len(received) < 2 {
		select {
		case e := <-appEvents:
			received = append(received, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 2 events", len(received))
		}
	}
	select {
	case e := <-appEvents:
		t.Fatalf("unexpected event %s: %q", e.Type, e.Message)
	default:
	}

	assert.Equal(t, events.TypeBuildTriggered, received[0].Type)
	assert.Equal(t, attempt.ID, received[0].AttemptID)

	assert.Equal(t, events.TypeAlertMessage, received[1].Type)
	assert.Equal(t, "Success\n{\"status\":\"ok\"}", received[1].Message)
	assert.False(t, received[1].Failure)
	assert.Equal(t, received[1].Message, bus.AlertMessage("app"))
}

func TestCoordinator_CallerCancelDoesNotAbortRequest(t *testing.T) {
	release := make(chan struct{})

	h := newTestHarness(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusCreated)
	})
	h.configure(t, "T")
	h.coordinator.SelectWorkflow("primary")

	ctx, cancel := context.WithCancel(context.Background())
	attempt, err := h.coordinator.TriggerBuild(ctx)
	require.NoError(t, err)

	cancel()
	close(release)

	outcome := waitOutcome(t, attempt)
	require.NoError(t, outcome.Err)
	assert.NotNil(t, outcome.Triggered)
}

func TestCoordinator_SelectWorkflow(t *testing.T) {
	c := New("app", &Config{Logger: zaptest.NewLogger(t)})

	_, ok := c.SelectedWorkflow()
	assert.False(t, ok)

	c.SelectWorkflow("deploy")
	id, ok := c.SelectedWorkflow()
	assert.True(t, ok)
	assert.Equal(t, "deploy", id)
	assert.Empty(t, c.AlertMessage())
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(&Config{Logger: zaptest.NewLogger(t)})

	a := r.Get("a")
	assert.Same(t, a, r.Get("a"))
	assert.NotSame(t, a, r.Get("b"))
	assert.Equal(t, "b", r.Get("b").AppSlug())

	r.Wait()
}
