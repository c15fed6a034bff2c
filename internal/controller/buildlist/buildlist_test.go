package buildlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

const buildsBody = `{"data":[
	{"slug":"b2","build_number":12,"status":0,"triggered_workflow":"primary"},
	{"slug":"b1","build_number":11,"status":1,"triggered_workflow":"primary"}
]}`

type recordingPublisher struct {
	lock   sync.Mutex
	alerts []*events.Event
	others []*events.Event
}

func (r *recordingPublisher) Publish(e *events.Event) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if e.Type == events.TypeAlertMessage {
		r.alerts = append(r.alerts, e)
	} else {
		r.others = append(r.others, e)
	}
	return nil
}

func (r *recordingPublisher) lastAlert() *events.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.alerts) == 0 {
		return nil
	}
	return r.alerts[len(r.alerts)-1]
}

func newTestList(t *testing.T, abortHandler http.HandlerFunc) (*List, *recordingPublisher, *atomic.Int32) {
	t.Helper()

	var listCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v0.1/apps/app/builds", func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		_, _ = w.Write([]byte(buildsBody))
	})
	if abortHandler == nil {
		abortHandler = func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected abort request for %s", r.PathValue("build"))
		}
	}
	mux.HandleFunc("POST /v0.1/apps/app/builds/{build}/abort", abortHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	pub := &recordingPublisher{}

	l := New("app", &Config{
		Logger:    zaptest.NewLogger(t),
		Client:    api.NewClient(&api.Config{APIAddress: srv.URL}),
		Publisher: pub,
	})

	_, err := l.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), listCalls.Load())

	return l, pub, &listCalls
}

func TestList_Refresh(t *testing.T) {
	l, _, _ := newTestList(t, nil)

	builds := l.Builds()
	require.Len(t, builds, 2)
	assert.Equal(t, "b2", builds[0].Slug)
	assert.Equal(t, 11, builds[1].BuildNumber)
}

func TestList_Abort(t *testing.T) {
	var abortedSlug string

	l, pub, listCalls := newTestList(t, func(w http.ResponseWriter, r *http.Request) {
		abortedSlug = r.PathValue("build")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	require.NoError(t, l.Abort(context.Background(), 1))

	assert.Equal(t, "b1", abortedSlug)
	assert.Equal(t, "Aborted: #11", pub.lastAlert().Message)
	assert.False(t, pub.lastAlert().Failure)
	assert.Equal(t, int32(2), listCalls.Load())

	require.Len(t, pub.others, 1)
	assert.Equal(t, events.TypeBuildAborted, pub.others[0].Type)
	assert.Equal(t, 11, pub.others[0].BuildNumber)
}

func TestList_Abort_ServerMessageWins(t *testing.T) {
	l, pub, listCalls := newTestList(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","error_msg":"build already finished"}`))
	})

	require.NoError(t, l.Abort(context.Background(), 0))

	assert.Equal(t, "build already finished", pub.lastAlert().Message)
	assert.True(t, pub.lastAlert().Failure)
	assert.Equal(t, int32(1), listCalls.Load())
	assert.Empty(t, pub.others)
}

func TestList_Abort_RejectedStatus(t *testing.T) {
	l, pub, _ := newTestList(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_msg":"not running"}`))
	})

	require.Error(t, l.Abort(context.Background(), 0))
	assert.Equal(t, "Abort failed: not running", pub.lastAlert().Message)
}

func TestList_Abort_IndexOutOfRange(t *testing.T) {
	l, pub, _ := newTestList(t, nil)

	for _, index := range []int{2, 5, -1} {
		require.ErrorIs(t, l.Abort(context.Background(), index), serverstate.ErrIndexOutOfRange)
	}
	assert.Nil(t, pub.lastAlert())
}

func TestList_Abort_TransportError(t *testing.T) {
	var hijack atomic.Bool

	l, pub, _ := newTestList(t, func(w http.ResponseWriter, r *http.Request) {
		hijack.Store(true)
		conn, _, err := http.NewResponseController(w).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	})

	require.Error(t, l.Abort(context.Background(), 0))
	assert.True(t, hijack.Load())
	assert.Contains(t, pub.lastAlert().Message, "Abort failed: ")
	assert.True(t, pub.lastAlert().Failure)
}

func TestList_Watch(t *testing.T) {
	var listCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		_, _ = w.Write([]byte(buildsBody))
	}))
	defer srv.Close()

	bus := events.NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(ctx, &Config{
		Logger:     zaptest.NewLogger(t),
		Client:     api.NewClient(&api.Config{APIAddress: srv.URL}),
		Publisher:  bus,
		Subscriber: bus,
	})
	l := reg.Get("app")
	assert.Same(t, l, reg.Get("app"))

	// The watcher subscribes asynchronously, so keep publishing until the
	// refresh shows up.
	require.Eventually(t, func() bool {
		_ = bus.Publish(events.NewBuildTriggered("app", ulid.Make(), ""))
		return len(l.Builds()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	reg.Wait()
}

type closingSubscriber struct {
	calls atomic.Int32
}

// Subscribe hands out an already closed channel first, then one that stays
// open.
func (s *closingSubscriber) Subscribe(context.Context, events.Type, string) (<-chan *events.Event, error) {
	ch := make(chan *events.Event)
	if s.calls.Add(1) == 1 {
		close(ch)
	}
	return ch, nil
}

func TestList_Watch_Resubscribes(t *testing.T) {
	var listCalls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		_, _ = w.Write([]byte(buildsBody))
	}))
	defer srv.Close()

	sub := &closingSubscriber{}
	l := New("app", &Config{
		Logger:     zaptest.NewLogger(t),
		Client:     api.NewClient(&api.Config{APIAddress: srv.URL}),
		Publisher:  &recordingPublisher{},
		Subscriber: sub,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()

	require.Eventually(t, func() bool { return len(l.Builds()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), sub.calls.Load())

	cancel()
	require.NoError(t, <-done)
}
