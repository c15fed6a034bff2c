package build

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap/zaptest"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/sqlstate"
	"github.com/hashicorp-forge/build-trigger/internal/helper"
)

type fakeCI struct {
	lock        sync.Mutex
	startStatus int
	startBodies []map[string]any
	aborted     []string
}

func (f *fakeCI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /app/app/build/start.json", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.lock.Lock()
		f.startBodies = append(f.startBodies, body)
		status := f.startStatus
		f.lock.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"status":"ok","build_number":7}`))
	})

	mux.HandleFunc("GET /v0.1/apps/app/builds", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"slug":"b7","build_number":7,"status":0,"status_text":"in-progress","branch":"main","triggered_workflow":"primary"},
			{"slug":"b6","build_number":6,"status":1,"status_text":"success","branch":"main","triggered_workflow":"primary"}
		]}`))
	})

	mux.HandleFunc("POST /v0.1/apps/app/builds/{build}/abort", func(w http.ResponseWriter, r *http.Request) {
		f.lock.Lock()
		f.aborted = append(f.aborted, r.PathValue("build"))
		f.lock.Unlock()
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}

func (f *fakeCI) bodies() []map[string]any {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]map[string]any(nil), f.startBodies...)
}

func (f *fakeCI) abortedSlugs() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.aborted...)
}

func seedState(t *testing.T, dbPath string) {
	t.Helper()

	backend, err := sqlstate.New(&sqlstate.Config{Driver: sqlstate.DriverSQLite, Path: dbPath}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = backend.Close() }()

	_, stateErr := backend.TriggerConfigs().SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{
		AppSlug:  "app",
		APIToken: helper.PointerOf("T"),
	})
	require.Nil(t, stateErr)

	_, stateErr = backend.TriggerConfigs().AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{
		AppSlug:    "app",
		WorkflowID: "primary",
	})
	require.Nil(t, stateErr)
}

func runBuildCommand(t *testing.T, args ...string) error {
	t.Helper()

	cmd := Command()
	cmd.Writer = &bytes.Buffer{}
	cmd.ErrWriter = &bytes.Buffer{}
	cmd.ExitErrHandler = func(context.Context, *cli.Command, error) {}

	return cmd.Run(context.Background(), append([]string{"build"}, args...))
}

func TestTriggerCommand(t *testing.T) {
	ci := &fakeCI{startStatus: http.StatusCreated}
	srv := httptest.NewServer(ci.handler())
	t.Cleanup(srv.Close)

	dbPath := filepath.Join(t.TempDir(), "state.db")
	seedState(t, dbPath)

	require.NoError(t, runBuildCommand(t, "trigger",
		"--state-sql-path", dbPath,
		"--ci-address", srv.URL,
		"--log-level", "error",
		"--ref", "tag:v1",
		"app",
	))

	bodies := ci.bodies()
	require.Len(t, bodies, 1)
	assert.Equal(t, map[string]any{
		"hook_info":    map[string]any{"api_token": "T"},
		"build_params": map[string]any{"tag": "v1", "workflow_id": "primary"},
	}, bodies[0])

	require.NoError(t, runBuildCommand(t, "trigger",
		"--state-sql-path", dbPath,
		"--ci-address", srv.URL,
		"--log-level", "error",
		"--workflow", "nightly",
		"app",
	))

	bodies = ci.bodies()
	require.Len(t, bodies, 2)
	assert.Equal(t, map[string]any{"tag": "v1", "workflow_id": "nightly"}, bodies[1]["build_params"])
}

func TestTriggerCommand_Rejected(t *testing.T) {
	ci := &fakeCI{startStatus: http.StatusUnprocessableEntity}
	srv := httptest.NewServer(ci.handler())
	t.Cleanup(srv.Close)

	dbPath := filepath.Join(t.TempDir(), "state.db")
	seedState(t, dbPath)

	err := runBuildCommand(t, "trigger",
		"--state-sql-path", dbPath,
		"--ci-address", srv.URL,
		"--log-level", "error",
		"app",
	)
	require.Error(t, err)

	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, err.Error(), "422")
}

func TestTriggerCommand_NotConfigured(t *testing.T) {
	ci := &fakeCI{startStatus: http.StatusCreated}
	srv := httptest.NewServer(ci.handler())
	t.Cleanup(srv.Close)

	err := runBuildCommand(t, "trigger",
		"--state-sql-path", filepath.Join(t.TempDir(), "state.db"),
		"--ci-address", srv.URL,
		"--log-level", "error",
		"app",
	)
	require.Error(t, err)
	assert.Empty(t, ci.bodies())
}

func TestListAndAbortCommands(t *testing.T) {
	ci := &fakeCI{}
	srv := httptest.NewServer(ci.handler())
	t.Cleanup(srv.Close)

	dbPath := filepath.Join(t.TempDir(), "state.db")

	require.NoError(t, runBuildCommand(t, "list",
		"--state-sql-path", dbPath,
		"--ci-api-address", srv.URL,
		"--log-level", "error",
		"app",
	))

	require.NoError(t, runBuildCommand(t, "abort",
		"--state-sql-path", dbPath,
		"--ci-api-address", srv.URL,
		"--log-level", "error",
		"app", "1",
	))
	assert.Equal(t, []string{"b6"}, ci.abortedSlugs())

	err := runBuildCommand(t, "abort",
		"--state-sql-path", dbPath,
		"--ci-api-address", srv.URL,
		"--log-level", "error",
		"app", "9",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
