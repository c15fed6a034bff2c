// Package statetest holds the behaviour every trigger config backend must
// share. Backend packages run it from their own tests.
package statetest

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/helper"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

// Factory returns a fresh, empty backend. Reopen, when non-nil, returns a new
// backend over the same storage so persistence across restarts can be checked.
type Factory struct {
	New    func(t *testing.T) serverstate.State
	Reopen func(t *testing.T, old serverstate.State) serverstate.State
}

func Run(t *testing.T, f Factory) {
	t.Run("load creates default", func(t *testing.T) { testLoadCreatesDefault(t, f) })
	t.Run("set fields", func(t *testing.T) { testSetFields(t, f) })
	t.Run("remove out of range", func(t *testing.T) { testRemoveOutOfRange(t, f) })
	t.Run("model equivalence", func(t *testing.T) { testModelEquivalence(t, f) })
	t.Run("concurrent appends", func(t *testing.T) { testConcurrentAppends(t, f) })
	t.Run("list", func(t *testing.T) { testList(t, f) })
	t.Run("returned records are copies", func(t *testing.T) { testCopies(t, f) })

	if f.Reopen != nil {
		t.Run("survives reopen", func(t *testing.T) { testReopen(t, f) })
	}
}

func testLoadCreatesDefault(t *testing.T, f Factory) {
	s := f.New(t)

	resp, err := s.TriggerConfigs().Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app-1"})
	require.Nil(t, err)
	require.NotNil(t, resp.Config)

	assert.Equal(t, "app-1", resp.Config.AppSlug)
	assert.Empty(t, resp.Config.WorkflowIDs)
	assert.Nil(t, resp.Config.APIToken)
	assert.Equal(t, state.Branch(""), resp.Config.GitReference)

	// A second load returns the same record rather than another default.
	_, err = s.TriggerConfigs().AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "app-1", WorkflowID: "primary"})
	require.Nil(t, err)

	resp, err = s.TriggerConfigs().Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app-1"})
	require.Nil(t, err)
	assert.Equal(t, []string{"primary"}, resp.Config.WorkflowIDs)
}

func testSetFields(t *testing.T, f Factory) {
	s := f.New(t)
	configs := s.TriggerConfigs()

	tokenResp, err := configs.SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{AppSlug: "app", APIToken: helper.PointerOf("T")})
	require.Nil(t, err)
	require.NotNil(t, tokenResp.Config.APIToken)
	assert.Equal(t, "T", *tokenResp.Config.APIToken)

	refResp, err := configs.SetGitReference(&serverstate.TriggerConfigsSetGitReferenceReq{AppSlug: "app", GitReference: state.Tag("v1.0.0")})
	require.Nil(t, err)
	assert.Equal(t, state.Tag("v1.0.0"), refResp.Config.GitReference)

	loadResp, err := configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app"})
	require.Nil(t, err)
	assert.Equal(t, "T", *loadResp.Config.APIToken)
	assert.Equal(t, state.Tag("v1.0.0"), loadResp.Config.GitReference)

	_, err = configs.SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{AppSlug: "app"})
	require.Nil(t, err)

	loadResp, err = configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app"})
	require.Nil(t, err)
	assert.Nil(t, loadResp.Config.APIToken)

	_, err = configs.SetGitReference(&serverstate.TriggerConfigsSetGitReferenceReq{AppSlug: "app", GitReference: state.Commit("")})
	require.Nil(t, err)

	loadResp, err = configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app"})
	require.Nil(t, err)
	assert.Equal(t, state.Commit(""), loadResp.Config.GitReference)
}

func testRemoveOutOfRange(t *testing.T, f Factory) {
	s := f.New(t)
	configs := s.TriggerConfigs()

	for _, id := range []string{"a", "b"} {
		_, err := configs.AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "app", WorkflowID: id})
		require.Nil(t, err)
	}

	for _, idx := range []int{2, 5, -1} {
		_, err := configs.RemoveWorkflowID(&serverstate.TriggerConfigsRemoveWorkflowIDReq{AppSlug: "app", Index: idx})
		require.NotNil(t, err, "index %d", idx)
		assert.True(t, errors.Is(err, serverstate.ErrIndexOutOfRange))
		assert.Equal(t, 400, err.StatusCode())
	}

	resp, err := configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app"})
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, resp.Config.WorkflowIDs)
}

func testModelEquivalence(t *testing.T, f Factory) {
	s := f.New(t)
	configs := s.TriggerConfigs()

	rnd := rand.New(rand.NewSource(42))
	model := []string{}

	for i := 0; i < 200; i++ {
		if len(model) == 0 || rnd.Intn(3) > 0 {
			// Small id space so duplicates are exercised.
			id := fmt.Sprintf("wf-%d", rnd.Intn(5))
			_, err := configs.AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "model", WorkflowID: id})
			require.Nil(t, err)
			model = append(model, id)
			continue
		}

		idx := rnd.Intn(len(model) + 2)
		_, err := configs.RemoveWorkflowID(&serverstate.TriggerConfigsRemoveWorkflowIDReq{AppSlug: "model", Index: idx})

		next, ok := serverstate.RemoveAt(model, idx)
		if !ok {
			require.NotNil(t, err)
			assert.True(t, errors.Is(err, serverstate.ErrIndexOutOfRange))
		} else {
			require.Nil(t, err)
			model = next
		}
	}

	resp, err := configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "model"})
	require.Nil(t, err)
	assert.Equal(t, model, resp.Config.WorkflowIDs)
}

func testConcurrentAppends(t *testing.T, f Factory) {
	s := f.New(t)
	configs := s.TriggerConfigs()

	const (
		writers = 8
		perW    = 10
	)

	var wg sync.WaitGroup
	errCh := make(chan error, writers*perW)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				_, err := configs.AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{
					AppSlug:    "busy",
					WorkflowID: fmt.Sprintf("w%d-%d", w, i),
				})
				if err != nil {
					errCh <- err
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	resp, err := configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "busy"})
	require.Nil(t, err)
	require.Len(t, resp.Config.WorkflowIDs, writers*perW)

	// Each writer's own appends must keep their relative order.
	last := make(map[int]int)
	for _, id := range resp.Config.WorkflowIDs {
		var w, i int
		_, scanErr := fmt.Sscanf(id, "w%d-%d", &w, &i)
		require.NoError(t, scanErr)
		if prev, ok := last[w]; ok {
			assert.Greater(t, i, prev)
		}
		last[w] = i
	}
}

func testList(t *testing.T, f Factory) {
	s := f.New(t)
	configs := s.TriggerConfigs()

	for _, slug := range []string{"b-app", "a-app"} {
		_, err := configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: slug})
		require.Nil(t, err)
	}
	_, err := configs.SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{AppSlug: "a-app", APIToken: helper.PointerOf("T")})
	require.Nil(t, err)

	resp, err := configs.List(&serverstate.TriggerConfigsListReq{})
	require.Nil(t, err)
	require.Len(t, resp.Configs, 2)
	assert.Equal(t, "a-app", resp.Configs[0].AppSlug)
	assert.True(t, resp.Configs[0].HasAPIToken)
	assert.Equal(t, "b-app", resp.Configs[1].AppSlug)
	assert.False(t, resp.Configs[1].HasAPIToken)
}

func testCopies(t *testing.T, f Factory) {
	s := f.New(t)
	configs := s.TriggerConfigs()

	appendResp, err := configs.AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "app", WorkflowID: "a"})
	require.Nil(t, err)
	appendResp.Config.WorkflowIDs[0] = "mutated"

	loadResp, err := configs.Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app"})
	require.Nil(t, err)
	assert.Equal(t, []string{"a"}, loadResp.Config.WorkflowIDs)
}

func testReopen(t *testing.T, f Factory) {
	s := f.New(t)
	configs := s.TriggerConfigs()

	_, err := configs.AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "app", WorkflowID: "primary"})
	require.Nil(t, err)
	_, err = configs.SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{AppSlug: "app", APIToken: helper.PointerOf("T")})
	require.Nil(t, err)
	_, err = configs.SetGitReference(&serverstate.TriggerConfigsSetGitReferenceReq{AppSlug: "app", GitReference: state.Branch("main")})
	require.Nil(t, err)

	reopened := f.Reopen(t, s)

	resp, err := reopened.TriggerConfigs().Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app"})
	require.Nil(t, err)
	assert.Equal(t, []string{"primary"}, resp.Config.WorkflowIDs)
	require.NotNil(t, resp.Config.APIToken)
	assert.Equal(t, "T", *resp.Config.APIToken)
	assert.Equal(t, state.Branch("main"), resp.Config.GitReference)
}
