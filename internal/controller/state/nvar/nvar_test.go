package nvar

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/nomad/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/statetest"
)

// fakeVariables emulates the check-and-set semantics of the Nomad Variables
// API in memory.
type fakeVariables struct {
	mu        sync.Mutex
	vars      map[string]*api.Variable
	index     uint64
	conflicts int
	failReads error
}

func newFakeVariables() *fakeVariables {
	return &fakeVariables{vars: make(map[string]*api.Variable)}
}

func (f *fakeVariables) Read(path string, _ *api.QueryOptions) (*api.Variable, *api.QueryMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failReads != nil {
		return nil, nil, f.failReads
	}

	v, ok := f.vars[path]
	if !ok {
		return nil, nil, api.ErrVariablePathNotFound
	}
	c := *v
	return &c, &api.QueryMeta{}, nil
}

func (f *fakeVariables) CheckedUpdate(v *api.Variable, _ *api.WriteOptions) (*api.Variable, *api.WriteMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, ok := f.vars[v.Path]

	var currentIndex uint64
	if ok {
		currentIndex = current.ModifyIndex
	}

	if f.conflicts > 0 {
		f.conflicts--
		// Simulate another agent having written in between.
		f.index++
		if ok {
			current.ModifyIndex = f.index
		}
		return nil, nil, api.ErrCASConflict{CheckIndex: v.ModifyIndex, Conflict: current}
	}

	if v.ModifyIndex != currentIndex {
		return nil, nil, api.ErrCASConflict{CheckIndex: v.ModifyIndex, Conflict: current}
	}

	f.index++
	stored := *v
	stored.ModifyIndex = f.index
	f.vars[v.Path] = &stored

	return &stored, &api.WriteMeta{}, nil
}

func (f *fakeVariables) PrefixList(prefix string, _ *api.QueryOptions) ([]*api.VariableMetadata, *api.QueryMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*api.VariableMetadata
	for path, v := range f.vars {
		if strings.HasPrefix(path, prefix) {
			out = append(out, &api.VariableMetadata{Path: path, ModifyIndex: v.ModifyIndex})
		}
	}
	return out, &api.QueryMeta{}, nil
}

func TestState(t *testing.T) {
	statetest.Run(t, statetest.Factory{
		New: func(t *testing.T) serverstate.State {
			return newState(zap.NewNop(), newFakeVariables())
		},
		Reopen: func(t *testing.T, old serverstate.State) serverstate.State {
			return newState(zap.NewNop(), old.(*State).vars)
		},
	})
}

func TestState_RetriesOnConflict(t *testing.T) {
	vars := newFakeVariables()
	s := newState(zap.NewNop(), vars)

	_, err := s.TriggerConfigs().AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "app", WorkflowID: "a"})
	require.Nil(t, err)

	vars.conflicts = 3

	resp, err := s.TriggerConfigs().AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "app", WorkflowID: "b"})
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "b"}, resp.Config.WorkflowIDs)
}

func TestState_GivesUpAfterRepeatedConflicts(t *testing.T) {
	vars := newFakeVariables()
	vars.conflicts = casRetries + 1
	s := newState(zap.NewNop(), vars)

	_, err := s.TriggerConfigs().AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{AppSlug: "app", WorkflowID: "a"})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, serverstate.ErrStoreUnavailable))
}

func TestState_ReadFailureIsStoreUnavailable(t *testing.T) {
	vars := newFakeVariables()
	vars.failReads = errors.New("connection refused")
	s := newState(zap.NewNop(), vars)

	_, err := s.TriggerConfigs().Load(&serverstate.TriggerConfigsLoadReq{AppSlug: "app"})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, serverstate.ErrStoreUnavailable))
	assert.Equal(t, 503, err.StatusCode())
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, isNotFoundError(nil))
	assert.True(t, isNotFoundError(api.ErrVariablePathNotFound))
	assert.True(t, isNotFoundError(errors.New("Unexpected response code: 404")))
	assert.False(t, isNotFoundError(errors.New("permission denied")))
}
