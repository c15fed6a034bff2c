package dev

import (
	"slices"
	"strings"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

func (s *State) TriggerConfigs() serverstate.TriggerConfigs {
	return &TriggerConfigs{s: s}
}

type TriggerConfigs struct {
	s *State
}

func (t *TriggerConfigs) Load(req *serverstate.TriggerConfigsLoadReq) (*serverstate.TriggerConfigsLoadResp, *serverstate.ErrorResp) {
	t.s.triggerConfigsLock.Lock()
	defer t.s.triggerConfigsLock.Unlock()

	return &serverstate.TriggerConfigsLoadResp{Config: t.loadOrCreate(req.AppSlug).Copy()}, nil
}

func (t *TriggerConfigs) List(_ *serverstate.TriggerConfigsListReq) (*serverstate.TriggerConfigsListResp, *serverstate.ErrorResp) {
	t.s.triggerConfigsLock.RLock()
	defer t.s.triggerConfigsLock.RUnlock()

	resp := serverstate.TriggerConfigsListResp{}

	for _, cfg := range t.s.triggerConfigs {
		resp.Configs = append(resp.Configs, cfg.Stub())
	}

	slices.SortFunc(resp.Configs, func(a, b *state.TriggerConfigStub) int {
		return strings.Compare(a.AppSlug, b.AppSlug)
	})

	return &resp, nil
}

func (t *TriggerConfigs) AppendWorkflowID(req *serverstate.TriggerConfigsAppendWorkflowIDReq) (*serverstate.TriggerConfigsAppendWorkflowIDResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		cfg.WorkflowIDs = append(cfg.WorkflowIDs, req.WorkflowID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsAppendWorkflowIDResp{Config: cfg}, nil
}

func (t *TriggerConfigs) RemoveWorkflowID(req *serverstate.TriggerConfigsRemoveWorkflowIDReq) (*serverstate.TriggerConfigsRemoveWorkflowIDResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		ids, ok := serverstate.RemoveAt(cfg.WorkflowIDs, req.Index)
		if !ok {
			return serverstate.NewIndexOutOfRangeResp()
		}
		cfg.WorkflowIDs = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsRemoveWorkflowIDResp{Config: cfg}, nil
}

func (t *TriggerConfigs) SetAPIToken(req *serverstate.TriggerConfigsSetAPITokenReq) (*serverstate.TriggerConfigsSetAPITokenResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		cfg.APIToken = req.APIToken
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsSetAPITokenResp{Config: cfg}, nil
}

func (t *TriggerConfigs) SetGitReference(req *serverstate.TriggerConfigsSetGitReferenceReq) (*serverstate.TriggerConfigsSetGitReferenceResp, *serverstate.ErrorResp) {
	cfg, err := t.update(req.AppSlug, func(cfg *state.TriggerConfig) *serverstate.ErrorResp {
		cfg.GitReference = req.GitReference
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &serverstate.TriggerConfigsSetGitReferenceResp{Config: cfg}, nil
}

// update applies fn to a copy of the record and swaps it in only when fn
// succeeds, so a failed mutation leaves no trace.
func (t *TriggerConfigs) update(appSlug string, fn func(*state.TriggerConfig) *serverstate.ErrorResp) (*state.TriggerConfig, *serverstate.ErrorResp) {
	unlock := t.s.slugLocks.Lock(appSlug)
	defer unlock()

	t.s.triggerConfigsLock.Lock()
	defer t.s.triggerConfigsLock.Unlock()

	next := t.loadOrCreate(appSlug).Copy()
	if err := fn(next); err != nil {
		return nil, err
	}

	t.s.triggerConfigs[appSlug] = next
	return next.Copy(), nil
}

// loadOrCreate must be called with the write lock held.
func (t *TriggerConfigs) loadOrCreate(appSlug string) *state.TriggerConfig {
	cfg, ok := t.s.triggerConfigs[appSlug]
	if !ok {
		cfg = state.NewTriggerConfig(appSlug)
		t.s.triggerConfigs[appSlug] = cfg
	}
	return cfg
}
