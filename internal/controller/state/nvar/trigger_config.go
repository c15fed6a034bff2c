package nvar

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

// triggerConfigRecord mirrors the persisted schema: the git reference is kept
// as a discriminator and value pair.
type triggerConfigRecord struct {
	AppSlug        string   `json:"app_slug"`
	WorkflowIDs    []string `json:"workflow_ids"`
	APIToken       *string  `json:"api_token"`
	GitObjectType  string   `json:"git_object_type"`
	GitObjectValue string   `json:"git_object_value"`
}

func recordFromConfig(cfg *state.TriggerConfig) *triggerConfigRecord {
	objectType, objectValue := cfg.GitReference.Encode()
	return &triggerConfigRecord{
		AppSlug:        cfg.AppSlug,
		WorkflowIDs:    cfg.WorkflowIDs,
		APIToken:       cfg.APIToken,
		GitObjectType:  objectType,
		GitObjectValue: objectValue,
	}
}

func (r *triggerConfigRecord) config() (*state.TriggerConfig, error) {
	ref, err := state.DecodeGitReference(r.GitObjectType, r.GitObjectValue)
	if err != nil {
		return nil, err
	}

	cfg := &state.TriggerConfig{
		AppSlug:      r.AppSlug,
		WorkflowIDs:  r.WorkflowIDs,
		APIToken:     r.APIToken,
		GitReference: ref,
	}
	if cfg.WorkflowIDs == nil {
		cfg.WorkflowIDs = []string{}
	}
	return cfg, nil
}

func (s *State) TriggerConfigs() serverstate.TriggerConfigs {
	return &TriggerConfigs{s: s}
}

type TriggerConfigs struct {
	s *State
}

func (t *TriggerConfigs) Load(req *serverstate.TriggerConfigsLoadReq) (*serverstate.TriggerConfigsLoadResp, *serverstate.ErrorResp) {
	cfg, errResp := t.update(req.AppSlug, nil)
	if errResp != nil {
		return nil, errResp
	}
	return &serverstate.TriggerConfigsLoadResp{Config: cfg}, nil
}

func (t *TriggerConfigs) List(_ *serverstate.TriggerConfigsListReq) (*serverstate.TriggerConfigsListResp, *serverstate.ErrorResp) {

	resp := serverstate.TriggerConfigsListResp{}

	vars, err := t.s.listVariablesByPrefix(triggerConfigsPathPrefix + "/")
	if err != nil && !isNotFoundError(err) {
		t.s.logger.Error("failed to list trigger configs from Nomad Variables", zap.Error(err))
		return nil, serverstate.NewStoreUnavailableResp(fmt.Errorf("failed to list trigger configs: %w", err))
	}

	for _, varMeta := range vars {
		cfg, _, err := t.read(varMeta.Path)
		if err != nil {
			t.s.logger.Warn("failed to read trigger config", zap.String("path", varMeta.Path), zap.Error(err))
			continue
		}
		if cfg == nil {
			continue
		}
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

// update reads the record (creating the default when absent), applies fn and
// writes it back with check-and-set, retrying when another writer won the
// race. A nil fn only ensures the record exists.
func (t *TriggerConfigs) update(appSlug string, fn func(*state.TriggerConfig) *serverstate.ErrorResp) (*state.TriggerConfig, *serverstate.ErrorResp) {
	unlock := t.s.slugLocks.Lock(appSlug)
	defer unlock()

	path := triggerConfigVarPath(appSlug)

	for attempt := 0; attempt < casRetries; attempt++ {

		cfg, modifyIndex, err := t.read(path)
		if err != nil {
			t.s.logger.Error("failed to read trigger config from Nomad Variables", zap.Error(err))
			return nil, serverstate.NewStoreUnavailableResp(fmt.Errorf("failed to read trigger config: %w", err))
		}

		exists := cfg != nil
		if !exists {
			cfg = state.NewTriggerConfig(appSlug)
		}

		if fn == nil && exists {
			return cfg, nil
		}

		if fn != nil {
			if errResp := fn(cfg); errResp != nil {
				return nil, errResp
			}
		}

		v, err := encodeToVariable(path, modifyIndex, recordFromConfig(cfg))
		if err != nil {
			t.s.logger.Error("failed to encode trigger config", zap.Error(err))
			return nil, serverstate.NewStoreUnavailableResp(fmt.Errorf("failed to encode trigger config: %w", err))
		}

		conflict, err := t.s.checkedPutVariable(v)
		if err != nil {
			t.s.logger.Error("failed to store trigger config in Nomad Variables", zap.Error(err))
			return nil, serverstate.NewStoreUnavailableResp(fmt.Errorf("failed to store trigger config: %w", err))
		}
		if conflict {
			t.s.logger.Debug("trigger config write conflicted, retrying",
				zap.String("app_slug", appSlug),
				zap.Int("attempt", attempt+1))
			continue
		}

		t.s.logger.Debug("trigger config stored", zap.String("app_slug", appSlug))
		return cfg, nil
	}

	return nil, serverstate.NewStoreUnavailableResp(
		fmt.Errorf("failed to store trigger config: gave up after %d conflicting writes", casRetries))
}

// read returns the decoded record and its modify index, or a nil record when
// the variable does not exist.
func (t *TriggerConfigs) read(path string) (*state.TriggerConfig, uint64, error) {
	v, err := t.s.getVariable(path)
	if err != nil {
		return nil, 0, err
	}
	if v == nil {
		return nil, 0, nil
	}

	var record triggerConfigRecord
	if err := decodeFromVariable(v, &record); err != nil {
		return nil, 0, err
	}

	cfg, err := record.config()
	if err != nil {
		return nil, 0, err
	}
	return cfg, v.ModifyIndex, nil
}
