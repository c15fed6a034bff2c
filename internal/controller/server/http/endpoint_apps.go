package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	sharedstate "github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

type appsEndpoint struct {
	state state.State
}

// triggerConfigRoutes is mounted below an app slug.
func (a appsEndpoint) triggerConfigRoutes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", a.get)
	router.Post("/workflows", a.appendWorkflow)
	router.Delete("/workflows/{index}", a.removeWorkflow)
	router.Put("/api-token", a.setAPIToken)
	router.Put("/git-reference", a.setGitReference)

	return router
}

// TriggerConfig is the API view of a stored record. The token itself is never
// returned.
type TriggerConfig struct {
	AppSlug      string                   `json:"app_slug"`
	WorkflowIDs  []string                 `json:"workflow_ids"`
	HasAPIToken  bool                     `json:"has_api_token"`
	GitReference sharedstate.GitReference `json:"git_reference"`
}

func newTriggerConfig(cfg *sharedstate.TriggerConfig) *TriggerConfig {
	return &TriggerConfig{
		AppSlug:      cfg.AppSlug,
		WorkflowIDs:  cfg.WorkflowIDs,
		HasAPIToken:  cfg.HasAPIToken(),
		GitReference: cfg.GitReference,
	}
}

type AppsListResp struct {
	Apps                 []*sharedstate.TriggerConfigStub `json:"apps"`
	internalResponseMeta `json:"-"`
}

func (a appsEndpoint) list(w http.ResponseWriter, r *http.Request) {
	stateResp, err := a.state.TriggerConfigs().List(&state.TriggerConfigsListReq{})
	if err != nil {
		httpWriteResponseError(w, err)
		return
	}

	resp := AppsListResp{
		Apps:                 stateResp.Configs,
		internalResponseMeta: newInternalResponseMeta(http.StatusOK),
	}
	httpWriteResponse(w, &resp)
}

type TriggerConfigResp struct {
	Config               *TriggerConfig `json:"trigger_config"`
	internalResponseMeta `json:"-"`
}

func newTriggerConfigResp(cfg *sharedstate.TriggerConfig) *TriggerConfigResp {
	return &TriggerConfigResp{
		Config:               newTriggerConfig(cfg),
		internalResponseMeta: newInternalResponseMeta(http.StatusOK),
	}
}

func (a appsEndpoint) get(w http.ResponseWriter, r *http.Request) {
	stateResp, err := a.state.TriggerConfigs().Load(&state.TriggerConfigsLoadReq{AppSlug: getAppSlug(r)})
	if err != nil {
		httpWriteResponseError(w, err)
		return
	}
	httpWriteResponse(w, newTriggerConfigResp(stateResp.Config))
}

type WorkflowAppendReq struct {
	WorkflowID string `json:"workflow_id"`
}

func (a appsEndpoint) appendWorkflow(w http.ResponseWriter, r *http.Request) {

	var req WorkflowAppendReq

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpWriteResponseError(w, NewResponseError(fmt.Errorf("failed to decode object: %w", err), http.StatusBadRequest))
		return
	}
	if req.WorkflowID == "" {
		httpWriteResponseError(w, NewResponseError(errors.New("workflow_id cannot be empty"), http.StatusBadRequest))
		return
	}

	stateResp, err := a.state.TriggerConfigs().AppendWorkflowID(&state.TriggerConfigsAppendWorkflowIDReq{
		AppSlug:    getAppSlug(r),
		WorkflowID: req.WorkflowID,
	})
	if err != nil {
		httpWriteResponseError(w, err)
		return
	}
	httpWriteResponse(w, newTriggerConfigResp(stateResp.Config))
}

func (a appsEndpoint) removeWorkflow(w http.ResponseWriter, r *http.Request) {

	index, err := getIndexParam(r)
	if err != nil {
		httpWriteResponseError(w, err)
		return
	}

	stateResp, stateErr := a.state.TriggerConfigs().RemoveWorkflowID(&state.TriggerConfigsRemoveWorkflowIDReq{
		AppSlug: getAppSlug(r),
		Index:   index,
	})
	if stateErr != nil {
		httpWriteResponseError(w, stateErr)
		return
	}
	httpWriteResponse(w, newTriggerConfigResp(stateResp.Config))
}

type APITokenSetReq struct {
	APIToken *string `json:"api_token"`
}

func (a appsEndpoint) setAPIToken(w http.ResponseWriter, r *http.Request) {

	var req APITokenSetReq

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpWriteResponseError(w, NewResponseError(fmt.Errorf("failed to decode object: %w", err), http.StatusBadRequest))
		return
	}

	stateResp, err := a.state.TriggerConfigs().SetAPIToken(&state.TriggerConfigsSetAPITokenReq{
		AppSlug:  getAppSlug(r),
		APIToken: req.APIToken,
	})
	if err != nil {
		httpWriteResponseError(w, err)
		return
	}
	httpWriteResponse(w, newTriggerConfigResp(stateResp.Config))
}

func (a appsEndpoint) setGitReference(w http.ResponseWriter, r *http.Request) {

	var ref sharedstate.GitReference

	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		httpWriteResponseError(w, NewResponseError(fmt.Errorf("failed to decode object: %w", err), http.StatusBadRequest))
		return
	}

	stateResp, err := a.state.TriggerConfigs().SetGitReference(&state.TriggerConfigsSetGitReferenceReq{
		AppSlug:      getAppSlug(r),
		GitReference: ref,
	})
	if err != nil {
		httpWriteResponseError(w, err)
		return
	}
	httpWriteResponse(w, newTriggerConfigResp(stateResp.Config))
}
