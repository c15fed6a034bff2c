package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/hashicorp-forge/build-trigger/internal/controller/buildlist"
	"github.com/hashicorp-forge/build-trigger/internal/controller/coordinator"
	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	"github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

type buildsEndpoint struct {
	trigger    *trigger.Handler
	buildLists *buildlist.Registry
	bus        *events.Bus
}

func (b buildsEndpoint) routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", b.create)
	router.Get("/", b.list)
	router.Post("/{index}/abort", b.abort)

	return router
}

type BuildTriggerReq struct {
	WorkflowID string `json:"workflow_id"`
}

type BuildTriggerResp struct {
	AttemptID            ulid.ULID `json:"attempt_id"`
	internalResponseMeta `json:"-"`
}

func (b buildsEndpoint) create(w http.ResponseWriter, r *http.Request) {

	var req BuildTriggerReq

	// An empty body keeps the current workflow selection.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpWriteResponseError(w, NewResponseError(fmt.Errorf("failed to decode object: %w", err), http.StatusBadRequest))
		return
	}

	attempt, err := b.trigger.RunBuild(r.Context(), getAppSlug(r), req.WorkflowID, nil)
	if err != nil {
		httpWriteResponseError(w, NewResponseError(err, triggerErrorStatusCode(err)))
		return
	}

	resp := BuildTriggerResp{
		AttemptID:            attempt.ID,
		internalResponseMeta: newInternalResponseMeta(http.StatusAccepted),
	}
	httpWriteResponse(w, &resp)
}

func triggerErrorStatusCode(err error) int {
	var errResp *state.ErrorResp

	switch {
	case errors.Is(err, coordinator.ErrAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.As(err, &errResp):
		return errResp.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}

type BuildListResp struct {
	Builds               []*api.Build `json:"builds"`
	internalResponseMeta `json:"-"`
}

func (b buildsEndpoint) list(w http.ResponseWriter, r *http.Request) {

	builds, err := b.buildLists.Get(getAppSlug(r)).Refresh(r.Context())
	if err != nil {
		httpWriteResponseError(w, NewResponseError(err, http.StatusBadGateway))
		return
	}

	resp := BuildListResp{
		Builds:               builds,
		internalResponseMeta: newInternalResponseMeta(http.StatusOK),
	}
	httpWriteResponse(w, &resp)
}

type BuildAbortResp struct {
	// Alert is the message reported for the abort, which is the CI service
	// error message when it refused.
	Alert                string `json:"alert"`
	internalResponseMeta `json:"-"`
}

func (b buildsEndpoint) abort(w http.ResponseWriter, r *http.Request) {

	index, err := getIndexParam(r)
	if err != nil {
		httpWriteResponseError(w, err)
		return
	}

	appSlug := getAppSlug(r)
	list := b.buildLists.Get(appSlug)

	// Indexes refer to the list as last returned to the caller; fetch it when
	// the agent has not seen it yet.
	if len(list.Builds()) == 0 {
		if _, err := list.Refresh(r.Context()); err != nil {
			httpWriteResponseError(w, NewResponseError(err, http.StatusBadGateway))
			return
		}
	}

	if err := list.Abort(r.Context(), index); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, state.ErrIndexOutOfRange) {
			code = http.StatusBadRequest
		}
		httpWriteResponseError(w, NewResponseError(err, code))
		return
	}

	resp := BuildAbortResp{
		Alert:                b.bus.AlertMessage(appSlug),
		internalResponseMeta: newInternalResponseMeta(http.StatusOK),
	}
	httpWriteResponse(w, &resp)
}
