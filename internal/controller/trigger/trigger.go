package trigger

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/coordinator"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger/git"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger/schedule"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

// Handler owns the automatic trigger sources and runs them through the
// per-app coordinators.
type Handler struct {
	logger   *zap.Logger
	state    serverstate.State
	registry *coordinator.Registry

	scheduleTrigger *schedule.Trigger
	gitTrigger      *git.Trigger
}

type Config struct {
	Logger    *zap.Logger
	State     serverstate.State
	Registry  *coordinator.Registry
	GitHub    *git.Config
	Schedules []*schedule.Config
}

func NewHandler(cfg *Config) (*Handler, error) {

	h := Handler{
		logger:   cfg.Logger.Named(logger.ComponentNameTrigger),
		state:    cfg.State,
		registry: cfg.Registry,
	}

	h.scheduleTrigger = schedule.NewTrigger(
		&schedule.TriggerConfig{
			Logger: h.logger,
			RunFn:  h.RunBuild,
		},
	)

	for _, s := range cfg.Schedules {
		if err := h.scheduleTrigger.Add(s); err != nil {
			return nil, fmt.Errorf("failed to add schedule: %w", err)
		}
	}

	h.gitTrigger = git.NewTrigger(
		&git.TriggerConfig{
			Logger: h.logger,
			Config: cfg.GitHub,
			RunFn:  h.RunBuild,
		},
	)

	return &h, nil
}

func (h *Handler) Start() {
	h.scheduleTrigger.Start()
}

func (h *Handler) Stop() {
	h.scheduleTrigger.Stop()
}

func (h *Handler) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request, appSlug string) {
	h.gitTrigger.HandleWebhook(w, r, appSlug)
}

// RunBuild triggers a build of the app. A non-nil ref is stored first. An
// empty workflowID keeps the coordinator's current selection, falling back to
// the most recently stored workflow id.
func (h *Handler) RunBuild(ctx context.Context, appSlug, workflowID string, ref *state.GitReference) (*coordinator.Attempt, error) {

	if ref != nil {
		_, stateErr := h.state.TriggerConfigs().SetGitReference(&serverstate.TriggerConfigsSetGitReferenceReq{
			AppSlug:      appSlug,
			GitReference: *ref,
		})
		if stateErr != nil {
			return nil, fmt.Errorf("failed to store git reference: %w", stateErr)
		}
	}

	c := h.registry.Get(appSlug)

	if workflowID == "" {
		if _, ok := c.SelectedWorkflow(); !ok {
			resp, stateErr := h.state.TriggerConfigs().Load(&serverstate.TriggerConfigsLoadReq{AppSlug: appSlug})
			if stateErr != nil {
				return nil, fmt.Errorf("failed to load trigger config: %w", stateErr)
			}
			workflowID, _ = resp.Config.LatestWorkflowID()
		}
	}

	if workflowID != "" {
		c.SelectWorkflow(workflowID)
	}

	return c.TriggerBuild(ctx)
}
