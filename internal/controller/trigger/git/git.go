package git

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/go-github/v79/github"
	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/coordinator"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

const (
	refPrefixBranch = "refs/heads/"
	refPrefixTag    = "refs/tags/"
)

// RunFunc stores the git reference, selects the workflow and triggers a build
// of the app.
type RunFunc func(ctx context.Context, appSlug, workflowID string, ref *state.GitReference) (*coordinator.Attempt, error)

type Trigger struct {
	logger *zap.Logger
	cfg    *Config
	runFn  RunFunc
}

type TriggerConfig struct {
	Logger *zap.Logger
	Config *Config
	RunFn  RunFunc
}

func NewTrigger(cfg *TriggerConfig) *Trigger {
	c := cfg.Config
	if c == nil {
		c = DefaultConfig()
	}

	t := Trigger{
		logger: cfg.Logger.Named(logger.ComponentNameGitWebhook),
		cfg:    c,
		runFn:  cfg.RunFn,
	}

	if c.Secret == "" {
		t.logger.Warn("github webhook secret is not set, webhook requests will be rejected")
	}

	return &t
}

type webhookPayload struct {
	repo  string
	event string
	ref   state.GitReference
	sha   string
}

// HandleWebhook triggers a build of appSlug from a signed GitHub delivery.
// Every delivery is refused with 403 while no secret is configured.
func (h *Trigger) HandleWebhook(w http.ResponseWriter, r *http.Request, appSlug string) {

	if h.cfg.Secret == "" {
		h.logger.Warn("rejected webhook, secret is not set", zap.String("app_slug", appSlug))
		http.Error(w, "github webhook is not enabled", http.StatusForbidden)
		return
	}

	payload, err := h.handleGitHubWebhook(r)
	if err != nil {
		h.logger.Warn("failed to read webhook payload",
			zap.String("app_slug", appSlug),
			zap.Error(err))
		http.Error(w, "failed to read webhook payload", http.StatusBadRequest)
		return
	}

	if payload == nil || !slices.Contains(h.cfg.Events, payload.event) {
		h.logger.Debug("event type not configured, ignoring",
			zap.String("event", github.WebHookType(r)),
			zap.Strings("configured_events", h.cfg.Events))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("event type not configured, ignored"))
		return
	}

	if payload.ref.Type == state.GitObjectTypeBranch && !h.cfg.branchAllowed(payload.ref.Value) {
		h.logger.Debug("branch not configured, ignoring",
			zap.String("branch", payload.ref.Value),
			zap.Strings("configured_branches", h.cfg.Branches))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("branch not configured, ignored"))
		return
	}

	attempt, err := h.runFn(r.Context(), appSlug, h.cfg.WorkflowID, &payload.ref)
	if err != nil {
		h.logger.Error("failed to trigger build from webhook",
			zap.String("app_slug", appSlug),
			zap.String("repository", payload.repo),
			zap.String("git_ref", payload.ref.String()),
			zap.Error(err))
		http.Error(w, err.Error(), statusCode(err))
		return
	}

	h.logger.Info("triggered build from webhook",
		zap.String("app_slug", appSlug),
		zap.String("repository", payload.repo),
		zap.String("git_ref", payload.ref.String()),
		zap.String("git_sha", payload.sha),
		zap.String("attempt_id", attempt.ID.String()))

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(attempt.ID.String()))
}

// handleGitHubWebhook returns a nil payload for valid events that cannot
// trigger a build.
func (h *Trigger) handleGitHubWebhook(r *http.Request) (*webhookPayload, error) {

	h.logger.Debug("processing GitHub webhook",
		zap.String("content-type", r.Header.Get("Content-Type")),
		zap.String("event-type", r.Header.Get("X-GitHub-Event")))

	payload, err := github.ValidatePayload(r, []byte(h.cfg.Secret))
	if err != nil {
		return nil, err
	}

	webHookType := github.WebHookType(r)

	event, err := github.ParseWebHook(webHookType, payload)
	if err != nil {
		return nil, err
	}

	switch event := event.(type) {
	case *github.PushEvent:
		if event.GetDeleted() {
			return nil, nil
		}

		ref, err := gitReferenceFromRef(event.GetRef())
		if err != nil {
			return nil, err
		}

		return &webhookPayload{
			repo:  event.GetRepo().GetFullName(),
			event: webHookType,
			ref:   ref,
			sha:   event.GetAfter(),
		}, nil
	default:
		return nil, nil
	}
}

func gitReferenceFromRef(ref string) (state.GitReference, error) {
	switch {
	case strings.HasPrefix(ref, refPrefixBranch):
		return state.Branch(strings.TrimPrefix(ref, refPrefixBranch)), nil
	case strings.HasPrefix(ref, refPrefixTag):
		return state.Tag(strings.TrimPrefix(ref, refPrefixTag)), nil
	default:
		return state.GitReference{}, fmt.Errorf("unsupported git ref %q", ref)
	}
}

func statusCode(err error) int {
	var errResp *serverstate.ErrorResp

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
