package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

const (
	alertConfigurationError = "ERROR: Could not build request."
	alertServerRejected     = "Fail"
	alertSuccessPrefix      = "Success\n"
)

var (
	// ErrConfiguration is returned when the stored config lacks an API token
	// or no workflow has been selected. No request is sent.
	ErrConfiguration = errors.New("could not build request")

	// ErrAlreadyInProgress is returned when a trigger is requested before the
	// previous attempt of the same coordinator has published its outcome.
	ErrAlreadyInProgress = errors.New("build trigger already in progress")

	// ErrServerRejected is the outcome of a request answered with anything
	// other than 201 Created.
	ErrServerRejected = errors.New("build trigger rejected by the CI service")
)

// TransportError is the outcome of a request that never got an HTTP
// response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Phase is the position of a coordinator in its trigger lifecycle. Only an
// idle coordinator accepts a trigger.
type Phase int

const (
	// PhaseIdle accepts the next trigger.
	PhaseIdle Phase = iota

	// PhaseSubmitting has a request in flight.
	PhaseSubmitting

	// PhaseSucceeded and PhaseFailed last while the outcome is published.
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds the dependencies shared by every coordinator of a registry.
type Config struct {
	Logger    *zap.Logger
	State     serverstate.State
	Client    *api.Client
	Publisher events.Publisher
}

// Coordinator submits build triggers for one app slug, allowing a single
// request in flight at a time.
type Coordinator struct {
	appSlug   string
	logger    *zap.Logger
	state     serverstate.State
	client    *api.Client
	publisher events.Publisher

	lock       sync.Mutex
	phase      Phase
	workflowID *string
	alert      string

	inFlight sync.WaitGroup
}

// New returns an idle coordinator for appSlug with no workflow selected.
func New(appSlug string, cfg *Config) *Coordinator {
	return &Coordinator{
		appSlug:   appSlug,
		logger:    cfg.Logger.Named(logger.ComponentNameCoordinator).With(zap.String("app_slug", appSlug)),
		state:     cfg.State,
		client:    cfg.Client,
		publisher: cfg.Publisher,
	}
}

func (c *Coordinator) AppSlug() string { return c.appSlug }

// SelectWorkflow sets the workflow used by the next trigger. The selection
// lives only as long as the coordinator.
func (c *Coordinator) SelectWorkflow(id string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.workflowID = &id
}

func (c *Coordinator) SelectedWorkflow() (string, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.workflowID == nil {
		return "", false
	}
	return *c.workflowID, true
}

func (c *Coordinator) State() Phase {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.phase
}

// AlertMessage returns the latest alert published by this coordinator, or the
// empty string when there has been none.
func (c *Coordinator) AlertMessage() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.alert
}

// TriggerBuild validates the stored config and starts submitting the build
// request in the background. The returned attempt completes once its outcome
// has been published. The context only bounds the config load; the request
// itself is bounded by the client trigger timeout.
func (c *Coordinator) TriggerBuild(ctx context.Context) (*Attempt, error) {

	c.lock.Lock()
	if c.phase != PhaseIdle {
		c.lock.Unlock()
		return nil, ErrAlreadyInProgress
	}
	c.phase = PhaseSubmitting
	c.lock.Unlock()

	req, err := c.buildRequest(ctx)
	if err != nil {
		c.setPhase(PhaseIdle)
		return nil, err
	}

	attempt := newAttempt()

	c.logger.Info("submitting build trigger",
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("workflow_id", req.BuildParams["workflow_id"]))

	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Done()
		c.submit(context.WithoutCancel(ctx), attempt, req)
	}()

	return attempt, nil
}

func (c *Coordinator) buildRequest(ctx context.Context) (*api.BuildStartReq, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loadResp, stateErr := c.state.TriggerConfigs().Load(&serverstate.TriggerConfigsLoadReq{AppSlug: c.appSlug})
	if stateErr != nil {
		c.logger.Error("failed to load trigger config", zap.Error(stateErr))
		c.publishAlert(stateErr.Error(), true)
		return nil, fmt.Errorf("failed to load trigger config: %w", stateErr)
	}

	var missing []error

	if !loadResp.Config.HasAPIToken() {
		missing = append(missing, errors.New("api token is not set"))
	}

	workflowID, ok := c.SelectedWorkflow()
	if !ok {
		missing = append(missing, errors.New("workflow is not selected"))
	}

	if len(missing) > 0 {
		err := fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(missing...))
		c.logger.Warn("build trigger not configured", zap.Error(err))
		c.publishAlert(alertConfigurationError, true)
		return nil, err
	}

	return &api.BuildStartReq{
		AppSlug:  c.appSlug,
		HookInfo: api.HookInfo{APIToken: *loadResp.Config.APIToken},
		BuildParams: api.MergeParams(
			loadResp.Config.GitReference.JSON(),
			map[string]string{"workflow_id": workflowID},
		),
	}, nil
}

func (c *Coordinator) submit(ctx context.Context, attempt *Attempt, req *api.BuildStartReq) {

	resp, _, err := c.client.Builds().Start(ctx, req)

	var outcome Outcome

	switch {
	case err == nil:
		outcome.Triggered = &Triggered{Body: string(resp.Raw)}
	default:
		var respErr *api.ResponseError
		if errors.As(err, &respErr) {
			outcome.Err = fmt.Errorf("%w: %w", ErrServerRejected, respErr)
		} else {
			outcome.Err = &TransportError{Err: err}
		}
	}

	c.complete(attempt, &outcome)
}

// complete publishes the outcome of an attempt and returns the coordinator to
// idle. The attempt owns the phase from TriggerBuild until this returns, so no
// other attempt can be started in between.
func (c *Coordinator) complete(attempt *Attempt, outcome *Outcome) {

	l := c.logger.With(zap.String("attempt_id", attempt.ID.String()))

	if outcome.Triggered != nil {
		c.setPhase(PhaseSucceeded)
		l.Info("build triggered")

		if err := c.publisher.Publish(events.NewBuildTriggered(c.appSlug, attempt.ID, outcome.Triggered.Body)); err != nil {
			l.Error("failed to publish build triggered event", zap.Error(err))
		}
		c.publishAlert(alertSuccessPrefix+outcome.Triggered.Body, false)
	} else {
		c.setPhase(PhaseFailed)
		l.Error("build trigger failed", zap.Error(outcome.Err))

		var transportErr *TransportError
		if errors.As(outcome.Err, &transportErr) {
			c.publishAlert(transportErr.Error(), true)
		} else {
			c.publishAlert(alertServerRejected, true)
		}
	}

	c.setPhase(PhaseIdle)
	attempt.finish(outcome)
}

func (c *Coordinator) publishAlert(msg string, failure bool) {
	c.lock.Lock()
	c.alert = msg
	c.lock.Unlock()

	if err := c.publisher.Publish(events.NewAlert(c.appSlug, msg, failure)); err != nil {
		c.logger.Error("failed to publish alert", zap.Error(err))
	}
}

func (c *Coordinator) setPhase(p Phase) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.phase = p
}

// Wait blocks until every submitted attempt has published its outcome.
func (c *Coordinator) Wait() { c.inFlight.Wait() }
