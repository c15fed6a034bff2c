package buildlist

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

const abortReason = "aborted from build-trigger"

// Subscriber is the side of the bus used to follow trigger outcomes.
type Subscriber interface {
	Subscribe(ctx context.Context, topic events.Type, appSlug string) (<-chan *events.Event, error)
}

type Config struct {
	Logger     *zap.Logger
	Client     *api.Client
	Publisher  events.Publisher
	Subscriber Subscriber
}

// List is the latest known page of builds of one app slug.
type List struct {
	appSlug    string
	logger     *zap.Logger
	client     *api.Client
	publisher  events.Publisher
	subscriber Subscriber

	lock   sync.RWMutex
	builds []*api.Build
}

func New(appSlug string, cfg *Config) *List {
	return &List{
		appSlug:    appSlug,
		logger:     cfg.Logger.Named(logger.ComponentNameBuildList).With(zap.String("app_slug", appSlug)),
		client:     cfg.Client,
		publisher:  cfg.Publisher,
		subscriber: cfg.Subscriber,
	}
}

// Builds returns the builds fetched by the last successful refresh.
func (l *List) Builds() []*api.Build {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return slices.Clone(l.builds)
}

func (l *List) Refresh(ctx context.Context) ([]*api.Build, error) {

	resp, _, err := l.client.Builds().List(ctx, &api.BuildListReq{AppSlug: l.appSlug})
	if err != nil {
		l.logger.Error("failed to list builds", zap.Error(err))
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}

	l.lock.Lock()
	l.builds = resp.Builds
	l.lock.Unlock()

	l.logger.Debug("refreshed build list", zap.Int("builds", len(resp.Builds)))

	return slices.Clone(resp.Builds), nil
}

// Abort aborts the build at index of the last refreshed list. The result is
// reported as an alert; a message supplied by the CI service takes precedence
// over the generic text.
func (l *List) Abort(ctx context.Context, index int) error {

	l.lock.RLock()
	if index < 0 || index >= len(l.builds) {
		l.lock.RUnlock()
		return serverstate.ErrIndexOutOfRange
	}
	build := l.builds[index]
	l.lock.RUnlock()

	resp, _, err := l.client.Builds().Abort(ctx, &api.BuildAbortReq{
		AppSlug:     l.appSlug,
		BuildSlug:   build.Slug,
		AbortReason: abortReason,
	})
	if err != nil {
		l.logger.Error("failed to abort build",
			zap.String("build_slug", build.Slug),
			zap.Error(err))
		l.alert(fmt.Sprintf("Abort failed: %s", err), true)
		return fmt.Errorf("failed to abort build: %w", err)
	}

	if resp.ErrorMsg != nil {
		l.alert(*resp.ErrorMsg, true)
		return nil
	}

	l.logger.Info("aborted build",
		zap.String("build_slug", build.Slug),
		zap.Int("build_number", build.BuildNumber))

	if err := l.publisher.Publish(events.NewBuildAborted(l.appSlug, build.BuildNumber)); err != nil {
		l.logger.Error("failed to publish build aborted event", zap.Error(err))
	}
	l.alert(fmt.Sprintf("Aborted: #%d", build.BuildNumber), false)

	if _, err := l.Refresh(ctx); err != nil {
		return err
	}
	return nil
}

// Watch refreshes the list every time a build of the app slug is triggered,
// until ctx is done.
func (l *List) Watch(ctx context.Context) error {

	triggered, err := l.subscriber.Subscribe(ctx, events.TypeBuildTriggered, l.appSlug)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-triggered:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				// The bus closed a subscription that fell behind.
				l.logger.Warn("build triggered subscription closed, resubscribing")
				if triggered, err = l.subscriber.Subscribe(ctx, events.TypeBuildTriggered, l.appSlug); err != nil {
					return err
				}
				_, _ = l.Refresh(ctx)
				continue
			}
			// Failures are logged by Refresh and the next trigger retries.
			_, _ = l.Refresh(ctx)
		}
	}
}

func (l *List) alert(msg string, failure bool) {
	if err := l.publisher.Publish(events.NewAlert(l.appSlug, msg, failure)); err != nil {
		l.logger.Error("failed to publish alert", zap.Error(err))
	}
}
