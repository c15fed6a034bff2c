package buildlist

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry hands out one list per app slug. Each list follows the trigger
// events of its slug until the registry context is done.
type Registry struct {
	ctx context.Context
	cfg *Config

	lock  sync.Mutex
	lists map[string]*List
	wg    sync.WaitGroup
}

func NewRegistry(ctx context.Context, cfg *Config) *Registry {
	return &Registry{
		ctx:   ctx,
		cfg:   cfg,
		lists: make(map[string]*List),
	}
}

func (r *Registry) Get(appSlug string) *List {
	r.lock.Lock()
	defer r.lock.Unlock()

	l, ok := r.lists[appSlug]
	if ok {
		return l
	}

	l = New(appSlug, r.cfg)
	r.lists[appSlug] = l

	if r.cfg.Subscriber != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := l.Watch(r.ctx); err != nil {
				l.logger.Error("failed to watch trigger events", zap.Error(err))
			}
		}()
	}

	return l
}

// Wait blocks until every watcher has returned.
func (r *Registry) Wait() { r.wg.Wait() }
