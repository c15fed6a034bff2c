package coordinator

import "sync"

// Registry hands out one coordinator per app slug, so every caller observes
// the same in-flight guard and workflow selection.
type Registry struct {
	cfg *Config

	lock         sync.Mutex
	coordinators map[string]*Coordinator
}

func NewRegistry(cfg *Config) *Registry {
	return &Registry{
		cfg:          cfg,
		coordinators: make(map[string]*Coordinator),
	}
}

func (r *Registry) Get(appSlug string) *Coordinator {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.coordinators[appSlug]
	if !ok {
		c = New(appSlug, r.cfg)
		r.coordinators[appSlug] = c
	}
	return c
}

// Wait blocks until no coordinator has a request in flight.
func (r *Registry) Wait() {
	r.lock.Lock()
	coordinators := make([]*Coordinator, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		coordinators = append(coordinators, c)
	}
	r.lock.Unlock()

	for _, c := range coordinators {
		c.Wait()
	}
}
