package dev

import (
	"sync"

	"github.com/hashicorp-forge/build-trigger/internal/helper"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

// State is an in-memory backend. Nothing survives a restart, which makes it
// suitable for tests and dry runs only.
type State struct {
	triggerConfigs     map[string]*state.TriggerConfig
	triggerConfigsLock sync.RWMutex

	slugLocks *helper.KeyedMutex
}

func New() serverstate.State {
	return &State{
		triggerConfigs: make(map[string]*state.TriggerConfig),
		slugLocks:      helper.NewKeyedMutex(),
	}
}

func (s *State) Name() string { return "dev" }

func (s *State) Close() error { return nil }
