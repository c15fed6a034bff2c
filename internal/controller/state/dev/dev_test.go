package dev

import (
	"testing"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state/statetest"
)

func TestState(t *testing.T) {
	statetest.Run(t, statetest.Factory{
		New: func(t *testing.T) serverstate.State { return New() },
	})
}
