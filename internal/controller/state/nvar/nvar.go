package nvar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/nomad/api"
	"go.uber.org/zap"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/helper"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
)

const (
	// Nomad Variables path prefixes for different resource types
	variablePathPrefix       = "build-trigger"
	triggerConfigsPathPrefix = variablePathPrefix + "/trigger-configs"

	// casRetries bounds how often a write is retried after losing a
	// check-and-set race to another agent.
	casRetries = 10
)

// variables is the subset of the Nomad Variables API the backend uses.
type variables interface {
	Read(path string, qo *api.QueryOptions) (*api.Variable, *api.QueryMeta, error)
	CheckedUpdate(v *api.Variable, qo *api.WriteOptions) (*api.Variable, *api.WriteMeta, error)
	PrefixList(prefix string, qo *api.QueryOptions) ([]*api.VariableMetadata, *api.QueryMeta, error)
}

// State implements the serverstate.State interface using Nomad Variables
// for persistent storage. This allows the trigger configs to be shared across
// multiple agents and survive restarts. Writes use check-and-set on the
// variable's modify index, so concurrent agents cannot lose each other's
// updates.
type State struct {
	vars   variables
	logger *zap.Logger

	slugLocks *helper.KeyedMutex
}

// New creates a new Nomad Variables-backed state implementation
func New(zLogger *zap.Logger, client *api.Client) (serverstate.State, error) {
	if client == nil {
		return nil, errors.New("nomad client is required")
	}
	return newState(zLogger, client.Variables()), nil
}

func newState(zLogger *zap.Logger, vars variables) *State {
	return &State{
		vars:      vars,
		logger:    zLogger.Named(logger.ComponentNameState).With(zap.String("backend", "nomad-vars")),
		slugLocks: helper.NewKeyedMutex(),
	}
}

func (s *State) Name() string { return "nomad-vars" }

func (s *State) Close() error { return nil }

// Helper functions for variable path generation
func triggerConfigVarPath(appSlug string) string {
	return fmt.Sprintf("%s/%s", triggerConfigsPathPrefix, appSlug)
}

// Helper functions for serialization
func encodeToVariable(path string, modifyIndex uint64, data any) (*api.Variable, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}

	return &api.Variable{
		Path:        path,
		ModifyIndex: modifyIndex,
		Items: map[string]string{
			"data": string(jsonData),
		},
	}, nil
}

func decodeFromVariable(v *api.Variable, target any) error {
	data, ok := v.Items["data"]
	if !ok {
		return fmt.Errorf("variable missing 'data' field")
	}

	if err := json.Unmarshal([]byte(data), target); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}

// getVariable retrieves a variable from Nomad. A missing variable is returned
// as nil without error.
func (s *State) getVariable(path string) (*api.Variable, error) {
	v, _, err := s.vars.Read(path, &api.QueryOptions{})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// checkedPutVariable stores a variable only if its modify index still matches
// the stored one. Lost races are reported by conflict being true.
func (s *State) checkedPutVariable(v *api.Variable) (conflict bool, err error) {
	_, _, err = s.vars.CheckedUpdate(v, &api.WriteOptions{})
	if err == nil {
		return false, nil
	}
	if isCASConflict(err) {
		return true, nil
	}
	return false, err
}

// listVariablesByPrefix lists all variables with a given prefix
func (s *State) listVariablesByPrefix(prefix string) ([]*api.VariableMetadata, error) {
	vars, _, err := s.vars.PrefixList(prefix, &api.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return vars, nil
}

// isNotFoundError checks if an error is a "not found" error from Nomad API
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, api.ErrVariablePathNotFound) {
		return true
	}
	errStr := err.Error()
	return errStr == "Unexpected response code: 404" || errStr == "variable not found"
}

func isCASConflict(err error) bool {
	var (
		conflict    api.ErrCASConflict
		conflictPtr *api.ErrCASConflict
	)
	if errors.As(err, &conflict) || errors.As(err, &conflictPtr) {
		return true
	}
	return strings.Contains(err.Error(), "cas conflict")
}
