package state

import (
	"errors"
	"slices"
)

// TriggerConfig holds the parameters remembered between sessions for
// triggering builds of a single CI application.
type TriggerConfig struct {
	AppSlug      string       `json:"app_slug"`
	WorkflowIDs  []string     `json:"workflow_ids"`
	APIToken     *string      `json:"api_token,omitempty"`
	GitReference GitReference `json:"git_reference"`
}

// NewTriggerConfig returns the default record created on first access of an
// app slug.
func NewTriggerConfig(appSlug string) *TriggerConfig {
	return &TriggerConfig{
		AppSlug:      appSlug,
		WorkflowIDs:  []string{},
		GitReference: Branch(""),
	}
}

func (t *TriggerConfig) Validate() error {

	var errs []error

	if t.AppSlug == "" {
		errs = append(errs, errors.New("app slug cannot be empty"))
	}

	if !t.GitReference.Type.Valid() {
		errs = append(errs, errors.New("git reference type is invalid"))
	}

	return errors.Join(errs...)
}

// Copy returns a deep copy, so records handed out by a store cannot be used to
// mutate its contents.
func (t *TriggerConfig) Copy() *TriggerConfig {
	if t == nil {
		return nil
	}

	c := *t
	c.WorkflowIDs = slices.Clone(t.WorkflowIDs)
	if c.WorkflowIDs == nil {
		c.WorkflowIDs = []string{}
	}
	if t.APIToken != nil {
		token := *t.APIToken
		c.APIToken = &token
	}
	return &c
}

// HasAPIToken reports whether a non-nil token is stored.
func (t *TriggerConfig) HasAPIToken() bool { return t.APIToken != nil }

// LatestWorkflowID returns the most recently appended workflow id.
func (t *TriggerConfig) LatestWorkflowID() (string, bool) {
	if len(t.WorkflowIDs) == 0 {
		return "", false
	}
	return t.WorkflowIDs[len(t.WorkflowIDs)-1], true
}

func (t *TriggerConfig) Stub() *TriggerConfigStub {
	return &TriggerConfigStub{
		AppSlug:      t.AppSlug,
		Workflows:    len(t.WorkflowIDs),
		HasAPIToken:  t.HasAPIToken(),
		GitReference: t.GitReference,
	}
}

type TriggerConfigStub struct {
	AppSlug      string       `json:"app_slug"`
	Workflows    int          `json:"workflows"`
	HasAPIToken  bool         `json:"has_api_token"`
	GitReference GitReference `json:"git_reference"`
}
