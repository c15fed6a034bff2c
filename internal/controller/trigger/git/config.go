package git

import (
	"errors"
	"slices"
)

const eventPush = "push"

// Config is the github_webhook block of the agent config.
type Config struct {
	Secret string `hcl:"secret,optional" json:"-"`

	// WorkflowID is triggered on push. When empty, the most recently stored
	// workflow id of the app is used.
	WorkflowID string `hcl:"workflow_id,optional" json:"workflow_id,omitempty"`

	// Branches restricts which pushed branches trigger a build. Tags are
	// never filtered.
	Branches []string `hcl:"branches,optional" json:"branches,omitempty"`

	Events []string `hcl:"events,optional" json:"events,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Events: []string{eventPush},
	}
}

func (c *Config) Merge(other *Config) *Config {
	if c == nil {
		return other
	}

	result := *c

	if other == nil {
		return &result
	}
	if other.Secret != "" {
		result.Secret = other.Secret
	}
	if other.WorkflowID != "" {
		result.WorkflowID = other.WorkflowID
	}
	if len(other.Branches) > 0 {
		result.Branches = slices.Clone(other.Branches)
	}
	if len(other.Events) > 0 {
		result.Events = slices.Clone(other.Events)
	}

	return &result
}

func (c *Config) Validate() error {
	for _, e := range c.Events {
		if e != eventPush {
			return errors.New("github webhook only supports push events")
		}
	}
	return nil
}

func (c *Config) branchAllowed(branch string) bool {
	return len(c.Branches) == 0 || slices.Contains(c.Branches, branch)
}
