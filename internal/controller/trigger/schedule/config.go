package schedule

import (
	"errors"
	"fmt"

	"github.com/hashicorp/cronexpr"
)

// Config is one schedule block of the agent config.
type Config struct {
	Name       string   `hcl:"name,label" json:"name"`
	AppSlug    string   `hcl:"app_slug" json:"app_slug"`
	WorkflowID string   `hcl:"workflow_id,optional" json:"workflow_id,omitempty"`
	Crons      []string `hcl:"crons" json:"crons"`
}

func (c *Config) Validate() error {

	var errs []error

	if c.AppSlug == "" {
		errs = append(errs, fmt.Errorf("schedule %q: app_slug cannot be empty", c.Name))
	}
	if len(c.Crons) == 0 {
		errs = append(errs, fmt.Errorf("schedule %q: at least one cron expression is required", c.Name))
	}
	for _, cron := range c.Crons {
		if _, err := cronexpr.Parse(cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: failed to parse cron expression %q: %w", c.Name, cron, err))
		}
	}

	return errors.Join(errs...)
}
