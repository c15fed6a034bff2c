package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/server/http"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger/git"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger/schedule"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/hcl"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

type Config struct {
	Log           *logger.Config     `hcl:"log,block"`
	HTTP          *HTTPConfig        `hcl:"http,block"`
	State         *state.Config      `hcl:"state,block"`
	CI            *CIConfig          `hcl:"ci,block"`
	GitHubWebhook *git.Config        `hcl:"github_webhook,block"`
	Schedules     []*schedule.Config `hcl:"schedule,block"`
}

type HTTPConfig struct {
	Addr           string `hcl:"addr,optional"`
	AccessLogLevel string `hcl:"access_log_level,optional"`
}

// CIConfig points the agent at the CI service.
type CIConfig struct {
	Address        string `hcl:"address,optional"`
	APIAddress     string `hcl:"api_address,optional"`
	AccessToken    string `hcl:"access_token,optional"`
	TriggerTimeout string `hcl:"trigger_timeout,optional"`
}

func (c *CIConfig) APIConfig() (*api.Config, error) {
	cfg := api.DefaultConfig()

	if c == nil {
		return cfg, nil
	}
	if c.Address != "" {
		cfg.Address = c.Address
	}
	if c.APIAddress != "" {
		cfg.APIAddress = c.APIAddress
	}
	cfg.AccessToken = c.AccessToken

	if c.TriggerTimeout != "" {
		d, err := time.ParseDuration(c.TriggerTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trigger timeout: %w", err)
		}
		cfg.TriggerTimeout = d
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Log: logger.DefaultServerConfig(),
		HTTP: &HTTPConfig{
			Addr:           "http://localhost:8080",
			AccessLogLevel: zap.DebugLevel.String(),
		},
		State: state.DefaultConfig(),
		CI: &CIConfig{
			TriggerTimeout: api.DefaultTriggerTimeout.String(),
		},
		GitHubWebhook: git.DefaultConfig(),
	}
}

// LoadConfigFile decodes an HCL agent config file. Values can be read from the
// environment as env.NAME or from files with file(path).
func LoadConfigFile(path string) (*Config, error) {
	var cfg Config

	if err := hcl.ParseConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return &cfg, nil
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "The path to an HCL agent config file",
			Sources: cli.EnvVars("BUILD_TRIGGER_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "http-addr",
			Usage:   "The HTTP server address",
			Sources: cli.EnvVars("BUILD_TRIGGER_HTTP_ADDR"),
		},
		&cli.StringFlag{
			Name:    "http-access-log-level",
			Usage:   "The HTTP access log level (debug, info)",
			Sources: cli.EnvVars("BUILD_TRIGGER_HTTP_ACCESS_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "ci-access-token",
			Usage:   "The CI service personal access token used to list and abort builds",
			Sources: cli.EnvVars("BUILD_TRIGGER_CI_ACCESS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "github-webhook-secret",
			Usage:   "The secret used to validate GitHub webhook payloads",
			Sources: cli.EnvVars("BUILD_TRIGGER_GITHUB_WEBHOOK_SECRET"),
		},
	}
}

func ConfigFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Log: logger.ConfigFromCLI(cmd),
		HTTP: &HTTPConfig{
			Addr:           cmd.String("http-addr"),
			AccessLogLevel: cmd.String("http-access-log-level"),
		},
		State: state.ConfigFromCLI(cmd),
		CI: &CIConfig{
			AccessToken: cmd.String("ci-access-token"),
		},
		GitHubWebhook: &git.Config{
			Secret: cmd.String("github-webhook-secret"),
		},
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

	if other.HTTP != nil {
		httpCfg := HTTPConfig{}
		if result.HTTP != nil {
			httpCfg = *result.HTTP
		}
		if other.HTTP.Addr != "" {
			httpCfg.Addr = other.HTTP.Addr
		}
		if other.HTTP.AccessLogLevel != "" {
			httpCfg.AccessLogLevel = other.HTTP.AccessLogLevel
		}
		result.HTTP = &httpCfg
	}

	if other.CI != nil {
		ci := CIConfig{}
		if result.CI != nil {
			ci = *result.CI
		}
		if other.CI.Address != "" {
			ci.Address = other.CI.Address
		}
		if other.CI.APIAddress != "" {
			ci.APIAddress = other.CI.APIAddress
		}
		if other.CI.AccessToken != "" {
			ci.AccessToken = other.CI.AccessToken
		}
		if other.CI.TriggerTimeout != "" {
			ci.TriggerTimeout = other.CI.TriggerTimeout
		}
		result.CI = &ci
	}

	if other.State != nil {
		result.State = result.State.Merge(other.State)
	}

	if other.Log != nil {
		result.Log = result.Log.Merge(other.Log)
	}

	if other.GitHubWebhook != nil {
		result.GitHubWebhook = result.GitHubWebhook.Merge(other.GitHubWebhook)
	}

	if len(other.Schedules) > 0 {
		result.Schedules = append(result.Schedules, other.Schedules...)
	}

	return &result
}

func (c *Config) Validate() error {

	var errs []error

	if c.HTTP == nil || c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http address is required"))
	} else if _, err := http.ParseAccessLogLevel(c.HTTP.AccessLogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.State == nil {
		errs = append(errs, errors.New("state config is required"))
	} else if err := c.State.Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.CI.APIConfig(); err != nil {
		errs = append(errs, err)
	}

	if c.GitHubWebhook != nil {
		if err := c.GitHubWebhook.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, s := range c.Schedules {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
