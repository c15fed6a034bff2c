package helper

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

const (
	ciAddressCLIFlag        = "ci-address"
	ciAPIAddressCLIFlag     = "ci-api-address"
	ciAccessTokenCLIFlag    = "ci-access-token"
	ciTriggerTimeoutCLIFlag = "ci-trigger-timeout"
)

// StateFlags are the flags of commands that read or write the trigger config
// store directly.
func StateFlags() []cli.Flag {
	return append(logger.Flags(), state.Flags()...)
}

// ClientFlags are the flags of commands that also talk to the CI service.
func ClientFlags() []cli.Flag {
	return append(StateFlags(),
		&cli.StringFlag{
			Name:    ciAddressCLIFlag,
			Sources: cli.EnvVars("BUILD_TRIGGER_CI_ADDR"),
			Usage:   "The CI service address serving the build start hook",
		},
		&cli.StringFlag{
			Name:    ciAPIAddressCLIFlag,
			Sources: cli.EnvVars("BUILD_TRIGGER_CI_API_ADDR"),
			Usage:   "The CI service REST API address",
		},
		&cli.StringFlag{
			Name:    ciAccessTokenCLIFlag,
			Sources: cli.EnvVars("BUILD_TRIGGER_CI_ACCESS_TOKEN"),
			Usage:   "The CI service personal access token used to list and abort builds",
		},
		&cli.DurationFlag{
			Name:    ciTriggerTimeoutCLIFlag,
			Sources: cli.EnvVars("BUILD_TRIGGER_CI_TRIGGER_TIMEOUT"),
			Value:   api.DefaultTriggerTimeout,
			Usage:   "The timeout of a build start request",
		},
	)
}

func ClientConfigFromFlags(cmd *cli.Command) *api.Config {

	defaultConfig := api.DefaultConfig()

	if addr := cmd.String(ciAddressCLIFlag); addr != "" {
		defaultConfig.Address = addr
	}
	if addr := cmd.String(ciAPIAddressCLIFlag); addr != "" {
		defaultConfig.APIAddress = addr
	}
	if token := cmd.String(ciAccessTokenCLIFlag); token != "" {
		defaultConfig.AccessToken = token
	}
	if timeout := cmd.Duration(ciTriggerTimeoutCLIFlag); timeout > time.Duration(0) {
		defaultConfig.TriggerTimeout = timeout
	}

	return defaultConfig
}

func LoggerFromFlags(cmd *cli.Command) (*zap.Logger, error) {
	return logger.NewZap(logger.DefaultCLIConfig().Merge(logger.ConfigFromCLI(cmd)))
}

// OpenState opens the configured state backend. The caller closes it.
func OpenState(cmd *cli.Command, zLogger *zap.Logger) (serverstate.State, error) {

	cfg := state.DefaultConfig().Merge(state.ConfigFromCLI(cmd))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state config: %w", err)
	}

	return state.NewBackend(cfg, zLogger)
}
