package config

import (
	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
)

const (
	showCommandCLIErrorMsg           = "failed to get build trigger config"
	listCommandCLIErrorMsg           = "failed to list build trigger configs"
	workflowAddCommandCLIErrorMsg    = "failed to add workflow to build trigger config"
	workflowRemoveCommandCLIErrorMsg = "failed to remove workflow from build trigger config"
	tokenSetCommandCLIErrorMsg       = "failed to set build trigger API token"
	tokenUnsetCommandCLIErrorMsg     = "failed to unset build trigger API token"
	refSetCommandCLIErrorMsg         = "failed to set build trigger git reference"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:            "config",
		Usage:           "Read and modify the stored build trigger parameters of CI apps",
		HideHelpCommand: true,
		UsageText:       "build-trigger config <command> [options] [args]",
		Commands: []*cli.Command{
			showCommand(),
			listCommand(),
			workflowCommand(),
			tokenCommand(),
			refCommand(),
		},
	}
}

// openState opens the state backend named by the command flags. The caller
// closes it.
func openState(cmd *cli.Command) (serverstate.State, error) {
	zLogger, err := helper.LoggerFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	return helper.OpenState(cmd, zLogger)
}
