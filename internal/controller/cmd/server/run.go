package server

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	"github.com/hashicorp-forge/build-trigger/internal/controller/server"
	"github.com/hashicorp-forge/build-trigger/internal/controller/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
)

const runCommandCLIErrorMsg = "failed to run a build trigger agent"

func runCommand() *cli.Command {
	return &cli.Command{
		Name:     "run",
		Category: "server",
		Usage:    "Run a build trigger agent",
		Flags:    append(append(logger.Flags(), server.Flags()...), state.Flags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			defaultCfg := server.DefaultConfig()

			// Merge the config file, if any, then the CLI on top of it.
			if path := cmd.String("config"); path != "" {
				fileCfg, err := server.LoadConfigFile(path)
				if err != nil {
					return cli.Exit(helper.FormatError(runCommandCLIErrorMsg, err), 1)
				}
				defaultCfg = defaultCfg.Merge(fileCfg)
			}

			defaultCfg = defaultCfg.Merge(server.ConfigFromCLI(cmd))

			srv, err := server.NewServer(defaultCfg)
			if err != nil {
				return cli.Exit(helper.FormatError(runCommandCLIErrorMsg, err), 1)
			}
			srv.Start()
			srv.WaitForSignals()
			return nil
		},
	}
}
