package config

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:            "token",
		Category:        "config",
		Usage:           "Set and unset the build start API token of an app",
		HideHelpCommand: true,
		UsageText:       "build-trigger config token <command> [options] [args]",
		Commands: []*cli.Command{
			tokenSetCommand(),
			tokenUnsetCommand(),
		},
	}
}

func tokenSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Category:  "token",
		Usage:     "Store the build start API token of an app",
		UsageText: "build-trigger config token set [options] [app-slug] [token]",
		Flags:     helper.StateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 2 {
				return cli.Exit(helper.FormatError(tokenSetCommandCLIErrorMsg, fmt.Errorf("expected 2 arguments, got %v", numArgs)), 1)
			}

			token := cmd.Args().Get(1)
			return setAPIToken(cmd, tokenSetCommandCLIErrorMsg, &token)
		},
	}
}

func tokenUnsetCommand() *cli.Command {
	return &cli.Command{
		Name:      "unset",
		Category:  "token",
		Usage:     "Remove the build start API token of an app",
		UsageText: "build-trigger config token unset [options] [app-slug]",
		Flags:     helper.StateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 1 {
				return cli.Exit(helper.FormatError(tokenUnsetCommandCLIErrorMsg, fmt.Errorf("expected 1 argument, got %v", numArgs)), 1)
			}

			return setAPIToken(cmd, tokenUnsetCommandCLIErrorMsg, nil)
		},
	}
}

func setAPIToken(cmd *cli.Command, cliMsg string, token *string) error {

	backend, err := openState(cmd)
	if err != nil {
		return cli.Exit(helper.FormatError(cliMsg, err), 1)
	}
	defer func() { _ = backend.Close() }()

	resp, stateErr := backend.TriggerConfigs().SetAPIToken(&serverstate.TriggerConfigsSetAPITokenReq{
		AppSlug:  cmd.Args().First(),
		APIToken: token,
	})
	if stateErr != nil {
		return cli.Exit(helper.FormatError(cliMsg, stateErr), 1)
	}

	outputTriggerConfig(resp.Config)
	return nil
}
