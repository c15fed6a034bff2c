package config

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

func refCommand() *cli.Command {
	return &cli.Command{
		Name:            "ref",
		Category:        "config",
		Usage:           "Set the git reference builds of an app run from",
		HideHelpCommand: true,
		UsageText:       "build-trigger config ref <command> [options] [args]",
		Commands: []*cli.Command{
			refSetCommand(),
		},
	}
}

func refSetCommand() *cli.Command {
	return &cli.Command{
		Name:        "set",
		Category:    "ref",
		Usage:       "Store the git reference of an app",
		UsageText:   "build-trigger config ref set [options] [app-slug] [reference]",
		Description: "The reference takes the form <branch|tag|commit>:<value>. A bare value is a branch name.",
		Flags:       helper.StateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 2 {
				return cli.Exit(helper.FormatError(refSetCommandCLIErrorMsg, fmt.Errorf("expected 2 arguments, got %v", numArgs)), 1)
			}

			ref, err := state.ParseGitReference(cmd.Args().Get(1))
			if err != nil {
				return cli.Exit(helper.FormatError(refSetCommandCLIErrorMsg, err), 1)
			}

			backend, err := openState(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(refSetCommandCLIErrorMsg, err), 1)
			}
			defer func() { _ = backend.Close() }()

			resp, stateErr := backend.TriggerConfigs().SetGitReference(&serverstate.TriggerConfigsSetGitReferenceReq{
				AppSlug:      cmd.Args().First(),
				GitReference: ref,
			})
			if stateErr != nil {
				return cli.Exit(helper.FormatError(refSetCommandCLIErrorMsg, stateErr), 1)
			}

			outputTriggerConfig(resp.Config)
			return nil
		},
	}
}
