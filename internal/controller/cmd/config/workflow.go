package config

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
)

func workflowCommand() *cli.Command {
	return &cli.Command{
		Name:            "workflow",
		Category:        "config",
		Usage:           "Add and remove the workflow ids of an app",
		HideHelpCommand: true,
		UsageText:       "build-trigger config workflow <command> [options] [args]",
		Commands: []*cli.Command{
			workflowAddCommand(),
			workflowRemoveCommand(),
		},
	}
}

func workflowAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Category:  "workflow",
		Usage:     "Append a workflow id to the config of an app",
		UsageText: "build-trigger config workflow add [options] [app-slug] [workflow-id]",
		Flags:     helper.StateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 2 {
				return cli.Exit(helper.FormatError(workflowAddCommandCLIErrorMsg, fmt.Errorf("expected 2 arguments, got %v", numArgs)), 1)
			}

			backend, err := openState(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(workflowAddCommandCLIErrorMsg, err), 1)
			}
			defer func() { _ = backend.Close() }()

			resp, stateErr := backend.TriggerConfigs().AppendWorkflowID(&serverstate.TriggerConfigsAppendWorkflowIDReq{
				AppSlug:    cmd.Args().Get(0),
				WorkflowID: cmd.Args().Get(1),
			})
			if stateErr != nil {
				return cli.Exit(helper.FormatError(workflowAddCommandCLIErrorMsg, stateErr), 1)
			}

			outputTriggerConfig(resp.Config)
			return nil
		},
	}
}

func workflowRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Category:  "workflow",
		Usage:     "Remove the workflow id at an index from the config of an app",
		UsageText: "build-trigger config workflow remove [options] [app-slug] [index]",
		Flags:     helper.StateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 2 {
				return cli.Exit(helper.FormatError(workflowRemoveCommandCLIErrorMsg, fmt.Errorf("expected 2 arguments, got %v", numArgs)), 1)
			}

			index, err := strconv.Atoi(cmd.Args().Get(1))
			if err != nil {
				return cli.Exit(helper.FormatError(workflowRemoveCommandCLIErrorMsg, fmt.Errorf("invalid index: %w", err)), 1)
			}

			backend, err := openState(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(workflowRemoveCommandCLIErrorMsg, err), 1)
			}
			defer func() { _ = backend.Close() }()

			resp, stateErr := backend.TriggerConfigs().RemoveWorkflowID(&serverstate.TriggerConfigsRemoveWorkflowIDReq{
				AppSlug: cmd.Args().Get(0),
				Index:   index,
			})
			if stateErr != nil {
				return cli.Exit(helper.FormatError(workflowRemoveCommandCLIErrorMsg, stateErr), 1)
			}

			outputTriggerConfig(resp.Config)
			return nil
		},
	}
}
