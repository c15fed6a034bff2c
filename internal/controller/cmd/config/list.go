package config

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Category:  "config",
		Usage:     "List the stored build trigger configs",
		UsageText: "build-trigger config list [options]",
		Flags:     helper.StateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 0 {
				return cli.Exit(helper.FormatError(listCommandCLIErrorMsg, fmt.Errorf("expected 0 arguments, got %v", numArgs)), 1)
			}

			backend, err := openState(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(listCommandCLIErrorMsg, err), 1)
			}
			defer func() { _ = backend.Close() }()

			resp, stateErr := backend.TriggerConfigs().List(&serverstate.TriggerConfigsListReq{})
			if stateErr != nil {
				return cli.Exit(helper.FormatError(listCommandCLIErrorMsg, stateErr), 1)
			}

			outputTriggerConfigList(cmd, resp.Configs)
			return nil
		},
	}
}

func outputTriggerConfigList(cmd *cli.Command, configs []*state.TriggerConfigStub) {
	if len(configs) == 0 {
		_, _ = fmt.Fprint(cmd.Writer, "No build trigger configs found\n")
		return
	}

	out := pterm.TableData{{"App Slug", "Workflows", "API Token", "Git Reference"}}

	for _, c := range configs {
		out = append(out, []string{
			c.AppSlug,
			strconv.Itoa(c.Workflows),
			strconv.FormatBool(c.HasAPIToken),
			c.GitReference.String(),
		})
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(out).Render()
}
