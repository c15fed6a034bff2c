package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
)

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Category:  "config",
		Usage:     "Show the stored build trigger config of an app",
		UsageText: "build-trigger config show [options] [app-slug]",
		Flags:     helper.StateFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 1 {
				return cli.Exit(helper.FormatError(showCommandCLIErrorMsg, fmt.Errorf("expected 1 argument, got %v", numArgs)), 1)
			}

			backend, err := openState(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(showCommandCLIErrorMsg, err), 1)
			}
			defer func() { _ = backend.Close() }()

			resp, stateErr := backend.TriggerConfigs().Load(&serverstate.TriggerConfigsLoadReq{AppSlug: cmd.Args().First()})
			if stateErr != nil {
				return cli.Exit(helper.FormatError(showCommandCLIErrorMsg, stateErr), 1)
			}

			outputTriggerConfig(resp.Config)
			return nil
		},
	}
}

func outputTriggerConfig(cfg *state.TriggerConfig) {

	token := "<none>"
	if cfg.HasAPIToken() {
		token = "set"
	}

	workflows := make([]string, len(cfg.WorkflowIDs))
	for i, id := range cfg.WorkflowIDs {
		workflows[i] = fmt.Sprintf("%d:%s", i, id)
	}

	pterm.DefaultBasicText.Println(helper.FormatKV([]string{
		fmt.Sprintf("App Slug|%s", cfg.AppSlug),
		fmt.Sprintf("Workflows|%s", strings.Join(workflows, ", ")),
		fmt.Sprintf("API Token|%s", token),
		fmt.Sprintf("Git Reference|%s", cfg.GitReference),
	}))
}
