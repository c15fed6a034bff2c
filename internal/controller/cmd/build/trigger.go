package build

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	"github.com/hashicorp-forge/build-trigger/internal/controller/coordinator"
	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/state"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

func triggerCommand() *cli.Command {
	return &cli.Command{
		Name:      "trigger",
		Category:  "build",
		Usage:     "Trigger a build of an app and wait for the CI service to answer",
		UsageText: "build-trigger build trigger [options] [app-slug]",
		Flags: append(helper.ClientFlags(),
			&cli.StringFlag{
				Name:  "workflow",
				Usage: "The workflow to build; defaults to the most recently added workflow id",
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "Store this git reference (<branch|tag|commit>:<value>) before triggering",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 1 {
				return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, fmt.Errorf("expected 1 argument, got %v", numArgs)), 1)
			}

			appSlug := cmd.Args().First()

			var ref *state.GitReference

			if s := cmd.String("ref"); s != "" {
				parsed, err := state.ParseGitReference(s)
				if err != nil {
					return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, err), 1)
				}
				ref = &parsed
			}

			zLogger, err := helper.LoggerFromFlags(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, err), 1)
			}
			defer func() { _ = zLogger.Sync() }()

			backend, err := helper.OpenState(cmd, zLogger)
			if err != nil {
				return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, err), 1)
			}
			defer func() { _ = backend.Close() }()

			bus := events.NewBus(zLogger)
			defer func() { _ = bus.Close() }()

			registry := coordinator.NewRegistry(&coordinator.Config{
				Logger:    zLogger,
				State:     backend,
				Client:    api.NewClient(helper.ClientConfigFromFlags(cmd)),
				Publisher: bus,
			})
			defer registry.Wait()

			handler, err := trigger.NewHandler(&trigger.Config{
				Logger:   zLogger,
				State:    backend,
				Registry: registry,
			})
			if err != nil {
				return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, err), 1)
			}

			attempt, err := handler.RunBuild(ctx, appSlug, cmd.String("workflow"), ref)
			if err != nil {
				return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, err), 1)
			}

			outcome, err := attempt.Wait(ctx)
			if err != nil {
				return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, err), 1)
			}

			if outcome.Err != nil {
				return cli.Exit(helper.FormatError(triggerCommandCLIErrorMsg, outcome.Err), 1)
			}

			pterm.DefaultBasicText.Println(helper.FormatKV([]string{
				fmt.Sprintf("Attempt ID|%s", attempt.ID),
				fmt.Sprintf("Alert|%s", registry.Get(appSlug).AlertMessage()),
			}))
			return nil
		},
	}
}
