package build

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/buildlist"
	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

func abortCommand() *cli.Command {
	return &cli.Command{
		Name:      "abort",
		Category:  "build",
		Usage:     "Abort a build of an app by its index in the build list",
		UsageText: "build-trigger build abort [options] [app-slug] [index]",
		Flags:     helper.ClientFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 2 {
				return cli.Exit(helper.FormatError(abortCommandCLIErrorMsg, fmt.Errorf("expected 2 arguments, got %v", numArgs)), 1)
			}

			appSlug := cmd.Args().Get(0)

			index, err := strconv.Atoi(cmd.Args().Get(1))
			if err != nil {
				return cli.Exit(helper.FormatError(abortCommandCLIErrorMsg, fmt.Errorf("invalid index: %w", err)), 1)
			}

			zLogger, err := helper.LoggerFromFlags(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(abortCommandCLIErrorMsg, err), 1)
			}

			bus := events.NewBus(zLogger)
			defer func() { _ = bus.Close() }()

			list := buildlist.New(appSlug, &buildlist.Config{
				Logger:    zLogger,
				Client:    api.NewClient(helper.ClientConfigFromFlags(cmd)),
				Publisher: bus,
			})

			if _, err := list.Refresh(ctx); err != nil {
				return cli.Exit(helper.FormatError(abortCommandCLIErrorMsg, err), 1)
			}

			if err := list.Abort(ctx, index); err != nil {
				return cli.Exit(helper.FormatError(abortCommandCLIErrorMsg, err), 1)
			}

			pterm.DefaultBasicText.Println(bus.AlertMessage(appSlug))
			return nil
		},
	}
}
