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

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Category:  "build",
		Usage:     "List the recent builds of an app",
		UsageText: "build-trigger build list [options] [app-slug]",
		Flags:     helper.ClientFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {

			if numArgs := cmd.Args().Len(); numArgs != 1 {
				return cli.Exit(helper.FormatError(listCommandCLIErrorMsg, fmt.Errorf("expected 1 argument, got %v", numArgs)), 1)
			}

			zLogger, err := helper.LoggerFromFlags(cmd)
			if err != nil {
				return cli.Exit(helper.FormatError(listCommandCLIErrorMsg, err), 1)
			}

			bus := events.NewBus(zLogger)
			defer func() { _ = bus.Close() }()

			list := buildlist.New(cmd.Args().First(), &buildlist.Config{
				Logger:    zLogger,
				Client:    api.NewClient(helper.ClientConfigFromFlags(cmd)),
				Publisher: bus,
			})

			builds, err := list.Refresh(ctx)
			if err != nil {
				return cli.Exit(helper.FormatError(listCommandCLIErrorMsg, err), 1)
			}

			outputBuildList(cmd, builds)
			return nil
		},
	}
}

func outputBuildList(cmd *cli.Command, builds []*api.Build) {
	if len(builds) == 0 {
		_, _ = fmt.Fprint(cmd.Writer, "No builds found\n")
		return
	}

	out := pterm.TableData{{"Index", "Number", "Status", "Workflow", "Branch", "Triggered At"}}

	for i, b := range builds {
		out = append(out, []string{
			strconv.Itoa(i),
			fmt.Sprintf("#%d", b.BuildNumber),
			colouredBuildStatus(b),
			b.TriggeredWorkflow,
			b.Branch,
			helper.FormatTime(b.TriggeredAt),
		})
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(out).Render()
}
