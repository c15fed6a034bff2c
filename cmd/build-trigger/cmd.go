package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/build"
	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/config"
	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/helper"
	"github.com/hashicorp-forge/build-trigger/internal/controller/cmd/server"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/version"
)

func main() {

	cli.VersionPrinter = func(cmd *cli.Command) {
		_, _ = fmt.Fprint(cmd.Writer, helper.FormatKV([]string{
			fmt.Sprintf("Version|%s", cmd.Version),
			fmt.Sprintf("Build Time|%s", version.BuildTime),
			fmt.Sprintf("Build Commit|%s", version.BuildCommit),
		}))
		_, _ = fmt.Fprint(cmd.Writer, "\n")
	}

	cliApp := cli.Command{
		Commands: []*cli.Command{
			build.Command(),
			config.Command(),
			server.Command(),
		},
		Name:  "build-trigger",
		Usage: "Remember CI build parameters per app and trigger builds with them",
		Description: strings.TrimSpace(
			`Build Trigger stores the workflow ids, build start token, and git reference
of each CI app, and submits builds with them. It runs as a one-shot CLI against
the local store or as an agent serving an HTTP API, GitHub push webhooks, and
cron schedules.`),
		Version:         version.Get(),
		HideHelpCommand: true,
	}

	if err := cliApp.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprint(os.Stderr, err.Error()+"\n")
		os.Exit(1)
	}
}
