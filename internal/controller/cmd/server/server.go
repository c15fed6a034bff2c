package server

import (
	"github.com/urfave/cli/v3"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:            "server",
		Usage:           "Run the build trigger agent",
		HideHelpCommand: true,
		UsageText:       "build-trigger server <command> [options] [args]",
		Commands: []*cli.Command{
			runCommand(),
		},
	}
}
