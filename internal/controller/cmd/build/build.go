package build

import (
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v3"

	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

const (
	triggerCommandCLIErrorMsg = "failed to trigger build"
	listCommandCLIErrorMsg    = "failed to list builds"
	abortCommandCLIErrorMsg   = "failed to abort build"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:            "build",
		Usage:           "Trigger, list, and abort CI builds",
		HideHelpCommand: true,
		UsageText:       "build-trigger build <command> [options] [args]",
		Commands: []*cli.Command{
			triggerCommand(),
			listCommand(),
			abortCommand(),
		},
	}
}

func colouredBuildStatus(b *api.Build) string {

	text := b.StatusText
	if text == "" {
		text = "unknown"
	}

	switch b.Status {
	case api.BuildStatusRunning:
		return pterm.FgLightBlue.Sprint(text)
	case api.BuildStatusSuccess:
		return pterm.FgGreen.Sprint(text)
	case api.BuildStatusFailed:
		return pterm.FgRed.Sprint(text)
	case api.BuildStatusAbortedFailure, api.BuildStatusAbortedSuccess:
		return pterm.FgYellow.Sprint(text)
	default:
		return text
	}
}
