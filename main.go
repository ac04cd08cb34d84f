package main

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/football-dw/warehouse/cmd"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	color.NoColor = os.Getenv("NO_COLOR") != ""

	versionCommand := cmd.VersionCmd(commit)

	cli.VersionPrinter = func(cCtx *cli.Context) {
		err := versionCommand.Action(cCtx)
		if err != nil {
			panic(err)
		}
	}

	app := &cli.App{
		Name:     "football-dw",
		Version:  version,
		Usage:    "Load the football star schema warehouse from the relational source tables",
		Compiled: time.Now(),
		Flags:    cmd.GlobalFlags(),
		Commands: []*cli.Command{
			cmd.Run(),
			cmd.DimensionsCmd(),
			cmd.FactsCmd(),
			cmd.ValidateCmd(),
			cmd.VerifyCmd(),
			cmd.Init(),
			cmd.Preflight(),
			cmd.CheckpointCmd(),
			cmd.Schedule(),
			versionCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		cli.HandleExitCoder(err)
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(3)
	}
}
