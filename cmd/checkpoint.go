package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/football-dw/warehouse/pkg/checkpoint"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/manifoldco/promptui"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func CheckpointCmd() *cli.Command {
	return &cli.Command{
		Name:  "checkpoint",
		Usage: "inspect or reset the checkpoints of the last run",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the latest record of every step",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						errorPrinter.Printf("%v\n", err)
						return cli.Exit("", exitCritical)
					}

					store := checkpoint.NewFileStore(fs, cfg.Pipeline.CheckpointFile)
					records, err := store.All()
					if err != nil {
						errorPrinter.Printf("%v\n", err)
						return cli.Exit("", exitCritical)
					}
					if len(records) == 0 {
						infoPrinter.Printf("No checkpoints in %s.\n", store.Path())
						return nil
					}

					renderCheckpoints(store.Path(), records)
					return nil
				},
			},
			{
				Name:  "reset",
				Usage: "discard every checkpoint so the next run starts from the beginning",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "do not ask for confirmation",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						errorPrinter.Printf("%v\n", err)
						return cli.Exit("", exitCritical)
					}

					store := checkpoint.NewFileStore(fs, cfg.Pipeline.CheckpointFile)
					if !c.Bool("force") {
						prompt := promptui.Prompt{
							Label:     "The next run will reload every phase. Are you sure you want to reset " + store.Path(),
							IsConfirm: true,
						}

						if _, err := prompt.Run(); err != nil {
							infoPrinter.Println("The operation is cancelled.")
							return nil
						}
					}

					if err := store.Reset(); err != nil {
						errorPrinter.Printf("Failed to reset the checkpoints: %v\n", err)
						return cli.Exit("", exitCritical)
					}

					successPrinter.Printf("Reset %s.\n", store.Path())
					return nil
				},
			},
		},
	}
}

func renderCheckpoints(file string, records map[string]checkpoint.Record) {
	steps := lo.Keys(records)
	sort.Slice(steps, func(i, j int) bool { return records[steps[i]].Timestamp.Before(records[steps[j]].Timestamp) })

	t := newTable(os.Stdout, file, table.Row{"Step", "Status", "Timestamp", "Run", "Attempt", "Error"})
	for _, step := range steps {
		r := records[step]
		row := table.Row{step, colorStatus(string(r.Status)), r.Timestamp.Local().Format(time.DateTime), "", "", ""}

		if details, err := checkpoint.DecodeDetails(r.Details); err == nil {
			row[3] = details.RunID
			if details.MaxAttempts > 0 {
				row[4] = fmt.Sprintf("%d/%d", details.Attempt, details.MaxAttempts)
			}
			row[5] = details.Error
			if details.Interrupted {
				row[5] = "interrupted"
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}
