package cmd

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/football-dw/warehouse/pkg/query"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

type sourceCheck struct {
	target string
	sql    string
}

func Preflight() *cli.Command {
	return &cli.Command{
		Name:  "preflight",
		Usage: "list the configured source tables and check that every extraction query can be planned",
		Action: phaseAction(func(ctx context.Context, env *environment) error {
			names := lo.Keys(env.config.Sources)
			sort.Strings(names)

			sources := newTable(os.Stdout, "Sources", table.Row{"Dataset", "File", "Table", "Chunk size", "Date columns"})
			for _, name := range names {
				s := env.config.Sources[name]
				sources.AppendRow(table.Row{name, s.File, s.Table, s.ChunkSize, strings.Join(s.DateColumns, ", ")})
			}
			sources.Render()

			var checks []sourceCheck
			for _, d := range env.catalog.Dimensions {
				if d.Source != "" {
					checks = append(checks, sourceCheck{target: d.Name, sql: d.Source})
				}
			}
			for _, f := range env.catalog.Facts {
				checks = append(checks, sourceCheck{target: f.Name, sql: f.Source})
			}

			failed := 0
			results := newTable(os.Stdout, "Extraction queries", table.Row{"Target", "Status", "Error"})
			for _, check := range checks {
				if ctx.Err() != nil {
					return cli.Exit("", exitInterrupted)
				}

				ok, err := env.db.IsValid(ctx, query.New(check.sql))
				if ok {
					results.AppendRow(table.Row{check.target, colorStatus("OK"), ""})
					continue
				}
				failed++
				env.logger.Debugw("extraction query cannot be planned", "target", check.target, "error", err)
				results.AppendRow(table.Row{check.target, colorStatus("ERROR"), err.Error()})
			}
			results.Render()

			if failed > 0 {
				errorPrinter.Printf("\n%d of %d extraction queries cannot run against the source tables.\n", failed, len(checks))
				return cli.Exit("", exitPhaseFailure)
			}

			successPrinter.Println("\nEvery extraction query can be planned.")
			return nil
		}),
	}
}
