package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/football-dw/warehouse/pkg/dimension"
	"github.com/football-dw/warehouse/pkg/fact"
	"github.com/football-dw/warehouse/pkg/orchestrator"
	"github.com/football-dw/warehouse/pkg/quality"
	"github.com/football-dw/warehouse/pkg/snapshot"
	"github.com/football-dw/warehouse/pkg/verify"
	"github.com/urfave/cli/v2"
)

func Run() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the full pipeline: dimensions, facts, quality checks and verification",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fresh",
				Usage: "ignore the checkpoints of an unfinished run and start from the beginning",
			},
		},
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runID := NewRunID()
			report, err := env.pipeline(runID, c.Bool("fresh")).Run(ctx)
			if report != nil {
				renderRun(os.Stdout, report)
			}

			code := orchestrator.ExitCode(report, err)
			switch {
			case code == 0:
				successPrinter.Printf("\nPipeline run %s finished successfully.\n", runID)
				return nil
			case code == exitInterrupted:
				warningPrinter.Printf("\nPipeline run %s was interrupted; the next run resumes from the last completed phase.\n", runID)
			case err != nil:
				errorPrinter.Printf("\nPipeline run %s failed: %v\n", runID, err)
			default:
				errorPrinter.Printf("\nPipeline run %s finished with failures.\n", runID)
			}

			return cli.Exit("", code)
		},
	}
}

func (e *environment) pipeline(runID string, fresh bool) *orchestrator.Orchestrator {
	cfg := e.config
	checkpoints := e.checkpoints()

	e.logger.Debugf("source tables: %v", cfg.SourceTables())

	return &orchestrator.Orchestrator{
		DB:          e.db,
		Dimensions:  dimension.NewBuilder(e.db, e.catalog, e.logger),
		Facts:       fact.NewLoader(e.db, e.catalog, e.logger, cfg.FactChunkSize),
		Validator:   quality.NewValidator(e.db, e.catalog, cfg.Quality.CoreTables, e.logger),
		Verifier:    verify.NewReporter(e.db, e.catalog, cfg.SourceTables(), e.logger),
		Checkpoints: checkpoints,
		Runner:      e.runner(checkpoints, runID),
		Snapshots:   snapshot.NewStore(fs, cfg.Pipeline.LogsDir),
		Logger:      e.logger,
		Options: orchestrator.Options{
			RunID:          runID,
			Schema:         e.catalog.Schema,
			Tables:         e.catalog.Tables(),
			EnableSnapshot: cfg.Pipeline.SnapshotEnabled(),
			Fresh:          fresh,
		},
	}
}

// runOnce is used by the scheduler, which has no terminal to render into beyond the log.
func (e *environment) runOnce(ctx context.Context) (*orchestrator.Report, error) {
	return e.pipeline(NewRunID(), false).Run(ctx)
}
