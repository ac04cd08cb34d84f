package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/football-dw/warehouse/pkg/dimension"
	"github.com/football-dw/warehouse/pkg/executor"
	"github.com/football-dw/warehouse/pkg/fact"
	"github.com/football-dw/warehouse/pkg/orchestrator"
	"github.com/football-dw/warehouse/pkg/quality"
	"github.com/football-dw/warehouse/pkg/snapshot"
	"github.com/football-dw/warehouse/pkg/verify"
	"github.com/urfave/cli/v2"
)

// phaseAction wraps the common part of the single phase commands: setup, the connectivity probe and signal
// handling.
func phaseAction(fn func(ctx context.Context, env *environment) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		defer RecoverFromPanic()

		env, err := setup(c)
		if err != nil {
			return err
		}
		defer env.close()

		if err := env.probe(c); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return fn(ctx, env)
	}
}

func phaseExit(ctx context.Context, outcome *executor.Outcome) error {
	switch {
	case outcome.Succeeded():
		successPrinter.Printf("\n%s finished successfully.\n", outcome.Step)
		return nil
	case outcome.Interrupted || ctx.Err() != nil:
		warningPrinter.Printf("\n%s was interrupted.\n", outcome.Step)
		return cli.Exit("", exitInterrupted)
	default:
		errorPrinter.Printf("\n%s failed after %d attempt(s): %v\n", outcome.Step, outcome.Attempts, outcome.Err)
		return cli.Exit("", exitPhaseFailure)
	}
}

func DimensionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "dimensions",
		Usage: "load the dimension tables only",
		Action: phaseAction(func(ctx context.Context, env *environment) error {
			builder := dimension.NewBuilder(env.db, env.catalog, env.logger)

			var results []*dimension.Result
			store, err := env.standaloneCheckpoints()
			if err != nil {
				return err
			}

			outcome := env.runner(store, NewRunID()).Run(ctx, executor.NewOperator(orchestrator.StepDimensions, func(ctx context.Context) error {
				var err error
				results, err = builder.LoadAll(ctx)
				return err
			}))

			renderDimensions(os.Stdout, results)
			return phaseExit(ctx, outcome)
		}),
	}
}

func FactsCmd() *cli.Command {
	return &cli.Command{
		Name:  "facts",
		Usage: "reload the fact tables from the current dimensions",
		Action: phaseAction(func(ctx context.Context, env *environment) error {
			loader := fact.NewLoader(env.db, env.catalog, env.logger, env.config.FactChunkSize)

			var results []*fact.Result
			store, err := env.standaloneCheckpoints()
			if err != nil {
				return err
			}

			outcome := env.runner(store, NewRunID()).Run(ctx, executor.NewOperator(orchestrator.StepFacts, func(ctx context.Context) error {
				var err error
				results, err = loader.LoadAll(ctx)
				return err
			}))

			renderFacts(os.Stdout, results)
			return phaseExit(ctx, outcome)
		}),
	}
}

func ValidateCmd() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "run the data quality checks against the warehouse",
		Action: phaseAction(func(ctx context.Context, env *environment) error {
			validator := quality.NewValidator(env.db, env.catalog, env.config.Quality.CoreTables, env.logger)
			report, err := validator.Run(ctx)
			if err != nil {
				warningPrinter.Printf("Quality checks were interrupted: %v\n", err)
				return cli.Exit("", exitInterrupted)
			}

			renderQuality(os.Stdout, report)
			if report.HardFailure {
				errorPrinter.Println("\nThe warehouse is inconsistent: at least one history check failed.")
				return cli.Exit("", exitPhaseFailure)
			}
			if !report.Passed {
				warningPrinter.Printf("\n%d check(s) need attention.\n", len(report.Failed()))
				return nil
			}

			successPrinter.Println("\nAll quality checks passed.")
			return nil
		}),
	}
}

func VerifyCmd() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "print the verification report of the warehouse",
		Action: phaseAction(func(ctx context.Context, env *environment) error {
			reporter := verify.NewReporter(env.db, env.catalog, env.config.SourceTables(), env.logger)
			report, err := reporter.Run(ctx)
			if report != nil {
				report.Render(os.Stdout)
			}
			if ctx.Err() != nil {
				warningPrinter.Println("\nVerification was interrupted.")
				return cli.Exit("", exitInterrupted)
			}
			if err != nil {
				errorPrinter.Printf("\n%v\n", err)
				return cli.Exit("", exitPhaseFailure)
			}

			if latest, err := snapshot.NewStore(fs, env.config.Pipeline.LogsDir).Latest(); err == nil {
				fmt.Println()
				infoPrinter.Printf("Row count changes since the snapshot of %s\n", latest.Timestamp.Local().Format(time.DateTime))
				for _, d := range snapshot.Compare(latest, report.Totals) {
					fmt.Printf("  %s\n", d)
				}
			} else {
				env.logger.Debugf("no snapshot to compare against: %v", err)
			}

			successPrinter.Println("\nVerification finished.")
			return nil
		}),
	}
}
