package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/football-dw/warehouse/pkg/orchestrator"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

func Schedule() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "run the pipeline unattended on a cron schedule",
		ArgsUsage: "[cron expression, e.g. '0 3 * * *']",
		Action: func(c *cli.Context) error {
			defer RecoverFromPanic()

			spec := c.Args().Get(0)
			if spec == "" {
				errorPrinter.Println("Please give a cron expression: schedule '<minute> <hour> <day> <month> <weekday>'")
				return cli.Exit("", exitCritical)
			}
			if _, err := cron.ParseStandard(spec); err != nil {
				errorPrinter.Printf("Invalid cron expression '%s': %v\n", spec, err)
				return cli.Exit("", exitCritical)
			}

			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger := cronLogger{logger: env.logger}
			scheduler := cron.New(
				cron.WithLogger(logger),
				cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
			)

			_, err = scheduler.AddFunc(spec, func() { scheduledRun(ctx, env) })
			if err != nil {
				errorPrinter.Printf("Failed to schedule the pipeline: %v\n", err)
				return cli.Exit("", exitCritical)
			}

			scheduler.Start()
			infoPrinter.Printf("Pipeline scheduled with '%s', next run at %s. Press Ctrl+C to stop.\n", spec, scheduler.Entries()[0].Next.Format("2006-01-02 15:04:05"))

			<-ctx.Done()
			env.logger.Info("stopping the scheduler, waiting for a running pipeline to finish")
			<-scheduler.Stop().Done()
			return nil
		},
	}
}

func scheduledRun(ctx context.Context, env *environment) {
	report, err := env.runOnce(ctx)
	code := orchestrator.ExitCode(report, err)
	if code == 0 {
		env.logger.Infow("scheduled run finished", "run_id", report.RunID, "state", report.State)
		return
	}

	args := []interface{}{"exit_code", code}
	if report != nil {
		args = append(args, "run_id", report.RunID, "state", report.State)
	}
	if err != nil {
		args = append(args, "error", err)
	}
	env.logger.Errorw("scheduled run did not succeed", args...)
}
