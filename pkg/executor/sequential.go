package executor

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/football-dw/warehouse/pkg/checkpoint"
	"github.com/football-dw/warehouse/pkg/logger"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/panics"
)

// ErrCheckpoint wraps failures to persist an attempt. The run cannot continue safely without its checkpoints.
var ErrCheckpoint = errors.New("failed to save checkpoint")

type Operator interface {
	Name() string
	Run(ctx context.Context) error
}

type funcOperator struct {
	name string
	fn   func(ctx context.Context) error
}

func (o funcOperator) Name() string                  { return o.name }
func (o funcOperator) Run(ctx context.Context) error { return o.fn(ctx) }

func NewOperator(name string, fn func(ctx context.Context) error) Operator {
	return funcOperator{name: name, fn: fn}
}

type CheckpointSaver interface {
	Save(step string, status checkpoint.Status, details map[string]any) error
}

type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// Outcome is the result of running an operator with retries.
type Outcome struct {
	Step        string
	Attempts    int
	Duration    time.Duration
	Err         error
	Interrupted bool
}

func (o *Outcome) Succeeded() bool {
	return o.Err == nil
}

// Sequential runs operators one at a time, retrying failed attempts after a fixed delay and recording every
// attempt in the checkpoint store before deciding whether to retry.
type Sequential struct {
	config      Config
	checkpoints CheckpointSaver
	logger      logger.Logger
	printer     *Printer
	runID       string
}

func NewSequential(config Config, checkpoints CheckpointSaver, logger logger.Logger, output io.Writer, runID string) *Sequential {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	return &Sequential{
		config:      config,
		checkpoints: checkpoints,
		logger:      logger,
		printer:     NewPrinter(output, config.MaxAttempts),
		runID:       runID,
	}
}

func (s *Sequential) Run(ctx context.Context, op Operator) *Outcome {
	start := time.Now()
	outcome := &Outcome{Step: op.Name()}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.config.RetryDelay), uint64(s.config.MaxAttempts-1)),
		ctx,
	)

	attempt := func() error {
		outcome.Attempts++
		err := s.attempt(ctx, op, outcome)
		if err == nil {
			return nil
		}

		if outcome.Interrupted || errors.Is(err, ErrCheckpoint) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warnf("%s failed on attempt %d/%d, retrying in %s: %v", op.Name(), outcome.Attempts, s.config.MaxAttempts, wait, err)
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	if err != nil && ctx.Err() != nil {
		outcome.Interrupted = true
	}

	outcome.Err = err
	outcome.Duration = time.Since(start)
	return outcome
}

func (s *Sequential) attempt(ctx context.Context, op Operator, outcome *Outcome) error {
	step := op.Name()
	s.printer.start(step, outcome.Attempts)

	start := time.Now()
	var err error
	recovered := panics.Try(func() { err = op.Run(ctx) })
	if recovered != nil {
		err = recovered.AsError()
		s.logger.Errorf("%s panicked: %v", step, recovered.Value)
	}
	duration := time.Since(start)
	s.printer.finish(step, duration, err)

	details := checkpoint.AttemptDetails{
		RunID:       s.runID,
		Attempt:     outcome.Attempts,
		MaxAttempts: s.config.MaxAttempts,
		DurationMs:  duration.Milliseconds(),
	}

	status := checkpoint.StatusSuccess
	switch {
	case err == nil:
	case ctx.Err() != nil:
		status = checkpoint.StatusError
		details.Interrupted = true
		outcome.Interrupted = true
	case recovered != nil:
		status = checkpoint.StatusError
	default:
		status = checkpoint.StatusFailed
	}
	if err != nil {
		details.Error = err.Error()
	}

	if saveErr := s.checkpoints.Save(step, status, details.ToMap()); saveErr != nil {
		return errors.Wrapf(ErrCheckpoint, "%s: %v", step, saveErr)
	}

	return err
}
