package orchestrator

import (
	"context"
	"time"

	"github.com/football-dw/warehouse/pkg/checkpoint"
	"github.com/football-dw/warehouse/pkg/dimension"
	"github.com/football-dw/warehouse/pkg/executor"
	"github.com/football-dw/warehouse/pkg/fact"
	"github.com/football-dw/warehouse/pkg/logger"
	"github.com/football-dw/warehouse/pkg/quality"
	"github.com/football-dw/warehouse/pkg/snapshot"
	"github.com/football-dw/warehouse/pkg/verify"
	"github.com/pkg/errors"
)

type State string

const (
	StateInit           State = "INIT"
	StateSnapshot       State = "SNAPSHOT"
	StateLoadDimensions State = "LOAD_DIMENSIONS"
	StateLoadFacts      State = "LOAD_FACTS"
	StateValidate       State = "VALIDATE"
	StateVerify         State = "VERIFY"
	StateSuccess        State = "SUCCESS"
	StatePartialFailure State = "PARTIAL_FAILURE"
)

// Checkpoint keys of the individual steps.
const (
	StepDimensions = "load_dimensions"
	StepFacts      = "load_facts"
	StepValidate   = "validate"
	StepVerify     = "verify"
)

var (
	ErrConnectivity = errors.New("database is not reachable")
	ErrInterrupted  = errors.New("pipeline interrupted")
)

type Database interface {
	ServerVersion(ctx context.Context) (string, error)
	snapshot.Counter
}

type DimensionLoader interface {
	LoadAll(ctx context.Context) ([]*dimension.Result, error)
}

type FactLoader interface {
	LoadAll(ctx context.Context) ([]*fact.Result, error)
}

type Validator interface {
	Run(ctx context.Context) (*quality.Report, error)
}

type Verifier interface {
	Run(ctx context.Context) (*verify.Report, error)
}

type Checkpoints interface {
	All() (map[string]checkpoint.Record, error)
	Save(step string, status checkpoint.Status, details map[string]any) error
	Reset() error
}

type Runner interface {
	Run(ctx context.Context, op executor.Operator) *executor.Outcome
}

type SnapshotWriter interface {
	Write(snap *snapshot.Snapshot) (string, error)
}

type Options struct {
	RunID          string
	Schema         string
	Tables         []string
	EnableSnapshot bool
	// Fresh discards the checkpoints of an unfinished run instead of resuming it.
	Fresh bool
}

// Orchestrator runs the pipeline phases in order. It is the only place that decides whether a failure halts
// the run.
type Orchestrator struct {
	DB          Database
	Dimensions  DimensionLoader
	Facts       FactLoader
	Validator   Validator
	Verifier    Verifier
	Checkpoints Checkpoints
	Runner      Runner
	Snapshots   SnapshotWriter
	Logger      logger.Logger
	Options     Options
	Now         func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Run executes the pipeline. The report is returned in every case where the run got past the connectivity
// probe. The error is ErrConnectivity, ErrInterrupted or a critical failure; a phase that failed after its
// retries is reported through the report's state only.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: o.Options.RunID, StartedAt: o.now()}

	o.enter(report, StateInit)
	version, err := o.DB.ServerVersion(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return o.interrupted(report, "")
		}
		o.Logger.Errorf("connectivity check failed: %v", err)
		report.State = StatePartialFailure
		report.FinishedAt = o.now()
		return report, errors.Wrap(ErrConnectivity, err.Error())
	}
	report.ServerVersion = version
	o.Logger.Infof("connected to %s", version)

	completed, err := o.prepareCheckpoints(report)
	if err != nil {
		return report, err
	}

	o.enter(report, StateSnapshot)
	o.takeSnapshot(ctx, report)

	o.enter(report, StateLoadDimensions)
	ok, err := o.runLoadPhase(ctx, report, StepDimensions, completed, func(ctx context.Context) error {
		results, err := o.Dimensions.LoadAll(ctx)
		report.Dimensions = results
		return err
	})
	if err != nil || !ok {
		return o.halt(ctx, report, StepDimensions, err)
	}

	o.enter(report, StateLoadFacts)
	ok, err = o.runLoadPhase(ctx, report, StepFacts, completed, func(ctx context.Context) error {
		results, err := o.Facts.LoadAll(ctx)
		report.Facts = results
		return err
	})
	if err != nil || !ok {
		return o.halt(ctx, report, StepFacts, err)
	}

	o.enter(report, StateValidate)
	if err := o.validate(ctx, report); err != nil {
		return o.halt(ctx, report, StepValidate, err)
	}

	o.enter(report, StateVerify)
	verified, err := o.verify(ctx, report)
	if err != nil {
		return o.halt(ctx, report, StepVerify, err)
	}

	if verified && !report.Quality.HardFailure {
		return o.finish(ctx, report, StateSuccess)
	}
	if report.Quality.HardFailure {
		o.Logger.Errorf("current version checks failed, the warehouse history is inconsistent")
	}
	return o.finish(ctx, report, StatePartialFailure)
}

func (o *Orchestrator) enter(report *Report, state State) {
	report.State = state
	report.Transitions = append(report.Transitions, state)
	o.Logger.Debugf("entering %s", state)
}

// prepareCheckpoints decides between resuming an unfinished run and starting over. It returns the load
// steps that already succeeded in the run being resumed.
func (o *Orchestrator) prepareCheckpoints(report *Report) (map[string]bool, error) {
	completed := make(map[string]bool)
	if o.Options.Fresh {
		return completed, errors.Wrap(o.Checkpoints.Reset(), "failed to reset checkpoints")
	}

	records, err := o.Checkpoints.All()
	if err != nil {
		return nil, err
	}

	pipeline, found := records[checkpoint.PipelineStep]
	if len(records) == 0 || (found && pipeline.Status == checkpoint.StatusSuccess) {
		return completed, errors.Wrap(o.Checkpoints.Reset(), "failed to reset checkpoints")
	}

	// facts only count as completed on top of completed dimensions
	for _, step := range []string{StepDimensions, StepFacts} {
		rec, ok := records[step]
		if !ok || rec.Status != checkpoint.StatusSuccess {
			break
		}
		completed[step] = true
	}
	report.Resumed = true
	o.Logger.Infof("resuming unfinished run, %d load phases already completed", len(completed))
	return completed, nil
}

func (o *Orchestrator) takeSnapshot(ctx context.Context, report *Report) {
	if !o.Options.EnableSnapshot {
		o.Logger.Debugf("snapshots are disabled")
		return
	}

	snap, err := snapshot.Take(ctx, o.DB, o.Options.Schema, o.Options.Tables, o.Options.RunID, o.now())
	if err != nil {
		o.Logger.Warnf("could not take snapshot, continuing without it: %v", err)
		return
	}
	report.Snapshot = snap

	file, err := o.Snapshots.Write(snap)
	if err != nil {
		o.Logger.Warnf("could not write snapshot: %v", err)
		return
	}
	report.SnapshotFile = file
	o.Logger.Infof("snapshot written to %s", file)
}

// runLoadPhase runs a load step through the retrying runner unless a resumed run already completed it.
// It returns false when the step failed, and an error when the run must stop for other reasons.
func (o *Orchestrator) runLoadPhase(ctx context.Context, report *Report, step string, completed map[string]bool, fn func(ctx context.Context) error) (bool, error) {
	if completed[step] {
		o.Logger.Infof("skipping %s, it completed in the run being resumed", step)
		report.Phases = append(report.Phases, PhaseReport{Name: step, Status: PhaseSkipped})
		return true, nil
	}

	outcome := o.Runner.Run(ctx, executor.NewOperator(step, fn))
	phase := PhaseReport{Name: step, Status: PhaseSucceeded, Attempts: outcome.Attempts, Duration: outcome.Duration}
	if outcome.Err != nil {
		phase.Status = PhaseFailed
		phase.Error = outcome.Err.Error()
	}
	if outcome.Interrupted {
		phase.Status = PhaseInterrupted
	}
	report.Phases = append(report.Phases, phase)

	switch {
	case outcome.Interrupted:
		return false, ErrInterrupted
	case errors.Is(outcome.Err, executor.ErrCheckpoint):
		return false, outcome.Err
	}

	return outcome.Err == nil, nil
}

func (o *Orchestrator) validate(ctx context.Context, report *Report) error {
	start := o.now()
	res, err := o.Validator.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			return errors.Wrap(err, "quality validation could not run")
		}
		report.Phases = append(report.Phases, PhaseReport{Name: StepValidate, Status: PhaseInterrupted, Error: err.Error()})
		return ErrInterrupted
	}
	report.Quality = res

	status, phaseStatus := checkpoint.StatusSuccess, PhaseSucceeded
	if !res.Passed {
		status, phaseStatus = checkpoint.StatusFailed, PhaseFailed
	}
	report.Phases = append(report.Phases, PhaseReport{Name: StepValidate, Status: phaseStatus, Attempts: 1, Duration: o.now().Sub(start)})

	details := map[string]any{
		"run_id":       o.Options.RunID,
		"checks":       len(res.Checks),
		"failed":       len(res.Failed()),
		"hard_failure": res.HardFailure,
	}
	if err := o.Checkpoints.Save(StepValidate, status, details); err != nil {
		return errors.Wrapf(executor.ErrCheckpoint, "%s: %v", StepValidate, err)
	}

	for _, c := range res.Failed() {
		o.Logger.Warnw("quality check failed", "check", c.Name, "result", c.Result, "status", c.Status)
	}
	return nil
}

func (o *Orchestrator) verify(ctx context.Context, report *Report) (bool, error) {
	start := o.now()
	res, err := o.Verifier.Run(ctx)
	report.Verification = res
	if err != nil && ctx.Err() != nil {
		report.Phases = append(report.Phases, PhaseReport{Name: StepVerify, Status: PhaseInterrupted, Error: err.Error()})
		return false, ErrInterrupted
	}

	phase := PhaseReport{Name: StepVerify, Status: PhaseSucceeded, Attempts: 1, Duration: o.now().Sub(start)}
	status := checkpoint.StatusSuccess
	details := map[string]any{"run_id": o.Options.RunID}
	if err != nil {
		phase.Status, phase.Error = PhaseFailed, err.Error()
		status = checkpoint.StatusFailed
		details["error"] = err.Error()
		o.Logger.Errorf("verification failed: %v", err)
	}
	report.Phases = append(report.Phases, phase)

	if saveErr := o.Checkpoints.Save(StepVerify, status, details); saveErr != nil {
		return false, errors.Wrapf(executor.ErrCheckpoint, "%s: %v", StepVerify, saveErr)
	}
	return err == nil, nil
}

// halt ends the run after a phase failure or an error raised while running a phase.
func (o *Orchestrator) halt(ctx context.Context, report *Report, step string, err error) (*Report, error) {
	switch {
	case errors.Is(err, ErrInterrupted):
		return o.interrupted(report, step)
	case err != nil:
		report.State = StatePartialFailure
		report.FinishedAt = o.now()
		return report, err
	}

	o.Logger.Errorf("%s did not succeed, stopping the pipeline", step)
	return o.finish(ctx, report, StatePartialFailure)
}

func (o *Orchestrator) interrupted(report *Report, step string) (*Report, error) {
	o.Logger.Warnf("pipeline interrupted during %s", report.State)
	report.State = StatePartialFailure
	report.Interrupted = true
	report.FinishedAt = o.now()

	details := map[string]any{"run_id": o.Options.RunID, "interrupted": true}
	if step != "" {
		details["step"] = step
	}
	if err := o.Checkpoints.Save(checkpoint.PipelineStep, checkpoint.StatusError, details); err != nil {
		o.Logger.Errorf("failed to record interruption: %v", err)
	}
	return report, ErrInterrupted
}

func (o *Orchestrator) finish(ctx context.Context, report *Report, state State) (*Report, error) {
	o.enter(report, state)

	counts, err := o.DB.TableCounts(ctx, o.Options.Schema, o.Options.Tables)
	if err != nil {
		o.Logger.Warnf("could not count final table volumes: %v", err)
	} else {
		report.FinalCounts = counts
		report.Deltas = snapshot.Compare(report.Snapshot, counts)
	}
	report.FinishedAt = o.now()

	status := checkpoint.StatusSuccess
	if state != StateSuccess {
		status = checkpoint.StatusFailed
	}
	details := map[string]any{
		"run_id":      o.Options.RunID,
		"state":       string(state),
		"duration_ms": report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	}
	if err := o.Checkpoints.Save(checkpoint.PipelineStep, status, details); err != nil {
		return report, errors.Wrapf(executor.ErrCheckpoint, "%s: %v", checkpoint.PipelineStep, err)
	}

	o.Logger.Infof("pipeline finished with %s in %s", state, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report, nil
}

// ExitCode maps the outcome of Run to the process exit code.
func ExitCode(report *Report, err error) int {
	switch {
	case errors.Is(err, ErrInterrupted):
		return 2
	case errors.Is(err, ErrConnectivity):
		return 1
	case err != nil:
		return 3
	case report != nil && report.State == StateSuccess:
		return 0
	default:
		return 1
	}
}
