package orchestrator

import (
	"time"

	"github.com/football-dw/warehouse/pkg/dimension"
	"github.com/football-dw/warehouse/pkg/fact"
	"github.com/football-dw/warehouse/pkg/quality"
	"github.com/football-dw/warehouse/pkg/snapshot"
	"github.com/football-dw/warehouse/pkg/verify"
)

type PhaseStatus string

const (
	PhaseSucceeded   PhaseStatus = "success"
	PhaseFailed      PhaseStatus = "failed"
	PhaseSkipped     PhaseStatus = "skipped"
	PhaseInterrupted PhaseStatus = "interrupted"
)

type PhaseReport struct {
	Name     string
	Status   PhaseStatus
	Attempts int
	Duration time.Duration
	Error    string
}

type Report struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	State         State
	Transitions   []State
	Resumed       bool
	Interrupted   bool
	ServerVersion string

	Phases       []PhaseReport
	Dimensions   []*dimension.Result
	Facts        []*fact.Result
	Quality      *quality.Report
	Verification *verify.Report

	Snapshot     *snapshot.Snapshot
	SnapshotFile string
	FinalCounts  map[string]int64
	Deltas       []snapshot.Delta
}

func (r *Report) Succeeded() bool {
	return r.State == StateSuccess
}

func (r *Report) Phase(name string) (PhaseReport, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseReport{}, false
}

func (r *Report) FailedDimensions() []*dimension.Result {
	var failed []*dimension.Result
	for _, d := range r.Dimensions {
		if !d.Succeeded() {
			failed = append(failed, d)
		}
	}
	return failed
}

func (r *Report) FailedFacts() []*fact.Result {
	var failed []*fact.Result
	for _, f := range r.Facts {
		if !f.Succeeded() {
			failed = append(failed, f)
		}
	}
	return failed
}
