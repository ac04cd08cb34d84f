package quality

import (
	"context"
	"fmt"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/helpers"
	"github.com/football-dw/warehouse/pkg/logger"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/football-dw/warehouse/pkg/query"
	"github.com/samber/lo"
)

type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

var DefaultCoreTables = []string{
	dw.DimPlayer,
	dw.DimTeam,
	dw.DimSeason,
	dw.FactPlayerPerformance,
	dw.FactMarketValue,
}

type Check struct {
	Name   string `json:"check_name"`
	Result int64  `json:"result"`
	Status Status `json:"status"`
	// Hard marks violations that indicate a bug in the loader rather than in the data.
	Hard    bool   `json:"hard,omitempty"`
	Message string `json:"message,omitempty"`
}

func (c Check) Passed() bool {
	return c.Status == StatusOK
}

type Report struct {
	Checks      []Check `json:"checks"`
	Passed      bool    `json:"passed"`
	HardFailure bool    `json:"hard_failure"`
}

func (r *Report) Failed() []Check {
	return lo.Filter(r.Checks, func(c Check, _ int) bool { return !c.Passed() })
}

type selector interface {
	Select(ctx context.Context, q *query.Query) ([][]interface{}, error)
}

type Validator struct {
	db         selector
	catalog    dw.Catalog
	coreTables []string
	logger     logger.Logger
}

func NewValidator(db selector, catalog dw.Catalog, coreTables []string, logger logger.Logger) *Validator {
	if len(coreTables) == 0 {
		coreTables = DefaultCoreTables
	}

	return &Validator{
		db:         db,
		catalog:    catalog,
		coreTables: coreTables,
		logger:     logger,
	}
}

type checkDefinition struct {
	name  string
	query string
	// failure is the status given to a positive count, or to a zero count for row counts.
	failure Status
	hard    bool
	empty   bool
}

func (v *Validator) definitions() []checkDefinition {
	var defs []checkDefinition
	for _, table := range v.coreTables {
		defs = append(defs, checkDefinition{
			name:    "row_count:" + table,
			query:   postgres.CountRowsQuery(v.catalog.Schema, table),
			failure: StatusWarning,
			empty:   true,
		})
	}

	for _, f := range v.catalog.Facts {
		for _, ref := range f.References {
			d, ok := v.catalog.Dimension(ref.Dimension)
			if !ok {
				continue
			}
			defs = append(defs, checkDefinition{
				name:    fmt.Sprintf("orphans:%s.%s", f.Name, ref.Column),
				query:   postgres.OrphanCountQuery(f, ref, d),
				failure: StatusWarning,
			})
		}
	}

	for _, d := range v.catalog.VersionedDimensions() {
		defs = append(defs,
			checkDefinition{
				name:    "current_version_uniqueness:" + d.Name,
				query:   postgres.DuplicateCurrentQuery(d),
				failure: StatusError,
				hard:    true,
			},
			checkDefinition{
				name:    "version_intervals:" + d.Name,
				query:   postgres.VersionIntervalViolationsQuery(d),
				failure: StatusError,
				hard:    true,
			},
		)
	}

	return defs
}

// Run executes every check. Findings never produce an error; a check whose query fails is reported with
// status ERROR. Only a cancelled context stops the battery.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	report := &Report{Passed: true}
	for _, def := range v.definitions() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		check := v.run(ctx, def)
		if !check.Passed() {
			report.Passed = false
		}
		if check.Hard && !check.Passed() {
			report.HardFailure = true
		}
		report.Checks = append(report.Checks, check)
	}

	v.logger.Infof("quality validation finished: %d checks, %d failed", len(report.Checks), len(report.Failed()))
	return report, nil
}

func (v *Validator) run(ctx context.Context, def checkDefinition) Check {
	check := Check{Name: def.name, Status: StatusOK}

	count, err := v.count(ctx, def.query)
	if err != nil {
		check.Status = StatusError
		check.Result = -1
		check.Message = err.Error()
		v.logger.Warnw("quality check could not run", "check", def.name, "error", err.Error())
		return check
	}

	check.Result = count
	failed := count > 0
	if def.empty {
		failed = count == 0
	}
	if failed {
		check.Status = def.failure
		check.Hard = def.hard
	}

	if check.Hard {
		v.logger.Errorf("quality check %s failed: %d", def.name, count)
	} else {
		v.logger.Debugf("quality check %s: %d (%s)", def.name, count, check.Status)
	}
	return check
}

func (v *Validator) count(ctx context.Context, sql string) (int64, error) {
	res, err := v.db.Select(ctx, query.New(sql))
	if err != nil {
		return 0, err
	}

	return helpers.CastResultToInteger(res)
}
