package verify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/helpers"
	"github.com/football-dw/warehouse/pkg/logger"
	"github.com/football-dw/warehouse/pkg/query"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	statusOK      = "OK"
	statusEmpty   = "EMPTY"
	statusInfo    = "INFO"
	statusWarning = "WARNING"
	statusError   = "ERROR"
)

type Section struct {
	Title   string
	Columns []string
	Rows    [][]any
	Note    string
	Err     error
}

type Report struct {
	Schema   string
	Sections []Section
	// Totals holds the row count of every warehouse table that could be counted.
	Totals map[string]int64
}

func (r *Report) Failed() []Section {
	return lo.Filter(r.Sections, func(s Section, _ int) bool { return s.Err != nil })
}

type Database interface {
	SelectWithSchema(ctx context.Context, q *query.Query) (*query.QueryResult, error)
}

// Reporter builds the post-load warehouse report: table volumes, samples, quality metrics, a join sample,
// indexes, sizes and source volumes.
type Reporter struct {
	db           Database
	catalog      dw.Catalog
	sourceTables []string
	logger       logger.Logger
}

func NewReporter(db Database, catalog dw.Catalog, sourceTables []string, logger logger.Logger) *Reporter {
	return &Reporter{db: db, catalog: catalog, sourceTables: sourceTables, logger: logger}
}

// Run collects every section. A section whose query fails is kept in the report with its error, and the
// run as a whole fails.
func (r *Reporter) Run(ctx context.Context) (*Report, error) {
	schema := r.catalog.Schema
	report := &Report{Schema: schema, Totals: make(map[string]int64)}

	dims := lo.Map(r.catalog.Dimensions, func(d dw.Dimension, _ int) string { return d.Name })
	facts := lo.Map(r.catalog.Facts, func(f dw.Fact, _ int) string { return f.Name })

	steps := []func(ctx context.Context) Section{
		func(ctx context.Context) Section {
			return r.counts(ctx, "Dimension tables", schema, dims, false, report.Totals)
		},
		func(ctx context.Context) Section {
			return r.counts(ctx, "Fact tables", schema, facts, true, report.Totals)
		},
		func(ctx context.Context) Section {
			return r.section(ctx, "Sample players", query.New(samplePlayersQuery(schema)))
		},
		func(ctx context.Context) Section {
			return r.section(ctx, "Sample teams", query.New(sampleTeamsQuery(schema)))
		},
		func(ctx context.Context) Section { return r.section(ctx, "Seasons", query.New(seasonsQuery(schema))) },
		r.qualityMetrics,
		func(ctx context.Context) Section {
			s := r.section(ctx, "Top scorers", query.New(topScorersQuery(schema)))
			if s.Err == nil && len(s.Rows) == 0 {
				s.Note = "no performance facts loaded"
			}
			return s
		},
		func(ctx context.Context) Section { return r.section(ctx, "Indexes", query.New(indexesQuery, schema)) },
		func(ctx context.Context) Section { return r.section(ctx, "Size", query.New(sizeQuery, schema)) },
		func(ctx context.Context) Section {
			return r.section(ctx, "Source tables", query.New(sourceVolumesQuery, r.sourceTables))
		},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		section := step(ctx)
		if section.Err != nil {
			r.logger.Warnf("verification section '%s' failed: %v", section.Title, section.Err)
		}
		report.Sections = append(report.Sections, section)
	}

	if failed := report.Failed(); len(failed) > 0 {
		titles := lo.Map(failed, func(s Section, _ int) string { return s.Title })
		return report, errors.Errorf("verification failed for: %s", strings.Join(titles, ", "))
	}

	return report, nil
}

func (r *Reporter) section(ctx context.Context, title string, q *query.Query) Section {
	res, err := r.db.SelectWithSchema(ctx, q)
	if err != nil {
		return Section{Title: title, Err: err}
	}

	return Section{Title: title, Columns: res.Columns, Rows: res.Rows}
}

func (r *Reporter) counts(ctx context.Context, title, schema string, tables []string, withStatus bool, totals map[string]int64) Section {
	s := r.section(ctx, title, query.New(tableCountsQuery(schema, tables)))
	if s.Err != nil {
		return s
	}

	for i, row := range s.Rows {
		count, _ := helpers.ToInt64(row[1])
		totals[helpers.ToText(row[0])] = count
		if withStatus {
			status := statusOK
			if count == 0 {
				status = statusEmpty
			}
			s.Rows[i] = append(row, status)
		}
	}
	if withStatus {
		s.Columns = append(s.Columns, "status")
	}

	return s
}

func (r *Reporter) qualityMetrics(ctx context.Context) Section {
	const title = "Quality metrics"

	res, err := r.db.SelectWithSchema(ctx, query.New(qualityMetricsQuery(r.catalog.Schema)))
	if err != nil {
		return Section{Title: title, Err: err}
	}
	if len(res.Rows) != 1 || len(res.Rows[0]) != 5 {
		return Section{Title: title, Err: errors.Errorf("unexpected quality metrics result: %v", res.Rows)}
	}

	values := res.Rows[0]
	withoutAgent, _ := helpers.ToInt64(values[0])
	duplicates, _ := helpers.ToInt64(values[1])
	currentSeason := helpers.ToText(values[4])

	rows := [][]any{
		{"Players without agent", withoutAgent, lo.Ternary(withoutAgent > 0, statusInfo, statusOK)},
		{"Duplicate current players", duplicates, lo.Ternary(duplicates > 0, statusError, statusOK)},
		{"Date range coverage", fmt.Sprintf("%s to %s", helpers.ToText(values[2]), helpers.ToText(values[3])), statusOK},
		{"Current season", lo.Ternary(currentSeason == "", "NONE", currentSeason), lo.Ternary(currentSeason == "", statusWarning, statusOK)},
	}

	return Section{Title: title, Columns: []string{"check", "result", "status"}, Rows: rows}
}

// Render prints every section as a table.
func (r *Report) Render(w io.Writer) {
	title := color.New(color.FgCyan, color.Bold)
	for _, s := range r.Sections {
		title.Fprintf(w, "\n%s\n", strings.ToUpper(s.Title))

		if s.Err != nil {
			color.New(color.FgRed).Fprintf(w, "  failed: %v\n", s.Err)
			continue
		}
		if s.Note != "" {
			fmt.Fprintf(w, "  %s\n", s.Note)
			continue
		}
		if len(s.Rows) == 0 {
			fmt.Fprintln(w, "  no rows")
			continue
		}

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(lo.Map(s.Columns, func(c string, _ int) any { return c }))
		for _, row := range s.Rows {
			t.AppendRow(lo.Map(row, func(v any, _ int) any { return helpers.ToText(v) }))
		}
		t.SetStyle(table.StyleLight)
		t.Render()
	}
}
