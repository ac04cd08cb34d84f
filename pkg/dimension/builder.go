package dimension

import (
	"context"
	"strings"
	"time"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/helpers"
	"github.com/football-dw/warehouse/pkg/logger"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/football-dw/warehouse/pkg/query"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

var ErrDependencyNotLoaded = errors.New("dependency not loaded")

type Database interface {
	Select(ctx context.Context, q *query.Query) ([][]interface{}, error)
	WithTransaction(ctx context.Context, fn func(tx postgres.Querier) error) error
	KeyLookup(ctx context.Context, d dw.Dimension) (map[string]int64, error)
}

// Result describes one dimension load. For versioned dimensions Updated counts natural keys that received
// a new version.
type Result struct {
	Dimension string
	Versioned bool
	Extracted int
	Skipped   int
	Inserted  int
	Updated   int
	Unchanged int
	Failed    int
	Duration  time.Duration
	Err       error
}

func (r *Result) Succeeded() bool {
	return r.Err == nil
}

type Builder struct {
	db      Database
	catalog dw.Catalog
	logger  logger.Logger
	now     func() time.Time
}

func NewBuilder(db Database, catalog dw.Catalog, logger logger.Logger) *Builder {
	return &Builder{
		db:      db,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the clock that decides the validity dates of new versions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) today() time.Time {
	now := b.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// LoadAll loads every dimension after the dimensions it depends on. A dimension whose dependency failed is
// not attempted. The error summarizes the failed dimensions; the results always cover all of them.
func (b *Builder) LoadAll(ctx context.Context) ([]*Result, error) {
	order, err := b.catalog.LoadOrder()
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]bool, len(order))
	results := make([]*Result, 0, len(order))
	for _, d := range order {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		missing := lo.Filter(d.DependsOn, func(dep string, _ int) bool { return !loaded[dep] })
		if len(missing) > 0 {
			res := &Result{
				Dimension: d.Name,
				Versioned: d.Versioned,
				Err:       errors.Wrap(ErrDependencyNotLoaded, strings.Join(missing, ", ")),
			}
			b.logger.Warnf("skipping %s: %v", d.Name, res.Err)
			results = append(results, res)
			continue
		}

		res := b.Load(ctx, d)
		results = append(results, res)
		if res.Succeeded() {
			loaded[d.Name] = true
			continue
		}

		if err := ctx.Err(); err != nil {
			return results, err
		}
	}

	failed := lo.Filter(results, func(r *Result, _ int) bool { return !r.Succeeded() })
	if len(failed) > 0 {
		names := lo.Map(failed, func(r *Result, _ int) string { return r.Dimension })
		return results, errors.Errorf("%d of %d dimensions failed to load: %s", len(failed), len(results), strings.Join(names, ", "))
	}

	return results, nil
}

// Load extracts and loads a single dimension.
func (b *Builder) Load(ctx context.Context, d dw.Dimension) *Result {
	start := time.Now()
	res := &Result{Dimension: d.Name, Versioned: d.Versioned}

	b.logger.Debugf("loading %s", d.Name)
	err := b.load(ctx, d, res)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		b.logger.Errorf("failed to load %s: %v", d.Name, err)
		return res
	}

	b.logger.Infof("loaded %s in %s: %d inserted, %d updated, %d unchanged, %d skipped, %d failed",
		d.Name, res.Duration.Round(time.Millisecond), res.Inserted, res.Updated, res.Unchanged, res.Skipped, res.Failed)
	return res
}

func (b *Builder) load(ctx context.Context, d dw.Dimension, res *Result) error {
	rows, err := b.extract(ctx, d, res)
	if err != nil {
		return err
	}

	if err := b.resolveReferences(ctx, d, rows); err != nil {
		return err
	}

	if d.Versioned {
		return b.loadVersions(ctx, d, rows, res)
	}

	return b.upsert(ctx, d, rows, res)
}

// extract returns the distinct natural keys with their attributes, first occurrence wins.
func (b *Builder) extract(ctx context.Context, d dw.Dimension, res *Result) ([][]any, error) {
	var raw [][]any
	if d.Generate != nil {
		raw = d.Generate()
	} else {
		var err error
		raw, err = b.db.Select(ctx, query.New(d.Source))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract %s", d.Name)
		}
	}
	res.Extracted = len(raw)

	cols := d.Columns()
	required := lo.FilterMap(d.Required, func(name string, _ int) (int, bool) {
		i := lo.IndexOf(cols, name)
		return i, i >= 0
	})

	rows := make([][]any, 0, len(raw))
	for _, values := range raw {
		row := values
		if d.Transform != nil {
			var err error
			row, err = d.Transform(values)
			if err != nil {
				res.Skipped++
				b.logger.Warnw("skipping source row", "dimension", d.Name, "error", err.Error(), "values", values)
				continue
			}
		}

		if len(row) != len(cols) {
			return nil, errors.Errorf("%s source produced %d columns, expected %d", d.Name, len(row), len(cols))
		}

		key := helpers.ToText(row[0])
		if key == "" {
			res.Skipped++
			b.logger.Warnw("skipping source row without natural key", "dimension", d.Name, "values", values)
			continue
		}

		if i, ok := lo.Find(required, func(i int) bool { return helpers.ToText(row[i]) == "" }); ok {
			res.Skipped++
			b.logger.Warnw("skipping source row without required attribute",
				"dimension", d.Name, "natural_key", key, "attribute", cols[i], "values", values)
			continue
		}

		rows = append(rows, row)
	}

	rows = lo.UniqBy(rows, func(row []any) string { return helpers.ToText(row[0]) })
	if d.Finalize != nil {
		d.Finalize(rows)
	}

	return rows, nil
}

// resolveReferences swaps natural keys of referenced dimensions for their surrogate keys. Keys that cannot be
// resolved become NULL.
func (b *Builder) resolveReferences(ctx context.Context, d dw.Dimension, rows [][]any) error {
	cols := d.Columns()
	for _, ref := range d.References {
		target, ok := b.catalog.Dimension(ref.Dimension)
		if !ok {
			return errors.Errorf("%s references unknown dimension %s", d.Name, ref.Dimension)
		}

		lookup, err := b.db.KeyLookup(ctx, target)
		if err != nil {
			return err
		}

		idx := lo.IndexOf(cols, ref.Column)
		unresolved := 0
		for _, row := range rows {
			key := helpers.ToText(row[idx])
			if ref.Normalize != nil {
				key = ref.Normalize(row[idx])
			}

			sk, found := lookup[key]
			switch {
			case key == "":
				row[idx] = nil
			case found:
				row[idx] = sk
			default:
				unresolved++
				b.logger.Debugw("unresolved reference", "dimension", d.Name, "natural_key", row[0], "column", ref.Column, "value", key)
				row[idx] = nil
			}
		}

		if unresolved > 0 {
			b.logger.Warnf("%s: %d values of %s did not resolve against %s and were set to NULL", d.Name, unresolved, ref.Column, target.Name)
		}
	}

	return nil
}

func (b *Builder) upsert(ctx context.Context, d dw.Dimension, rows [][]any, res *Result) error {
	stmt := postgres.UpsertQuery(d)

	var inserted, updated, unchanged int
	err := b.db.WithTransaction(ctx, func(tx postgres.Querier) error {
		for _, row := range rows {
			var isNew bool
			err := tx.QueryRow(ctx, stmt, row...).Scan(&isNew)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				unchanged++
			case err != nil:
				return errors.Wrapf(err, "failed to upsert %s '%s'", d.Name, helpers.ToText(row[0]))
			case isNew:
				inserted++
			default:
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	res.Inserted, res.Updated, res.Unchanged = inserted, updated, unchanged
	return nil
}
