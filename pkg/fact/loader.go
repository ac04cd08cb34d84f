package fact

import (
	"context"
	"strings"
	"time"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/helpers"
	"github.com/football-dw/warehouse/pkg/logger"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/football-dw/warehouse/pkg/query"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	DefaultChunkSize = 5000

	// rejections past this many per fact are logged at debug level only
	rejectionWarnLimit = 20
)

type Database interface {
	KeyLookup(ctx context.Context, d dw.Dimension) (map[string]int64, error)
	WithTransaction(ctx context.Context, fn func(tx postgres.Querier) error) error
	Stream(ctx context.Context, q *query.Query, fn func(values []any) error) error
}

type Result struct {
	Fact           string
	Read           int
	Loaded         int
	Rejected       int
	NulledOptional int
	Duration       time.Duration
	Err            error
}

func (r *Result) Succeeded() bool {
	return r.Err == nil
}

type Loader struct {
	db        Database
	catalog   dw.Catalog
	logger    logger.Logger
	chunkSize int
}

func NewLoader(db Database, catalog dw.Catalog, logger logger.Logger, chunkSize int) *Loader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Loader{
		db:        db,
		catalog:   catalog,
		logger:    logger,
		chunkSize: chunkSize,
	}
}

// LoadAll reloads every fact table. Facts are independent of each other, a failed fact does not stop the
// rest from loading.
func (l *Loader) LoadAll(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, 0, len(l.catalog.Facts))
	for _, f := range l.catalog.Facts {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		results = append(results, l.Load(ctx, f))
	}

	if err := ctx.Err(); err != nil {
		return results, err
	}

	failed := lo.Filter(results, func(r *Result, _ int) bool { return !r.Succeeded() })
	if len(failed) > 0 {
		names := lo.Map(failed, func(r *Result, _ int) string { return r.Fact })
		return results, errors.Errorf("%d of %d facts failed to load: %s", len(failed), len(results), strings.Join(names, ", "))
	}

	return results, nil
}

func (l *Loader) Load(ctx context.Context, f dw.Fact) *Result {
	start := time.Now()
	res := &Result{Fact: f.Name}

	l.logger.Debugf("loading %s", f.Name)
	err := l.load(ctx, f, res)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.Loaded = 0
		l.logger.Errorf("failed to load %s: %v", f.Name, err)
		return res
	}

	if res.Rejected > 0 {
		l.logger.Warnf("%s: rejected %d of %d rows with unresolved mandatory keys", f.Name, res.Rejected, res.Read)
	}
	l.logger.Infof("loaded %s in %s: %d read, %d loaded, %d rejected, %d optional keys set to NULL",
		f.Name, res.Duration.Round(time.Millisecond), res.Read, res.Loaded, res.Rejected, res.NulledOptional)
	return res
}

func (l *Loader) load(ctx context.Context, f dw.Fact, res *Result) error {
	lookups, err := l.lookups(ctx, f)
	if err != nil {
		return err
	}

	cols := f.Columns()
	return l.db.WithTransaction(ctx, func(tx postgres.Querier) error {
		if _, err := tx.Exec(ctx, postgres.TruncateQuery(f)); err != nil {
			return errors.Wrapf(err, "failed to truncate %s", f.Name)
		}

		batch := make([][]any, 0, l.chunkSize)
		flush := func() error {
			n, err := postgres.CopyRows(ctx, tx, f.Table(), cols, batch)
			if err != nil {
				return err
			}
			res.Loaded += int(n)
			batch = make([][]any, 0, l.chunkSize)
			return nil
		}

		err := l.db.Stream(ctx, query.New(f.Source), func(values []any) error {
			res.Read++
			if len(values) != len(cols) {
				return errors.Errorf("%s source produced %d columns, expected %d", f.Name, len(values), len(cols))
			}

			row, ok := l.resolve(f, lookups, values, res)
			if !ok {
				return nil
			}

			batch = append(batch, row)
			if len(batch) >= l.chunkSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to read source of %s", f.Name)
		}

		return flush()
	})
}

// lookups fetches one natural key to surrogate key map per referenced dimension.
func (l *Loader) lookups(ctx context.Context, f dw.Fact) (map[string]map[string]int64, error) {
	lookups := make(map[string]map[string]int64)
	for _, name := range lo.Uniq(lo.Map(f.References, func(r dw.Reference, _ int) string { return r.Dimension })) {
		d, ok := l.catalog.Dimension(name)
		if !ok {
			return nil, errors.Errorf("%s references unknown dimension %s", f.Name, name)
		}

		lookup, err := l.db.KeyLookup(ctx, d)
		if err != nil {
			return nil, err
		}
		lookups[name] = lookup
	}

	return lookups, nil
}

// resolve replaces the natural keys at the front of values with surrogate keys. It returns false when a
// mandatory key does not resolve.
func (l *Loader) resolve(f dw.Fact, lookups map[string]map[string]int64, values []any, res *Result) ([]any, bool) {
	row := make([]any, len(values))
	copy(row, values)

	for i, ref := range f.References {
		key := helpers.ToText(values[i])
		if ref.Normalize != nil {
			key = ref.Normalize(values[i])
		}

		if sk, ok := lookups[ref.Dimension][key]; ok && key != "" {
			row[i] = sk
			continue
		}

		if ref.Mandatory {
			res.Rejected++
			log := l.logger.Debugw
			if res.Rejected <= rejectionWarnLimit {
				log = l.logger.Warnw
			}
			log("rejected fact row", "fact", f.Name, "column", ref.Column, "key", key, "values", values)
			return nil, false
		}

		if key != "" {
			res.NulledOptional++
		}
		row[i] = nil
	}

	return row, true
}
