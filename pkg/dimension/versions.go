package dimension

import (
	"context"
	"time"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/fingerprint"
	"github.com/football-dw/warehouse/pkg/helpers"
	"github.com/football-dw/warehouse/pkg/postgres"
	"github.com/football-dw/warehouse/pkg/query"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var errVersionConflict = errors.New("current version was closed by another writer")

type version struct {
	sk        int64
	hash      string
	validFrom time.Time
}

// openedOn reports whether the version started on the given day.
func (v version) openedOn(day time.Time) bool {
	y, m, d := v.validFrom.Date()
	return y == day.Year() && m == day.Month() && d == day.Day()
}

func (b *Builder) currentVersions(ctx context.Context, d dw.Dimension) (map[string]version, error) {
	rows, err := b.db.Select(ctx, query.New(postgres.CurrentVersionsQuery(d)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read current versions of %s", d.Name)
	}

	versions := make(map[string]version, len(rows))
	for _, row := range rows {
		sk, ok := helpers.ToInt64(row[1])
		if !ok {
			return nil, errors.Errorf("invalid surrogate key '%v' in %s", row[1], d.Name)
		}
		validFrom, ok := row[3].(time.Time)
		if !ok {
			return nil, errors.Errorf("invalid valid_from '%v' in %s", row[3], d.Name)
		}
		versions[helpers.ToText(row[0])] = version{sk: sk, hash: helpers.ToText(row[2]), validFrom: validFrom}
	}

	return versions, nil
}

// loadVersions keeps one current version per natural key. A key whose tracked attributes changed gets its
// current version closed on the previous day and a new version valid from today, in one transaction per key.
// A version opened today is revised in place, so a key never holds a version that ends before it starts.
func (b *Builder) loadVersions(ctx context.Context, d dw.Dimension, rows [][]any, res *Result) error {
	current, err := b.currentVersions(ctx, d)
	if err != nil {
		return err
	}

	today := b.today()
	validTo := today.AddDate(0, 0, -1)
	closeStmt := postgres.CloseVersionQuery(d)
	insertStmt := postgres.InsertVersionQuery(d)
	reviseStmt := postgres.ReviseVersionQuery(d)
	tracked := d.TrackedIndexes()

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		key := helpers.ToText(row[0])
		hash := fingerprint.Row(row, tracked)
		existing, exists := current[key]
		if exists && existing.hash == hash {
			res.Unchanged++
			continue
		}

		args := append(append(make([]any, 0, len(row)+2), row...), today, hash)
		err := b.db.WithTransaction(ctx, func(tx postgres.Querier) error {
			if exists && existing.openedOn(today) {
				reviseArgs := append(append(append(make([]any, 0, len(row)+1), existing.sk), row[1:]...), hash)
				tag, err := tx.Exec(ctx, reviseStmt, reviseArgs...)
				if err != nil {
					return err
				}
				if tag.RowsAffected() != 1 {
					return errVersionConflict
				}
				return nil
			}

			if exists {
				tag, err := tx.Exec(ctx, closeStmt, existing.sk, validTo)
				if err != nil {
					return err
				}
				if tag.RowsAffected() != 1 {
					return errVersionConflict
				}
			}

			_, err := tx.Exec(ctx, insertStmt, args...)
			return err
		})
		if err != nil {
			if ctx.Err() == nil && isKeyFailure(err) {
				res.Failed++
				b.logger.Warnw("failed to version natural key", "dimension", d.Name, "natural_key", key, "error", err.Error())
				continue
			}
			return errors.Wrapf(err, "failed to write version of %s '%s'", d.Name, key)
		}

		if exists {
			res.Updated++
		} else {
			res.Inserted++
		}
	}

	return nil
}

// isKeyFailure reports errors that only concern the row being written, the load continues with the next key.
func isKeyFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) || errors.Is(err, errVersionConflict)
}
