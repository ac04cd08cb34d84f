package postgres

import (
	"context"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/football-dw/warehouse/pkg/helpers"
	"github.com/football-dw/warehouse/pkg/query"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const undefinedTable = "42P01"

type PgConfig interface {
	ToDBConnectionURI() string
	GetDatabase() string
}

// Querier is implemented by both the pool and an open transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Connection interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Client struct {
	connection Connection
	config     PgConfig
}

func NewClient(ctx context.Context, c PgConfig) (*Client, error) {
	conn, err := pgxpool.New(ctx, c.ToDBConnectionURI())
	if err != nil {
		return nil, err
	}

	return &Client{connection: conn, config: c}, nil
}

func NewClientWithConnection(conn Connection) *Client {
	return &Client{connection: conn}
}

func (c *Client) Close() {
	if closer, ok := c.connection.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Select runs a query and returns the results.
func (c *Client) Select(ctx context.Context, query *query.Query) ([][]interface{}, error) {
	rows, err := c.connection.Query(ctx, query.String(), query.Args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}

	defer rows.Close()

	collectedRows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]interface{}, error) {
		return row.Values()
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect row values")
	}

	if len(collectedRows) == 0 {
		return make([][]interface{}, 0), nil
	}

	return collectedRows, nil
}

func (c *Client) SelectWithSchema(ctx context.Context, queryObj *query.Query) (*query.QueryResult, error) {
	rows, err := c.connection.Query(ctx, queryObj.String(), queryObj.Args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	if fieldDescriptions == nil {
		return nil, errors.New("field descriptions are not available")
	}

	columns := make([]string, len(fieldDescriptions))
	for i, field := range fieldDescriptions {
		columns[i] = field.Name
	}

	collectedRows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]interface{}, error) {
		return row.Values()
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect row values")
	}

	return &query.QueryResult{
		Columns: columns,
		Rows:    collectedRows,
	}, nil
}

// Stream hands every row of the query to fn without buffering the result set.
func (c *Client) Stream(ctx context.Context, query *query.Query, fn func(values []any) error) error {
	rows, err := c.connection.Query(ctx, query.String(), query.Args...)
	if err != nil {
		return errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return errors.Wrap(err, "failed to read row values")
		}

		if err := fn(values); err != nil {
			return err
		}
	}

	return errors.Wrap(rows.Err(), "failed to iterate rows")
}

// ServerVersion doubles as the connectivity probe.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	var version string
	if err := c.connection.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", errors.Wrap(err, "failed to run test query on Postgres connection")
	}

	return version, nil
}

// IsValid plans the query without running it.
func (c *Client) IsValid(ctx context.Context, query *query.Query) (bool, error) {
	rows, err := c.connection.Query(ctx, query.ToExplainQuery(), query.Args...)
	if err == nil {
		err = rows.Err()
	}

	if rows != nil {
		defer rows.Close()
	}

	return err == nil, err
}

// WithTransaction commits when fn succeeds and rolls back otherwise. The error returned by fn is passed
// through unchanged so callers can inspect it.
func (c *Client) WithTransaction(ctx context.Context, fn func(tx Querier) error) error {
	tx, err := c.connection.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Wrapf(err, "rollback failed with '%v'", rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(ctx), "failed to commit transaction")
}

// ExecAll runs the statements in order inside a single transaction.
func (c *Client) ExecAll(ctx context.Context, statements []string) error {
	return c.WithTransaction(ctx, func(tx Querier) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return errors.Wrapf(err, "failed to execute statement: %s", stmt)
			}
		}
		return nil
	})
}

// CopyRows bulk-appends rows to table using the COPY protocol.
func CopyRows(ctx context.Context, q Querier, table pgx.Identifier, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := q.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, errors.Wrapf(err, "failed to copy rows into %s", table.Sanitize())
	}
	return n, nil
}

// KeyLookup maps every natural key of the dimension to its current surrogate key.
func (c *Client) KeyLookup(ctx context.Context, d dw.Dimension) (map[string]int64, error) {
	lookup := make(map[string]int64)
	err := c.Stream(ctx, query.New(KeyLookupQuery(d)), func(values []any) error {
		sk, ok := helpers.ToInt64(values[1])
		if !ok {
			return errors.Errorf("invalid surrogate key '%v' in %s", values[1], d.Name)
		}
		lookup[helpers.ToText(values[0])] = sk
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build key lookup for %s", d.Name)
	}

	return lookup, nil
}

// TableCounts counts the rows of each table in schema. Tables that do not exist are left out of the result.
func (c *Client) TableCounts(ctx context.Context, schema string, tables []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var count int64
		err := c.connection.QueryRow(ctx, CountRowsQuery(schema, table)).Scan(&count)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
				continue
			}
			return nil, errors.Wrapf(err, "failed to count rows of %s.%s", schema, table)
		}
		counts[table] = count
	}

	return counts, nil
}
