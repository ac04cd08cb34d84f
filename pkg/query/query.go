package query

import "strings"

// Query is a single SQL statement together with its positional arguments.
type Query struct {
	Query string
	Args  []any
}

func New(sql string, args ...any) *Query {
	return &Query{Query: sql, Args: args}
}

func (q Query) String() string {
	return q.Query
}

// ToExplainQuery wraps the statement in an EXPLAIN so that it can be validated without being executed.
func (q Query) ToExplainQuery() string {
	eq := "EXPLAIN " + strings.TrimSpace(q.Query)
	if !strings.HasSuffix(eq, ";") {
		eq += ";"
	}

	return eq
}

type QueryResult struct {
	Columns []string
	Rows    [][]interface{}
}
