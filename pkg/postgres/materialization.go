package postgres

import (
	"fmt"
	"strings"

	"github.com/football-dw/warehouse/pkg/dw"
	"github.com/samber/lo"
)

func QuoteIdentifier(identifier string) string {
	parts := strings.Split(identifier, ".")
	quotedParts := make([]string, len(parts))
	for i, part := range parts {
		quotedParts[i] = fmt.Sprintf(`"%s"`, strings.ReplaceAll(part, `"`, `""`))
	}
	return strings.Join(quotedParts, ".")
}

func tableName(schema, name string) string {
	return QuoteIdentifier(schema + "." + name)
}

func placeholders(from, count int) []string {
	return lo.Times(count, func(i int) string { return fmt.Sprintf("$%d", from+i) })
}

func CreateSchemaQuery(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + QuoteIdentifier(schema)
}

// CreateDimensionQueries returns the table and index DDL for a dimension.
func CreateDimensionQueries(d dw.Dimension) []string {
	defs := make([]string, 0, len(d.Attributes)+8)
	defs = append(defs,
		fmt.Sprintf("%s BIGSERIAL PRIMARY KEY", d.SurrogateKey),
		fmt.Sprintf("%s %s NOT NULL", d.NaturalKey.Name, d.NaturalKey.Type),
	)
	for _, attr := range d.Attributes {
		defs = append(defs, fmt.Sprintf("%s %s", attr.Name, attr.Type))
	}

	if d.Versioned {
		defs = append(defs,
			dw.ColumnValidFrom+" DATE NOT NULL",
			dw.ColumnValidTo+" DATE",
			dw.ColumnIsCurrent+" BOOLEAN NOT NULL DEFAULT TRUE",
			dw.ColumnRowHash+" CHAR(32) NOT NULL",
		)
	} else {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", d.NaturalKey.Name))
	}
	defs = append(defs, dw.ColumnLoadedAt+" TIMESTAMPTZ NOT NULL DEFAULT now()")

	table := tableName(d.Schema, d.Name)
	queries := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", table, strings.Join(defs, ",\n    ")),
	}

	if d.Versioned {
		queries = append(queries,
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
				QuoteIdentifier("ux_"+d.Name+"_current"), table, d.NaturalKey.Name, dw.ColumnIsCurrent),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
				QuoteIdentifier("ix_"+d.Name+"_history"), table, d.NaturalKey.Name, dw.ColumnValidFrom),
		)
	}

	return queries
}

// CreateFactQueries returns the table DDL for a fact plus one index per dimension reference.
func CreateFactQueries(f dw.Fact) []string {
	defs := make([]string, 0, len(f.References)+len(f.Measures)+len(f.Attributes)+2)
	defs = append(defs, fmt.Sprintf("%s BIGSERIAL PRIMARY KEY", f.SurrogateKey))
	for _, ref := range f.References {
		defs = append(defs, ref.Column+" BIGINT")
	}
	for _, m := range f.Measures {
		defs = append(defs, fmt.Sprintf("%s %s", m.Name, m.Type))
	}
	for _, a := range f.Attributes {
		defs = append(defs, fmt.Sprintf("%s %s", a.Name, a.Type))
	}
	defs = append(defs, dw.ColumnLoadedAt+" TIMESTAMPTZ NOT NULL DEFAULT now()")

	table := tableName(f.Schema, f.Name)
	queries := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", table, strings.Join(defs, ",\n    ")),
	}
	for _, ref := range f.References {
		queries = append(queries, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			QuoteIdentifier("ix_"+f.Name+"_"+ref.Column), table, ref.Column))
	}

	return queries
}

// CatalogDDL creates the schema and every table of the catalog.
func CatalogDDL(c dw.Catalog) []string {
	queries := []string{CreateSchemaQuery(c.Schema)}
	for _, d := range c.Dimensions {
		queries = append(queries, CreateDimensionQueries(d)...)
	}
	for _, f := range c.Facts {
		queries = append(queries, CreateFactQueries(f)...)
	}
	return queries
}

// UpsertQuery inserts a dimension row or updates it in place. It returns one row when something was
// written, with inserted set to true for new keys; unchanged rows produce no result.
func UpsertQuery(d dw.Dimension) string {
	cols := d.Columns()
	table := tableName(d.Schema, d.Name)
	values := strings.Join(placeholders(1, len(cols)), ", ")

	if len(d.Attributes) == 0 {
		return fmt.Sprintf(`INSERT INTO %s (%s)
VALUES (%s)
ON CONFLICT (%s) DO NOTHING
RETURNING TRUE AS inserted`, table, strings.Join(cols, ", "), values, d.NaturalKey.Name)
	}

	attrs := d.AttributeNames()
	sets := lo.Map(attrs, func(a string, _ int) string { return fmt.Sprintf("%s = EXCLUDED.%s", a, a) })
	current := lo.Map(attrs, func(a string, _ int) string { return "target." + a })
	excluded := lo.Map(attrs, func(a string, _ int) string { return "EXCLUDED." + a })
	sets = append(sets, dw.ColumnLoadedAt+" = now()")

	return fmt.Sprintf(`INSERT INTO %s AS target (%s)
VALUES (%s)
ON CONFLICT (%s) DO UPDATE SET %s
WHERE (%s) IS DISTINCT FROM (%s)
RETURNING (xmax = 0) AS inserted`,
		table,
		strings.Join(cols, ", "),
		values,
		d.NaturalKey.Name,
		strings.Join(sets, ", "),
		strings.Join(current, ", "),
		strings.Join(excluded, ", "),
	)
}

// CurrentVersionsQuery returns natural key, surrogate key, row hash and start day of every current version.
func CurrentVersionsQuery(d dw.Dimension) string {
	return fmt.Sprintf(`SELECT CAST(%s AS TEXT), %s, %s, %s
FROM %s
WHERE %s`, d.NaturalKey.Name, d.SurrogateKey, dw.ColumnRowHash, dw.ColumnValidFrom, tableName(d.Schema, d.Name), dw.ColumnIsCurrent)
}

// CloseVersionQuery takes the surrogate key ($1) and the last valid day ($2).
func CloseVersionQuery(d dw.Dimension) string {
	return fmt.Sprintf(`UPDATE %s
SET %s = $2, %s = FALSE
WHERE %s = $1 AND %s`,
		tableName(d.Schema, d.Name), dw.ColumnValidTo, dw.ColumnIsCurrent, d.SurrogateKey, dw.ColumnIsCurrent)
}

// ReviseVersionQuery overwrites the attributes of a current version in place. It takes the surrogate key, the
// attributes and the row hash.
func ReviseVersionQuery(d dw.Dimension) string {
	attrs := d.AttributeNames()
	sets := make([]string, 0, len(attrs)+2)
	for i, a := range attrs {
		sets = append(sets, fmt.Sprintf("%s = $%d", a, i+2))
	}
	sets = append(sets,
		fmt.Sprintf("%s = $%d", dw.ColumnRowHash, len(attrs)+2),
		dw.ColumnLoadedAt+" = now()",
	)

	return fmt.Sprintf(`UPDATE %s
SET %s
WHERE %s = $1 AND %s`, tableName(d.Schema, d.Name), strings.Join(sets, ", "), d.SurrogateKey, dw.ColumnIsCurrent)
}

// InsertVersionQuery takes the natural key and attributes followed by valid_from and the row hash.
func InsertVersionQuery(d dw.Dimension) string {
	cols := d.Columns()
	n := len(cols)
	all := append(append([]string{}, cols...), dw.ColumnValidFrom, dw.ColumnValidTo, dw.ColumnIsCurrent, dw.ColumnRowHash)
	values := append(placeholders(1, n), fmt.Sprintf("$%d", n+1), "NULL", "TRUE", fmt.Sprintf("$%d", n+2))

	return fmt.Sprintf(`INSERT INTO %s (%s)
VALUES (%s)`, tableName(d.Schema, d.Name), strings.Join(all, ", "), strings.Join(values, ", "))
}

func KeyLookupQuery(d dw.Dimension) string {
	q := fmt.Sprintf("SELECT CAST(%s AS TEXT), %s\nFROM %s", d.NaturalKey.Name, d.SurrogateKey, tableName(d.Schema, d.Name))
	if d.Versioned {
		q += "\nWHERE " + dw.ColumnIsCurrent
	}
	return q
}

func TruncateQuery(f dw.Fact) string {
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", tableName(f.Schema, f.Name))
}

func CountRowsQuery(schema, table string) string {
	return "SELECT COUNT(*) FROM " + tableName(schema, table)
}

// OrphanCountQuery counts fact rows whose reference does not resolve. For mandatory references a missing
// key counts as an orphan as well.
func OrphanCountQuery(f dw.Fact, ref dw.Reference, d dw.Dimension) string {
	condition := fmt.Sprintf("d.%s IS NULL", d.SurrogateKey)
	if !ref.Mandatory {
		condition = fmt.Sprintf("f.%s IS NOT NULL AND %s", ref.Column, condition)
	}

	return fmt.Sprintf(`SELECT COUNT(*)
FROM %s f
LEFT JOIN %s d ON d.%s = f.%s
WHERE %s`, tableName(f.Schema, f.Name), tableName(d.Schema, d.Name), d.SurrogateKey, ref.Column, condition)
}

// DuplicateCurrentQuery counts natural keys with more than one current version.
func DuplicateCurrentQuery(d dw.Dimension) string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM (
    SELECT %s
    FROM %s
    WHERE %s
    GROUP BY %s
    HAVING COUNT(*) > 1
) duplicates`, d.NaturalKey.Name, tableName(d.Schema, d.Name), dw.ColumnIsCurrent, d.NaturalKey.Name)
}

// VersionIntervalViolationsQuery counts versions that break the history chain of their natural key: a
// version that ends before it starts, a closed version not followed by the next day, a current version that
// is closed or not the latest, or a closed version flagged as current.
func VersionIntervalViolationsQuery(d dw.Dimension) string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM (
    SELECT
        %[3]s,
        %[4]s,
        %[5]s,
        LEAD(%[3]s) OVER (PARTITION BY %[1]s ORDER BY %[3]s, %[2]s) AS next_valid_from
    FROM %[6]s
) versions
WHERE (%[4]s IS NOT NULL AND %[4]s < %[3]s)
   OR (%[5]s AND %[4]s IS NOT NULL)
   OR (NOT %[5]s AND %[4]s IS NULL)
   OR (next_valid_from IS NOT NULL AND (%[4]s IS NULL OR %[4]s + 1 <> next_valid_from))`,
		d.NaturalKey.Name,
		d.SurrogateKey,
		dw.ColumnValidFrom,
		dw.ColumnValidTo,
		dw.ColumnIsCurrent,
		tableName(d.Schema, d.Name),
	)
}
