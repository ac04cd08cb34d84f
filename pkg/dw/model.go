package dw

import (
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/yourbasic/graph"
)

const (
	ColumnValidFrom = "valid_from"
	ColumnValidTo   = "valid_to"
	ColumnIsCurrent = "is_current"
	ColumnRowHash   = "source_row_hash"
	ColumnLoadedAt  = "loaded_at"
)

type Column struct {
	Name string
	Type string
}

// Reference points a column at the surrogate key of another dimension. The value read from the source in
// that position is the referenced dimension's natural key.
type Reference struct {
	Column    string
	Dimension string
	Mandatory bool

	// Normalize maps a raw source value to the natural key stored in the referenced dimension.
	Normalize func(raw any) string
}

type Dimension struct {
	Schema       string
	Name         string
	SurrogateKey string
	NaturalKey   Column
	Attributes   []Column

	// Versioned dimensions keep history as SCD Type 2 rows; the others are upserted in place.
	Versioned bool
	// Tracked lists the attributes whose change opens a new version.
	Tracked []string
	// Required lists attributes that must be present for a source row to be loaded.
	Required   []string
	References []Reference
	DependsOn  []string

	// Source returns the natural key followed by the attributes, in declaration order.
	Source string
	// Generate replaces Source for dimensions that are not extracted from the source schema.
	Generate func() [][]any
	// Transform reshapes a raw source row into the natural key and attributes.
	Transform func(raw []any) ([]any, error)
	// Finalize runs once over the whole extracted set before it is loaded.
	Finalize func(rows [][]any)
}

func (d Dimension) Table() pgx.Identifier {
	return pgx.Identifier{d.Schema, d.Name}
}

func (d Dimension) AttributeNames() []string {
	return lo.Map(d.Attributes, func(c Column, _ int) string { return c.Name })
}

// Columns lists the natural key and attributes in source order.
func (d Dimension) Columns() []string {
	return append([]string{d.NaturalKey.Name}, d.AttributeNames()...)
}

func (d Dimension) TrackedIndexes() []int {
	indexes := make([]int, 0, len(d.Tracked))
	for _, name := range d.Tracked {
		if i := lo.IndexOf(d.Columns(), name); i >= 0 {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

type Fact struct {
	Schema       string
	Name         string
	SurrogateKey string
	References   []Reference
	Measures     []Column
	Attributes   []Column

	// Source returns one natural key per reference, then the measures, then the attributes.
	Source string
}

func (f Fact) Table() pgx.Identifier {
	return pgx.Identifier{f.Schema, f.Name}
}

// Columns lists the loaded columns in source order.
func (f Fact) Columns() []string {
	cols := make([]string, 0, len(f.References)+len(f.Measures)+len(f.Attributes))
	for _, ref := range f.References {
		cols = append(cols, ref.Column)
	}
	for _, m := range f.Measures {
		cols = append(cols, m.Name)
	}
	for _, a := range f.Attributes {
		cols = append(cols, a.Name)
	}
	return cols
}

type Catalog struct {
	Schema     string
	Dimensions []Dimension
	Facts      []Fact
}

func (c Catalog) Dimension(name string) (Dimension, bool) {
	return lo.Find(c.Dimensions, func(d Dimension) bool { return d.Name == name })
}

func (c Catalog) Fact(name string) (Fact, bool) {
	return lo.Find(c.Facts, func(f Fact) bool { return f.Name == name })
}

func (c Catalog) VersionedDimensions() []Dimension {
	return lo.Filter(c.Dimensions, func(d Dimension, _ int) bool { return d.Versioned })
}

// Tables returns every warehouse table name, dimensions first.
func (c Catalog) Tables() []string {
	names := lo.Map(c.Dimensions, func(d Dimension, _ int) string { return d.Name })
	return append(names, lo.Map(c.Facts, func(f Fact, _ int) string { return f.Name })...)
}

// LoadOrder sorts the dimensions so that every dimension comes after the ones it depends on.
func (c Catalog) LoadOrder() ([]Dimension, error) {
	index := make(map[string]int, len(c.Dimensions))
	for i, d := range c.Dimensions {
		index[d.Name] = i
	}

	g := graph.New(len(c.Dimensions))
	for i, d := range c.Dimensions {
		for _, dep := range d.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, errors.Errorf("dimension '%s' depends on unknown dimension '%s'", d.Name, dep)
			}
			g.Add(j, i)
		}
	}

	order, ok := graph.TopSort(g)
	if !ok {
		return nil, errors.New("dimension dependencies contain a cycle")
	}

	return lo.Map(order, func(i int, _ int) Dimension { return c.Dimensions[i] }), nil
}

// Validate checks that every reference in the catalog points at a known dimension.
func (c Catalog) Validate() error {
	check := func(owner string, refs []Reference) error {
		for _, ref := range refs {
			if _, ok := c.Dimension(ref.Dimension); !ok {
				return errors.Errorf("%s.%s references unknown dimension '%s'", owner, ref.Column, ref.Dimension)
			}
		}
		return nil
	}

	for _, d := range c.Dimensions {
		if err := check(d.Name, d.References); err != nil {
			return err
		}
		for _, ref := range d.References {
			if !lo.Contains(d.AttributeNames(), ref.Column) {
				return errors.Errorf("%s references through '%s', which is not an attribute", d.Name, ref.Column)
			}
		}
	}
	for _, f := range c.Facts {
		if err := check(f.Name, f.References); err != nil {
			return err
		}
	}

	_, err := c.LoadOrder()
	return err
}
