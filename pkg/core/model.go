package core

import "strings"

// ModelIdentity names a model. It is derived from the file location and is
// immutable after creation.
type ModelIdentity struct {
	// FilePath is the path of the SQL file the model was read from.
	FilePath string
	// TableName is the file name without the .sql extension.
	TableName string
	// SchemaName is the first directory below the models root.
	SchemaName string
	// QualifiedName is SchemaName + "." + TableName.
	QualifiedName string
}

// NewModelIdentity builds an identity from its parts.
func NewModelIdentity(filePath, schema, table string) ModelIdentity {
	return ModelIdentity{
		FilePath:      filePath,
		TableName:     table,
		SchemaName:    schema,
		QualifiedName: schema + "." + table,
	}
}

// ColumnMetadata describes one item of a model's top-level select list.
type ColumnMetadata struct {
	// Name is the underlying expression name: a column, a function name,
	// "*" or "?column?".
	Name string
	// Alias is the AS name, empty when the item is not aliased.
	Alias string
	// Description comes from the comment attached to the select item.
	Description string
	// Position is the 1-based ordinal in the select list.
	Position int
	// Sources are the table references the expression reads from, with
	// table aliases replaced by the relation they stand for.
	Sources []string
}

// OutputName returns the name the column has in the result set.
func (c ColumnMetadata) OutputName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Name
}

// Span locates a reference in the model source.
type Span struct {
	Offset int // byte offset
	Line   int // 1-based
	Column int // 1-based
}

// RawReference is a table reference as written in the SQL, before
// resolution. Unset qualifiers are empty.
type RawReference struct {
	Database string
	Schema   string
	Table    string
	Span     Span
}

// Parts returns how many name parts the reference was written with.
func (r RawReference) Parts() int {
	switch {
	case r.Database != "":
		return 3
	case r.Schema != "":
		return 2
	default:
		return 1
	}
}

// String joins the present name parts with dots.
func (r RawReference) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Database, r.Schema, r.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// ModelMetadata is everything extracted from one model file.
type ModelMetadata struct {
	Identity    ModelIdentity
	Description string
	Columns     []ColumnMetadata
	// References is ordered by first appearance and de-duplicated.
	References []RawReference
	// Aliases maps a FROM/JOIN alias to the reference it binds.
	Aliases map[string]string
	// SQL is the model source text.
	SQL string
}

// Name returns the model's qualified name.
func (m *ModelMetadata) Name() string {
	return m.Identity.QualifiedName
}

// DependencyKind classifies a resolved reference.
type DependencyKind string

// Dependency kinds.
const (
	DependencyInternal DependencyKind = "internal"
	DependencyExternal DependencyKind = "external"
)

// ResolvedDependency is a reference after classification. Name is the
// qualified model name for internal models and the full reference text for
// external tables.
type ResolvedDependency struct {
	Kind DependencyKind
	Name string
}

// IsInternal reports whether the dependency is another model in the catalog.
func (d ResolvedDependency) IsInternal() bool {
	return d.Kind == DependencyInternal
}

// InternalModel returns a dependency on the named model.
func InternalModel(qualifiedName string) ResolvedDependency {
	return ResolvedDependency{Kind: DependencyInternal, Name: qualifiedName}
}

// ExternalTable returns a dependency on a table not managed by the catalog.
func ExternalTable(name string) ResolvedDependency {
	return ResolvedDependency{Kind: DependencyExternal, Name: name}
}
