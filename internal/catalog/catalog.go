package catalog

import (
	"errors"
	"fmt"
	"sort"

	"legacy-migrate/internal/introspection"
)

var (
	// ErrClassNotFound is returned when a class has no spec or no legacy table.
	ErrClassNotFound = errors.New("class not found")
	// ErrNoPrimaryKey is returned when a class table has no usable primary key.
	ErrNoPrimaryKey = errors.New("no primary key")
	// ErrNoMarkerColumn is returned when a class table lacks its migration marker column.
	ErrNoMarkerColumn = errors.New("no migration marker column")
)

// ClassInfo is a class resolved against the legacy schema.
type ClassInfo struct {
	Class        Class
	Table        string
	PrimaryKey   string
	MarkerColumn string
	Columns      []string
}

// Catalog resolves classes and their relationships from introspected metadata.
// It is immutable after New.
type Catalog struct {
	schema       *introspection.Schema
	specs        map[Class]ClassSpec
	associations AssociationMap
}

// New builds a catalog. Specs are copied; associations are validated.
func New(schema *introspection.Schema, specs map[Class]ClassSpec, associations AssociationMap) (*Catalog, error) {
	if schema == nil {
		return nil, errors.New("catalog: schema is required")
	}
	if err := associations.Validate(); err != nil {
		return nil, err
	}
	copied := make(map[Class]ClassSpec, len(specs))
	for class, spec := range specs {
		spec.Class = class
		if spec.Table == "" {
			spec.Table = DefaultTableName(class)
		}
		if spec.MarkerColumn == "" {
			spec.MarkerColumn = DefaultMarkerColumn
		}
		copied[class] = spec
	}
	assocs := make(AssociationMap, len(associations))
	for class := range associations {
		assocs[class] = associations.For(class)
	}
	return &Catalog{schema: schema, specs: copied, associations: assocs}, nil
}

// Associations returns the association map the catalog was built with.
func (c *Catalog) Associations() AssociationMap {
	return c.associations
}

// Classes returns the registered classes in name order.
func (c *Catalog) Classes() []Class {
	classes := make([]Class, 0, len(c.specs))
	for class := range c.specs {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

// Resolve returns the table metadata backing class.
func (c *Catalog) Resolve(class Class) (ClassInfo, error) {
	spec, ok := c.specs[class]
	if !ok {
		return ClassInfo{}, fmt.Errorf("%w: %s", ErrClassNotFound, class)
	}
	table, ok := c.schema.Table(spec.Table)
	if !ok {
		return ClassInfo{}, fmt.Errorf("%w: %s (table %s not in legacy schema)", ErrClassNotFound, class, spec.Table)
	}

	pk := spec.PrimaryKey
	if pk == "" {
		col := introspection.PrimaryKeyColumn(*table)
		if col == nil {
			return ClassInfo{}, fmt.Errorf("%w: table %s", ErrNoPrimaryKey, table.Name)
		}
		pk = col.Name
	} else if !table.HasColumn(pk) {
		return ClassInfo{}, fmt.Errorf("%w: table %s has no column %s", ErrNoPrimaryKey, table.Name, pk)
	}
	if !table.HasColumn(spec.MarkerColumn) {
		return ClassInfo{}, fmt.Errorf("%w: table %s has no column %s", ErrNoMarkerColumn, table.Name, spec.MarkerColumn)
	}

	return ClassInfo{
		Class:        class,
		Table:        table.Name,
		PrimaryKey:   pk,
		MarkerColumn: spec.MarkerColumn,
		Columns:      table.ColumnNames(),
	}, nil
}

// AssociationsByTargetClass returns the relationships from class to target.
// It returns nil when either class is unknown or no foreign key links them.
func (c *Catalog) AssociationsByTargetClass(class, target Class) []introspection.Relationship {
	spec, ok := c.specs[class]
	if !ok {
		return nil
	}
	targetSpec, ok := c.specs[target]
	if !ok {
		return nil
	}
	table, ok := c.schema.Table(spec.Table)
	if !ok {
		return nil
	}
	return table.RelationshipsTo(targetSpec.Table)
}
