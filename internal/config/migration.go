package config

import (
	"sort"
	"strings"

	"legacy-migrate/internal/catalog"
)

// Action names accepted in migration.actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// LookupClass resolves a configured class name case-insensitively.
// Viper lower-cases map keys, so class-keyed sections need this too.
func LookupClass(name string) (catalog.Class, bool) {
	name = strings.TrimSpace(name)
	for class := range catalog.DefaultClassSpecs() {
		if strings.EqualFold(string(class), name) {
			return class, true
		}
	}
	return "", false
}

// ClassList returns the configured classes in run order.
// Unknown names are dropped; Validate reports them.
func (m MigrationConfig) ClassList() []catalog.Class {
	classes := make([]catalog.Class, 0, len(m.Classes))
	for _, name := range m.Classes {
		if class, ok := LookupClass(name); ok {
			classes = append(classes, class)
		}
	}
	return classes
}

func normalizeAction(name string) (string, bool) {
	switch action := strings.ToLower(strings.TrimSpace(name)); action {
	case ActionCreate, ActionUpdate:
		return action, true
	default:
		return "", false
	}
}

// ActionList returns the configured action names, lower-cased, in run order.
// Unknown names are dropped; Validate reports them.
func (m MigrationConfig) ActionList() []string {
	actions := make([]string, 0, len(m.Actions))
	for _, name := range m.Actions {
		if action, ok := normalizeAction(name); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// ClassSpecs merges the class overrides into the default specs.
func (m MigrationConfig) ClassSpecs() map[catalog.Class]catalog.ClassSpec {
	specs := catalog.DefaultClassSpecs()
	for name, override := range m.ClassOverrides {
		class, ok := LookupClass(name)
		if !ok {
			continue
		}
		spec := specs[class]
		if override.Table != "" {
			spec.Table = override.Table
		}
		if override.PrimaryKey != "" {
			spec.PrimaryKey = override.PrimaryKey
		}
		if override.MarkerColumn != "" {
			spec.MarkerColumn = override.MarkerColumn
		}
		specs[class] = spec
	}
	return specs
}

// ColumnMap is a resolved column_maps entry.
type ColumnMap struct {
	Table        string
	Columns      map[string]string
	MarkerColumn string
}

// ResolvedColumnMaps returns the column maps keyed by class. The marker column comes
// from the catalog.ClassSpec so mapped rows that were already migrated update their
// target record.
func (m MigrationConfig) ResolvedColumnMaps() map[catalog.Class]ColumnMap {
	specs := m.ClassSpecs()
	out := make(map[catalog.Class]ColumnMap, len(m.ColumnMaps))
	for name, cm := range m.ColumnMaps {
		class, ok := LookupClass(name)
		if !ok {
			continue
		}
		columns := make(map[string]string, len(cm.Columns))
		for _, f := range cm.Columns {
			columns[f.From] = f.To
		}
		out[class] = ColumnMap{
			Table:        cm.Table,
			Columns:      columns,
			MarkerColumn: specs[class].MarkerColumn,
		}
	}
	return out
}

// builtinAdapters lists the classes with an adapter that needs no configuration.
var builtinAdapters = map[catalog.Class]bool{
	catalog.PontajResource: true,
}

// HasAdapter reports whether the class has an adapter once the app is wired.
func (m MigrationConfig) HasAdapter(class catalog.Class) bool {
	if builtinAdapters[class] {
		return true
	}
	for name := range m.ColumnMaps {
		if c, ok := LookupClass(name); ok && c == class {
			return true
		}
	}
	return false
}

// knownClassNames is used in validation hints.
func knownClassNames() string {
	names := make([]string, 0, len(catalog.DefaultClassSpecs()))
	for class := range catalog.DefaultClassSpecs() {
		names = append(names, string(class))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
