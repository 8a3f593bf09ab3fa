// Package catalog names the legacy entity classes, declares which related
// classes must be joined when planning each of them, and resolves classes
// against introspected legacy metadata.
package catalog

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Class identifies a legacy entity class.
type Class string

const (
	User           Class = "User"
	Company        Class = "Company"
	Project        Class = "Project"
	Task           Class = "Task"
	TaskLog        Class = "TaskLog"
	Holiday        Class = "Holiday"
	UserProfile    Class = "UserProfile"
	UserUnit       Class = "UserUnit"
	Contact        Class = "Contact"
	Pontaj         Class = "Pontaj"
	PontajResource Class = "PontajResource"
)

// DefaultMarkerColumn is the legacy column holding the new-store identifier.
const DefaultMarkerColumn = "new_id"

// ClassSpec binds a class to its legacy table.
type ClassSpec struct {
	Class Class
	Table string
	// PrimaryKey is introspected when empty.
	PrimaryKey   string
	MarkerColumn string
}

// DefaultTableName derives a table name from a class: snake_case, pluralized.
func DefaultTableName(class Class) string {
	return inflection.Plural(snakeCase(string(class)))
}

// DefaultClassSpecs returns specs for every known class using default naming.
func DefaultClassSpecs() map[Class]ClassSpec {
	classes := []Class{User, Company, Project, Task, TaskLog, Holiday, UserProfile, UserUnit, Contact, Pontaj, PontajResource}
	specs := make(map[Class]ClassSpec, len(classes))
	for _, class := range classes {
		specs[class] = ClassSpec{
			Class:        class,
			Table:        DefaultTableName(class),
			MarkerColumn: DefaultMarkerColumn,
		}
	}
	return specs
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
