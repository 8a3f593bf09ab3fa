package planner

import (
	"fmt"

	"legacy-migrate/internal/catalog"
)

// GroupKeyColumn names the projected column of a group key selection.
const GroupKeyColumn = "groupId"

// SelectionKind enumerates the projections a plan can carry.
type SelectionKind int

const (
	SelectionRows SelectionKind = iota
	SelectionCount
	SelectionGroupKey
	SelectionRaw
)

func (k SelectionKind) String() string {
	switch k {
	case SelectionRows:
		return "rows"
	case SelectionCount:
		return "count"
	case SelectionGroupKey:
		return "group_key"
	case SelectionRaw:
		return "raw"
	default:
		return fmt.Sprintf("SelectionKind(%d)", int(k))
	}
}

// Selection describes the projection of a plan. The zero value selects rows.
type Selection struct {
	kind   SelectionKind
	target catalog.Class
	expr   string
}

// SelectRows projects the base columns plus every joined column keyed alias.column.
func SelectRows() Selection {
	return Selection{kind: SelectionRows}
}

// SelectCount projects the number of eligible rows.
func SelectCount() Selection {
	return Selection{kind: SelectionCount}
}

// SelectGroupKey projects the distinct primary keys of the joined target class as groupId.
func SelectGroupKey(target catalog.Class) Selection {
	return Selection{kind: SelectionGroupKey, target: target}
}

// SelectRaw projects expr verbatim.
func SelectRaw(expr string) Selection {
	return Selection{kind: SelectionRaw, expr: expr}
}

func (s Selection) Kind() SelectionKind {
	return s.kind
}

// Target is the class of a group key selection.
func (s Selection) Target() catalog.Class {
	return s.target
}

// Expr is the expression of a raw selection.
func (s Selection) Expr() string {
	return s.expr
}

func (s Selection) String() string {
	switch s.kind {
	case SelectionGroupKey:
		return fmt.Sprintf("group_key(%s)", s.target)
	case SelectionRaw:
		return fmt.Sprintf("raw(%s)", s.expr)
	default:
		return s.kind.String()
	}
}
