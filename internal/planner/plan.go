package planner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Action is the migration step a plan selects rows for.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Join is an inner join to an associated class.
type Join struct {
	Alias         string
	Target        catalog.Class
	Table         string
	PrimaryKey    string
	MarkerColumn  string
	Policy        catalog.JoinPolicy
	LocalColumns  []string
	RemoteColumns []string
	Columns       []string
}

// QueryPlan is a composed, not yet executed read against the legacy store.
// The base class is always aliased catalog.BaseAlias.
type QueryPlan struct {
	Class        catalog.Class
	Action       Action
	Table        string
	PrimaryKey   string
	MarkerColumn string
	Columns      []string
	Joins        []Join
	Selection    Selection
	// SelectionPassthrough is set when a group key selection named a class
	// that is not joined; such plans project rows instead.
	SelectionPassthrough bool
	Filters              map[string]interface{}
	Conditions           []sq.Sqlizer
	Limit                uint64

	// After, when set, keeps only rows keyed past it in primary key order.
	After interface{}
}

// Where ANDs pred into the plan.
func (p *QueryPlan) Where(pred sq.Sqlizer) {
	if pred == nil {
		return
	}
	p.Conditions = append(p.Conditions, pred)
}

// JoinFor returns the join for target, if one was added.
func (p *QueryPlan) JoinFor(target catalog.Class) (Join, bool) {
	for _, join := range p.Joins {
		if join.Target == target {
			return join, true
		}
	}
	return Join{}, false
}

// JoinByAlias returns the join added under alias.
func (p *QueryPlan) JoinByAlias(alias string) (Join, bool) {
	for _, join := range p.Joins {
		if join.Alias == alias {
			return join, true
		}
	}
	return Join{}, false
}

// ToSQL renders the plan with ? placeholders. Every value is a bound argument.
func (p *QueryPlan) ToSQL() (SQLQuery, error) {
	if p == nil || p.Table == "" {
		return SQLQuery{}, errors.New("plan has no table")
	}

	builder := sq.Select().
		From(sqlutil.QuoteIdentifier(p.Table) + " AS " + sqlutil.QuoteIdentifier(catalog.BaseAlias))

	switch p.Selection.Kind() {
	case SelectionCount:
		builder = builder.Column("COUNT(" + sqlutil.Qualify(catalog.BaseAlias, p.PrimaryKey) + ")")
	case SelectionRaw:
		builder = builder.Column(p.Selection.Expr())
	case SelectionGroupKey:
		if join, ok := p.JoinFor(p.Selection.Target()); ok {
			builder = builder.Distinct().
				Column(sqlutil.Qualify(join.Alias, join.PrimaryKey) + " AS " + sqlutil.QuoteIdentifier(GroupKeyColumn))
			break
		}
		builder = p.selectRows(builder)
	default:
		builder = p.selectRows(builder)
	}

	for _, join := range p.Joins {
		clause, args, err := join.clause()
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.InnerJoin(clause, args...)
	}

	for _, key := range sortedKeys(p.Filters) {
		builder = builder.Where(sq.Eq{sqlutil.Qualify(catalog.BaseAlias, key): p.Filters[key]})
	}
	if p.After != nil {
		builder = builder.Where(sq.Gt{sqlutil.Qualify(catalog.BaseAlias, p.PrimaryKey): p.After})
	}
	for _, cond := range p.Conditions {
		builder = builder.Where(cond)
	}
	if p.Limit > 0 {
		builder = builder.Limit(p.Limit)
	}

	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("render plan for %s: %w", p.Class, err)
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func (p *QueryPlan) selectRows(builder sq.SelectBuilder) sq.SelectBuilder {
	columns := make([]string, 0, len(p.Columns))
	for _, col := range p.Columns {
		columns = append(columns, sqlutil.Qualify(catalog.BaseAlias, col))
	}
	for _, join := range p.Joins {
		for _, col := range join.Columns {
			columns = append(columns, sqlutil.Qualify(join.Alias, col)+" AS "+
				sqlutil.QuoteIdentifier(sqlutil.JoinedColumnKey(join.Alias, col)))
		}
	}
	return builder.Columns(columns...).OrderBy(sqlutil.Qualify(catalog.BaseAlias, p.PrimaryKey))
}

func (j Join) clause() (string, []interface{}, error) {
	if len(j.LocalColumns) == 0 || len(j.LocalColumns) != len(j.RemoteColumns) {
		return "", nil, fmt.Errorf("join %s to %s has mismatched columns", j.Alias, j.Target)
	}
	conds := make([]string, 0, len(j.LocalColumns)+1)
	for i := range j.LocalColumns {
		conds = append(conds, sqlutil.Qualify(j.Alias, j.RemoteColumns[i])+" = "+
			sqlutil.Qualify(catalog.BaseAlias, j.LocalColumns[i]))
	}
	marker, args, err := joinMarkerPredicate(j.Alias, j.MarkerColumn, j.Policy).ToSql()
	if err != nil {
		return "", nil, err
	}
	conds = append(conds, marker)

	return sqlutil.QuoteIdentifier(j.Table) + " AS " + sqlutil.QuoteIdentifier(j.Alias) +
		" ON " + strings.Join(conds, " AND "), args, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
