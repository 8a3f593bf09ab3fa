package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// BaseAlias is the alias of the planned class in every query.
const BaseAlias = "o"

// JoinPolicy states which migration state the joined row must be in.
type JoinPolicy int

const (
	// JoinRequireMigrated joins only parents that already exist in the new store.
	JoinRequireMigrated JoinPolicy = iota
	// JoinRequireUnmigrated joins only containers that have not been migrated yet.
	// A migrated container closes its children for migration.
	JoinRequireUnmigrated
)

func (p JoinPolicy) String() string {
	switch p {
	case JoinRequireMigrated:
		return "require_migrated"
	case JoinRequireUnmigrated:
		return "require_unmigrated"
	default:
		return fmt.Sprintf("JoinPolicy(%d)", int(p))
	}
}

// Association declares a related class joined under Alias.
type Association struct {
	Alias  string
	Target Class
	Join   JoinPolicy
}

// AssociationMap lists, per class, the associations to join in declaration order.
// It is built once at startup and must not be mutated afterwards.
type AssociationMap map[Class][]Association

// ErrInvalidAssociations is returned by Validate.
var ErrInvalidAssociations = errors.New("invalid association map")

// DefaultAssociations returns the association table of the legacy schema.
func DefaultAssociations() AssociationMap {
	toUser := []Association{{Alias: "u", Target: User}}
	return AssociationMap{
		Holiday:     toUser,
		UserProfile: toUser,
		UserUnit:    toUser,
		Contact:     toUser,
		PontajResource: {
			{Alias: "t", Target: Pontaj, Join: JoinRequireUnmigrated},
		},
		Project: {
			{Alias: "u", Target: User},
			{Alias: "c", Target: Company},
		},
		TaskLog: {
			{Alias: "u", Target: User},
			{Alias: "t", Target: Task},
		},
		Task: {
			{Alias: "p", Target: Project},
		},
	}
}

// For returns a copy of the associations declared for class.
func (m AssociationMap) For(class Class) []Association {
	assocs := m[class]
	if len(assocs) == 0 {
		return nil
	}
	return append([]Association(nil), assocs...)
}

// AliasFor returns the alias under which target is joined for class.
func (m AssociationMap) AliasFor(class, target Class) (string, bool) {
	for _, assoc := range m[class] {
		if assoc.Target == target {
			return assoc.Alias, true
		}
	}
	return "", false
}

// Validate checks that aliases are non-empty, unique per class and distinct from BaseAlias.
func (m AssociationMap) Validate() error {
	classes := make([]string, 0, len(m))
	for class := range m {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)

	var errs []error
	for _, name := range classes {
		class := Class(name)
		seen := make(map[string]struct{}, len(m[class]))
		for _, assoc := range m[class] {
			switch {
			case assoc.Alias == "":
				errs = append(errs, fmt.Errorf("%w: %s has an association to %s without alias", ErrInvalidAssociations, class, assoc.Target))
			case assoc.Alias == BaseAlias:
				errs = append(errs, fmt.Errorf("%w: %s uses reserved alias %q", ErrInvalidAssociations, class, BaseAlias))
			case assoc.Target == "":
				errs = append(errs, fmt.Errorf("%w: %s alias %q has no target class", ErrInvalidAssociations, class, assoc.Alias))
			}
			if _, dup := seen[assoc.Alias]; dup && assoc.Alias != "" {
				errs = append(errs, fmt.Errorf("%w: %s declares alias %q twice", ErrInvalidAssociations, class, assoc.Alias))
			}
			seen[assoc.Alias] = struct{}{}
		}
	}
	return errors.Join(errs...)
}
