package planner

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"legacy-migrate/internal/catalog"
	"legacy-migrate/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Marker is the migration marker of a legacy row: the identifier of its
// target-store counterpart, if the row has been migrated.
type Marker struct {
	NewID int64
	Set   bool
}

// MigratedAs returns a set marker pointing at newID.
func MigratedAs(newID int64) Marker {
	return Marker{NewID: newID, Set: true}
}

// Scan implements sql.Scanner. NULL scans as an unset marker.
func (m *Marker) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Marker{}
	case int64:
		*m = MigratedAs(v)
	case int:
		*m = MigratedAs(int64(v))
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into migration marker", src)
	}
	return nil
}

func (m *Marker) scanString(s string) error {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid migration marker %q: %w", s, err)
	}
	*m = MigratedAs(id)
	return nil
}

// Value implements driver.Valuer. An unset marker is stored as NULL.
func (m Marker) Value() (driver.Value, error) {
	if !m.Set {
		return nil, nil
	}
	return m.NewID, nil
}

func (m Marker) String() string {
	if !m.Set {
		return "unset"
	}
	return strconv.FormatInt(m.NewID, 10)
}

// MarkerUnset matches rows under alias that have not been migrated.
func MarkerUnset(alias, column string) sq.Sqlizer {
	return sq.Eq{sqlutil.Qualify(alias, column): nil}
}

// MarkerSet matches rows under alias that have been migrated.
func MarkerSet(alias, column string) sq.Sqlizer {
	return sq.NotEq{sqlutil.Qualify(alias, column): nil}
}

func joinMarkerPredicate(alias, column string, policy catalog.JoinPolicy) sq.Sqlizer {
	if policy == catalog.JoinRequireUnmigrated {
		return MarkerUnset(alias, column)
	}
	return MarkerSet(alias, column)
}
