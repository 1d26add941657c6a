package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// UUIDArray persists a uuid[] column. Encoding and parsing of the array
// literal go through lib/pq, so quoted and unquoted elements both scan; sqlite
// tests store the same literal in a TEXT column.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("uuid array: %w", err)
	}
	ids := make(UUIDArray, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("uuid array element %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	*a = ids
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	return pq.StringArray(a.Strings()).Value()
}

func (a UUIDArray) Contains(id uuid.UUID) bool {
	return slices.Contains(a, id)
}

func (a UUIDArray) Strings() []string {
	out := make([]string, len(a))
	for i, id := range a {
		out[i] = id.String()
	}
	return out
}
