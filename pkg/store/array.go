package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"stadiumhq/pkg/db"

	"github.com/lib/pq"
)

// stringList maps a []string onto a TEXT[] column in PostgreSQL and onto a
// JSON-encoded TEXT column in SQLite. It never writes NULL.
type stringList struct {
	dialect db.Dialect
	v       *[]string
}

func (l stringList) Value() (driver.Value, error) {
	vals := *l.v
	if vals == nil {
		vals = []string{}
	}
	if l.dialect == db.Postgres {
		return pq.StringArray(vals).Value()
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l stringList) Scan(src any) error {
	if src == nil {
		*l.v = []string{}
		return nil
	}
	if l.dialect == db.Postgres {
		var arr pq.StringArray
		if err := arr.Scan(src); err != nil {
			return err
		}
		*l.v = []string(arr)
		if *l.v == nil {
			*l.v = []string{}
		}
		return nil
	}

	var raw []byte
	switch t := src.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		return fmt.Errorf("unsupported list column type %T", src)
	}
	out := []string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decode list column: %w", err)
		}
	}
	if out == nil {
		out = []string{}
	}
	*l.v = out
	return nil
}
