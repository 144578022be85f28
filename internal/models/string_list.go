package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/lib/pq"
)

// StringList maps a Postgres text[] column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	*l = StringList(arr)
	return nil
}
