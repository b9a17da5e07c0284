package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attributes holds free-form variant attributes (size, color, ...).
// Stored as jsonb.
type Attributes map[string]string

// Value implements driver.Valuer
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Attributes) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported attributes type %T", src)
	}
	return json.Unmarshal(raw, a)
}
