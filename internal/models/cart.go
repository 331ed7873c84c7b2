package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CartSnapshot is stored as a JSON array in a text column.
type CartSnapshot []CartLine

func (c CartSnapshot) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CartSnapshot) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into CartSnapshot", src)
	}
	return json.Unmarshal(raw, c)
}
