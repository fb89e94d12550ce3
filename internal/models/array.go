package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringArray is a string set stored as a JSON text column. JSON keeps the
// column portable between postgres and the sqlite test databases.
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for StringArray: %T", value)
	}

	if len(data) == 0 {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(data, a)
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Contains reports whether the array holds the given element
func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}
