package repository

import (
	"encoding/json"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

// marshalColumn serializes an embedded document for a JSON text column.
func marshalColumn(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column: %w", err)
	}
	return string(data), nil
}

// unmarshalColumn deserializes a JSON text column into dst.
func unmarshalColumn(data string, dst interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	return nil
}

// constraintConflict translates a sqlite uniqueness violation into the
// engine's CONFLICT kind; other errors pass through untouched.
func constraintConflict(err error, format string, args ...interface{}) error {
	if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
		return workflow.NewConflict(format, args...).WithCause(err)
	}
	return err
}
