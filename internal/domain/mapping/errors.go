package mapping

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMapping is matched by every UnknownMappingError.
	ErrUnknownMapping = errors.New("unknown mapping")
	// ErrInvalidTable is returned when a mapping table is inconsistent.
	ErrInvalidTable = errors.New("invalid mapping table")
)

// UnknownMappingError reports a topic or action that has no entry in the
// mapping table.
type UnknownMappingError struct {
	Topic  string
	Action string
}

func (e *UnknownMappingError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("unknown mapping: topic %q", e.Topic)
	}
	return fmt.Sprintf("unknown mapping: topic %q action %q", e.Topic, e.Action)
}

func (e *UnknownMappingError) Unwrap() error { return ErrUnknownMapping }
