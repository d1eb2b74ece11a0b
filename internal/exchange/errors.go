package exchange

import (
	"errors"
	"fmt"
)

// ErrMalformedOrder is matched by every decoration failure
var ErrMalformedOrder = errors.New("malformed order")

// MalformedOrderError describes an order rejected at decoration
type MalformedOrderError struct {
	ID     int64
	Reason string
}

func (e *MalformedOrderError) Error() string {
	return fmt.Sprintf("malformed order %d: %s", e.ID, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedOrder) hold
func (e *MalformedOrderError) Is(target error) bool {
	return target == ErrMalformedOrder
}

func malformed(id int64, format string, args ...interface{}) *MalformedOrderError {
	return &MalformedOrderError{ID: id, Reason: fmt.Sprintf(format, args...)}
}
