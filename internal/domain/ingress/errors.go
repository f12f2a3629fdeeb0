package ingress

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed marks a message missing required fields.
	ErrMalformed = errors.New("malformed message")
	// ErrDuplicate marks a transport redelivery of an already seen message.
	ErrDuplicate = errors.New("duplicate message")
	// ErrClockSkew is matched by every ClockSkewWarning.
	ErrClockSkew = errors.New("clock skew")
)

// ClockSkewWarning reports a node whose clock offset jumped beyond the skew
// threshold. It is advisory: the offset has already been recalibrated.
type ClockSkewWarning struct {
	Node string
	Jump time.Duration
}

func (w *ClockSkewWarning) Error() string {
	return fmt.Sprintf("clock skew on node %q: offset moved %s", w.Node, w.Jump)
}

func (w *ClockSkewWarning) Unwrap() error { return ErrClockSkew }
