package playground

import (
	"errors"
	"fmt"

	"github.com/ritzau/kube-playground/pkg/advisor"
)

var (
	ErrIllegalConnection = errors.New("connection not allowed")
	ErrUnknownType       = errors.New("unknown component type")
	ErrNoStore           = errors.New("snapshots are disabled")
	ErrInternal          = errors.New("internal error")
)

// ApplyError fails a whole UpdateFromYAML call. The canvas is unchanged.
type ApplyError struct {
	// Message is the user-facing summary.
	Message string
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Outcome is what every session operation reports back: success or
// failure, a short message for a toast, and advisory warnings that never
// fail the operation.
type Outcome struct {
	OK       bool     `json:"ok"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// ID names the node or edge an operation created.
	ID  string `json:"id,omitempty"`
	Err error  `json:"-"`
}

func success(message string) Outcome {
	return Outcome{OK: true, Message: message}
}

func failure(err error) Outcome {
	msg := err.Error()
	var applyErr *ApplyError
	if errors.As(err, &applyErr) {
		msg = applyErr.Message
	}
	return Outcome{OK: false, Message: msg, Err: err}
}

// warning renders advice as a one-line toast entry.
func warning(a advisor.Advice) string {
	switch {
	case a.Line > 0:
		return fmt.Sprintf("line %d: %s", a.Line, a.Message)
	case a.NodeID != "":
		return fmt.Sprintf("%s: %s", a.NodeID, a.Message)
	default:
		return a.Message
	}
}
