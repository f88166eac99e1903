package session

import (
	"fmt"

	"github.com/zameerb1/medasr/internal/ipc"
)

// StateError reports an operation refused by the current machine state,
// such as starting while a dictation is already being processed.
type StateError struct {
	Op     string
	State  ipc.SessionState
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}
