package repcrec

import "fmt"

// ProgrammerError represents the kind-2 errors of this system: structural
// bugs in the operation stream itself, as distinct from ordinary operational
// outcomes (waits, aborts) that the manager reports through Outcome. A
// duplicate tid at begin or a write issued against a read-only transaction
// are both programmer errors.
type ProgrammerError struct {
	Op     string
	Tid    string
	Reason string
}

func (e *ProgrammerError) Error() string {
	return fmt.Sprintf("%s(%s): %s", e.Op, e.Tid, e.Reason)
}
