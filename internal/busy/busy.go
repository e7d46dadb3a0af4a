// ABOUTME: Busy arbiter aggregating per-operation-kind completion flags
// ABOUTME: The engine is busy while any kind has started and not yet finished

package busy

import "strings"

// Kind is one of the engine operations gated by the arbiter.
type Kind int

const (
	FetchManifest Kind = iota
	ListInstalled
	Add
	Remove
	UpdateAll

	numKinds
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case FetchManifest:
		return "fetchManifest"
	case ListInstalled:
		return "listInstalled"
	case Add:
		return "add"
	case Remove:
		return "remove"
	case UpdateAll:
		return "updateAll"
	default:
		return "unknown"
	}
}

// Arbiter holds one completion flag per kind, all initially finished.
// Like the tracker it is owned by the host loop and not safe for concurrent use.
type Arbiter struct {
	finished [numKinds]bool
}

// New returns an idle arbiter.
func New() *Arbiter {
	a := &Arbiter{}
	for i := range a.finished {
		a.finished[i] = true
	}
	return a
}

// Start marks kind as running.
func (a *Arbiter) Start(k Kind) {
	a.finished[k] = false
}

// Finish marks kind as finished.
func (a *Arbiter) Finish(k Kind) {
	a.finished[k] = true
}

// Running reports whether kind has started and not finished.
func (a *Arbiter) Running(k Kind) bool {
	return !a.finished[k]
}

// IsBusy reports whether any kind is running.
func (a *Arbiter) IsBusy() bool {
	for _, done := range a.finished {
		if !done {
			return true
		}
	}
	return false
}

// String lists the running kinds, or "idle".
func (a *Arbiter) String() string {
	var running []string
	for k := Kind(0); k < numKinds; k++ {
		if a.Running(k) {
			running = append(running, k.String())
		}
	}
	if len(running) == 0 {
		return "idle"
	}
	return "busy: " + strings.Join(running, ", ")
}
