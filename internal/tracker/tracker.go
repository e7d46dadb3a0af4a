// ABOUTME: Cooperative polling scheduler for pending installer and manifest operations
// ABOUTME: Each Tick polls the registry; completion handlers run once, then deregister

package tracker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mauromedda/pkgsync/internal/async"
	pslog "github.com/mauromedda/pkgsync/internal/log"
)

// Kind identifies what a pending operation does.
type Kind int

const (
	KindList Kind = iota
	KindAdd
	KindRemove
	KindFetchManifest
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindAdd:
		return "add"
	case KindRemove:
		return "remove"
	case KindFetchManifest:
		return "fetch-manifest"
	default:
		return "unknown"
	}
}

// PendingOperation is one in-flight request awaiting completion.
type PendingOperation struct {
	ID          string
	Kind        Kind
	Target      string
	SubmittedAt time.Time

	poll       async.Poller
	onComplete func()
}

// Tracker holds pending operations and advances them on each Tick.
// It is not safe for concurrent use: Submit and Tick must be called from the
// host loop that owns the engine state.
type Tracker struct {
	pending []*PendingOperation
	logger  *pslog.Logger
	now     func() time.Time
}

// New creates an empty tracker. A nil logger uses a "tracker" component logger.
func New(logger *pslog.Logger) *Tracker {
	if logger == nil {
		logger = pslog.New("tracker")
	}
	return &Tracker{logger: logger, now: time.Now}
}

// Submit registers op and returns its pending record. onComplete runs exactly
// once, on the first Tick that observes op as done.
func (t *Tracker) Submit(kind Kind, target string, op async.Poller, onComplete func()) *PendingOperation {
	p := &PendingOperation{
		ID:          uuid.NewString(),
		Kind:        kind,
		Target:      target,
		SubmittedAt: t.now(),
		poll:        op,
		onComplete:  onComplete,
	}
	t.pending = append(t.pending, p)
	t.logger.Debug("submitted %s %q (%s)", kind, target, p.ID)
	return p
}

// Tick polls every pending operation once. Completed operations are removed
// from the registry before their handler runs, so a failing handler never
// leaves its operation registered. Operations submitted by handlers are
// polled on the next Tick. Returns the number of operations completed.
func (t *Tracker) Tick() int {
	if len(t.pending) == 0 {
		return 0
	}

	snapshot := slices.Clone(t.pending)
	completed := 0
	for _, p := range snapshot {
		if !p.poll.Done() {
			continue
		}
		t.remove(p)
		completed++
		if err := t.run(p); err != nil {
			t.logger.Error("%v", err)
		}
	}
	return completed
}

func (t *Tracker) run(p *PendingOperation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion handler for %s %q panicked: %v", p.Kind, p.Target, r)
		}
	}()
	t.logger.Debug("completed %s %q after %s", p.Kind, p.Target, t.now().Sub(p.SubmittedAt).Round(time.Millisecond))
	if p.onComplete != nil {
		p.onComplete()
	}
	return nil
}

func (t *Tracker) remove(p *PendingOperation) {
	if i := slices.Index(t.pending, p); i >= 0 {
		t.pending = slices.Delete(t.pending, i, i+1)
	}
}

// Len returns the number of pending operations.
func (t *Tracker) Len() int {
	return len(t.pending)
}

// Pending returns a snapshot of the pending operations in submission order.
func (t *Tracker) Pending() []PendingOperation {
	out := make([]PendingOperation, len(t.pending))
	for i, p := range t.pending {
		out[i] = *p
	}
	return out
}

// Run calls Tick every interval until idle reports true after a tick or ctx
// is cancelled. It is the tick source for command-line hosts.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, idle func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t.Tick()
		if idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
