// Package task runs ordered chains of atomic steps on background workers,
// streaming progress events to a single sink and honoring cooperative
// cancellation at step boundaries.
package task

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zephh/chronobind/internal/chrono"
)

// Kind enumerates the closed set of step variants. Steps are dispatched by
// one exhaustive switch in the runner; the set is fixed and small, so open
// polymorphism would buy nothing.
type Kind int

const (
	// KindSafetyBackup backs up the paste destination's current files
	// before they are overwritten.
	KindSafetyBackup Kind = iota
	// KindCopyFiles copies the selection from source onto destination.
	KindCopyFiles
	// KindCreateBackup takes a manual backup.
	KindCreateBackup
	// KindRestoreBackup extracts a backup onto the live tree.
	KindRestoreBackup
	// KindDeleteBackup removes a backup permanently.
	KindDeleteBackup
	// KindExportBundle packages backups into a portable bundle.
	KindExportBundle
	// KindImportBundle unpacks a bundle into the backup store.
	KindImportBundle
)

// Step is one atomic unit of work. A step either fully commits its
// filesystem effect or fully rolls back before returning; nothing observes a
// half-applied step.
type Step struct {
	Kind  Kind
	Label string

	// Payload; which fields are meaningful depends on Kind.
	Source     chrono.Character
	Dest       chrono.Character
	Selection  chrono.Selection
	Origin     chrono.Origin
	Pinned     bool
	BackupID   string
	BackupIDs  []string
	Characters []chrono.Character
	BundlePath string
}

// Result is what a completed step leaves behind for later steps in the same
// chain (e.g. the copy step reads the safety backup id recorded by the
// backup step).
type Result struct {
	BackupID  string
	Done      int
	Total     int
	Conflicts []error
}

// State is the lifecycle state of a chain.
type State int32

const (
	// StatePending means the chain has been built but no step has started.
	StatePending State = iota
	// StateRunning means a worker is executing the chain's steps.
	StateRunning
	// StateCompleted is the successful terminal state.
	StateCompleted
	// StateFailed is the terminal state after a step error.
	StateFailed
	// StateCancelled is the terminal state after cancellation took effect.
	StateCancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Chain is an ordered sequence of steps created for one user intent and
// discarded on completion; it owns no persistent state.
type Chain struct {
	ID    string
	Label string
	Steps []Step

	cancelled atomic.Bool
	state     atomic.Int32
	err       error

	mu      sync.Mutex
	results []Result

	done chan struct{}
}

// NewChain builds a chain in the Pending state.
func NewChain(label string, steps ...Step) *Chain {
	return &Chain{
		ID:      uuid.NewString(),
		Label:   label,
		Steps:   steps,
		results: make([]Result, len(steps)),
		done:    make(chan struct{}),
	}
}

// Cancel requests cooperative cancellation. Steps already running finish and
// commit; steps not yet started never begin.
func (c *Chain) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (c *Chain) Cancelled() bool {
	return c.cancelled.Load()
}

// State returns the chain's current lifecycle state.
func (c *Chain) State() State {
	return State(c.state.Load())
}

// Err returns the error that failed the chain, if any. Valid after Wait.
func (c *Chain) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Result returns the recorded result of an earlier step.
func (c *Chain) Result(stepIndex int) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[stepIndex]
}

// Wait blocks until the chain reaches a terminal state.
func (c *Chain) Wait() State {
	<-c.done
	return c.State()
}

func (c *Chain) setResult(stepIndex int, r Result) {
	c.mu.Lock()
	c.results[stepIndex] = r
	c.mu.Unlock()
}

// start claims the chain for execution. Only the first caller moves it from
// Pending to Running; a chain already claimed, or already terminal, stays
// untouched.
func (c *Chain) start() bool {
	return c.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}

// transition moves to a new state; transitions out of a terminal state are
// ignored.
func (c *Chain) transition(next State) bool {
	for {
		cur := State(c.state.Load())
		if cur.Terminal() {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

// finish moves the chain to its terminal state. It reports whether this call
// performed the transition; only that caller may announce the outcome.
func (c *Chain) finish(final State, err error) bool {
	if !c.transition(final) {
		return false
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
	return true
}
