package task

import (
	"sync"

	"go.uber.org/zap"
)

// Event is one progress or terminal notification for a chain. Progress
// events stream while a step runs and after each step completes; exactly one
// terminal event per chain carries the final state.
type Event struct {
	ChainID   string
	StepIndex int
	StepCount int
	Done      int
	Total     int
	Label     string

	Terminal bool
	State    State
	Err      error
}

// Runner executes a single step. Implementations dispatch on step.Kind with
// an exhaustive switch and report within-step progress through the callback.
// A non-nil error means the step rolled back per its contract.
type Runner interface {
	RunStep(chain *Chain, stepIndex int, step Step, progress func(done, total int)) (Result, error)
}

// Executor runs chains on dedicated background workers, one goroutine per
// in-flight chain. Independent chains run concurrently; ordering across
// chains is the business of the store's per-character locks, not the
// executor.
type Executor struct {
	runner Runner
	events chan Event
	log    *zap.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	closing bool
}

// NewExecutor creates an executor emitting events to a buffered sink channel.
func NewExecutor(runner Runner, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		runner: runner,
		events: make(chan Event, 64),
		log:    log,
	}
}

// Events returns the sink channel the UI consumes. The executor never calls
// into UI code directly.
func (e *Executor) Events() <-chan Event {
	return e.events
}

// Submit starts the chain on its own worker goroutine. Submitting a chain
// that is not pending is a no-op.
func (e *Executor) Submit(chain *Chain) {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.run(chain)
	}()
}

// Close waits for in-flight chains and closes the event sink. No chains may
// be submitted afterwards.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.wg.Wait()
	close(e.events)
}

// run drives one chain through its steps strictly in order. Cancellation is
// checked only at step boundaries: a running step always finishes and
// commits, and nothing is rolled back merely because cancellation was
// requested mid-step.
func (e *Executor) run(chain *Chain) {
	// Strict Pending to Running claim: a chain submitted twice runs once.
	if !chain.start() {
		return
	}

	stepCount := len(chain.Steps)
	for i, step := range chain.Steps {
		if chain.Cancelled() {
			e.log.Info("chain cancelled before step",
				zap.String("chain", chain.ID), zap.Int("step", i))
			e.terminate(chain, i, StateCancelled, nil)
			return
		}

		progress := func(done, total int) {
			e.emit(Event{
				ChainID:   chain.ID,
				StepIndex: i,
				StepCount: stepCount,
				Done:      done,
				Total:     total,
				Label:     step.Label,
			})
		}

		result, err := e.runner.RunStep(chain, i, step, progress)
		if err != nil {
			e.log.Warn("step failed",
				zap.String("chain", chain.ID),
				zap.Int("step", i),
				zap.String("label", step.Label),
				zap.Error(err))
			e.terminate(chain, i, StateFailed, err)
			return
		}
		chain.setResult(i, result)

		e.emit(Event{
			ChainID:   chain.ID,
			StepIndex: i,
			StepCount: stepCount,
			Done:      result.Done,
			Total:     result.Total,
			Label:     step.Label,
		})
	}

	// A cancellation racing the last step loses: every step committed, so
	// the chain completed.
	e.terminate(chain, stepCount, StateCompleted, nil)
}

// terminate moves the chain to a terminal state and notifies the sink
// exactly once. The event is emitted only by the caller whose finish actually
// performed the transition.
func (e *Executor) terminate(chain *Chain, stepIndex int, final State, err error) {
	if !chain.finish(final, err) {
		return
	}
	e.emit(Event{
		ChainID:   chain.ID,
		StepIndex: stepIndex,
		StepCount: len(chain.Steps),
		Label:     chain.Label,
		Terminal:  true,
		State:     chain.State(),
		Err:       chain.Err(),
	})
}

// emit delivers an event without ever blocking a worker on a slow consumer;
// intermediate progress may be dropped, terminal events may not.
func (e *Executor) emit(ev Event) {
	if ev.Terminal {
		e.events <- ev
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
