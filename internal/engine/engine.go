// Package engine runs a batch of per-file conversions on a bounded worker
// pool, aggregating outcomes and emitting progress events.
//
// An Engine moves Idle -> Running -> {Completed, Cancelled, Failed} exactly
// once. Workers drain one shared queue, so a slow file never holds back the
// files queued behind it. Counters are owned by a single aggregator
// goroutine, which is also the only caller of the progress sink.
package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// State is the lifecycle state of an Engine.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// ConvertFunc converts one file. It should return promptly once ctx is
// done where feasible; the engine never interrupts it.
type ConvertFunc func(ctx context.Context, task types.FileEntry) types.Outcome

// Sink receives progress events. It is called from one goroutine at a time.
type Sink func(event types.ProgressEvent)

// Batch describes one engine run.
type Batch struct {
	Tasks   []types.FileEntry
	Convert ConvertFunc
	// Concurrency is clamped to at least 1 and at most len(Tasks).
	Concurrency int
	// OutputDir is created before dispatch when set. Failure aborts the batch.
	OutputDir string
	Sink      Sink
}

// Result is the final tally of a batch.
type Result struct {
	State     State
	Total     int
	Completed int
	Succeeded int
	Failed    int
	Workers   int
	// Outcomes are in completion order.
	Outcomes  []types.Outcome
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

// Duration is the wall-clock time of the batch.
func (r Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Failures lists the failed outcomes.
func (r Result) Failures() []types.FileFailure {
	var out []types.FileFailure
	for _, o := range r.Outcomes {
		if !o.Success() {
			out = append(out, types.FileFailure{Path: o.Task.Path, Reason: o.Reason})
		}
	}
	return out
}

type Engine struct {
	mu              sync.Mutex
	state           State
	cancel          context.CancelFunc
	cancelRequested bool
	done            chan struct{}
	result          Result
}

func New() *Engine {
	return &Engine{state: StateIdle}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start launches the batch and returns immediately. A second Start on the
// same Engine fails with ErrAlreadyRunning and changes nothing.
func (e *Engine) Start(ctx context.Context, b Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return errors.Wrapf(errors.ErrAlreadyRunning, "engine is %s", e.state)
	}
	if b.Convert == nil {
		return errors.AssertionFailedf("engine: batch has no converter")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.state = StateRunning
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(runCtx, b)
	return nil
}

// Cancel stops issuing new tasks. In-flight conversions run to completion.
// It is a no-op unless the engine is running.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return
	}
	e.cancelRequested = true
	e.cancel()
}

// Done is closed once the engine reaches a terminal state. It is nil
// before Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Wait blocks until the batch is terminal and returns its result.
func (e *Engine) Wait() Result {
	done := e.Done()
	if done != nil {
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Run starts the batch and waits for it. The returned error is the engine
// fault, if any; per-file failures are only reported in the Result.
func (e *Engine) Run(ctx context.Context, b Batch) (Result, error) {
	if err := e.Start(ctx, b); err != nil {
		return Result{State: e.State()}, err
	}
	res := e.Wait()
	return res, res.Err
}

func (e *Engine) run(ctx context.Context, b Batch) {
	defer close(e.done)

	emit := b.Sink
	if emit == nil {
		emit = func(types.ProgressEvent) {}
	}

	res := Result{
		Total:     len(b.Tasks),
		Workers:   clampWorkers(b.Concurrency, len(b.Tasks)),
		StartTime: time.Now(),
	}
	emit(types.ProgressEvent{Type: types.EventStarted, Total: res.Total})

	if b.OutputDir != "" {
		if err := os.MkdirAll(b.OutputDir, 0755); err != nil {
			res.Err = errors.Mark(
				errors.Wrapf(err, "failed to create output directory %q", b.OutputDir),
				errors.ErrEngineFault,
			)
			emit(types.ProgressEvent{Type: types.EventFatalError, Total: res.Total, Error: res.Err.Error()})
			e.finish(ctx, res, emit)
			return
		}
	}

	queue := make(chan types.FileEntry, len(b.Tasks))
	for _, task := range b.Tasks {
		queue <- task
	}
	close(queue)

	results := make(chan types.Outcome)
	var wg sync.WaitGroup
	for i := 0; i < res.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if ctx.Err() != nil {
					return
				}
				results <- convertOne(ctx, b.Convert, task)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		res.Completed++
		if outcome.Success() {
			res.Succeeded++
		} else {
			res.Failed++
		}
		res.Outcomes = append(res.Outcomes, outcome)

		o := outcome
		emit(types.ProgressEvent{
			Type:      types.EventItemCompleted,
			Total:     res.Total,
			Completed: res.Completed,
			Succeeded: res.Succeeded,
			Failed:    res.Failed,
			Outcome:   &o,
		})
	}

	e.finish(ctx, res, emit)
}

// finish performs the single terminal transition and emits finished.
func (e *Engine) finish(ctx context.Context, res Result, emit Sink) {
	res.EndTime = time.Now()

	e.mu.Lock()
	cancelled := e.cancelRequested || ctx.Err() != nil
	switch {
	case res.Err != nil:
		res.State = StateFailed
	case cancelled:
		res.State = StateCancelled
	default:
		res.State = StateCompleted
	}
	e.state = res.State
	e.result = res
	e.cancel()
	e.mu.Unlock()

	emit(types.ProgressEvent{
		Type:      types.EventFinished,
		Total:     res.Total,
		Completed: res.Completed,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Cancelled: res.State == StateCancelled,
	})
}

// convertOne runs the converter, turning a panic into a failure outcome.
func convertOne(ctx context.Context, convert ConvertFunc, task types.FileEntry) (out types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = types.Failed(task, errors.Mark(errors.Newf("converter panicked: %v", r), errors.ErrConversion))
		}
	}()

	out = convert(ctx, task)
	out.Task = task
	if out.Err != nil && out.Reason == "" {
		out.Reason = out.Err.Error()
	}
	return out
}

func clampWorkers(limit, tasks int) int {
	if limit < 1 {
		limit = 1
	}
	if tasks > 0 && limit > tasks {
		limit = tasks
	}
	return limit
}
