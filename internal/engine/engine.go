package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// DefaultMaxSteps is the default maximum number of line steps per event.
const DefaultMaxSteps = 100

// DefaultRetryDelay is how long the loop waits before retrying after a
// failed event.
const DefaultRetryDelay = time.Second

// ErrStopped is returned by Signal once the engine has stopped.
var ErrStopped = errors.New("engine stopped")

// watched are the subtrees whose changes can make a step possible.
var watched = []string{model.PathOrders, model.PathBuffer, model.PathTracking, model.PathMachines}

// Line is the fulfillment line the engine drives.
type Line interface {
	Step(ctx context.Context) (fulfillment.Result, error)
	NextDeadline(ctx context.Context) (time.Time, bool, error)
	CompleteStage(ctx context.Context, stage model.Stage) (fulfillment.Result, error)
	Reconcile(ctx context.Context, apply bool) (fulfillment.Report, bool, error)
	Now() time.Time
}

// Subscriber delivers store change notifications.
type Subscriber interface {
	Subscribe(path string, fn store.Listener) (func(), error)
}

// Engine is the single-writer event loop of one process.
//
// Thread-safety model:
//   - Signal(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	line       Line
	store      Subscriber
	queue      *eventQueue
	maxSteps   int
	retryDelay time.Duration
	reconcile  bool

	// Owned by the Run goroutine.
	timer *time.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps sets the maximum steps quota per event.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) {
		if maxSteps > 0 {
			e.maxSteps = maxSteps
		}
	}
}

// WithRetryDelay sets the delay before an event that failed is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

// WithReconcile makes Run apply a reconciliation pass before it starts.
func WithReconcile(enabled bool) Option {
	return func(e *Engine) {
		e.reconcile = enabled
	}
}

// New creates an engine driving line, woken by changes in s.
func New(line Line, s Subscriber, opts ...Option) *Engine {
	e := &Engine{
		line:       line,
		store:      s,
		queue:      newEventQueue(),
		maxSteps:   DefaultMaxSteps,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Signal submits an external completion for stage and waits for the loop
// to apply it.
func (e *Engine) Signal(ctx context.Context, stage model.Stage) (fulfillment.Result, error) {
	reply := make(chan signalReply, 1)
	if !e.queue.Enqueue(Event{Kind: EventSignal, Stage: stage, reply: reply}) {
		return fulfillment.Result{}, ErrStopped
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return fulfillment.Result{}, ctx.Err()
	}
}

// QueueLen returns the number of events waiting.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the event loop. Blocks until ctx is cancelled or Stop is
// called.
//
// Failed events are logged and retried after the retry delay; the loop
// itself only stops on cancellation.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "max_steps", e.maxSteps)

	if e.reconcile {
		if _, applied, err := e.line.Reconcile(ctx, true); err != nil {
			slog.Error("startup reconcile failed", "error", err)
		} else if applied {
			slog.Info("startup reconcile repaired state")
		}
	}

	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
		e.stopTimer()
		e.abandon(e.queue.Close())
	}()
	for _, path := range watched {
		path := path
		cancel, err := e.store.Subscribe(path, func(store.Snapshot) {
			e.queue.Enqueue(Event{Kind: EventChange, Path: path})
		})
		if err != nil {
			return fmt.Errorf("engine: subscribe %s: %w", path, err)
		}
		cancels = append(cancels, cancel)
	}

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
				e.schedule(e.retryDelay)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()
		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine. Run returns once the event in
// flight is done.
func (e *Engine) Stop() {
	e.abandon(e.queue.Close())
}

// processEvent routes an event to its handler, then steps the line and
// re-arms the deadline timer.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	slog.Debug("processing event", "kind", event.Kind, "path", event.Path, "stage", event.Stage)

	switch event.Kind {
	case EventSignal:
		res, err := e.line.CompleteStage(ctx, event.Stage)
		event.reply <- signalReply{result: res, err: err}
		if err != nil && fulfillment.CodeOf(err) == "" {
			return fmt.Errorf("signal %s: %w", event.Stage, err)
		}
	case EventChange, EventDeadline:
	default:
		return fmt.Errorf("unknown event kind: %d", event.Kind)
	}

	if err := e.settle(ctx, event.Kind.String()); err != nil {
		return err
	}
	return e.arm(ctx)
}

// settle steps the line until it has nothing left to do.
func (e *Engine) settle(ctx context.Context, trigger string) error {
	quota := NewQuotaEnforcer(e.maxSteps)
	for {
		res, err := e.line.Step(ctx)
		if err != nil {
			return fmt.Errorf("step: %w", err)
		}
		// A rejected batch lost a race with another writer; the next step
		// plans against the fresh state.
		if res.Action == fulfillment.ActionNone {
			return nil
		}
		if err := quota.Check(trigger); err != nil {
			slog.Error("max steps quota exceeded",
				"trigger", trigger,
				"steps", quota.Current(),
				"limit", e.maxSteps,
			)
			return err
		}
	}
}

// arm sets the timer for the next stage deadline, or clears it.
func (e *Engine) arm(ctx context.Context) error {
	deadline, ok, err := e.line.NextDeadline(ctx)
	if err != nil {
		return fmt.Errorf("next deadline: %w", err)
	}
	if !ok {
		e.stopTimer()
		return nil
	}
	e.schedule(deadline.Sub(e.line.Now()))
	return nil
}

func (e *Engine) schedule(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.stopTimer()
	e.timer = time.AfterFunc(d, func() {
		e.queue.Enqueue(Event{Kind: EventDeadline})
	})
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// abandon answers signals that will never be processed.
func (e *Engine) abandon(events []Event) {
	for _, ev := range events {
		if ev.reply != nil {
			ev.reply <- signalReply{err: ErrStopped}
		}
	}
}

func logEventError(event Event, err error) {
	slog.Error("event processing failed",
		"kind", event.Kind,
		"path", event.Path,
		"stage", event.Stage,
		"error", err,
	)
}
