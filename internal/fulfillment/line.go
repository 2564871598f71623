package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// Action names a state transition of the pipeline.
type Action string

const (
	ActionNone        Action = "none"
	ActionHandshake   Action = "handshake"
	ActionStartStage  Action = "start-stage"
	ActionFinishStage Action = "finish-stage"
	ActionArchive     Action = "archive"
)

// Plan is a decided action and the guarded batch that performs it.
type Plan struct {
	Action  Action
	OrderID string
	Stage   model.Stage
	Batch   *store.Batch

	createdAt int64
}

// Result reports what a step did. Applied is false when the plan's
// preconditions no longer held by the time it was written.
type Result struct {
	Action  Action
	OrderID string
	Stage   model.Stage
	Applied bool
}

// Progressed reports whether the step changed the store.
func (r Result) Progressed() bool {
	return r.Action != ActionNone && r.Applied
}

// Clock supplies wall time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Recorder observes line activity. Implemented by telemetry.Metrics.
type Recorder interface {
	StepApplied(action string)
	StepSkipped(action string)
	OrderPlaced()
	OrderArchived(leadTime time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) StepApplied(string)          {}
func (nopRecorder) StepSkipped(string)          {}
func (nopRecorder) OrderPlaced()                {}
func (nopRecorder) OrderArchived(time.Duration) {}

// Line drives the single production line over a shared store.
//
// Thread-safety: a Line holds no mutable state; every method reads the store
// afresh and may be called from any goroutine or process.
type Line struct {
	store    Store
	catalog  model.Catalog
	slots    model.SlotMap
	policy   Policy
	clock    Clock
	recorder Recorder
	validate *validator.Validate
}

// Option configures a Line.
type Option func(*Line)

// WithCatalog sets the product catalog and, from it, the slot map.
func WithCatalog(c model.Catalog) Option {
	return func(l *Line) {
		l.catalog = c
	}
}

// WithPolicy sets the stage timing policy.
func WithPolicy(p Policy) Option {
	return func(l *Line) {
		l.policy = p
	}
}

// WithClock sets the wall clock.
func WithClock(c Clock) Option {
	return func(l *Line) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithRecorder sets the activity recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Line) {
		if r != nil {
			l.recorder = r
		}
	}
}

// New creates a Line. It fails if the catalog's slot map or the policy is
// invalid.
func New(s Store, opts ...Option) (*Line, error) {
	l := &Line{
		store:    s,
		catalog:  model.DefaultCatalog(),
		policy:   DefaultPolicy(),
		clock:    systemClock{},
		recorder: nopRecorder{},
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(l)
	}

	slots, err := l.catalog.SlotMap()
	if err != nil {
		return nil, fmt.Errorf("new line: %w", err)
	}
	l.slots = slots

	if err := l.policy.Validate(); err != nil {
		return nil, fmt.Errorf("new line: %w", err)
	}
	return l, nil
}

// Catalog returns the product catalog.
func (l *Line) Catalog() model.Catalog { return l.catalog }

// Slots returns the item-to-slot table.
func (l *Line) Slots() model.SlotMap { return l.slots }

// Policy returns the stage timing policy.
func (l *Line) Policy() Policy { return l.policy }

// Now returns the line's current wall time.
func (l *Line) Now() time.Time { return l.clock.Now() }

// View loads a fresh view of the store.
func (l *Line) View(ctx context.Context) (View, error) {
	return LoadView(ctx, l.store, l.slots)
}

// Decide picks the single next action for v at time now: archive first,
// then the stage tracker, then the handshake. Pure.
func Decide(v View, now time.Time, p Policy, slots model.SlotMap) Plan {
	if plan, ok := planArchive(v, now); ok {
		return plan
	}
	if plan, ok := planTracker(v, now, p); ok {
		return plan
	}
	if plan, ok := planHandshake(v, slots); ok {
		return plan
	}
	return Plan{Action: ActionNone}
}

// Step reads a fresh view and performs at most one action.
func (l *Line) Step(ctx context.Context) (Result, error) {
	v, err := l.View(ctx)
	if err != nil {
		return Result{}, err
	}
	return l.apply(ctx, Decide(v, l.clock.Now(), l.policy, l.slots))
}

// NextDeadline is the wall time at which the current stage completes by
// time, if one is running.
func (l *Line) NextDeadline(ctx context.Context) (time.Time, bool, error) {
	v, err := l.View(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	t, ok := StageDeadline(v, l.policy)
	return t, ok, nil
}

func (l *Line) apply(ctx context.Context, plan Plan) (Result, error) {
	res := Result{Action: plan.Action, OrderID: plan.OrderID, Stage: plan.Stage}
	if plan.Action == ActionNone || plan.Batch == nil {
		return Result{Action: ActionNone}, nil
	}

	applied, err := l.store.Update(ctx, *plan.Batch)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", plan.Action, plan.OrderID, err)
	}
	res.Applied = applied

	if !applied {
		l.recorder.StepSkipped(string(plan.Action))
		slog.Debug("precondition changed, skipping", "action", plan.Action, "order", plan.OrderID, "stage", plan.Stage)
		return res, nil
	}

	l.recorder.StepApplied(string(plan.Action))
	switch plan.Action {
	case ActionArchive:
		lead := l.clock.Now().Sub(model.FromMillis(plan.createdAt))
		l.recorder.OrderArchived(lead)
		slog.Info("order archived", "order", plan.OrderID, "lead_time", lead)
	case ActionHandshake:
		slog.Info("order handed to actuator", "order", plan.OrderID)
	default:
		slog.Info("stage advanced", "action", plan.Action, "order", plan.OrderID, "stage", plan.Stage)
	}
	return res, nil
}
