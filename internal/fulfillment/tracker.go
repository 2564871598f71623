package fulfillment

import (
	"context"
	"log/slog"
	"time"

	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

// workedOrder returns the processing order whose buffer handoff has been
// accepted and which tracking is bound to (or not yet bound to anything).
func workedOrder(v View) (model.Order, bool) {
	o, ok := v.Active()
	if !ok || HandshakeStateOf(v, o) != HandshakeAccepted {
		return model.Order{}, false
	}
	if v.Tracking.OrderID != "" && v.Tracking.OrderID != o.ID {
		return model.Order{}, false
	}
	return o, true
}

// StageDeadline is when the InProgress stage of v completes by time, if it
// is time-boxed.
func StageDeadline(v View, p Policy) (time.Time, bool) {
	o, ok := workedOrder(v)
	if !ok {
		return time.Time{}, false
	}
	stage, status := v.Tracking.Current()
	if status != model.StageInProgress {
		return time.Time{}, false
	}
	timing := p.Timing(stage)
	if !timing.Timed() {
		return time.Time{}, false
	}
	start := model.FromMillis(v.Tracking.StageStartedAt)
	return start.Add(timing.Duration(o.ItemCount())), true
}

// planTracker advances the accepted order by one stage transition: start the
// first Todo stage, or finish the InProgress one once its time is up.
func planTracker(v View, now time.Time, p Policy) (Plan, bool) {
	o, ok := workedOrder(v)
	if !ok {
		return Plan{}, false
	}
	stage, status := v.Tracking.Current()

	switch status {
	case model.StageTodo:
		return stageTransition(v, o, stage, model.StageInProgress, now, p), true
	case model.StageInProgress:
		deadline, timed := StageDeadline(v, p)
		if !timed || now.Before(deadline) {
			return Plan{}, false
		}
		return stageTransition(v, o, stage, model.StageDone, now, p), true
	}
	return Plan{}, false
}

// stageTransition builds the guarded batch moving stage to next, together
// with the power change of the stage's machine.
func stageTransition(v View, o model.Order, stage model.Stage, next model.StageStatus, now time.Time, p Policy) Plan {
	nowMs := model.Millis(now)
	tr := v.Tracking.With(stage, next)
	tr.OrderID = o.ID

	action := ActionFinishStage
	if next == model.StageInProgress {
		action = ActionStartStage
		tr.StageStartedAt = nowMs
	}

	b := store.NewBatch().
		Require(model.OrderStatusPath(o.ID), string(model.OrderProcessing)).
		Require(model.PathTracking, v.rawTracking).
		Put(model.PathTracking, tr)

	if id := p.Timing(stage).Machine; id != "" {
		m, exists := v.machine(id)
		machine.Power(b, m, exists, next == model.StageInProgress, nowMs)
	}

	return Plan{Action: action, OrderID: o.ID, Stage: stage, Batch: b}
}

// CompleteStage applies an external completion signal to an InProgress
// stage. A signal for a stage that is already Done is a no-op. Stages whose
// mode is timed, sending included, reject signals.
func (l *Line) CompleteStage(ctx context.Context, stage model.Stage) (Result, error) {
	if !l.policy.Timing(stage).AcceptsSignal() {
		return Result{}, newError(ErrCodeSignalNotAccepted, "", nil, "stage %s is time-boxed", stage)
	}

	v, err := l.View(ctx)
	if err != nil {
		return Result{}, err
	}
	o, ok := workedOrder(v)
	if !ok {
		return Result{}, newError(ErrCodeNotFound, "", nil, "no accepted order is in progress")
	}

	switch v.Tracking.Status(stage) {
	case model.StageDone:
		return Result{Action: ActionNone, OrderID: o.ID, Stage: stage}, nil
	case model.StageTodo:
		return Result{}, newError(ErrCodeSignalNotAccepted, o.ID, nil, "stage %s has not started", stage)
	}

	plan := stageTransition(v, o, stage, model.StageDone, l.clock.Now(), l.policy)
	res, err := l.apply(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	if res.Applied {
		slog.Info("stage completed by signal", "order", o.ID, "stage", stage)
	}
	return res, nil
}
