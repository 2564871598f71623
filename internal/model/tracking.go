package model

import "fmt"

// Tracking is the singleton record of each stage's status.
//
// OrderID and StageStartedAt bind the tracking record to the order being
// worked and to the moment the current stage entered InProgress. Both are
// zero while idle. Any process can derive stage deadlines from them, so no
// timer state has to survive in memory.
type Tracking struct {
	ItemPicking    StageStatus `json:"itemPicking"`
	Packaging      StageStatus `json:"packaging"`
	Sending        StageStatus `json:"sending"`
	OrderID        string      `json:"orderId,omitempty"`
	StageStartedAt int64       `json:"stageStartedAt,omitempty"`
}

// IdleTracking returns the all-Todo record.
func IdleTracking() Tracking {
	return Tracking{
		ItemPicking: StageTodo,
		Packaging:   StageTodo,
		Sending:     StageTodo,
	}
}

// Status returns the status of stage s. Missing values read as Todo.
func (t Tracking) Status(s Stage) StageStatus {
	var v StageStatus
	switch s {
	case StagePicking:
		v = t.ItemPicking
	case StagePackaging:
		v = t.Packaging
	case StageSending:
		v = t.Sending
	}
	if v == "" {
		return StageTodo
	}
	return v
}

// With returns a copy of t with stage s set to status.
func (t Tracking) With(s Stage, status StageStatus) Tracking {
	switch s {
	case StagePicking:
		t.ItemPicking = status
	case StagePackaging:
		t.Packaging = status
	case StageSending:
		t.Sending = status
	}
	return t
}

// IsIdle reports whether every stage is Todo.
func (t Tracking) IsIdle() bool {
	for _, s := range Stages {
		if t.Status(s) != StageTodo {
			return false
		}
	}
	return true
}

// Current returns the first stage that is not Done together with its status.
// When every stage is Done it returns the last stage.
func (t Tracking) Current() (Stage, StageStatus) {
	for _, s := range Stages {
		if st := t.Status(s); st != StageDone {
			return s, st
		}
	}
	return StageSending, StageDone
}

// Validate checks the stage ordering invariant: a stage may only leave Todo
// once its predecessor is Done.
func (t Tracking) Validate() error {
	for _, s := range Stages {
		st := t.Status(s)
		if !st.Valid() {
			return fmt.Errorf("tracking: %s has invalid status %q", s, st)
		}
		prev, ok := s.Previous()
		if !ok || st == StageTodo {
			continue
		}
		if t.Status(prev) != StageDone {
			return fmt.Errorf("tracking: %s is %s while %s is %s", s, st, prev, t.Status(prev))
		}
	}
	return nil
}

// Regresses reports whether moving from t to next moves any stage backwards.
// The all-Todo reset is not exempt here; callers that archive check for it.
func (t Tracking) Regresses(next Tracking) bool {
	for _, s := range Stages {
		if t.Status(s).Regresses(next.Status(s)) {
			return true
		}
	}
	return false
}
