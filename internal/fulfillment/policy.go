package fulfillment

import (
	"fmt"
	"time"

	"github.com/MiraeNK/mesline/internal/model"
)

// Mode says what may complete an InProgress stage.
type Mode string

const (
	// ModeTimed completes the stage when its duration elapses.
	ModeTimed Mode = "timed"
	// ModeSignal completes the stage only on an external signal.
	ModeSignal Mode = "signal"
	// ModeEither completes on whichever comes first.
	ModeEither Mode = "either"
)

// StageTiming configures one stage.
type StageTiming struct {
	Base    time.Duration
	PerItem time.Duration
	Mode    Mode
	// Machine is powered ON while the stage is InProgress. Empty for none.
	Machine string
}

// Timed reports whether elapsed time can complete the stage.
func (t StageTiming) Timed() bool {
	return t.Mode == ModeTimed || t.Mode == ModeEither
}

// AcceptsSignal reports whether an external signal can complete the stage.
func (t StageTiming) AcceptsSignal() bool {
	return t.Mode == ModeSignal || t.Mode == ModeEither
}

// Duration is Base + PerItem × itemCount.
func (t StageTiming) Duration(itemCount int) time.Duration {
	return t.Base + t.PerItem*time.Duration(itemCount)
}

// Policy holds the timing of every stage.
type Policy struct {
	Picking   StageTiming
	Packaging StageTiming
	Sending   StageTiming
}

// DefaultPolicy reproduces the storefront's three five-second stages. The
// robot arm runs during picking and the conveyor during packaging.
func DefaultPolicy() Policy {
	return Policy{
		Picking:   StageTiming{Base: 5 * time.Second, Mode: ModeEither, Machine: model.MachineRobotArm},
		Packaging: StageTiming{Base: 5 * time.Second, Mode: ModeEither, Machine: model.MachineConveyor},
		Sending:   StageTiming{Base: 5 * time.Second, Mode: ModeTimed},
	}
}

// Timing returns the configuration of stage s.
func (p Policy) Timing(s model.Stage) StageTiming {
	switch s {
	case model.StagePicking:
		return p.Picking
	case model.StagePackaging:
		return p.Packaging
	}
	return p.Sending
}

// Validate rejects policies that could leave a stage with no way to finish.
// Sending has no external signal, so it must be timed.
func (p Policy) Validate() error {
	for _, s := range model.Stages {
		t := p.Timing(s)
		switch t.Mode {
		case ModeTimed, ModeSignal, ModeEither:
		default:
			return fmt.Errorf("stage %s: unknown mode %q", s, t.Mode)
		}
		if t.Base < 0 || t.PerItem < 0 {
			return fmt.Errorf("stage %s: durations must not be negative", s)
		}
	}
	if p.Sending.Mode != ModeTimed {
		return fmt.Errorf("stage %s must be %s, got %s", model.StageSending, ModeTimed, p.Sending.Mode)
	}
	return nil
}
