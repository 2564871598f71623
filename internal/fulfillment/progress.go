package fulfillment

import (
	"time"

	"github.com/MiraeNK/mesline/internal/model"
)

// Progress is the display percentage of an order in flight, in [0, 100].
// Each stage owns a third: it starts at the stage's lower bound, rises with
// elapsed time while InProgress (timed stages only) and reaches the upper
// bound when Done. It is derived on demand and never stored.
func Progress(tr model.Tracking, now time.Time, p Policy, itemCount int) float64 {
	const share = 100.0 / 3

	var pct float64
	for i, stage := range model.Stages {
		lower := share * float64(i)
		switch tr.Status(stage) {
		case model.StageDone:
			pct = lower + share
		case model.StageInProgress:
			pct = lower + share*stageFraction(tr, now, p.Timing(stage), itemCount)
			return clampPercent(pct)
		default:
			return clampPercent(pct)
		}
	}
	return clampPercent(pct)
}

func stageFraction(tr model.Tracking, now time.Time, t StageTiming, itemCount int) float64 {
	if !t.Timed() {
		return 0
	}
	d := t.Duration(itemCount)
	if d <= 0 {
		return 1
	}
	elapsed := now.Sub(model.FromMillis(tr.StageStartedAt))
	f := float64(elapsed) / float64(d)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
