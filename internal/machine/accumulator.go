package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

var (
	// ErrUnknownMachine is returned when a machine id has no stored record.
	ErrUnknownMachine = errors.New("unknown machine")

	// ErrContended is returned when a toggle keeps losing to concurrent
	// writers.
	ErrContended = errors.New("machine state changed concurrently")
)

// maxToggleAttempts bounds the re-read loop in Toggle.
const maxToggleAttempts = 5

// Store is the part of the shared store the accumulator uses.
type Store interface {
	Read(ctx context.Context, path string) (store.Snapshot, error)
	Update(ctx context.Context, b store.Batch) (bool, error)
}

// Accumulator converts ON/OFF transitions into accumulated run time.
type Accumulator struct {
	store Store
	now   func() time.Time
}

// NewAccumulator returns an Accumulator reading wall time from now.
func NewAccumulator(s Store, now func() time.Time) *Accumulator {
	if now == nil {
		now = time.Now
	}
	return &Accumulator{store: s, now: now}
}

// CurrentUptime is the accumulated run time plus the running span, if any.
func CurrentUptime(m model.Machine, nowMs int64) int64 {
	total := m.TotalAccumulatedTime
	if m.IsOn() && nowMs > m.LastStartTime {
		total += nowMs - m.LastStartTime
	}
	return total
}

// Power adds to b the writes that move m to the requested power state,
// guarded by the fields the new values are computed from. exists reports
// whether m was read from the store; a missing machine is provisioned in the
// same batch. It returns false, leaving b untouched, when m is already in the
// requested state.
func Power(b *store.Batch, m model.Machine, exists bool, on bool, nowMs int64) bool {
	if exists && m.IsOn() == on {
		return false
	}

	next := m
	if !exists {
		next = model.NewMachine(m.ID, m.Name)
		if next.Name == "" {
			next.Name = m.ID
		}
	}
	if on {
		next.Status = model.PowerOn
		next.LastStartTime = nowMs
	} else {
		next.TotalAccumulatedTime = CurrentUptime(m, nowMs)
		next.Status = model.PowerOff
		next.LastStartTime = model.NotRunning
	}

	if !exists {
		b.Require(model.MachinePath(m.ID), nil)
		b.Put(model.MachinePath(m.ID), next)
		return true
	}

	b.Require(model.MachineFieldPath(m.ID, "status"), string(m.Status))
	b.Require(model.MachineFieldPath(m.ID, "lastStartTime"), m.LastStartTime)
	b.Require(model.MachineFieldPath(m.ID, "totalAccumulatedTime"), m.TotalAccumulatedTime)
	b.Put(model.MachineFieldPath(m.ID, "status"), string(next.Status))
	b.Put(model.MachineFieldPath(m.ID, "lastStartTime"), next.LastStartTime)
	b.Put(model.MachineFieldPath(m.ID, "totalAccumulatedTime"), next.TotalAccumulatedTime)
	return true
}

// Get reads one machine.
func (a *Accumulator) Get(ctx context.Context, id string) (model.Machine, bool, error) {
	snap, err := a.store.Read(ctx, model.MachinePath(id))
	if err != nil {
		return model.Machine{}, false, fmt.Errorf("read machine %q: %w", id, err)
	}
	if !snap.Exists() {
		return model.Machine{}, false, nil
	}
	var m model.Machine
	if err := snap.Decode(&m); err != nil {
		return model.Machine{}, false, err
	}
	m.ID = id
	return m, true, nil
}

// List reads every machine, ordered by id.
func (a *Accumulator) List(ctx context.Context) ([]model.Machine, error) {
	snap, err := a.store.Read(ctx, model.PathMachines)
	if err != nil {
		return nil, fmt.Errorf("read machines: %w", err)
	}
	return DecodeMachines(snap)
}

// DecodeMachines decodes a status_mesin snapshot, ordered by id.
func DecodeMachines(snap store.Snapshot) ([]model.Machine, error) {
	var out []model.Machine
	for _, id := range snap.Keys() {
		var m model.Machine
		if err := snap.Child(id).Decode(&m); err != nil {
			return nil, err
		}
		m.ID = id
		out = append(out, m)
	}
	return out, nil
}

// Toggle flips a machine's power. ON records the start time; OFF folds the
// running span into the accumulated total. The write is guarded by the
// observed record and retried on a fresh read if another writer got there
// first.
func (a *Accumulator) Toggle(ctx context.Context, id string) (model.Machine, error) {
	for attempt := 0; attempt < maxToggleAttempts; attempt++ {
		m, ok, err := a.Get(ctx, id)
		if err != nil {
			return model.Machine{}, err
		}
		if !ok {
			return model.Machine{}, fmt.Errorf("toggle %q: %w", id, ErrUnknownMachine)
		}

		now := model.Millis(a.now())
		b := store.NewBatch()
		Power(b, m, true, !m.IsOn(), now)

		applied, err := a.store.Update(ctx, *b)
		if err != nil {
			return model.Machine{}, fmt.Errorf("toggle %q: %w", id, err)
		}
		if applied {
			if m.IsOn() {
				m.TotalAccumulatedTime = CurrentUptime(m, now)
				m.Status = model.PowerOff
				m.LastStartTime = model.NotRunning
			} else {
				m.Status = model.PowerOn
				m.LastStartTime = now
			}
			slog.Info("machine toggled", "machine", id, "status", m.Status, "total_ms", m.TotalAccumulatedTime)
			return m, nil
		}
		slog.Debug("toggle lost race, re-reading", "machine", id, "attempt", attempt+1)
	}
	return model.Machine{}, fmt.Errorf("toggle %q: %w", id, ErrContended)
}

// Provision creates each machine OFF with zero run time unless it already
// exists. It returns how many were created.
func (a *Accumulator) Provision(ctx context.Context, machines []model.Machine) (int, error) {
	created := 0
	for _, m := range machines {
		rec := model.NewMachine(m.ID, m.Name)
		applied, err := a.store.Update(ctx, store.Batch{
			Expect: map[string]any{model.MachinePath(m.ID): nil},
			Set:    map[string]any{model.MachinePath(m.ID): rec},
		})
		if err != nil {
			return created, fmt.Errorf("provision %q: %w", m.ID, err)
		}
		if applied {
			created++
		}
	}
	return created, nil
}
