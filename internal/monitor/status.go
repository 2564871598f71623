// Package monitor derives the operator view of the line and serves it
// read-only over HTTP.
package monitor

import (
	"sort"
	"time"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
)

// Status is the monitoring snapshot of the line.
type Status struct {
	Revision int64           `json:"revision"`
	At       time.Time       `json:"at"`
	Machines []MachineStatus `json:"machines"`
	Tracking model.Tracking  `json:"tracking"`
	Active   *ActiveOrder    `json:"active,omitempty"`
	Queued   int             `json:"queued"`
	Problems []string        `json:"problems,omitempty"`
}

// MachineStatus is one machine with its derived uptime and advisory.
type MachineStatus struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     model.Power `json:"status"`
	UptimeMs   int64       `json:"uptimeMs"`
	Uptime     string      `json:"uptime"`
	Level      string      `json:"maintenanceLevel"`
	HoursUntil float64     `json:"hoursUntilMaintenance"`
	Message    string      `json:"message,omitempty"`
}

// ActiveOrder is the order at the head of the queue.
type ActiveOrder struct {
	ID        string            `json:"id"`
	Status    model.OrderStatus `json:"status"`
	Handshake string            `json:"handshake"`
	Stage     model.Stage       `json:"stage,omitempty"`
	Progress  float64           `json:"progress"`
	Items     int               `json:"items"`
	Total     int64             `json:"totalAmount"`
}

// BuildStatus derives the status from a view. Pure; uptime, advisories and
// progress are computed at now and never stored.
func BuildStatus(v fulfillment.View, now time.Time, p fulfillment.Policy, mp machine.MaintenancePolicy) Status {
	st := Status{
		Revision: v.Rev,
		At:       now,
		Tracking: v.Tracking,
		Queued:   len(v.Queued()),
		Problems: append([]string(nil), v.Malformed...),
	}

	nowMs := model.Millis(now)
	for _, m := range sortedMachines(v.Machines) {
		st.Machines = append(st.Machines, DescribeMachine(m, nowMs, mp))
	}

	if o, ok := v.Active(); ok {
		a := &ActiveOrder{
			ID:        o.ID,
			Status:    o.Status,
			Handshake: fulfillment.HandshakeStateOf(v, o).String(),
			Items:     o.ItemCount(),
			Total:     o.TotalAmount,
		}
		if o.Status == model.OrderProcessing && (v.Tracking.OrderID == "" || v.Tracking.OrderID == o.ID) {
			a.Stage, _ = v.Tracking.Current()
			a.Progress = fulfillment.Progress(v.Tracking, now, p, o.ItemCount())
		}
		st.Active = a
	}
	return st
}

// DescribeMachine derives the live uptime and advisory of m at nowMs.
func DescribeMachine(m model.Machine, nowMs int64, mp machine.MaintenancePolicy) MachineStatus {
	uptime := machine.CurrentUptime(m, nowMs)
	adv := machine.Advise(time.Duration(uptime)*time.Millisecond, mp)
	return MachineStatus{
		ID:         m.ID,
		Name:       m.Name,
		Status:     m.Status,
		UptimeMs:   uptime,
		Uptime:     machine.FormatUptime(uptime),
		Level:      adv.Level.String(),
		HoursUntil: adv.HoursUntil,
		Message:    adv.Message(m.Name),
	}
}

func sortedMachines(in map[string]model.Machine) []model.Machine {
	out := make([]model.Machine, 0, len(in))
	for _, m := range in {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
