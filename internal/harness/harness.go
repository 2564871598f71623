package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/MiraeNK/mesline/internal/actuator"
	"github.com/MiraeNK/mesline/internal/config"
	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
	"github.com/MiraeNK/mesline/internal/testutil"
)

// Start is the scenario clock's reading when a run begins.
var Start = time.UnixMilli(1_700_000_000_000)

// settleLimit bounds a settle step. A full pipeline needs far fewer.
const settleLimit = 20

// process is one independent handle on the shared database.
type process struct {
	store *store.Store
	line  *fulfillment.Line
	acc   *machine.Accumulator
	act   *actuator.Actuator
}

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	cfg      *config.Config
	procs    []*process
	clock    *testutil.ManualClock
	result   *Result
	tracing  bool
}

// outcome is what a single step did, for expectation checks.
type outcome struct {
	actions  []string
	code     string
	findings []string
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh database in a temporary directory. Assertion
// failures and unmet expectations are reported in the result; an error is
// returned only when the scenario could not be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenarioConfig(scenario.Config)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "mesline-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		scenario: scenario,
		cfg:      cfg,
		clock:    testutil.NewManualClock(Start),
		result:   NewResult(),
	}
	defer h.close()

	if err := h.open(filepath.Join(dir, "line.db")); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if _, err := h.procs[0].acc.Provision(ctx, cfg.MachineRecords()); err != nil {
		return nil, fmt.Errorf("failed to provision machines: %w", err)
	}

	for i, step := range scenario.Setup {
		out, err := h.exec(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Action, err)
		}
		if out.code != "" {
			return nil, fmt.Errorf("setup[%d] %s: failed with %s", i, step.Action, out.code)
		}
	}

	h.tracing = true
	for i, step := range scenario.Flow {
		out, err := h.exec(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Action, err)
		}
		h.check(i, step, out)
	}

	actx := &AssertionContext{
		Store: h.procs[0].store,
		Now:   h.clock.Now(),
	}
	for _, msg := range EvaluateAssertions(ctx, h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// scenarioConfig merges the scenario's config block over the defaults.
func scenarioConfig(overrides map[string]any) (*config.Config, error) {
	if len(overrides) == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(overrides)
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	return cfg, nil
}

func (h *Harness) open(path string) error {
	keys := testutil.NewSequentialKeys("order")
	for i := 0; i < h.scenario.processes(); i++ {
		s, err := store.Open(path, store.WithKeyGenerator(keys))
		if err != nil {
			return fmt.Errorf("failed to open store for process %d: %w", i+1, err)
		}
		line, err := fulfillment.New(s,
			fulfillment.WithClock(h.clock),
			fulfillment.WithCatalog(h.cfg.Catalog),
			fulfillment.WithPolicy(h.cfg.Policy()),
		)
		if err != nil {
			s.Close()
			return fmt.Errorf("failed to create line for process %d: %w", i+1, err)
		}
		h.procs = append(h.procs, &process{
			store: s,
			line:  line,
			acc:   machine.NewAccumulator(s, h.clock.Now),
			act:   actuator.New(s, actuator.WithDelay(0)),
		})
	}
	return nil
}

func (h *Harness) close() {
	for _, p := range h.procs {
		p.store.Close()
	}
}

func (h *Harness) trace(process int, action string, args map[string]string) {
	if !h.tracing {
		return
	}
	h.result.AddTrace(h.clock.Now().Sub(Start), process, action, args)
}

func (h *Harness) traceResult(process int, res fulfillment.Result, extra map[string]string) {
	args := map[string]string{"order": res.OrderID}
	if res.Stage != "" {
		args["stage"] = string(res.Stage)
	}
	for k, v := range extra {
		args[k] = v
	}
	h.trace(process, string(res.Action), args)
}

// exec performs one step. Typed line errors become part of the outcome; any
// other error aborts the run.
func (h *Harness) exec(ctx context.Context, step Step) (outcome, error) {
	num := step.Process
	if num == 0 {
		num = 1
	}
	p := h.procs[num-1]

	var out outcome
	switch step.Action {
	case ActionPlaceOrder:
		cart := h.cart(step.Items)
		id, err := p.line.Enqueue(ctx, cart)
		if code := errorCode(err); code != "" {
			out.code = code
			h.trace(num, step.Action, map[string]string{"error": code})
			return out, nil
		} else if err != nil {
			return out, err
		}
		var total int64
		for _, c := range cart {
			total += c.Price * int64(c.Quantity)
		}
		h.trace(num, step.Action, map[string]string{"order": id, "total": strconv.FormatInt(total, 10)})

	case ActionStep:
		res, err := p.line.Step(ctx)
		if err != nil {
			return out, err
		}
		if res.Progressed() {
			h.traceResult(num, res, nil)
			out.actions = append(out.actions, string(res.Action))
		}

	case ActionSettle:
		actions, err := h.settle(ctx, num, p)
		if err != nil {
			return out, err
		}
		out.actions = actions

	case ActionRace:
		actions, err := h.race(ctx)
		if err != nil {
			return out, err
		}
		out.actions = actions

	case ActionDrain:
		slots, err := p.act.DrainOnce(ctx)
		if err != nil {
			return out, err
		}
		h.trace(num, step.Action, map[string]string{"slots": joinInts(slots)})

	case ActionAdvance:
		h.clock.Advance(step.Duration)

	case ActionSignal:
		stage, err := model.ParseStage(step.Stage)
		if err != nil {
			return out, err
		}
		res, err := p.line.CompleteStage(ctx, stage)
		if code := errorCode(err); code != "" {
			out.code = code
			h.trace(num, step.Action, map[string]string{"stage": string(stage), "error": code})
			return out, nil
		} else if err != nil {
			return out, err
		}
		if res.Progressed() {
			h.traceResult(num, res, map[string]string{"via": "signal"})
			out.actions = append(out.actions, string(res.Action))
		} else {
			h.trace(num, step.Action, map[string]string{"stage": string(stage), "result": "ignored"})
		}

	case ActionToggle:
		m, err := p.acc.Toggle(ctx, step.Machine)
		if code := errorCode(err); code != "" {
			out.code = code
			h.trace(num, step.Action, map[string]string{"machine": step.Machine, "error": code})
			return out, nil
		} else if err != nil {
			return out, err
		}
		h.trace(num, step.Action, map[string]string{
			"machine": m.ID,
			"status":  string(m.Status),
			"total":   strconv.FormatInt(m.TotalAccumulatedTime, 10),
		})

	case ActionReconcile:
		report, applied, err := p.line.Reconcile(ctx, step.Apply)
		if err != nil {
			return out, err
		}
		for _, f := range report.Findings {
			out.findings = append(out.findings, string(f.Kind))
		}
		found := "none"
		if len(out.findings) > 0 {
			found = strings.Join(out.findings, ",")
		}
		h.trace(num, step.Action, map[string]string{"findings": found, "repaired": strconv.FormatBool(applied)})

	case ActionSet:
		if err := p.store.Set(ctx, step.Path, step.Value); err != nil {
			return out, err
		}
		h.trace(num, step.Action, map[string]string{"path": step.Path})

	default:
		return out, fmt.Errorf("unknown action %q", step.Action)
	}
	return out, nil
}

// settle steps one process until nothing more can happen at the current
// time.
func (h *Harness) settle(ctx context.Context, num int, p *process) ([]string, error) {
	var actions []string
	for i := 0; i < settleLimit; i++ {
		res, err := p.line.Step(ctx)
		if err != nil {
			return actions, err
		}
		if !res.Progressed() {
			return actions, nil
		}
		h.traceResult(num, res, nil)
		actions = append(actions, string(res.Action))
	}
	return actions, fmt.Errorf("line did not settle after %d steps", settleLimit)
}

// race runs one step on every process at once. Only applied actions are
// traced; which process won is not recorded.
func (h *Harness) race(ctx context.Context) ([]string, error) {
	var (
		mu      sync.Mutex
		applied []fulfillment.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range h.procs {
		p := p
		g.Go(func() error {
			res, err := p.line.Step(gctx)
			if err != nil {
				return err
			}
			if res.Progressed() {
				mu.Lock()
				applied = append(applied, res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(applied, func(i, j int) bool {
		if applied[i].Action != applied[j].Action {
			return applied[i].Action < applied[j].Action
		}
		return applied[i].OrderID < applied[j].OrderID
	})
	actions := make([]string, len(applied))
	for i, res := range applied {
		h.traceResult(0, res, nil)
		actions[i] = string(res.Action)
	}
	slog.Debug("race finished", "processes", len(h.procs), "applied", len(applied))
	return actions, nil
}

// cart converts item args, taking the catalog price when none is given.
func (h *Harness) cart(items []ItemArg) []model.CartLine {
	catalog := model.Catalog(h.cfg.Catalog)
	out := make([]model.CartLine, len(items))
	for i, it := range items {
		line := model.CartLine{ProductID: it.Product, Quantity: it.Quantity}
		if it.Price != nil {
			line.Price = *it.Price
		} else if c, ok := catalog.Lookup(it.Product); ok {
			line.Price = c.Price
		}
		out[i] = line
	}
	return out
}

// check compares a flow step's outcome with its expect clause.
func (h *Harness) check(index int, step Step, out outcome) {
	label := fmt.Sprintf("flow[%d] %s", index, step.Action)
	exp := step.Expect

	if out.code != "" && (exp == nil || exp.Error != out.code) {
		h.result.AddError(fmt.Sprintf("%s: unexpected error %s", label, out.code))
		return
	}
	if exp == nil {
		return
	}
	if exp.Error != "" && out.code == "" {
		h.result.AddError(fmt.Sprintf("%s: expected error %s, step succeeded", label, exp.Error))
	}
	if exp.Actions != nil && !slices.Equal(exp.Actions, out.actions) {
		h.result.AddError(fmt.Sprintf("%s: expected actions %v, got %v", label, exp.Actions, out.actions))
	}
	if exp.Findings != nil && !slices.Equal(exp.Findings, out.findings) {
		h.result.AddError(fmt.Sprintf("%s: expected findings %v, got %v", label, exp.Findings, out.findings))
	}
}

// errorCode maps expected domain errors to a stable code. It returns "" for
// nil and for infrastructure failures.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := fulfillment.CodeOf(err); code != "" {
		return string(code)
	}
	if errors.Is(err, machine.ErrUnknownMachine) {
		return "UNKNOWN_MACHINE"
	}
	return ""
}

func joinInts(xs []int) string {
	if len(xs) == 0 {
		return "none"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
