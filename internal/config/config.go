// Package config loads the line configuration: a YAML file checked against
// an embedded CUE schema, then environment overrides, then struct
// validation. Every field has a default, so an empty file is valid.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/store"
)

//go:embed schema.cue
var schemaSource string

// DefaultDatabase is the store file used when none is configured.
const DefaultDatabase = "mesline.db"

// Config is the complete line configuration.
type Config struct {
	Database     string        `yaml:"database" validate:"required"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`

	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Engine      EngineConfig      `yaml:"engine"`
	Stages      StagesConfig      `yaml:"stages"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	Catalog  []model.CatalogItem `yaml:"catalog" validate:"min=1,dive"`
	Machines []MachineConfig     `yaml:"machines" validate:"min=1,dive"`
}

type LogConfig struct {
	Format  string `yaml:"format" validate:"oneof=text json"`
	Verbose bool   `yaml:"verbose"`
}

type MetricsConfig struct {
	// Listen is the monitor's listen address. Empty disables serving.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

type ActuatorConfig struct {
	DrainDelay time.Duration `yaml:"drain_delay" validate:"gte=0"`
}

type EngineConfig struct {
	MaxSteps   int           `yaml:"max_steps" validate:"gt=0"`
	RetryDelay time.Duration `yaml:"retry_delay" validate:"gt=0"`
	Reconcile  bool          `yaml:"reconcile"`
}

// StageConfig is the timing of one stage.
type StageConfig struct {
	Base    time.Duration `yaml:"base" validate:"gte=0"`
	PerItem time.Duration `yaml:"per_item" validate:"gte=0"`
	Mode    string        `yaml:"mode" validate:"oneof=timed signal either"`
	Machine string        `yaml:"machine"`
}

type StagesConfig struct {
	Picking   StageConfig `yaml:"picking"`
	Packaging StageConfig `yaml:"packaging"`
	Sending   StageConfig `yaml:"sending"`
}

type MaintenanceConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	Warning  time.Duration `yaml:"warning" validate:"gt=0"`
	Critical time.Duration `yaml:"critical" validate:"gt=0"`
}

type MachineConfig struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

// Default reproduces the storefront: four products, the robot arm and the
// conveyor, five seconds per stage and a 50h service interval.
func Default() *Config {
	p := fulfillment.DefaultPolicy()
	m := machine.DefaultMaintenancePolicy()
	return &Config{
		Database:     DefaultDatabase,
		PollInterval: store.DefaultPollInterval,
		Log:          LogConfig{Format: "text"},
		Actuator:     ActuatorConfig{DrainDelay: 2 * time.Second},
		Engine: EngineConfig{
			MaxSteps:   100,
			RetryDelay: time.Second,
			Reconcile:  true,
		},
		Stages: StagesConfig{
			Picking:   stageConfig(p.Picking),
			Packaging: stageConfig(p.Packaging),
			Sending:   stageConfig(p.Sending),
		},
		Maintenance: MaintenanceConfig{Interval: m.Interval, Warning: m.Warning, Critical: m.Critical},
		Catalog:     model.DefaultCatalog(),
		Machines: []MachineConfig{
			{ID: model.MachineRobotArm, Name: "Robot Arm"},
			{ID: model.MachineConveyor, Name: "Conveyor"},
		},
	}
}

func stageConfig(t fulfillment.StageTiming) StageConfig {
	return StageConfig{Base: t.Base, PerItem: t.PerItem, Mode: string(t.Mode), Machine: t.Machine}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file; a
// missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates it, without looking at
// the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if err := CheckSchema(data); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// CheckSchema validates raw YAML against the embedded CUE schema. Unknown
// keys and wrongly typed values are rejected here, before decoding.
func CheckSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// Validate runs struct validation and the cross-field checks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.SlotMap(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.MaintenancePolicy().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	known := make(map[string]bool, len(c.Machines))
	for _, m := range c.Machines {
		if known[m.ID] {
			return fmt.Errorf("invalid config: duplicate machine %q", m.ID)
		}
		known[m.ID] = true
	}
	var errs []error
	for _, s := range model.Stages {
		if id := c.Policy().Timing(s).Machine; id != "" && !known[id] {
			errs = append(errs, fmt.Errorf("stage %s uses unknown machine %q", s, id))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlotMap returns the catalog's slot table.
func (c *Config) SlotMap() (model.SlotMap, error) {
	return model.Catalog(c.Catalog).SlotMap()
}

// Policy converts the stage settings.
func (c *Config) Policy() fulfillment.Policy {
	return fulfillment.Policy{
		Picking:   c.Stages.Picking.timing(),
		Packaging: c.Stages.Packaging.timing(),
		Sending:   c.Stages.Sending.timing(),
	}
}

func (s StageConfig) timing() fulfillment.StageTiming {
	return fulfillment.StageTiming{
		Base:    s.Base,
		PerItem: s.PerItem,
		Mode:    fulfillment.Mode(s.Mode),
		Machine: s.Machine,
	}
}

// MaintenancePolicy converts the maintenance settings.
func (c *Config) MaintenancePolicy() machine.MaintenancePolicy {
	return machine.MaintenancePolicy{
		Interval: c.Maintenance.Interval,
		Warning:  c.Maintenance.Warning,
		Critical: c.Maintenance.Critical,
	}
}

// MachineRecords returns the machines to provision.
func (c *Config) MachineRecords() []model.Machine {
	out := make([]model.Machine, len(c.Machines))
	for i, m := range c.Machines {
		out[i] = model.NewMachine(m.ID, m.Name)
	}
	return out
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
