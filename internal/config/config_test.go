package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, fulfillment.DefaultPolicy(), cfg.Policy())
	assert.Equal(t, machine.DefaultMaintenancePolicy(), cfg.MaintenancePolicy())
	assert.Len(t, cfg.Catalog, 4)

	slots, err := cfg.SlotMap()
	require.NoError(t, err)
	assert.Equal(t, 4, slots.Len())

	machines := cfg.MachineRecords()
	require.Len(t, machines, 2)
	assert.Equal(t, model.MachineRobotArm, machines[0].ID)
	assert.Equal(t, model.PowerOff, machines[0].Status)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
database: /var/lib/mesline/line.db
poll_interval: 100ms
metrics:
  listen: ":9090"
stages:
  picking:
    base: 2s
    per_item: 500ms
    mode: signal
    machine: arm
  packaging:
    machine: ""
maintenance:
  interval: 10h
  warning: 4h
  critical: 1h
catalog:
  - {id: sku-a, name: Gear, price: 100, slot: 1}
  - {id: sku-b, name: Belt, price: 250, slot: 0}
machines:
  - {id: arm, name: Arm}
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mesline/line.db", cfg.Database)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)

	p := cfg.Policy()
	assert.Equal(t, fulfillment.ModeSignal, p.Picking.Mode)
	assert.Equal(t, 3500*time.Millisecond, p.Picking.Duration(3))
	assert.Equal(t, "arm", p.Picking.Machine)
	assert.Empty(t, p.Packaging.Machine)
	assert.Equal(t, 5*time.Second, p.Sending.Base, "unset fields keep defaults")

	assert.Equal(t, 10*time.Hour, cfg.MaintenancePolicy().Interval)

	slots, err := cfg.SlotMap()
	require.NoError(t, err)
	assert.Equal(t, []string{"sku-b", "sku-a"}, slots.ItemIDs())
}

func TestParse_SchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "databse: line.db\n"},
		{"unknown nested key", "stages:\n  picking:\n    speed: 2\n"},
		{"bad duration", "poll_interval: 5 seconds\n"},
		{"signal sending", "stages:\n  sending:\n    mode: signal\n"},
		{"unknown mode", "stages:\n  picking:\n    mode: manual\n"},
		{"negative price", "catalog:\n  - {id: a, name: A, price: -1, slot: 0}\n"},
		{"missing catalog name", "catalog:\n  - {id: a, price: 1, slot: 0}\n"},
		{"empty database", "database: \"\"\n"},
		{"log format", "log:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSchema([]byte(tt.yaml))
			assert.Error(t, err)

			_, err = Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_ValidationRejects(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			"slot gap",
			"catalog:\n  - {id: a, name: A, price: 1, slot: 0}\n  - {id: b, name: B, price: 1, slot: 2}\n",
			"out of range",
		},
		{
			"duplicate item",
			"catalog:\n  - {id: a, name: A, price: 1, slot: 0}\n  - {id: a, name: B, price: 1, slot: 1}\n",
			"duplicate item",
		},
		{
			"unknown stage machine",
			"stages:\n  picking:\n    machine: forklift\n",
			"unknown machine",
		},
		{
			"duplicate machine",
			"machines:\n  - {id: robot_arm, name: A}\n  - {id: robot_arm, name: B}\n  - {id: conveyor, name: C}\n",
			"duplicate machine",
		},
		{
			"thresholds out of order",
			"maintenance:\n  warning: 2h\n  critical: 3h\n",
			"thresholds",
		},
		{
			"bad listen address",
			"metrics:\n  listen: nowhere\n",
			"hostname_port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: from-file.db\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.Database)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, cfg.Database)
}

func TestLoad_Env(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: from-file.db\n"), 0o644))

	t.Setenv("MES_DATABASE", "from-env.db")
	t.Setenv("MES_POLL_INTERVAL", "50ms")
	t.Setenv("MES_METRICS_LISTEN", "127.0.0.1:9100")
	t.Setenv("MES_DRAIN_DELAY", "0s")
	t.Setenv("MES_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
	assert.Equal(t, time.Duration(0), cfg.Actuator.DrainDelay)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("MES_POLL_INTERVAL", "soon")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("MES_POLL_INTERVAL", "0s")
	_, err = Load("")
	assert.Error(t, err, "poll interval must stay positive")
}

func TestMarshal_Reparses(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
