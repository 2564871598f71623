package model

// Default machine ids on the single production line.
const (
	MachineRobotArm = "robot_arm"
	MachineConveyor = "conveyor"
)

// NotRunning is the LastStartTime sentinel while a machine is OFF.
const NotRunning int64 = 0

// Machine is the persisted run-time record of one machine.
type Machine struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Status               Power  `json:"status"`
	TotalAccumulatedTime int64  `json:"totalAccumulatedTime"`
	LastStartTime        int64  `json:"lastStartTime"`
}

// IsOn reports whether the machine is running.
func (m Machine) IsOn() bool {
	return m.Status == PowerOn
}

// NewMachine returns a provisioned machine: OFF with no accumulated time.
func NewMachine(id, name string) Machine {
	return Machine{
		ID:            id,
		Name:          name,
		Status:        PowerOff,
		LastStartTime: NotRunning,
	}
}
