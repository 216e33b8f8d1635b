package controller

import (
	"time"

	"probmeter/internal/display"
)

type CalibrationInfo struct {
	CenterDuty int `json:"center_duty"`
	MaxDuty    int `json:"max_duty"`
	DutyRange  int `json:"duty_range"`
	// Native levels at probability 0.5 and 1.
	CenterLevel int `json:"center_level"`
	MaxLevel    int `json:"max_level"`
}

// Snapshot is a point-in-time copy of the controller state for status APIs.
type Snapshot struct {
	Status display.Status `json:"status"`
	// ActuatorErr is the output's last hardware failure. Status.Duty is only
	// what was requested while it is set.
	ActuatorErr string `json:"actuator_error,omitempty"`

	Polls            uint64 `json:"polls"`
	PollFailures     uint64 `json:"poll_failures"`
	Reconnects       uint64 `json:"reconnects"`
	Commands         uint64 `json:"commands"`
	CommandsRejected uint64 `json:"commands_rejected"`

	LastPollUTC    time.Time `json:"last_poll_utc,omitempty"`
	LastSuccessUTC time.Time `json:"last_success_utc,omitempty"`

	PollInterval string          `json:"poll_interval"`
	Calibration  CalibrationInfo `json:"calibration"`
}

// Snapshot is safe to call from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
