package meter

// Actuator programs the physical output.
//
// SetDuty accepts levels in 0..DutyRange, is idempotent, and never fails from
// the caller's point of view. Backends that can hit hardware errors record
// them and report them through Faulter.
type Actuator interface {
	SetDuty(level int)
}

// Faulter reports the most recent hardware failure, or nil once a later
// write has succeeded.
type Faulter interface {
	Err() error
}

// Driver pairs a calibration with an actuator.
//
// Driver holds no state of its own. It is not safe for concurrent use because
// the physical output is single-writer; callers serialize through one loop.
type Driver struct {
	cal Calibration
	act Actuator
}

func NewDriver(cal Calibration, act Actuator) (*Driver, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &Driver{cal: cal, act: act}, nil
}

func (d *Driver) Calibration() Calibration { return d.cal }

// Apply maps p through the calibration, programs the actuator and returns the
// level that was written.
func (d *Driver) Apply(p float64) int {
	level := MapProbabilityToDuty(p, d.cal)
	d.act.SetDuty(level)
	return level
}

// Off forces the output to zero without going through the mapping.
func (d *Driver) Off() int {
	d.act.SetDuty(0)
	return 0
}

// Err reports the actuator's last hardware failure. Actuators that do not
// implement Faulter never fail.
func (d *Driver) Err() error {
	if f, ok := d.act.(Faulter); ok {
		return f.Err()
	}
	return nil
}
