package meter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActuator struct {
	levels []int
}

func (f *fakeActuator) SetDuty(level int) { f.levels = append(f.levels, level) }

type faultyActuator struct {
	fakeActuator
	err error
}

func (f *faultyActuator) Err() error { return f.err }

func TestNewDriver_RejectsInvalidCalibration(t *testing.T) {
	_, err := NewDriver(Calibration{CenterDuty: 50, MaxDuty: 40, DutyRange: 1023}, &fakeActuator{})
	require.Error(t, err)
}

func TestDriverApply_WritesMappedLevel(t *testing.T) {
	act := &fakeActuator{}
	d, err := NewDriver(ReferenceCalibration, act)
	require.NoError(t, err)

	assert.Equal(t, 470, d.Apply(0.5))
	assert.Equal(t, 930, d.Apply(7))
	assert.Equal(t, []int{470, 930}, act.levels)
}

func TestDriverOff_AlwaysZero(t *testing.T) {
	act := &fakeActuator{}
	d, err := NewDriver(ReferenceCalibration, act)
	require.NoError(t, err)

	d.Apply(1)
	assert.Equal(t, 0, d.Off())
	assert.Equal(t, 0, d.Off())
	assert.Equal(t, []int{930, 0, 0}, act.levels)
}

func TestDriverErr_ReportsActuatorFault(t *testing.T) {
	plain, err := NewDriver(ReferenceCalibration, &fakeActuator{})
	require.NoError(t, err)
	assert.NoError(t, plain.Err())

	act := &faultyActuator{err: errors.New("write duty_cycle: EIO")}
	d, err := NewDriver(ReferenceCalibration, act)
	require.NoError(t, err)
	d.Apply(0.5)
	assert.EqualError(t, d.Err(), "write duty_cycle: EIO")

	act.err = nil
	assert.NoError(t, d.Err())
}
