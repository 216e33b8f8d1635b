package meter

import (
	"fmt"
	"math"
)

// Calibration describes the piecewise-linear response of one physical meter.
//
// CenterDuty and MaxDuty are percentages of the full duty range at probability
// 0.5 and 1.0 respectively. Probability 0.0 always maps to zero duty.
// DutyRange is the actuator's maximum native duty level (1023 for a 10-bit PWM).
type Calibration struct {
	CenterDuty int
	MaxDuty    int
	DutyRange  int
}

// ReferenceCalibration matches the first hardware revision of the meter.
var ReferenceCalibration = Calibration{CenterDuty: 46, MaxDuty: 91, DutyRange: 1023}

func (c Calibration) Validate() error {
	if c.DutyRange <= 0 {
		return fmt.Errorf("meter: duty range must be > 0 (got %d)", c.DutyRange)
	}
	if c.CenterDuty < 0 || c.CenterDuty > 100 {
		return fmt.Errorf("meter: center duty must be within 0..100 (got %d)", c.CenterDuty)
	}
	if c.MaxDuty < c.CenterDuty || c.MaxDuty > 100 {
		return fmt.Errorf("meter: max duty must be within %d..100 (got %d)", c.CenterDuty, c.MaxDuty)
	}
	return nil
}

// Clamp limits v to [0,1]. NaN is treated as 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DutyFor converts a duty percentage into the actuator's native range using
// the same tenths-of-a-percent intermediate as MapProbabilityToDuty.
func DutyFor(percent int, c Calibration) int {
	return tenthsToLevel(percent*10, c)
}

// MapProbabilityToDuty maps a probability onto the meter's native duty range.
//
// v is first rounded to whole thousandths. The rest is integer math in two
// truncating stages: the duty percentage in tenths, then tenths scaled to
// 0..DutyRange. The output is monotonically non-decreasing in v and
// continuous at 0.5.
func MapProbabilityToDuty(v float64, c Calibration) int {
	return mapThousandths(int(math.Round(Clamp(v)*1000)), c)
}

func mapThousandths(m int, c Calibration) int {
	var tenths int
	if m <= 500 {
		tenths = m * 2 * c.CenterDuty * 10 / 1000
	} else {
		tenths = c.CenterDuty*10 + (m-500)*2*(c.MaxDuty-c.CenterDuty)*10/1000
	}
	return tenthsToLevel(tenths, c)
}

func tenthsToLevel(tenths int, c Calibration) int {
	level := tenths * c.DutyRange / 1000
	if level < 0 {
		return 0
	}
	if level > c.DutyRange {
		return c.DutyRange
	}
	return level
}
