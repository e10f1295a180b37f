package robot

import (
	"encoding/json"
	"fmt"
	"os"
)

// MotorCalibration holds calibration data for a single servo.
type MotorCalibration struct {
	ID       int `json:"id"`
	RangeMin int `json:"range_min"`
	RangeMax int `json:"range_max"`
}

// Calibration holds calibration data for all tool servos, keyed by name.
type Calibration map[MotorName]MotorCalibration

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]MotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		cal[MotorName(name)] = mc
	}
	return cal, nil
}

// Normalize converts a raw servo position to a value in [-100, 100].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a value in [-100, 100] to a raw servo position.
// Values outside the range are clamped so the valve is never driven past its stops.
func (c MotorCalibration) Denormalize(norm float64) int {
	if norm < -100 {
		norm = -100
	}
	if norm > 100 {
		norm = 100
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// MotorIDs returns the servo IDs for the given motors, in order, skipping
// motors without calibration.
func (c Calibration) MotorIDs(names ...MotorName) []int {
	if len(names) == 0 {
		names = AllMotors()
	}
	ids := make([]int, 0, len(names))
	for _, name := range names {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// Complete reports whether every tool servo has a usable range.
func (c Calibration) Complete() bool {
	for _, name := range AllMotors() {
		mc, ok := c[name]
		if !ok || mc.RangeMax <= mc.RangeMin {
			return false
		}
	}
	return true
}
