package acquire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/gwillem/cobot/pkg/robot"
)

// Duration is a time.Duration that reads and writes JSON as "250ms".
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"100ms\": %s", b)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds every tunable of an acquisition run. It is fixed at
// construction; nothing reconfigures it mid-run.
type Config struct {
	// Centering.
	ToleranceX     float64  `json:"tolerance_x_mm"`
	ToleranceY     float64  `json:"tolerance_y_mm"`
	MaxAttempts    int      `json:"max_attempts"`
	MaxCorrections int      `json:"max_corrections"`
	RetryInterval  Duration `json:"retry_interval"`

	// Descent.
	MinHeight     float64     `json:"min_height_mm"`
	StepSize      float64     `json:"step_size_mm"`
	PollInterval  Duration    `json:"poll_interval"`
	ForwardOffset robot.Delta `json:"forward_offset"`
	GraspSettle   Duration    `json:"grasp_settle"`

	// Placement.
	SafeHeight  float64    `json:"safe_height_mm"`
	DropPose    robot.Pose `json:"drop_pose"`
	ScanPose    robot.Pose `json:"scan_pose"`
	PlaceHold   Duration   `json:"place_hold"`
	ReleaseHold Duration   `json:"release_hold"`
	ScanSettle  Duration   `json:"scan_settle"`

	// Speeds in mm/s.
	TravelSpeed  float64 `json:"travel_speed"`
	DescentSpeed float64 `json:"descent_speed"`
	PlaceSpeed   float64 `json:"place_speed"`
}

// DefaultConfig returns settings for a tabletop cobot with a down-looking
// camera mounted 80mm behind the suction cup.
func DefaultConfig() Config {
	return Config{
		ToleranceX:     3,
		ToleranceY:     3,
		MaxAttempts:    10,
		MaxCorrections: 20,
		RetryInterval:  Duration(200 * time.Millisecond),

		MinHeight:     10,
		StepSize:      20,
		PollInterval:  Duration(100 * time.Millisecond),
		ForwardOffset: robot.Delta{X: 80},
		GraspSettle:   Duration(time.Second),

		SafeHeight:  80,
		DropPose:    robot.NewPose(148.1, 181.9, 30),
		ScanPose:    robot.NewPose(200, 0, 300),
		PlaceHold:   Duration(500 * time.Millisecond),
		ReleaseHold: Duration(time.Second),
		ScanSettle:  Duration(time.Second),

		TravelSpeed:  100,
		DescentSpeed: 25,
		PlaceSpeed:   25,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(positive(c.ToleranceX), "tolerance_x_mm must be > 0, got %v", c.ToleranceX)
	check(positive(c.ToleranceY), "tolerance_y_mm must be > 0, got %v", c.ToleranceY)
	check(c.MaxAttempts > 0, "max_attempts must be > 0, got %d", c.MaxAttempts)
	check(c.MaxCorrections > 0, "max_corrections must be > 0, got %d", c.MaxCorrections)
	check(positive(c.StepSize), "step_size_mm must be > 0, got %v", c.StepSize)
	check(finite(c.MinHeight), "min_height_mm must be finite")
	check(finite(c.SafeHeight) && c.SafeHeight >= c.MinHeight,
		"safe_height_mm (%v) must be >= min_height_mm (%v)", c.SafeHeight, c.MinHeight)
	check(c.DropPose.Finite(), "drop_pose must be finite")
	check(c.ScanPose.Finite(), "scan_pose must be finite")
	check(c.DropPose.Z <= c.SafeHeight,
		"drop_pose z (%v) must not be above safe_height_mm (%v)", c.DropPose.Z, c.SafeHeight)
	check(finite(c.ForwardOffset.X) && finite(c.ForwardOffset.Y) && finite(c.ForwardOffset.Z),
		"forward_offset must be finite")
	check(positive(c.TravelSpeed), "travel_speed must be > 0")
	check(positive(c.DescentSpeed), "descent_speed must be > 0")
	check(positive(c.PlaceSpeed), "place_speed must be > 0")
	for _, d := range []struct {
		name string
		v    Duration
	}{
		{"retry_interval", c.RetryInterval},
		{"poll_interval", c.PollInterval},
		{"grasp_settle", c.GraspSettle},
		{"place_hold", c.PlaceHold},
		{"release_hold", c.ReleaseHold},
		{"scan_settle", c.ScanSettle},
	} {
		check(d.v >= 0, "%s must not be negative", d.name)
	}

	if err != nil {
		return errors.Join(errInvalidConfig, err)
	}
	return nil
}

var errInvalidConfig = errors.New("invalid acquisition config")

func positive(v float64) bool {
	return finite(v) && v > 0
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
