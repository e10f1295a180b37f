package robot

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.uber.org/multierr"
)

// ToolConfig holds configuration for the servo end-effector board.
type ToolConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`

	// ValveOpen and ValveClosed are normalized valve positions in [-100, 100].
	// Suction is on while the valve is open.
	ValveOpen   float64 `json:"valve_open"`
	ValveClosed float64 `json:"valve_closed"`

	// ContactThreshold is the normalized probe deflection that counts as contact.
	ContactThreshold float64 `json:"contact_threshold"`
}

// IsCalibrated returns true if the tool has calibration data for every servo.
func (c *ToolConfig) IsCalibrated() bool {
	return c.Calibration.Complete()
}

// DefaultToolConfig returns valve and probe settings for a freshly calibrated board.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		ValveOpen:        80,
		ValveClosed:      -80,
		ContactThreshold: 15,
	}
}

// ServoTool is a suction end-effector built from Feetech servos: a valve servo
// switches suction and a passive probe servo senses tip deflection.
type ServoTool struct {
	bus         *feetech.Bus
	valve       *feetech.ServoGroup
	probe       *feetech.ServoGroup
	calibration Calibration
	cfg         ToolConfig

	mu   sync.Mutex
	rest float64 // probe position when suction was switched on
}

var _ Tool = (*ServoTool)(nil)

// NewServoTool opens the servo bus and prepares the tool.
func NewServoTool(ctx context.Context, cfg ToolConfig) (*ServoTool, error) {
	if !cfg.IsCalibrated() {
		return nil, fmt.Errorf("tool on %s is not calibrated", cfg.Port)
	}

	bus, err := OpenBus(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	t := &ServoTool{
		bus:         bus,
		valve:       feetech.NewServoGroupByIDs(bus, cfg.Calibration.MotorIDs(SuctionValve)...),
		probe:       feetech.NewServoGroupByIDs(bus, cfg.Calibration.MotorIDs(ContactProbe)...),
		calibration: cfg.Calibration,
		cfg:         cfg,
	}

	// The probe is read as an encoder; it must move freely.
	if err := t.probe.DisableAll(ctx); err != nil {
		return nil, multierr.Combine(fmt.Errorf("release probe: %w", err), bus.Close())
	}
	if err := t.valve.EnableAll(ctx); err != nil {
		return nil, multierr.Combine(fmt.Errorf("enable valve: %w", err), bus.Close())
	}
	if err := t.writeValve(ctx, cfg.ValveClosed); err != nil {
		return nil, multierr.Combine(err, bus.Close())
	}
	return t, nil
}

// Close closes the valve and releases the bus.
func (t *ServoTool) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return multierr.Combine(
		t.writeValve(ctx, t.cfg.ValveClosed),
		t.valve.DisableAll(ctx),
		t.bus.Close(),
	)
}

// SetSuction opens or closes the valve. Switching suction on also records the
// probe rest position that later deflection is measured against.
func (t *ServoTool) SetSuction(ctx context.Context, on bool) error {
	target := t.cfg.ValveClosed
	if on {
		target = t.cfg.ValveOpen
	}
	if err := t.writeValve(ctx, target); err != nil {
		return NewFault("set_suction", CodeBus, err)
	}
	if !on {
		return nil
	}

	pos, err := t.readProbe(ctx)
	if err != nil {
		return NewFault("set_suction", CodeBus, err)
	}
	t.mu.Lock()
	t.rest = pos
	t.mu.Unlock()
	return nil
}

// ReadContact reports whether the probe tip is deflected past the threshold.
func (t *ServoTool) ReadContact(ctx context.Context) (bool, error) {
	pos, err := t.readProbe(ctx)
	if err != nil {
		return false, NewFault("read_contact", CodeBus, err)
	}
	t.mu.Lock()
	rest := t.rest
	t.mu.Unlock()
	return Deflected(rest, pos, t.cfg.ContactThreshold), nil
}

// Deflected reports whether a probe reading differs from rest by at least threshold.
func Deflected(rest, pos, threshold float64) bool {
	return math.Abs(pos-rest) >= threshold
}

func (t *ServoTool) readProbe(ctx context.Context) (float64, error) {
	raw, err := t.probe.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("read probe: %w", err)
	}
	for id, pos := range raw {
		if name, cal, ok := t.calibration.ByID(id); ok && name == ContactProbe {
			return cal.Normalize(pos), nil
		}
	}
	return 0, fmt.Errorf("read probe: no reading for %s", ContactProbe)
}

func (t *ServoTool) writeValve(ctx context.Context, norm float64) error {
	cal, ok := t.calibration[SuctionValve]
	if !ok {
		return fmt.Errorf("write valve: %s not calibrated", SuctionValve)
	}
	if err := t.valve.SetPositions(ctx, feetech.PositionMap{cal.ID: cal.Denormalize(norm)}); err != nil {
		return fmt.Errorf("write valve: %w", err)
	}
	return nil
}
