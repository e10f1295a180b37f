package robot

import (
	"context"
	"errors"
	"fmt"
)

// Arm exposes blocking Cartesian motion primitives. Every call returns only
// after the commanded motion has physically completed.
type Arm interface {
	// MoveRelative translates the tool by d, expressed in the tool frame.
	MoveRelative(ctx context.Context, d Delta, speed float64) error
	// MoveAbsolute moves the tool to p in the world frame.
	MoveAbsolute(ctx context.Context, p Pose, speed float64) error
	// Home moves the arm to its home pose.
	Home(ctx context.Context) error
	// ReadPosition returns the current tool pose.
	ReadPosition(ctx context.Context) (Pose, error)
}

// Tool is the end-effector: a suction actuator plus a binary contact sensor.
type Tool interface {
	SetSuction(ctx context.Context, on bool) error
	ReadContact(ctx context.Context) (bool, error)
}

// Driver is an arm with a tool attached.
type Driver interface {
	Arm
	Tool
}

// Compose attaches tool to arm.
func Compose(arm Arm, tool Tool) Driver {
	return composed{Arm: arm, Tool: tool}
}

type composed struct {
	Arm
	Tool
}

// Fault codes reported by drivers.
const (
	CodeUnknown   = 1
	CodeBus       = 2 // transport to the controller or servo bus failed
	CodeLimit     = 3 // target outside the reachable workspace
	CodeState     = 4 // controller is in an error or stopped state
	CodeCollision = 5 // motion stopped by collision detection
)

// Fault is an error reported synchronously by a motion or sensor call.
type Fault struct {
	Op   string
	Code int
	Err  error
}

// NewFault returns a fault for op.
func NewFault(op string, code int, err error) *Fault {
	return &Fault{Op: op, Code: code, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: fault code %d", f.Op, f.Code)
	}
	return fmt.Sprintf("%s: fault code %d: %v", f.Op, f.Code, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// FaultCode extracts the fault code from err, or 0 if err carries none.
func FaultCode(err error) int {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return 0
}
