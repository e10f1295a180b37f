package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/robot"
)

// Tracker receives every z the descent is about to command.
type Tracker func(z float64)

// Descent lowers the tool in fixed steps until the contact sensor fires.
type Descent struct {
	driver      robot.Driver
	logger      *zap.SugaredLogger
	clock       clock.Clock
	speed       float64
	travelSpeed float64
	track       Tracker
	start       robot.Pose
}

// NewDescent returns a descent controller. track may be nil.
func NewDescent(driver robot.Driver, cfg Config, logger *zap.SugaredLogger, clk clock.Clock, track Tracker) *Descent {
	if track == nil {
		track = func(float64) {}
	}
	return &Descent{
		driver:      driver,
		logger:      logger,
		clock:       clk,
		speed:       cfg.DescentSpeed,
		travelSpeed: cfg.TravelSpeed,
		track:       track,
	}
}

// DescendUntilContact applies the forward offset, turns suction on and steps
// down until contact or until the next step would reach minHeight.
//
// No commanded z is ever below minHeight. When the travel is used up without
// contact the tool is returned to its starting pose and ContactFailed is
// returned. Cancellation takes the same return path before reporting
// Aborted.
func (d *Descent) DescendUntilContact(ctx context.Context, minHeight, stepSize float64, pollInterval time.Duration, forward robot.Delta) Outcome {
	start, err := d.driver.ReadPosition(ctx)
	if err != nil {
		return fault("read position", err)
	}
	if !start.Finite() {
		return abort(ErrActuatorFault, fmt.Sprintf("read position: non-finite pose %s", start))
	}
	d.start = start
	if !positive(stepSize) || !finite(minHeight) {
		return abort(ErrSafetyViolation, fmt.Sprintf("invalid descent parameters: step %v, floor %v", stepSize, minHeight))
	}

	top := start.Z + start.ToolToWorld(forward.Vector()).Z
	if !finite(top) || top < minHeight {
		return abort(ErrSafetyViolation, fmt.Sprintf("descent starts at z=%.1f below floor %.1f", top, minHeight))
	}

	step := start.WorldToTool(r3.Vector{Z: -stepSize})
	down := robot.Delta{X: step.X, Y: step.Y, Z: step.Z}

	d.logger.Infow("descending", "from", start.String(), "top", top, "floor", minHeight, "step", stepSize)

	if !forward.IsZero() {
		if err := d.driver.MoveRelative(ctx, forward, d.travelSpeed); err != nil {
			return d.interrupted(ctx, start, "forward offset", err)
		}
	}
	if err := d.driver.SetSuction(ctx, true); err != nil {
		return d.interrupted(ctx, start, "suction on", err)
	}

	for i := 0; ; i++ {
		// Equivalent to traveled < top-minHeight-stepSize, evaluated on
		// the value actually commanded.
		target := top - float64(i)*stepSize - stepSize
		if target <= minHeight {
			break
		}
		if !finite(target) {
			return abort(ErrSafetyViolation, fmt.Sprintf("step %d has no finite target", i+1))
		}

		d.track(target)
		if err := d.driver.MoveRelative(ctx, down, d.speed); err != nil {
			return d.interrupted(ctx, start, "step down", err)
		}
		if err := sleep(ctx, d.clock, pollInterval); err != nil {
			return d.interrupted(ctx, start, "poll wait", err)
		}
		contact, err := d.driver.ReadContact(ctx)
		if err != nil {
			return d.interrupted(ctx, start, "read contact", err)
		}
		if contact {
			d.logger.Infow("contact", "z", target, "steps", i+1)
			return success(ContactConfirmed)
		}
	}

	d.logger.Infow("no contact, returning to start", "floor", minHeight, "pose", start.String())
	if err := d.recover(ctx, start); err != nil {
		return abort(ErrActuatorFault, fmt.Sprintf("recover after no contact: %v", err))
	}
	return contactFailed(fmt.Sprintf("no contact above z=%.1f", minHeight))
}

// interrupted maps a failed call inside the descent. Cancellation runs the
// recovery path on a detached context; any other error aborts in place.
func (d *Descent) interrupted(ctx context.Context, start robot.Pose, op string, err error) Outcome {
	if !isCanceled(err) || ctx.Err() == nil {
		return fault(op, err)
	}
	d.logger.Warnw("descent canceled, returning to start", "op", op, "pose", start.String())
	return canceled(op, err, d.recover(context.WithoutCancel(ctx), start))
}

// Start returns the pose read at the beginning of the last descent.
func (d *Descent) Start() robot.Pose {
	return d.start
}

// recover releases suction and returns the tool to start at travel speed.
func (d *Descent) recover(ctx context.Context, start robot.Pose) error {
	var err error
	if serr := d.driver.SetSuction(ctx, false); serr != nil {
		err = multierr.Append(err, fmt.Errorf("suction off: %w", serr))
	}
	if merr := d.driver.MoveAbsolute(ctx, start, d.travelSpeed); merr != nil {
		err = multierr.Append(err, fmt.Errorf("return to start: %w", merr))
	}
	return err
}
