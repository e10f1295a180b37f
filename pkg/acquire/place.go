package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/robot"
)

// Placer carries a grasped object to a drop pose and releases it.
type Placer struct {
	driver      robot.Driver
	logger      *zap.SugaredLogger
	clock       clock.Clock
	speed       float64
	travelSpeed float64
	hold        time.Duration
	release     time.Duration
	rest        robot.Pose
}

// NewPlacer returns a placement sequencer that finishes at cfg.ScanPose.
func NewPlacer(driver robot.Driver, cfg Config, logger *zap.SugaredLogger, clk clock.Clock) *Placer {
	return &Placer{
		driver:      driver,
		logger:      logger,
		clock:       clk,
		speed:       cfg.PlaceSpeed,
		travelSpeed: cfg.TravelSpeed,
		hold:        cfg.PlaceHold.D(),
		release:     cfg.ReleaseHold.D(),
		rest:        cfg.ScanPose,
	}
}

// Place approaches drop from safeHeight, releases the object and returns to
// the rest pose. The approach pose is always commanded before drop itself.
//
// A cancellation before the return to rest lifts the tool back to the
// approach pose before reporting Aborted.
func (p *Placer) Place(ctx context.Context, drop robot.Pose, safeHeight float64) Outcome {
	if !drop.Finite() || !finite(safeHeight) {
		return abort(ErrInvalidArgument, fmt.Sprintf("drop pose %s at safe height %v", drop, safeHeight))
	}

	approach := drop.WithZ(safeHeight)
	p.logger.Infow("placing", "approach", approach.String(), "drop", drop.String())

	if err := p.driver.MoveAbsolute(ctx, approach, p.travelSpeed); err != nil {
		return p.stop(ctx, approach, "approach", err, true)
	}
	if err := p.driver.MoveAbsolute(ctx, drop, p.speed); err != nil {
		return p.stop(ctx, approach, "lower", err, true)
	}
	if err := sleep(ctx, p.clock, p.hold); err != nil {
		return p.stop(ctx, approach, "hold", err, true)
	}
	if err := p.driver.SetSuction(ctx, false); err != nil {
		return p.stop(ctx, approach, "release", err, true)
	}
	if err := sleep(ctx, p.clock, p.release); err != nil {
		return p.stop(ctx, approach, "release wait", err, false)
	}
	if err := p.driver.MoveAbsolute(ctx, p.rest, p.travelSpeed); err != nil {
		return fault("return to rest", err)
	}
	return success(Placed)
}

// stop maps a failed placement step. Cancellation lifts the tool to approach
// on a detached context. Any other error aborts in place; held marks steps
// where the object may still be on the cup.
func (p *Placer) stop(ctx context.Context, approach robot.Pose, op string, err error, held bool) Outcome {
	if isCanceled(err) && ctx.Err() != nil {
		p.logger.Warnw("placement canceled, lifting", "op", op, "to", approach.String())
		return canceled(op, err, p.driver.MoveAbsolute(context.WithoutCancel(ctx), approach, p.travelSpeed))
	}
	o := fault(op, err)
	if held {
		o.Reason = "object dropped at unknown location: " + o.Reason
	}
	return o
}
