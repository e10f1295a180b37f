package acquire

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/robot"
)

// Servo centers the tool over a detected object by repeatedly reading the
// latest detection and issuing corrective tool-frame moves.
type Servo struct {
	arm            robot.Arm
	locator        locator.Locator
	logger         *zap.SugaredLogger
	clock          clock.Clock
	speed          float64
	retryInterval  time.Duration
	maxCorrections int
}

// NewServo returns a centering controller using the speed, retry interval
// and correction budget from cfg.
func NewServo(arm robot.Arm, loc locator.Locator, cfg Config, logger *zap.SugaredLogger, clk clock.Clock) *Servo {
	return &Servo{
		arm:            arm,
		locator:        loc,
		logger:         logger,
		clock:          clk,
		speed:          cfg.TravelSpeed,
		retryInterval:  cfg.RetryInterval.D(),
		maxCorrections: cfg.MaxCorrections,
	}
}

// CenterOn moves the tool until the latest detection of label lies within
// (tolX, tolY) of the image center.
//
// Only missing detections count against maxAttempts. Corrective moves are
// bounded separately by the configured correction budget.
func (s *Servo) CenterOn(ctx context.Context, label string, tolX, tolY float64, maxAttempts int) Outcome {
	if maxAttempts <= 0 {
		return abort(ErrInvalidArgument, fmt.Sprintf("attempt budget %d", maxAttempts))
	}

	misses, corrections := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return fault("locate", err)
		}

		det, ok := s.locate(ctx, label)
		if !ok {
			misses++
			s.logger.Debugw("object not visible", "label", label, "attempt", misses, "max_attempts", maxAttempts)
			if misses >= maxAttempts {
				return notFound(fmt.Sprintf("%q not seen after %d attempts", label, misses))
			}
			if err := sleep(ctx, s.clock, s.retryInterval); err != nil {
				return fault("wait for detection", err)
			}
			continue
		}

		if math.Abs(det.OffsetX) < tolX && math.Abs(det.OffsetY) < tolY {
			s.logger.Infow("centered", "label", label, "offset_x", det.OffsetX, "offset_y", det.OffsetY, "corrections", corrections)
			return success(Centered)
		}

		if corrections >= s.maxCorrections {
			return notFound(fmt.Sprintf("%q did not converge after %d corrections", label, corrections))
		}
		corrections++

		d := ToToolDelta(det.OffsetX, det.OffsetY)
		s.logger.Debugw("correcting", "label", label, "offset_x", det.OffsetX, "offset_y", det.OffsetY, "delta", d.String())
		if err := s.arm.MoveRelative(ctx, d, s.speed); err != nil {
			return fault("correct", err)
		}
	}
}

// locate returns a usable detection. Locator errors and non-finite offsets
// are treated as "not visible".
func (s *Servo) locate(ctx context.Context, label string) (locator.Detection, bool) {
	det, ok, err := s.locator.FindLatest(ctx, label)
	if err != nil {
		s.logger.Warnw("locator query failed", "label", label, "error", err)
		return locator.Detection{}, false
	}
	if ok && !det.Finite() {
		s.logger.Warnw("ignoring non-finite detection", "label", label, "offset_x", det.OffsetX, "offset_y", det.OffsetY)
		return locator.Detection{}, false
	}
	return det, ok
}
