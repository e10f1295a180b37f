package acquire

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/gwillem/cobot/pkg/robot"
)

func TestPlaceOrdering(t *testing.T) {
	cfg := testConfig()
	drv := newFakeDriver(robot.NewPose(330, 40, 70))
	drv.suction = true
	drop := robot.NewPose(148.1, 181.9, 30)

	o := NewPlacer(drv, cfg, zaptest.NewLogger(t).Sugar(), clock.New()).Place(context.Background(), drop, 80)

	test.That(t, o.Kind, test.ShouldEqual, Placed)
	test.That(t, drv.calls, test.ShouldResemble, []call{
		{op: "move_absolute", pose: robot.NewPose(148.1, 181.9, 80)},
		{op: "move_absolute", pose: drop},
		{op: "set_suction", on: false},
		{op: "move_absolute", pose: cfg.ScanPose},
	})
	test.That(t, drv.suction, test.ShouldBeFalse)
}

func TestPlaceFault(t *testing.T) {
	drv := newFakeDriver(robot.NewPose(330, 40, 70))
	drv.fail["move_absolute"] = robot.NewFault("move_absolute", robot.CodeLimit, nil)

	o := NewPlacer(drv, testConfig(), zaptest.NewLogger(t).Sugar(), clock.New()).
		Place(context.Background(), robot.NewPose(148.1, 181.9, 30), 80)

	test.That(t, o.Kind, test.ShouldEqual, Aborted)
	test.That(t, o.Reason, test.ShouldStartWith, "object dropped at unknown location")
	test.That(t, errors.Is(o.Err, ErrActuatorFault), test.ShouldBeTrue)
	test.That(t, robot.FaultCode(o.Err), test.ShouldEqual, robot.CodeLimit)
	test.That(t, len(drv.calls), test.ShouldEqual, 1)
}

func TestPlaceRejectsNonFiniteDrop(t *testing.T) {
	drv := newFakeDriver(robot.NewPose(330, 40, 70))

	o := NewPlacer(drv, testConfig(), zaptest.NewLogger(t).Sugar(), clock.New()).
		Place(context.Background(), robot.NewPose(math.NaN(), 0, 30), 80)

	test.That(t, o.Kind, test.ShouldEqual, Aborted)
	test.That(t, errors.Is(o.Err, ErrInvalidArgument), test.ShouldBeTrue)
	test.That(t, drv.calls, test.ShouldBeEmpty)
}
