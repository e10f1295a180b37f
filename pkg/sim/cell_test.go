package sim

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/gwillem/cobot/pkg/acquire"
	"github.com/gwillem/cobot/pkg/robot"
)

var ball = Object{Label: "ball", X: 320, Y: 40, Height: 30, Radius: 20}

func newTestCell(t *testing.T, objects ...Object) *Cell {
	return New(DefaultConfig(), zaptest.NewLogger(t).Sugar(), nil, objects...)
}

func TestDetectionCentersCamera(t *testing.T) {
	ctx := context.Background()
	c := newTestCell(t, ball)

	d, ok, err := c.FindLatest(ctx, "ball")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.OffsetX, test.ShouldAlmostEqual, 40.0)
	test.That(t, d.OffsetY, test.ShouldAlmostEqual, 40.0)
	test.That(t, d.Timestamp.IsZero(), test.ShouldBeFalse)

	test.That(t, c.MoveRelative(ctx, acquire.ToToolDelta(d.OffsetX, d.OffsetY), 100), test.ShouldBeNil)
	d, ok, err = c.FindLatest(ctx, "ball")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.OffsetX, test.ShouldAlmostEqual, 0.0)
	test.That(t, d.OffsetY, test.ShouldAlmostEqual, 0.0)

	// the camera offset brings the cup over the object
	test.That(t, c.MoveRelative(ctx, DefaultConfig().CameraOffset, 100), test.ShouldBeNil)
	test.That(t, c.Pose().X, test.ShouldAlmostEqual, ball.X)
	test.That(t, c.Pose().Y, test.ShouldAlmostEqual, ball.Y)
}

func TestLabels(t *testing.T) {
	ctx := context.Background()
	far := Object{Label: "cube", X: -400, Y: 300, Height: 20, Radius: 15}
	c := newTestCell(t, ball, far, Object{Label: "apple", X: 250, Y: -60, Height: 40, Radius: 25})

	labels, err := c.Labels(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, labels, test.ShouldResemble, []string{"apple", "ball"})

	_, ok, err := c.FindLatest(ctx, "cube")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestContactAndPick(t *testing.T) {
	ctx := context.Background()
	c := newTestCell(t, ball)

	test.That(t, c.MoveAbsolute(ctx, robot.NewPose(ball.X, ball.Y, 60), 100), test.ShouldBeNil)
	contact, err := c.ReadContact(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, contact, test.ShouldBeFalse)

	test.That(t, c.SetSuction(ctx, true), test.ShouldBeNil)
	// compliant cup stops on the top face
	test.That(t, c.MoveRelative(ctx, robot.Delta{Z: 40}, 25), test.ShouldBeNil)
	test.That(t, c.Pose().Z, test.ShouldEqual, ball.Height)
	contact, err = c.ReadContact(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, contact, test.ShouldBeTrue)
	test.That(t, c.Holding(), test.ShouldEqual, "ball")

	test.That(t, c.MoveAbsolute(ctx, robot.NewPose(100, 100, 80), 100), test.ShouldBeNil)
	test.That(t, c.SetSuction(ctx, false), test.ShouldBeNil)
	test.That(t, c.Holding(), test.ShouldEqual, "")
	test.That(t, c.Objects()[0].X, test.ShouldEqual, 100.0)
	test.That(t, c.Objects()[0].Y, test.ShouldEqual, 100.0)
}

func TestMotionFaults(t *testing.T) {
	ctx := context.Background()
	tall := Object{Label: "bottle", X: 300, Y: 0, Height: 120, Radius: 30}
	c := newTestCell(t, tall)

	err := c.MoveAbsolute(ctx, robot.NewPose(900, 0, 100), 100)
	test.That(t, robot.FaultCode(err), test.ShouldEqual, robot.CodeLimit)

	err = c.MoveAbsolute(ctx, robot.NewPose(300, 0, -5), 100)
	test.That(t, robot.FaultCode(err), test.ShouldEqual, robot.CodeLimit)

	err = c.MoveAbsolute(ctx, robot.NewPose(300, 0, 50), 100)
	test.That(t, robot.FaultCode(err), test.ShouldEqual, robot.CodeCollision)

	injected := robot.NewFault("read_contact", robot.CodeBus, errors.New("probe offline"))
	c.Fail("read_contact", injected)
	_, err = c.ReadContact(ctx)
	test.That(t, errors.Is(err, injected), test.ShouldBeTrue)
	_, err = c.ReadContact(ctx)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.Pose(), test.ShouldResemble, DefaultConfig().Home)
	test.That(t, c.Path(), test.ShouldBeEmpty)
}

func newTestSupervisor(t *testing.T, c *Cell) *acquire.Supervisor {
	cfg := acquire.DefaultConfig()
	cfg.RetryInterval = 0
	cfg.PollInterval = 0
	cfg.GraspSettle = 0
	cfg.PlaceHold = 0
	cfg.ReleaseHold = 0
	cfg.ScanSettle = 0
	s, err := acquire.New(c, c, cfg, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	return s
}

func TestSupervisorPicksAndPlaces(t *testing.T) {
	ctx := context.Background()
	c := newTestCell(t, ball, Object{Label: "cube", X: 200, Y: -100, Height: 20, Radius: 15})
	s := newTestSupervisor(t, c)

	scan, err := s.ScanObjects(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scan.Labels, test.ShouldContain, "ball")

	drop := robot.NewPose(148.1, 181.9, 30)
	res, err := s.AcquireAndPlace(ctx, "ball", drop)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Err(), test.ShouldBeNil)
	test.That(t, res.State, test.ShouldEqual, acquire.Done)

	moved := c.Objects()[0]
	test.That(t, moved.X, test.ShouldAlmostEqual, drop.X)
	test.That(t, moved.Y, test.ShouldAlmostEqual, drop.Y)
	test.That(t, c.Holding(), test.ShouldEqual, "")
	test.That(t, c.Pose(), test.ShouldResemble, s.Config().ScanPose)

	for _, p := range c.Path() {
		test.That(t, p.Z, test.ShouldBeGreaterThanOrEqualTo, s.Config().MinHeight)
	}
}

func TestSupervisorMissingObject(t *testing.T) {
	c := newTestCell(t, ball)
	s := newTestSupervisor(t, c)

	res, err := s.AcquireAndPlace(context.Background(), "cube", s.Config().DropPose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errors.Is(res.Err(), acquire.ErrNotFound), test.ShouldBeTrue)
	test.That(t, c.Path(), test.ShouldBeEmpty)
}

func TestSupervisorProbeFault(t *testing.T) {
	c := newTestCell(t, ball)
	c.Fail("read_contact", robot.NewFault("read_contact", robot.CodeBus, nil))
	s := newTestSupervisor(t, c)

	res, err := s.AcquireAndPlace(context.Background(), "ball", s.Config().DropPose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.State, test.ShouldEqual, acquire.Failed)
	test.That(t, errors.Is(res.Err(), acquire.ErrActuatorFault), test.ShouldBeTrue)
	test.That(t, c.Holding(), test.ShouldEqual, "")
}
