package acquire

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/robot"
)

func newTestSupervisor(t *testing.T, drv robot.Driver, loc locator.Locator, cfg Config) *Supervisor {
	t.Helper()
	s, err := New(drv, loc, cfg, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	return s
}

func states(r Result) []State {
	out := make([]State, len(r.Transitions))
	for i, tr := range r.Transitions {
		out[i] = tr.To
	}
	return out
}

func TestAcquireAndPlaceBall(t *testing.T) {
	cfg := testConfig()
	cfg.ToleranceX, cfg.ToleranceY = 3, 3
	cfg.MinHeight = 10
	cfg.StepSize = 10
	cfg.SafeHeight = 80

	drv := newFakeDriver(robot.NewPose(200, 0, 60))
	drv.contactAt = 2
	loc := &scriptLocator{script: []*locator.Detection{det(20, 5), det(8, 2), det(1, 1)}}
	s := newTestSupervisor(t, drv, loc, cfg)

	res, err := s.AcquireAndPlace(context.Background(), "ball", robot.NewPose(148.1, 181.9, 80))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Err(), test.ShouldBeNil)
	test.That(t, res.State, test.ShouldEqual, Done)
	test.That(t, res.Outcome.Kind, test.ShouldEqual, Placed)
	test.That(t, res.Label, test.ShouldEqual, "ball")
	test.That(t, len(res.RunID), test.ShouldEqual, 8)
	test.That(t, states(res), test.ShouldResemble, []State{Locating, Descending, Grasped, Placing, Done})

	// two corrections, then the forward offset
	planar := drv.corrections()
	test.That(t, len(planar), test.ShouldEqual, 3)
	test.That(t, planar[:2], test.ShouldResemble, []robot.Delta{{X: 5, Y: -20}, {X: 2, Y: -8}})
	test.That(t, planar[2], test.ShouldResemble, cfg.ForwardOffset)

	test.That(t, len(drv.downSteps()), test.ShouldEqual, 2)
	test.That(t, drv.suction, test.ShouldBeFalse)
	test.That(t, drv.pose, test.ShouldResemble, cfg.ScanPose)
	test.That(t, s.Running(), test.ShouldBeFalse)

	var zs []float64
	var seen []State
	for len(s.Events()) > 0 {
		e := <-s.Events()
		test.That(t, e.RunID, test.ShouldEqual, res.RunID)
		if e.HasZ {
			zs = append(zs, e.Z)
			test.That(t, e.Floor, test.ShouldEqual, 10.0)
		} else {
			seen = append(seen, e.State)
		}
	}
	test.That(t, zs, test.ShouldResemble, []float64{50, 40})
	test.That(t, seen, test.ShouldResemble, states(res))
}

func TestAcquireNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 3
	drv := newFakeDriver(robot.NewPose(200, 0, 300))
	loc := &scriptLocator{}
	s := newTestSupervisor(t, drv, loc, cfg)

	res, err := s.AcquireAndPlace(context.Background(), "ball", cfg.DropPose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.State, test.ShouldEqual, Failed)
	test.That(t, errors.Is(res.Err(), ErrNotFound), test.ShouldBeTrue)
	test.That(t, states(res), test.ShouldResemble, []State{Locating, Failed})
	test.That(t, res.Transitions[1].Reason, test.ShouldContainSubstring, "object not found")
	test.That(t, loc.queries, test.ShouldEqual, 3)
	test.That(t, drv.calls, test.ShouldBeEmpty)
}

func TestAcquireNoContact(t *testing.T) {
	cfg := testConfig()
	start := robot.NewPose(200, 0, 60)
	drv := newFakeDriver(start)
	loc := &scriptLocator{script: []*locator.Detection{det(0, 0)}}
	s := newTestSupervisor(t, drv, loc, cfg)

	res, err := s.AcquireAndPlace(context.Background(), "ball", cfg.DropPose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, states(res), test.ShouldResemble, []State{Locating, Descending, Failed})
	test.That(t, errors.Is(res.Err(), ErrContactFailed), test.ShouldBeTrue)
	// recovery already ran inside the descent
	test.That(t, drv.last(), test.ShouldResemble, call{op: "move_absolute", pose: start})
}

func TestAcquireFaultDuringPlace(t *testing.T) {
	cfg := testConfig()
	drv := newFakeDriver(robot.NewPose(200, 0, 60))
	drv.contactAt = 1
	drv.fail["move_absolute"] = robot.NewFault("move_absolute", robot.CodeCollision, nil)
	loc := &scriptLocator{script: []*locator.Detection{det(0, 0)}}
	s := newTestSupervisor(t, drv, loc, cfg)

	res, err := s.AcquireAndPlace(context.Background(), "ball", cfg.DropPose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, states(res), test.ShouldResemble, []State{Locating, Descending, Grasped, Placing, Failed})
	test.That(t, res.Outcome.Kind, test.ShouldEqual, Aborted)
	test.That(t, errors.Is(res.Err(), ErrActuatorFault), test.ShouldBeTrue)
	test.That(t, robot.FaultCode(res.Err()), test.ShouldEqual, robot.CodeCollision)
}

func TestAcquireCanceledWhileGrasped(t *testing.T) {
	cfg := testConfig()
	start := robot.NewPose(200, 0, 60)
	drv := newFakeDriver(start)
	drv.contactAt = 2
	loc := &scriptLocator{script: []*locator.Detection{det(0, 0)}}
	s := newTestSupervisor(t, drv, loc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	grips := 0
	drv.hook = func(c call) {
		// the second suction-on re-asserts the grip after contact
		if c.op == "set_suction" && c.on {
			grips++
			if grips == 2 {
				cancel()
			}
		}
	}

	res, err := s.AcquireAndPlace(ctx, "ball", cfg.DropPose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, states(res), test.ShouldResemble, []State{Locating, Descending, Grasped, Failed})
	test.That(t, errors.Is(res.Err(), ErrCanceled), test.ShouldBeTrue)
	test.That(t, drv.suction, test.ShouldBeFalse)
	test.That(t, drv.pose.Z, test.ShouldBeGreaterThanOrEqualTo, cfg.SafeHeight)
	test.That(t, drv.last(), test.ShouldResemble, call{op: "move_absolute", pose: start.WithZ(cfg.SafeHeight)})
	test.That(t, s.Running(), test.ShouldBeFalse)
}

func TestAcquireCanceledWhilePlacing(t *testing.T) {
	cfg := testConfig()
	drop := cfg.DropPose
	approach := drop.WithZ(cfg.SafeHeight)

	for _, tc := range []struct {
		name    string
		at      func(c call) bool
		suction bool
	}{
		{
			name:    "at approach pose",
			at:      func(c call) bool { return c.op == "move_absolute" && c.pose == approach },
			suction: true,
		},
		{
			name:    "at drop pose",
			at:      func(c call) bool { return c.op == "move_absolute" && c.pose == drop },
			suction: true,
		},
		{
			name:    "after release",
			at:      func(c call) bool { return c.op == "set_suction" && !c.on },
			suction: false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			drv := newFakeDriver(robot.NewPose(200, 0, 60))
			drv.contactAt = 1
			loc := &scriptLocator{script: []*locator.Detection{det(0, 0)}}
			s := newTestSupervisor(t, drv, loc, cfg)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			drv.hook = func(c call) {
				if tc.at(c) {
					cancel()
				}
			}

			res, err := s.AcquireAndPlace(ctx, "ball", drop)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, states(res), test.ShouldResemble, []State{Locating, Descending, Grasped, Placing, Failed})
			test.That(t, errors.Is(res.Err(), ErrCanceled), test.ShouldBeTrue)
			test.That(t, drv.suction, test.ShouldEqual, tc.suction)
			test.That(t, drv.pose.Z, test.ShouldBeGreaterThanOrEqualTo, cfg.SafeHeight)
			test.That(t, drv.last(), test.ShouldResemble, call{op: "move_absolute", pose: approach})
		})
	}
}

func TestSupervisorRejectsConcurrentRuns(t *testing.T) {
	drv := newFakeDriver(robot.NewPose(200, 0, 300))
	loc := newBlockingLocator()
	s := newTestSupervisor(t, drv, loc, testConfig())

	done := make(chan Result, 1)
	go func() {
		res, _ := s.Center(context.Background(), "ball")
		done <- res
	}()
	<-loc.entered

	_, err := s.AcquireAndPlace(context.Background(), "ball", testConfig().DropPose)
	test.That(t, errors.Is(err, ErrBusy), test.ShouldBeTrue)
	_, err = s.Home(context.Background())
	test.That(t, errors.Is(err, ErrBusy), test.ShouldBeTrue)

	close(loc.release)
	select {
	case res := <-done:
		test.That(t, res.State, test.ShouldEqual, Done)
	case <-time.After(5 * time.Second):
		t.Fatal("center did not finish")
	}

	_, err = s.Home(context.Background())
	test.That(t, err, test.ShouldBeNil)
}

func TestSupervisorHomeAndScan(t *testing.T) {
	cfg := testConfig()
	drv := newFakeDriver(robot.NewPose(10, 10, 50))
	loc := &scriptLocator{labels: []string{"ball", "cube"}}
	s := newTestSupervisor(t, drv, loc, cfg)
	ctx := context.Background()

	res, err := s.Home(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.State, test.ShouldEqual, Done)
	test.That(t, drv.last().op, test.ShouldEqual, "home")

	res, err = s.ScanObjects(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.State, test.ShouldEqual, Done)
	test.That(t, res.Labels, test.ShouldResemble, []string{"ball", "cube"})
	test.That(t, drv.pose, test.ShouldResemble, cfg.ScanPose)

	drv.fail["home"] = robot.NewFault("home", robot.CodeState, nil)
	res, err = s.Home(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.State, test.ShouldEqual, Failed)
	test.That(t, errors.Is(res.Err(), ErrActuatorFault), test.ShouldBeTrue)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StepSize = 0
	_, err := New(newFakeDriver(robot.Pose{}), &scriptLocator{}, cfg, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "step_size_mm")
}
