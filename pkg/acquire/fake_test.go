package acquire

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/robot"
)

// call is one recorded driver invocation.
type call struct {
	op    string
	delta robot.Delta
	pose  robot.Pose
	on    bool
}

// fakeDriver is a scripted arm and tool that tracks its pose and records
// every call in order.
type fakeDriver struct {
	mu        sync.Mutex
	pose      robot.Pose
	home      robot.Pose
	calls     []call
	heights   []float64 // z after every motion
	contactAt int       // ReadContact returns true on this read, 1-based
	reads     int
	suction   bool
	fail      map[string]error
	hook      func(c call)
}

func newFakeDriver(start robot.Pose) *fakeDriver {
	return &fakeDriver{pose: start, home: robot.NewPose(200, 0, 300), fail: map[string]error{}}
}

func (f *fakeDriver) record(c call) error {
	f.calls = append(f.calls, c)
	if f.hook != nil {
		f.hook(c)
	}
	return f.fail[c.op]
}

func (f *fakeDriver) MoveRelative(_ context.Context, d robot.Delta, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{op: "move_relative", delta: d}); err != nil {
		return err
	}
	f.pose = f.pose.WithPoint(f.pose.Point().Add(f.pose.ToolToWorld(d.Vector())))
	f.heights = append(f.heights, f.pose.Z)
	return nil
}

func (f *fakeDriver) MoveAbsolute(_ context.Context, p robot.Pose, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{op: "move_absolute", pose: p}); err != nil {
		return err
	}
	f.pose = p
	f.heights = append(f.heights, p.Z)
	return nil
}

func (f *fakeDriver) Home(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{op: "home"}); err != nil {
		return err
	}
	f.pose = f.home
	return nil
}

func (f *fakeDriver) ReadPosition(_ context.Context) (robot.Pose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{op: "read_position"}); err != nil {
		return robot.Pose{}, err
	}
	return f.pose, nil
}

func (f *fakeDriver) SetSuction(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{op: "set_suction", on: on}); err != nil {
		return err
	}
	f.suction = on
	return nil
}

func (f *fakeDriver) ReadContact(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(call{op: "read_contact"}); err != nil {
		return false, err
	}
	f.reads++
	return f.contactAt > 0 && f.reads == f.contactAt, nil
}

func (f *fakeDriver) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

// downSteps returns the relative moves that lower the tool.
func (f *fakeDriver) downSteps() []robot.Delta {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []robot.Delta
	for _, c := range f.calls {
		if c.op == "move_relative" && c.delta.Z > 0 {
			out = append(out, c.delta)
		}
	}
	return out
}

// corrections returns the planar relative moves.
func (f *fakeDriver) corrections() []robot.Delta {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []robot.Delta
	for _, c := range f.calls {
		if c.op == "move_relative" && c.delta.Z == 0 {
			out = append(out, c.delta)
		}
	}
	return out
}

func (f *fakeDriver) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// scriptLocator replays a fixed sequence of readings. A nil entry is a miss;
// the last entry repeats once the script runs out.
type scriptLocator struct {
	mu      sync.Mutex
	script  []*locator.Detection
	err     error
	queries int
	labels  []string
}

func det(x, y float64) *locator.Detection {
	return &locator.Detection{Label: "ball", OffsetX: x, OffsetY: y}
}

func (l *scriptLocator) FindLatest(_ context.Context, _ string) (locator.Detection, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries++
	if l.err != nil {
		return locator.Detection{}, false, l.err
	}
	if len(l.script) == 0 {
		return locator.Detection{}, false, nil
	}
	i := l.queries - 1
	if i >= len(l.script) {
		i = len(l.script) - 1
	}
	if l.script[i] == nil {
		return locator.Detection{}, false, nil
	}
	return *l.script[i], true, nil
}

func (l *scriptLocator) Labels(_ context.Context) ([]string, error) {
	return l.labels, l.err
}

// testConfig is DefaultConfig with every wait removed.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInterval = 0
	cfg.PollInterval = 0
	cfg.GraspSettle = 0
	cfg.PlaceHold = 0
	cfg.ReleaseHold = 0
	cfg.ScanSettle = 0
	return cfg
}

var errBus = robot.NewFault("move", robot.CodeBus, errors.New("no response from servo 3"))

// blockingLocator parks FindLatest until released.
type blockingLocator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingLocator() *blockingLocator {
	return &blockingLocator{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingLocator) FindLatest(ctx context.Context, _ string) (locator.Detection, bool, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return locator.Detection{}, false, ctx.Err()
	case <-time.After(5 * time.Second):
	}
	return locator.Detection{Label: "ball"}, true, nil
}

func (b *blockingLocator) Labels(context.Context) ([]string, error) {
	return nil, nil
}
