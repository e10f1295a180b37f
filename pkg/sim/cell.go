// Package sim implements a simulated workcell: a Cartesian arm with a
// suction tool and a down-looking camera over a table of objects.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/robot"
)

// Object is a cylinder standing on the table.
type Object struct {
	Label  string  `json:"label"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Height float64 `json:"height"`
	Radius float64 `json:"radius"`
}

// Top returns the center of the object's top face.
func (o Object) Top() r3.Vector {
	return r3.Vector{X: o.X, Y: o.Y, Z: o.Height}
}

// Config describes the simulated hardware.
type Config struct {
	Home robot.Pose
	// CameraOffset is where the camera looks, relative to the tool, in the
	// tool frame. Centering the camera and then moving by this offset puts
	// the suction cup over the object.
	CameraOffset robot.Delta
	// FieldOfView is the radius in mm of the table area the camera sees.
	FieldOfView float64
	// ContactBand is how close above an object's top face the probe fires.
	ContactBand float64
	// Compliance is how far the cup bellows can be pushed into an object
	// before the arm reports a collision. Within it the cup stops on the
	// top face.
	Compliance float64
	// Reach is the maximum horizontal distance from the base.
	Reach float64
	// Noise is the standard deviation in mm added to detections.
	Noise float64
	// Dropout is the probability a visible object is not reported.
	Dropout float64
	Seed    int64
	// Speed-proportional motion time; zero moves instantly.
	Realtime bool
}

// DefaultConfig returns a camera 80mm ahead of the cup, as on the real cell.
func DefaultConfig() Config {
	return Config{
		Home:         robot.NewPose(200, 0, 300),
		CameraOffset: robot.Delta{X: 80},
		FieldOfView:  150,
		ContactBand:  5,
		Compliance:   30,
		Reach:        700,
		Seed:         1,
	}
}

// Cell is a simulated arm, suction tool and object locator sharing one scene.
type Cell struct {
	cfg    Config
	logger *zap.SugaredLogger
	clock  clock.Clock

	mu      sync.Mutex
	pose    robot.Pose
	objects []Object
	held    int // index into objects, -1 when empty
	suction bool
	faults  map[string]error
	path    []robot.Pose
	rng     *rand.Rand
}

var (
	_ robot.Driver    = (*Cell)(nil)
	_ locator.Locator = (*Cell)(nil)
)

// New returns a cell at its home pose with objects on the table.
func New(cfg Config, logger *zap.SugaredLogger, clk clock.Clock, objects ...Object) *Cell {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Cell{
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		pose:    cfg.Home,
		objects: append([]Object(nil), objects...),
		held:    -1,
		faults:  map[string]error{},
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Fail makes the next call of op return err. Ops are the Driver method
// names: "move_relative", "move_absolute", "home", "read_position",
// "set_suction", "read_contact".
func (c *Cell) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = err
}

func (c *Cell) takeFault(op string) error {
	err, ok := c.faults[op]
	if !ok {
		return nil
	}
	delete(c.faults, op)
	return err
}

// Pose returns the current tool pose.
func (c *Cell) Pose() robot.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

// Path returns every pose the tool has reached, in order.
func (c *Cell) Path() []robot.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]robot.Pose(nil), c.path...)
}

// Objects returns a snapshot of the scene.
func (c *Cell) Objects() []Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Object(nil), c.objects...)
}

// Holding returns the label of the held object, or "".
func (c *Cell) Holding() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held < 0 {
		return ""
	}
	return c.objects[c.held].Label
}

// MoveRelative implements robot.Arm.
func (c *Cell) MoveRelative(ctx context.Context, d robot.Delta, speed float64) error {
	c.mu.Lock()
	target := c.pose.WithPoint(c.pose.Point().Add(c.pose.ToolToWorld(d.Vector())))
	c.mu.Unlock()
	return c.move(ctx, "move_relative", target, speed)
}

// MoveAbsolute implements robot.Arm.
func (c *Cell) MoveAbsolute(ctx context.Context, p robot.Pose, speed float64) error {
	return c.move(ctx, "move_absolute", p, speed)
}

// Home implements robot.Arm.
func (c *Cell) Home(ctx context.Context) error {
	return c.move(ctx, "home", c.cfg.Home, 0)
}

func (c *Cell) move(ctx context.Context, op string, target robot.Pose, speed float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.takeFault(op); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.reachable(target); err != nil {
		c.mu.Unlock()
		return robot.NewFault(op, robot.CodeLimit, err)
	}
	if i, ok := c.collides(target); ok {
		o := c.objects[i]
		if o.Height-target.Z > c.cfg.Compliance {
			c.mu.Unlock()
			return robot.NewFault(op, robot.CodeCollision, fmt.Errorf("tool would hit %q at %s", o.Label, target))
		}
		target = target.WithZ(o.Height)
	}
	dist := c.pose.Point().Distance(target.Point())
	c.mu.Unlock()

	if err := c.travel(ctx, dist, speed); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = target
	c.path = append(c.path, target)
	if c.held >= 0 {
		c.objects[c.held].X, c.objects[c.held].Y = target.X, target.Y
	}
	c.logger.Debugw("moved", "op", op, "pose", target.String())
	return nil
}

// travel blocks for the time the motion would take at speed.
func (c *Cell) travel(ctx context.Context, dist, speed float64) error {
	if !c.cfg.Realtime || speed <= 0 || dist == 0 {
		return nil
	}
	t := c.clock.Timer(time.Duration(dist / speed * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Cell) reachable(p robot.Pose) error {
	if !p.Finite() {
		return errors.New("non-finite target")
	}
	if p.Z < 0 {
		return fmt.Errorf("z=%.1f is below the table", p.Z)
	}
	if r := math.Hypot(p.X, p.Y); c.cfg.Reach > 0 && r > c.cfg.Reach {
		return fmt.Errorf("target %.0fmm from base exceeds reach %.0fmm", r, c.cfg.Reach)
	}
	return nil
}

// collides reports whether the cup would end up inside an object it is not
// holding.
func (c *Cell) collides(p robot.Pose) (int, bool) {
	for i, o := range c.objects {
		if i == c.held {
			continue
		}
		if c.under(o, p) && p.Z < o.Height {
			return i, true
		}
	}
	return -1, false
}

func (c *Cell) under(o Object, p robot.Pose) bool {
	return math.Hypot(p.X-o.X, p.Y-o.Y) <= o.Radius
}

// ReadPosition implements robot.Arm.
func (c *Cell) ReadPosition(ctx context.Context) (robot.Pose, error) {
	if err := ctx.Err(); err != nil {
		return robot.Pose{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFault("read_position"); err != nil {
		return robot.Pose{}, err
	}
	return c.pose, nil
}

// SetSuction implements robot.Tool. Switching on while in contact picks the
// object up; switching off drops it on the table below the cup.
func (c *Cell) SetSuction(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFault("set_suction"); err != nil {
		return err
	}
	c.suction = on
	switch {
	case on && c.held < 0:
		if i, ok := c.contact(); ok {
			c.held = i
			c.logger.Debugw("picked", "label", c.objects[i].Label)
		}
	case !on && c.held >= 0:
		o := &c.objects[c.held]
		o.X, o.Y = c.pose.X, c.pose.Y
		c.logger.Debugw("released", "label", o.Label, "x", o.X, "y", o.Y)
		c.held = -1
	}
	return nil
}

// ReadContact implements robot.Tool. The probe fires when the cup is within
// ContactBand of an object's top face.
func (c *Cell) ReadContact(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFault("read_contact"); err != nil {
		return false, err
	}
	if c.held >= 0 {
		return true, nil
	}
	i, ok := c.contact()
	if ok && c.suction {
		c.held = i
		c.logger.Debugw("picked", "label", c.objects[i].Label)
	}
	return ok, nil
}

func (c *Cell) contact() (int, bool) {
	for i, o := range c.objects {
		if c.under(o, c.pose) && c.pose.Z-o.Height <= c.cfg.ContactBand {
			return i, true
		}
	}
	return -1, false
}

// camera returns the point on the camera axis at tool height.
func (c *Cell) camera() r3.Vector {
	return c.pose.Point().Add(c.pose.ToolToWorld(c.cfg.CameraOffset.Vector()))
}

// detect returns the image offset of o, mapped so that moving the tool by
// acquire.ToToolDelta(offset) puts the camera axis over the object.
func (c *Cell) detect(o Object) (locator.Detection, bool) {
	cam := c.camera()
	rel := r3.Vector{X: o.X - cam.X, Y: o.Y - cam.Y}
	if math.Hypot(rel.X, rel.Y) > c.cfg.FieldOfView || cam.Z < o.Height {
		return locator.Detection{}, false
	}
	if c.cfg.Dropout > 0 && c.rng.Float64() < c.cfg.Dropout {
		return locator.Detection{}, false
	}
	t := c.pose.WorldToTool(rel)
	d := locator.Detection{
		Label:     o.Label,
		OffsetX:   -t.Y,
		OffsetY:   t.X,
		Timestamp: c.clock.Now(),
	}
	if c.cfg.Noise > 0 {
		d.OffsetX += c.rng.NormFloat64() * c.cfg.Noise
		d.OffsetY += c.rng.NormFloat64() * c.cfg.Noise
	}
	return d, true
}

// FindLatest implements locator.Locator from the current camera view. Held
// objects are not visible.
func (c *Cell) FindLatest(ctx context.Context, label string) (locator.Detection, bool, error) {
	if err := ctx.Err(); err != nil {
		return locator.Detection{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.objects {
		if o.Label != label || i == c.held {
			continue
		}
		if d, ok := c.detect(o); ok {
			return d, true, nil
		}
	}
	return locator.Detection{}, false, nil
}

// Labels implements locator.Locator.
func (c *Cell) Labels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := map[string]bool{}
	for i, o := range c.objects {
		if i == c.held {
			continue
		}
		if _, ok := c.detect(o); ok {
			seen[o.Label] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels, nil
}
