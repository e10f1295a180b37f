package acquire

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/robot"
)

// State is a supervisor run state.
type State int

// Run states. Failed is absorbing.
const (
	Idle State = iota
	Locating
	Descending
	Grasped
	Placing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locating:
		return "locating"
	case Descending:
		return "descending"
	case Grasped:
		return "grasped"
	case Placing:
		return "placing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition records one state change of a run.
type Transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

// Result describes a finished run.
type Result struct {
	RunID       string
	Op          string
	Label       string
	State       State
	Outcome     Outcome
	Transitions []Transition
	// Labels is filled by ScanObjects.
	Labels   []string
	Started  time.Time
	Finished time.Time
}

// Err returns the outcome error of a failed run, nil otherwise.
func (r Result) Err() error {
	if r.State != Failed {
		return nil
	}
	return r.Outcome.Err
}

// Event is a progress update published while a run is in flight.
type Event struct {
	RunID  string
	Time   time.Time
	State  State
	Reason string
	// Z is the height about to be commanded during descent, valid if HasZ.
	Z     float64
	HasZ  bool
	Floor float64
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock replaces the wall clock used for waits and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(s *Supervisor) {
		s.clock = clk
	}
}

// WithEventBuffer sets how many events are kept for a slow reader.
func WithEventBuffer(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// Supervisor sequences centering, descent and placement for one arm. At most
// one operation runs at a time; concurrent requests get ErrBusy.
type Supervisor struct {
	driver  robot.Driver
	locator locator.Locator
	cfg     Config
	logger  *zap.SugaredLogger
	clock   clock.Clock

	servo  *Servo
	placer *Placer

	mu      sync.Mutex
	running bool
	events  chan Event
}

// New validates cfg and returns a supervisor owning driver.
func New(driver robot.Driver, loc locator.Locator, cfg Config, logger *zap.SugaredLogger, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("create supervisor: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Supervisor{
		driver:  driver,
		locator: loc,
		cfg:     cfg,
		logger:  logger,
		clock:   clock.New(),
		events:  make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.servo = NewServo(driver, loc, cfg, logger.Named("servo"), s.clock)
	s.placer = NewPlacer(driver, cfg, logger.Named("place"), s.clock)
	return s, nil
}

// Config returns the configuration the supervisor was built with.
func (s *Supervisor) Config() Config {
	return s.cfg
}

// Events returns a channel of progress updates. When the reader falls
// behind the oldest events are dropped.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Running reports whether an operation is in flight.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AcquireAndPlace centers on label, descends until contact and places the
// object at drop. The returned error is non-nil only when the arm is busy;
// run failures are reported in Result.
func (s *Supervisor) AcquireAndPlace(ctx context.Context, label string, drop robot.Pose) (Result, error) {
	if err := s.claim(); err != nil {
		return Result{}, err
	}
	defer s.release()

	r := s.begin("acquire", label)
	r.to(Locating, label)
	o := s.servo.CenterOn(ctx, label, s.cfg.ToleranceX, s.cfg.ToleranceY, s.cfg.MaxAttempts)
	if o.Kind != Centered {
		return r.fail(o), nil
	}

	r.to(Descending, "")
	descent := NewDescent(s.driver, s.cfg, s.logger.Named("descent"), s.clock, r.track)
	o = descent.DescendUntilContact(ctx, s.cfg.MinHeight, s.cfg.StepSize, s.cfg.PollInterval.D(), s.cfg.ForwardOffset)
	if o.Kind != ContactConfirmed {
		return r.fail(o), nil
	}

	r.to(Grasped, "")
	if err := s.driver.SetSuction(ctx, true); err != nil {
		return r.fail(s.retreat(ctx, descent.Start(), "grip", err)), nil
	}
	if err := sleep(ctx, s.clock, s.cfg.GraspSettle.D()); err != nil {
		return r.fail(s.retreat(ctx, descent.Start(), "grip settle", err)), nil
	}

	r.to(Placing, "")
	o = s.placer.Place(ctx, drop, s.cfg.SafeHeight)
	if o.Kind != Placed {
		return r.fail(o), nil
	}
	return r.done(o), nil
}

// Center runs only the centering stage.
func (s *Supervisor) Center(ctx context.Context, label string) (Result, error) {
	if err := s.claim(); err != nil {
		return Result{}, err
	}
	defer s.release()

	r := s.begin("center", label)
	r.to(Locating, label)
	o := s.servo.CenterOn(ctx, label, s.cfg.ToleranceX, s.cfg.ToleranceY, s.cfg.MaxAttempts)
	if o.Kind != Centered {
		return r.fail(o), nil
	}
	return r.done(o), nil
}

// Home sends the arm to its home pose.
func (s *Supervisor) Home(ctx context.Context) (Result, error) {
	if err := s.claim(); err != nil {
		return Result{}, err
	}
	defer s.release()

	r := s.begin("home", "")
	if err := s.driver.Home(ctx); err != nil {
		return r.fail(fault("home", err)), nil
	}
	return r.done(Outcome{}), nil
}

// MoveToScan moves the arm to the scan pose.
func (s *Supervisor) MoveToScan(ctx context.Context) (Result, error) {
	if err := s.claim(); err != nil {
		return Result{}, err
	}
	defer s.release()

	r := s.begin("scan_pose", "")
	if err := s.driver.MoveAbsolute(ctx, s.cfg.ScanPose, s.cfg.TravelSpeed); err != nil {
		return r.fail(fault("move to scan pose", err)), nil
	}
	return r.done(Outcome{}), nil
}

// ScanObjects moves to the scan pose, lets the camera settle and lists the
// labels the locator currently sees.
func (s *Supervisor) ScanObjects(ctx context.Context) (Result, error) {
	if err := s.claim(); err != nil {
		return Result{}, err
	}
	defer s.release()

	r := s.begin("scan", "")
	if err := s.driver.MoveAbsolute(ctx, s.cfg.ScanPose, s.cfg.TravelSpeed); err != nil {
		return r.fail(fault("move to scan pose", err)), nil
	}
	r.to(Locating, "")
	if err := sleep(ctx, s.clock, s.cfg.ScanSettle.D()); err != nil {
		return r.fail(fault("scan settle", err)), nil
	}
	labels, err := s.locator.Labels(ctx)
	if err != nil {
		if isCanceled(err) {
			return r.fail(fault("list labels", err)), nil
		}
		return r.fail(notFound(fmt.Sprintf("list labels: %v", err))), nil
	}
	r.res.Labels = labels
	return r.done(Outcome{}), nil
}

// retreat maps a failure while the tool sits on the object. Cancellation
// releases the object where it lies and lifts the tool above start, to at
// least the safe height, on a detached context. Any other error aborts in
// place.
func (s *Supervisor) retreat(ctx context.Context, start robot.Pose, op string, err error) Outcome {
	if !isCanceled(err) || ctx.Err() == nil {
		return fault(op, err)
	}
	lift := start.WithZ(math.Max(start.Z, s.cfg.SafeHeight))
	s.logger.Warnw("canceled while grasping, releasing and lifting", "op", op, "to", lift.String())

	ctx = context.WithoutCancel(ctx)
	var rerr error
	if serr := s.driver.SetSuction(ctx, false); serr != nil {
		rerr = multierr.Append(rerr, fmt.Errorf("suction off: %w", serr))
	}
	if merr := s.driver.MoveAbsolute(ctx, lift, s.cfg.TravelSpeed); merr != nil {
		rerr = multierr.Append(rerr, fmt.Errorf("lift: %w", merr))
	}
	return canceled(op, err, rerr)
}

func (s *Supervisor) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBusy
	}
	s.running = true
	return nil
}

func (s *Supervisor) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Supervisor) begin(op, label string) *run {
	r := &run{
		s: s,
		res: Result{
			RunID:   uuid.New().String()[:8],
			Op:      op,
			Label:   label,
			State:   Idle,
			Started: s.clock.Now(),
		},
	}
	r.log = s.logger.With("run", r.res.RunID, "op", op)
	r.log.Infow("run started", "label", label)
	return r
}

func (s *Supervisor) publish(e Event) {
	select {
	case s.events <- e:
		return
	default:
	}
	// Drop the oldest event to make room.
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- e:
	default:
	}
}

// run holds the per-run bookkeeping. It is discarded when the run ends.
type run struct {
	s   *Supervisor
	res Result
	log *zap.SugaredLogger
}

func (r *run) to(state State, reason string) {
	now := r.s.clock.Now()
	r.res.Transitions = append(r.res.Transitions, Transition{
		From:   r.res.State,
		To:     state,
		At:     now,
		Reason: reason,
	})
	r.log.Debugw("transition", "from", r.res.State.String(), "to", state.String(), "reason", reason)
	r.res.State = state
	r.s.publish(Event{
		RunID:  r.res.RunID,
		Time:   now,
		State:  state,
		Reason: reason,
		Floor:  r.s.cfg.MinHeight,
	})
}

func (r *run) track(z float64) {
	r.s.publish(Event{
		RunID: r.res.RunID,
		Time:  r.s.clock.Now(),
		State: r.res.State,
		Z:     z,
		HasZ:  true,
		Floor: r.s.cfg.MinHeight,
	})
}

func (r *run) fail(o Outcome) Result {
	r.res.Outcome = o
	reason := o.String()
	if o.Err != nil {
		reason = o.Err.Error()
	}
	r.to(Failed, reason)
	r.res.Finished = r.s.clock.Now()
	r.log.Warnw("run failed", "outcome", o.Kind.String(), "reason", reason)
	return r.res
}

func (r *run) done(o Outcome) Result {
	r.res.Outcome = o
	r.to(Done, "")
	r.res.Finished = r.s.clock.Now()
	r.log.Infow("run done", "outcome", o.Kind.String(), "elapsed", r.res.Finished.Sub(r.res.Started).String())
	return r.res
}
