package acquire

import (
	"context"
	"errors"
	"fmt"
)

// Kind tags an Outcome.
type Kind int

// Outcome kinds produced by the controllers.
const (
	Centered Kind = iota + 1
	NotFound
	ContactConfirmed
	ContactFailed
	Placed
	Aborted
)

func (k Kind) String() string {
	switch k {
	case 0:
		return "none"
	case Centered:
		return "centered"
	case NotFound:
		return "not_found"
	case ContactConfirmed:
		return "contact_confirmed"
	case ContactFailed:
		return "contact_failed"
	case Placed:
		return "placed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error taxonomy. Every non-success Outcome carries an error that matches
// exactly one of these with errors.Is.
var (
	// ErrNotFound means the object was never centered within budget. The
	// caller may retry the whole run later.
	ErrNotFound = errors.New("object not found")
	// ErrContactFailed means the full safe travel was descended without
	// contact. The arm has been restored to the pre-descent pose.
	ErrContactFailed = errors.New("no contact")
	// ErrActuatorFault means a motion or sensor call failed. The arm must be
	// homed or re-initialized before the next run.
	ErrActuatorFault = errors.New("actuator fault")
	// ErrSafetyViolation means a command below the minimum height was about
	// to be issued. It indicates a programming or configuration error.
	ErrSafetyViolation = errors.New("safety violation")
	// ErrInvalidArgument means a request carried an unusable parameter,
	// such as an empty attempt budget or a non-finite pose. Nothing moved.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCanceled means the run was interrupted by its context.
	ErrCanceled = errors.New("canceled")
	// ErrBusy is returned when another operation already owns the arm.
	ErrBusy = errors.New("arm busy")
)

// Outcome is the tagged result of a controller stage.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

// OK reports whether the outcome is a success for its stage.
func (o Outcome) OK() bool {
	switch o.Kind {
	case Centered, ContactConfirmed, Placed:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}

func success(k Kind) Outcome {
	return Outcome{Kind: k}
}

func notFound(reason string) Outcome {
	return Outcome{Kind: NotFound, Reason: reason, Err: fmt.Errorf("%w: %s", ErrNotFound, reason)}
}

func contactFailed(reason string) Outcome {
	return Outcome{Kind: ContactFailed, Reason: reason, Err: fmt.Errorf("%w: %s", ErrContactFailed, reason)}
}

func abort(kind error, reason string) Outcome {
	return Outcome{Kind: Aborted, Reason: reason, Err: fmt.Errorf("%w: %s", kind, reason)}
}

// fault converts a failed driver call into an Aborted outcome. Context
// errors become ErrCanceled, everything else ErrActuatorFault.
func fault(op string, err error) Outcome {
	kind := ErrActuatorFault
	if isCanceled(err) {
		kind = ErrCanceled
	}
	return Outcome{
		Kind:   Aborted,
		Reason: fmt.Sprintf("%s: %v", op, err),
		Err:    fmt.Errorf("%w: %s: %w", kind, op, err),
	}
}

// canceled reports a cancellation at op after the recovery motion that
// returned rerr.
func canceled(op string, err, rerr error) Outcome {
	if rerr != nil {
		return Outcome{
			Kind:   Aborted,
			Reason: fmt.Sprintf("%s: %v; recovery: %v", op, err, rerr),
			Err:    fmt.Errorf("%w: %s: recovery: %w", ErrCanceled, op, rerr),
		}
	}
	return abort(ErrCanceled, op)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
