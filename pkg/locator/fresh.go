package locator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Fresh wraps a Locator and hides detections older than MaxAge.
// Detections without a timestamp are passed through unless Strict is set.
type Fresh struct {
	Inner  Locator
	MaxAge time.Duration
	Strict bool
	Clock  clock.Clock
}

var _ Locator = (*Fresh)(nil)

// NewFresh returns a freshness filter using the wall clock.
func NewFresh(inner Locator, maxAge time.Duration) *Fresh {
	return &Fresh{Inner: inner, MaxAge: maxAge, Clock: clock.New()}
}

func (f *Fresh) FindLatest(ctx context.Context, label string) (Detection, bool, error) {
	d, ok, err := f.Inner.FindLatest(ctx, label)
	if err != nil || !ok || f.MaxAge <= 0 {
		return d, ok, err
	}
	if d.Timestamp.IsZero() {
		return d, !f.Strict, nil
	}
	if f.now().Sub(d.Timestamp) > f.MaxAge {
		return Detection{}, false, nil
	}
	return d, true, nil
}

func (f *Fresh) Labels(ctx context.Context) ([]string, error) {
	return f.Inner.Labels(ctx)
}

func (f *Fresh) now() time.Time {
	if f.Clock == nil {
		return time.Now()
	}
	return f.Clock.Now()
}
