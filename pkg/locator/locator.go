// Package locator provides access to the latest object detections written by
// the vision pipeline.
package locator

import (
	"context"
	"math"
	"time"
)

// Detection is the latest known planar offset of a labeled object from the
// image center, in millimeters.
type Detection struct {
	Label   string
	OffsetX float64
	OffsetY float64
	// Timestamp is when the detection was produced. Zero means unknown.
	Timestamp time.Time
}

// Finite reports whether both offsets are usable numbers.
func (d Detection) Finite() bool {
	return !math.IsNaN(d.OffsetX) && !math.IsInf(d.OffsetX, 0) &&
		!math.IsNaN(d.OffsetY) && !math.IsInf(d.OffsetY, 0)
}

// Locator returns the most recent detection for a label.
//
// FindLatest reports ok=false when the object is not currently visible. Reads
// are best effort: the returned value may be stale.
type Locator interface {
	FindLatest(ctx context.Context, label string) (det Detection, ok bool, err error)
	// Labels lists the labels currently visible.
	Labels(ctx context.Context) ([]string, error)
}
