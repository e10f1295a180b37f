package acquire

import "github.com/gwillem/cobot/pkg/robot"

// ToToolDelta maps a vision-frame offset to a tool-frame translation.
//
// The camera's horizontal axis is the tool's Y axis, negated, and its
// vertical axis is the tool's X axis. Z is always zero.
func ToToolDelta(offsetX, offsetY float64) robot.Delta {
	return robot.Delta{X: offsetY, Y: -offsetX}
}
