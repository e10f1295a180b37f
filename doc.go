// Package cobot picks up objects with a suction cobot guided by a
// down-looking camera.
//
// A run centers the camera over a detected object, steps the suction cup
// down until the contact probe fires, and carries the object to a drop
// pose. The tool is never commanded below the configured floor.
//
// # Installation
//
//	go install github.com/gwillem/cobot/cmd/cobot@latest
//
// # Usage
//
// Detect and calibrate the tool board, and choose where detections come from:
//
//	cobot setup
//
// Then pick something up:
//
//	cobot scan
//	cobot acquire ball
//
// Without hardware every command runs against the simulated workcell.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/cobot: CLI with setup, info, acquire, center, home and scan commands
//   - pkg/acquire: Centering, descent, placement and the run supervisor
//   - pkg/robot: Arm driver contract, poses and the Feetech servo tool
//   - pkg/locator: Detection sources (memory, MongoDB, freshness filter)
//   - pkg/sim: Simulated arm, tool and camera
//   - pkg/config: cobot.json and environment overrides
//   - pkg/logging: zap logger setup
package cobot
