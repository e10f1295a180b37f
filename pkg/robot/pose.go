package robot

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Pose is an absolute tool pose: position in mm, orientation in degrees.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// NewPose returns a pose at the given position with the tool pointing straight down.
func NewPose(x, y, z float64) Pose {
	return Pose{X: x, Y: y, Z: z, Roll: 180}
}

// Point returns the position component.
func (p Pose) Point() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// WithPoint returns a copy of p moved to pt, keeping its orientation.
func (p Pose) WithPoint(pt r3.Vector) Pose {
	p.X, p.Y, p.Z = pt.X, pt.Y, pt.Z
	return p
}

// WithZ returns a copy of p at height z.
func (p Pose) WithZ(z float64) Pose {
	p.Z = z
	return p
}

// Finite reports whether every component is a finite number.
func (p Pose) Finite() bool {
	for _, v := range []float64{p.X, p.Y, p.Z, p.Roll, p.Pitch, p.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f | %.0f, %.0f, %.0f)", p.X, p.Y, p.Z, p.Roll, p.Pitch, p.Yaw)
}

// Delta is a relative translation in the tool frame, in mm.
//
// With the tool pointing down (roll 180) tool +X is world +X, tool +Y is
// world -Y and tool +Z is world -Z, i.e. toward the work surface.
type Delta struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vector returns d as an r3.Vector.
func (d Delta) Vector() r3.Vector {
	return r3.Vector{X: d.X, Y: d.Y, Z: d.Z}
}

// IsZero reports whether d moves nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

func (d Delta) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", d.X, d.Y, d.Z)
}

// ToolToWorld rotates a tool-frame vector into the world frame for a tool
// oriented as p (Z-Y-X intrinsic, degrees).
func (p Pose) ToolToWorld(v r3.Vector) r3.Vector {
	return rotate(v, p.Roll, p.Pitch, p.Yaw)
}

// WorldToTool is the inverse of ToolToWorld.
func (p Pose) WorldToTool(v r3.Vector) r3.Vector {
	// R^T = Rx(-roll) * Ry(-pitch) * Rz(-yaw)
	v = rotZ(v, -p.Yaw)
	v = rotY(v, -p.Pitch)
	return rotX(v, -p.Roll)
}

func rotate(v r3.Vector, roll, pitch, yaw float64) r3.Vector {
	// R = Rz(yaw) * Ry(pitch) * Rx(roll)
	v = rotX(v, roll)
	v = rotY(v, pitch)
	return rotZ(v, yaw)
}

func rotX(v r3.Vector, deg float64) r3.Vector {
	s, c := math.Sincos(deg * math.Pi / 180)
	return cleanVec(r3.Vector{X: v.X, Y: c*v.Y - s*v.Z, Z: s*v.Y + c*v.Z})
}

func rotY(v r3.Vector, deg float64) r3.Vector {
	s, c := math.Sincos(deg * math.Pi / 180)
	return cleanVec(r3.Vector{X: c*v.X + s*v.Z, Y: v.Y, Z: -s*v.X + c*v.Z})
}

func rotZ(v r3.Vector, deg float64) r3.Vector {
	s, c := math.Sincos(deg * math.Pi / 180)
	return cleanVec(r3.Vector{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y, Z: v.Z})
}

// cleanVec snaps floating-point noise from sin(180°) and friends to zero.
func cleanVec(v r3.Vector) r3.Vector {
	const eps = 1e-9
	snap := func(f float64) float64 {
		if math.Abs(f) < eps {
			return 0
		}
		return f
	}
	return r3.Vector{X: snap(v.X), Y: snap(v.Y), Z: snap(v.Z)}
}
