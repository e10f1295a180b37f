// Package robot provides the arm driver contract and the servo-bus end-effector.
package robot

// MotorName identifies a servo on the end-effector bus.
type MotorName string

// Servos on the end-effector board.
const (
	// ContactProbe is a passive servo used as an encoder on the spring-loaded
	// probe tip. Its torque stays disabled.
	ContactProbe MotorName = "contact_probe"
	// SuctionValve drives the pinch valve between the pump and the cup.
	SuctionValve MotorName = "suction_valve"
)

// AllMotors returns all tool servo names in order (matching servo IDs 1-2).
func AllMotors() []MotorName {
	return []MotorName{
		ContactProbe,
		SuctionValve,
	}
}
