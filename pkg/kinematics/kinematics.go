// Package kinematics is the inverse kinematics for a four-module swerve
// drivetrain.  It follows the a/b/c/d formulation from Ether's "Swerve
// Kinematics" paper: two strafe terms and two forward terms, each wheel taking
// the pair that matches its corner of the chassis.
package kinematics

import (
	"fmt"
	"math"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
)

// Wheel indexes the four modules, front to back with the left side on even
// indices.
type Wheel int

const (
	FrontLeft Wheel = iota
	FrontRight
	RearLeft
	RearRight

	NumWheels = 4
)

var wheelNames = [NumWheels]string{"front-left", "front-right", "rear-left", "rear-right"}

func (w Wheel) String() string {
	if w < 0 || w >= NumWheels {
		return fmt.Sprintf("wheel(%d)", int(w))
	}
	return wheelNames[w]
}

// Command is the desired chassis motion.  Each axis is nominally in [-1, 1];
// wheel speeds are renormalised so larger values are tolerated.
type Command struct {
	Forward  float64
	Strafe   float64
	Rotation float64
}

type WheelSetpoint struct {
	Speed float64
	// Angle in degrees, (-180, 180].
	Angle float64
}

type Setpoints [NumWheels]WheelSetpoint

func (s Setpoints) MaxSpeed() float64 {
	return max(s[0].Speed, s[1].Speed, s[2].Speed, s[3].Speed)
}

func (s Setpoints) String() string {
	return fmt.Sprintf("FL %.3f@%.1f FR %.3f@%.1f RL %.3f@%.1f RR %.3f@%.1f",
		s[0].Speed, s[0].Angle, s[1].Speed, s[1].Angle,
		s[2].Speed, s[2].Angle, s[3].Speed, s[3].Angle)
}

// FieldRelative rotates the translation part of cmd by the robot heading so
// that forward means "away from the driver" whatever way the robot faces.
//
// The forward term uses the already-rotated strafe value rather than the
// input one, so this is not a pure rotation.
func FieldRelative(cmd Command, headingDegrees float64) Command {
	theta := angle.Radians(angle.WrapSigned(headingDegrees, 360))
	sin, cos := math.Sincos(theta)

	cmd.Strafe = -cmd.Forward*sin + cmd.Strafe*cos
	cmd.Forward = cmd.Forward*cos + cmd.Strafe*sin
	return cmd
}

// ComputeWheelSetpoints converts cmd into four wheel speeds and angles.  If
// heading is non-nil the command is treated as field relative.
func ComputeWheelSetpoints(cmd Command, geometry chassis.Geometry, heading *float64) Setpoints {
	if heading != nil {
		cmd = FieldRelative(cmd, *heading)
	}

	relLength, relWidth := geometry.Relative()

	a := cmd.Strafe - cmd.Rotation*relLength
	b := cmd.Strafe + cmd.Rotation*relLength
	c := cmd.Forward - cmd.Rotation*relWidth
	d := cmd.Forward + cmd.Rotation*relWidth

	var s Setpoints
	s[FrontLeft] = wheelSetpoint(b, d)
	s[FrontRight] = wheelSetpoint(b, c)
	s[RearLeft] = wheelSetpoint(a, d)
	s[RearRight] = wheelSetpoint(a, c)

	// Scale down (never up) so the fastest wheel is at full speed.
	if m := s.MaxSpeed(); m > 1 {
		for i := range s {
			s[i].Speed /= m
		}
	}
	return s
}

func wheelSetpoint(strafeTerm, forwardTerm float64) WheelSetpoint {
	rad := math.Atan2(strafeTerm, forwardTerm)
	if rad == -math.Pi {
		// atan2(-0, x<0); keep to (-180, 180].
		rad = math.Pi
	}
	return WheelSetpoint{
		Speed: math.Hypot(strafeTerm, forwardTerm),
		Angle: angle.Degrees(rad),
	}
}
