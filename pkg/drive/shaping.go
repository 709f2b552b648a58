package drive

import (
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
)

// Shaping turns raw stick deflections into a chassis command.  Raising the
// deflection to Exponent gives fine control near the centre.
type Shaping struct {
	DisplacementFactor float64 `yaml:"displacement_factor" toml:"displacement_factor"`
	RotationScale      float64 `yaml:"rotation_scale" toml:"rotation_scale"`
	Exponent           float64 `yaml:"exponent" toml:"exponent"`
}

func DefaultShaping() Shaping {
	return Shaping{
		DisplacementFactor: 1,
		RotationScale:      0.5,
		Exponent:           2,
	}
}

// Command takes stick axes in [-1, 1] with positive forward, right and
// clockwise.
func (s Shaping) Command(strafeAxis, forwardAxis, twistAxis float64) kinematics.Command {
	return kinematics.Command{
		Forward:  s.DisplacementFactor * angle.ShapeInput(forwardAxis, s.Exponent),
		Strafe:   s.DisplacementFactor * angle.ShapeInput(strafeAxis, s.Exponent),
		Rotation: angle.WrapSigned(s.RotationScale*angle.ShapeInput(twistAxis, s.Exponent), 2),
	}
}
