package chassis

import (
	"math"

	"github.com/pkg/errors"
)

var ErrInvalidGeometry = errors.New("invalid chassis geometry")

// Geometry is the distance between wheel contact patches, in any unit as long
// as both fields use the same one.
type Geometry struct {
	TrackWidth      float64 `yaml:"track_width" toml:"track_width"`
	WheelbaseLength float64 `yaml:"wheelbase_length" toml:"wheelbase_length"`
}

func (g Geometry) Validate() error {
	if !isPositive(g.TrackWidth) || !isPositive(g.WheelbaseLength) {
		return errors.Wrapf(ErrInvalidGeometry, "track width %v, wheelbase length %v: both must be finite and > 0",
			g.TrackWidth, g.WheelbaseLength)
	}
	return nil
}

// Radius is the distance between diagonally opposite wheels.
func (g Geometry) Radius() float64 {
	return math.Hypot(g.WheelbaseLength, g.TrackWidth)
}

// Relative returns length and width as fractions of the radius.
func (g Geometry) Relative() (length, width float64) {
	r := g.Radius()
	return g.WheelbaseLength / r, g.TrackWidth / r
}

func isPositive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}
