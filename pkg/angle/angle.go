package angle

import "math"

// WrapSigned reduces angle to the IEEE remainder with respect to period, i.e. a
// value in [-period/2, period/2].  Exact half-period ties round to even, so
// both ends of the range can be returned.
func WrapSigned(angle, period float64) float64 {
	return math.Remainder(angle, period)
}

// ShapeInput raises the magnitude of value to exponent while keeping its sign,
// so squaring a negative stick deflection stays negative.
func ShapeInput(value, exponent float64) float64 {
	if value == 0 {
		return 0
	}
	return math.Copysign(math.Pow(math.Abs(value), exponent), value)
}

func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func Degrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// PlusMinus180 is an angle in degrees, stored as a value in range (-180, 180].
// All operations clamp their output into range.
type PlusMinus180 struct {
	float64
}

func (a PlusMinus180) Add(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 + b.float64)
}

func (a PlusMinus180) Sub(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 - b.float64)
}

func (a PlusMinus180) AddFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 + f)
}

func (a PlusMinus180) SubFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 - f)
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

// FromFloat converts a float of any magnitude to a PlusMinus180 by calculating
// f mod 360 and shifting into range.
func FromFloat(f float64) PlusMinus180 {
	d := math.Mod(f, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return PlusMinus180{d}
}
