// Package swervemodule drives one swerve wheel: a continuously rotating
// azimuth (steering) motor with a position sensor, and a throttle motor.
//
// The azimuth sensor counts forever in either direction.  The module keeps a
// calibration offset so that "relative" azimuth is zero when the wheel points
// forward, and splits that into a bounded absolute heading plus a whole number
// of overrun turns.  Setpoints are always issued in the sensor's continuous
// frame so the wheel never unwinds the long way round.
package swervemodule

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
)

type AzimuthMotor interface {
	// SetPosition commands a closed-loop position in sensor ticks.
	SetPosition(ticks float64) error
	SensorPosition() (float64, error)
}

type ThrottleMotor interface {
	SetVelocity(v float64) error
	// SetOutput sets open-loop output in [-1, 1].
	SetOutput(fraction float64) error
}

// OffsetStore persists calibration offsets keyed by module name.  LoadOffset
// returns ok=false, err=nil when no offset has been saved yet.
type OffsetStore interface {
	LoadOffset(name string) (offset float64, ok bool, err error)
	SaveOffset(name string, offset float64) error
}

var ErrInvalidConfig = errors.New("invalid module config")

type Config struct {
	Name           string
	TicksPerDegree float64
	TicksPerInch   float64
	ThrottleMode   ThrottleMode
}

func (c Config) Validate() error {
	if c.Name == "" {
		return errors.Wrap(ErrInvalidConfig, "module name is empty")
	}
	if !(c.TicksPerDegree > 0) || math.IsInf(c.TicksPerDegree, 0) {
		return errors.Wrapf(ErrInvalidConfig, "%s: ticks per degree %v must be positive", c.Name, c.TicksPerDegree)
	}
	if c.ThrottleMode == ThrottleVelocity && (!(c.TicksPerInch > 0) || math.IsInf(c.TicksPerInch, 0)) {
		return errors.Wrapf(ErrInvalidConfig, "%s: ticks per inch %v must be positive", c.Name, c.TicksPerInch)
	}
	switch c.ThrottleMode {
	case ThrottleVelocity, ThrottleOutput:
	default:
		return errors.Wrapf(ErrInvalidConfig, "%s: unknown throttle mode %d", c.Name, c.ThrottleMode)
	}
	return nil
}

// Module is not safe for concurrent use.
type Module struct {
	cfg      Config
	azimuth  AzimuthMotor
	throttle ThrottleMotor
	store    OffsetStore
	log      *zap.SugaredLogger

	offset         float64
	invertThrottle bool
}

// New loads the module's calibration offset from store.  If there is none, or
// it can't be read, the current sensor position is taken as straight ahead and
// saved.  It fails if the sensor can't be read at that point; only a failure
// to save is tolerated.
func New(cfg Config, az AzimuthMotor, th ThrottleMotor, store OffsetStore, logger *zap.SugaredLogger) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Module{
		cfg:      cfg,
		azimuth:  az,
		throttle: th,
		store:    store,
		log:      logger.Named(cfg.Name),
	}

	offset, ok, err := store.LoadOffset(cfg.Name)
	switch {
	case err != nil:
		m.log.Warnw("Failed to load azimuth offset, recalibrating at current position", "error", err)
	case !ok:
		m.log.Infow("No saved azimuth offset, calibrating at current position")
	default:
		m.offset = offset
		m.log.Infow("Loaded azimuth offset", "offset", offset)
		return m, nil
	}
	raw, err := m.RawAzimuth()
	if err != nil {
		return nil, errors.Wrap(err, "calibrate azimuth")
	}
	if err := m.resetOffsetFrom(raw); err != nil {
		// The offset is applied in memory even if it couldn't be stored.
		m.log.Warnw("Continuing with unsaved offset", "offset", m.offset)
	}
	return m, nil
}

func (m *Module) Name() string {
	return m.cfg.Name
}

func (m *Module) Offset() float64 {
	return m.offset
}

// InvertThrottle reports whether the last azimuth command chose the flipped
// direction, in which case throttle commands are negated.
func (m *Module) InvertThrottle() bool {
	return m.invertThrottle
}

// RawAzimuth is the sensor position in degrees, uncalibrated and unbounded.
func (m *Module) RawAzimuth() (float64, error) {
	ticks, err := m.azimuth.SensorPosition()
	if err != nil {
		return 0, errors.Wrapf(err, "%s: read azimuth sensor", m.cfg.Name)
	}
	return ticks / m.cfg.TicksPerDegree, nil
}

func (m *Module) RelativeAzimuth() (float64, error) {
	raw, err := m.RawAzimuth()
	if err != nil {
		return 0, err
	}
	return raw + m.offset, nil
}

// AbsoluteAzimuth is the calibrated heading wrapped into [-180, 180].
func (m *Module) AbsoluteAzimuth() (float64, error) {
	rel, err := m.RelativeAzimuth()
	if err != nil {
		return 0, err
	}
	return angle.WrapSigned(rel, 360), nil
}

// Overrun is the whole number of turns, in degrees, that the relative azimuth
// has wound past the absolute one.
func (m *Module) Overrun() (float64, error) {
	rel, err := m.RelativeAzimuth()
	if err != nil {
		return 0, err
	}
	return rel - angle.WrapSigned(rel, 360), nil
}

// ResetOffset declares the wheel's current position to be straight ahead.
func (m *Module) ResetOffset() error {
	raw, err := m.RawAzimuth()
	if err != nil {
		return err
	}
	return m.resetOffsetFrom(raw)
}

func (m *Module) resetOffsetFrom(raw float64) error {
	m.offset = -raw
	m.log.Infow("Reset azimuth offset", "offset", m.offset)
	if err := m.store.SaveOffset(m.cfg.Name, m.offset); err != nil {
		m.log.Errorw("Failed to save azimuth offset", "error", err)
		return errors.Wrapf(err, "%s: save azimuth offset", m.cfg.Name)
	}
	return nil
}

// PreferredAzimuth picks between driving to target and driving to the
// opposite direction with the throttle reversed, whichever is closer to where
// the wheel is now.  It updates InvertThrottle.
func (m *Module) PreferredAzimuth(target float64) (float64, error) {
	current, err := m.AbsoluteAzimuth()
	if err != nil {
		return 0, err
	}
	return m.choose(target, current), nil
}

func (m *Module) choose(target, current float64) float64 {
	chosen, invert := preferredAzimuth(target, current)
	m.invertThrottle = invert
	return chosen
}

// The secondary candidate sits on the side toward current, otherwise it could
// be more than a half turn away and the flip would never be chosen.
func preferredAzimuth(target, current float64) (chosen float64, invert bool) {
	secondary := target - 180
	if target < current {
		secondary = target + 180
	}
	if math.Abs(target-current) < math.Abs(secondary-current) {
		return target, false
	}
	return secondary, true
}

// SetAzimuth steers the wheel to target degrees.
func (m *Module) SetAzimuth(target float64) error {
	// One sensor read, so overrun and current come from the same sample.
	rel, err := m.RelativeAzimuth()
	if err != nil {
		return err
	}
	current := angle.WrapSigned(rel, 360)
	overrun := rel - current
	preferred := m.choose(angle.WrapSigned(target, 360), current)
	final := preferred + overrun
	ticks := (final + m.offset) * m.cfg.TicksPerDegree
	if err := m.azimuth.SetPosition(ticks); err != nil {
		return errors.Wrapf(err, "%s: set azimuth position", m.cfg.Name)
	}
	return nil
}

// SetThrottleVelocity commands a closed-loop speed, converted to motor units.
func (m *Module) SetThrottleVelocity(v float64) error {
	if m.invertThrottle {
		v = -v
	}
	if err := m.throttle.SetVelocity(v / m.cfg.TicksPerInch); err != nil {
		return errors.Wrapf(err, "%s: set throttle velocity", m.cfg.Name)
	}
	return nil
}

func (m *Module) SetThrottleOutput(fraction float64) error {
	if m.invertThrottle {
		fraction = -fraction
	}
	if err := m.throttle.SetOutput(fraction); err != nil {
		return errors.Wrapf(err, "%s: set throttle output", m.cfg.Name)
	}
	return nil
}

// Set steers then drives.  The throttle is not driven if steering fails.
func (m *Module) Set(azimuth, throttle float64) error {
	if err := m.SetAzimuth(azimuth); err != nil {
		return err
	}
	if m.cfg.ThrottleMode == ThrottleOutput {
		return m.SetThrottleOutput(throttle)
	}
	return m.SetThrottleVelocity(throttle)
}
