// Package drive runs one swerve control cycle: it turns a chassis command
// into wheel setpoints and hands them to the four modules.
package drive

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
)

type HeadingSensor interface {
	// HeadingDegrees returns the continuous (unwrapped) robot heading.
	HeadingDegrees() (float64, error)
}

// Wheel is satisfied by *swervemodule.Module.
type Wheel interface {
	Set(azimuth, throttle float64) error
	ResetOffset() error
	Name() string
}

type Config struct {
	Geometry chassis.Geometry
	Mode     Mode
	// MinThrottle is the wheel speed below which no setpoints are sent, so the
	// wheels don't twitch while the sticks are centred.
	MinThrottle float64
}

// Cycle is the result of the most recent DriveCycle.
type Cycle struct {
	Command    kinematics.Command
	Heading    *float64
	Setpoints  kinematics.Setpoints
	Dispatched bool
}

type Coordinator struct {
	cfg     Config
	heading HeadingSensor
	wheels  [kinematics.NumWheels]Wheel
	log     *zap.SugaredLogger

	reversed bool
	last     Cycle
}

// New checks the configuration.  heading may be nil, in which case the
// coordinator drives robot relative whatever the configured mode.
func New(cfg Config, heading HeadingSensor, wheels [kinematics.NumWheels]Wheel, logger *zap.SugaredLogger) (*Coordinator, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(cfg.MinThrottle) || math.IsInf(cfg.MinThrottle, 0) || cfg.MinThrottle < 0 {
		return nil, errors.Errorf("min throttle %v must be a non-negative number", cfg.MinThrottle)
	}
	for i, w := range wheels {
		if w == nil {
			return nil, errors.Errorf("%v wheel missing", kinematics.Wheel(i))
		}
	}
	if cfg.Mode != FieldRelative && cfg.Mode != RobotRelative {
		return nil, errors.Errorf("unknown drive mode %v", cfg.Mode)
	}
	log := logger.Named("drive")
	if cfg.Mode == FieldRelative && heading == nil {
		log.Warnw("Field relative drive requested but there is no heading sensor; driving robot relative")
		cfg.Mode = RobotRelative
	}
	log.Infow("Drive configured",
		"mode", cfg.Mode,
		"trackWidth", cfg.Geometry.TrackWidth,
		"wheelbaseLength", cfg.Geometry.WheelbaseLength,
		"minThrottle", cfg.MinThrottle)
	return &Coordinator{
		cfg:     cfg,
		heading: heading,
		wheels:  wheels,
		log:     log,
	}, nil
}

// Mode is the mode actually in use, after any fallback.
func (c *Coordinator) Mode() Mode {
	return c.cfg.Mode
}

// DriveCycle runs one control cycle.  If the heading can't be read nothing is
// sent.  Otherwise every wheel is commanded even if an earlier one fails, and
// the per-wheel errors are combined.
func (c *Coordinator) DriveCycle(cmd kinematics.Command) error {
	if c.reversed {
		cmd.Forward = -cmd.Forward
		cmd.Strafe = -cmd.Strafe
	}

	var heading *float64
	if c.cfg.Mode == FieldRelative {
		h, err := c.heading.HeadingDegrees()
		if err != nil {
			c.last = Cycle{Command: cmd}
			return errors.Wrap(err, "read heading")
		}
		heading = &h
	}

	setpoints := kinematics.ComputeWheelSetpoints(cmd, c.cfg.Geometry, heading)
	c.last = Cycle{Command: cmd, Heading: heading, Setpoints: setpoints}

	if setpoints.MaxSpeed() <= c.cfg.MinThrottle {
		return nil
	}
	c.last.Dispatched = true

	var err error
	for i, w := range c.wheels {
		err = multierr.Append(err, w.Set(setpoints[i].Angle, setpoints[i].Speed))
	}
	if err != nil {
		c.log.Debugw("Wheel command failed", "setpoints", setpoints.String(), "error", err)
	}
	return err
}

func (c *Coordinator) LastCycle() Cycle {
	return c.last
}

// RecalibrateAll declares every wheel's current position to be straight ahead.
// Only call this with the wheels physically aligned.
func (c *Coordinator) RecalibrateAll() error {
	var err error
	for _, w := range c.wheels {
		err = multierr.Append(err, w.ResetOffset())
	}
	if err != nil {
		c.log.Errorw("Recalibration incomplete", "error", err)
		return err
	}
	c.log.Infow("Recalibrated all wheels")
	return nil
}

// SetReversed swaps the front and back of the robot for translation.
// Rotation is unchanged.
func (c *Coordinator) SetReversed(reversed bool) {
	if reversed != c.reversed {
		c.log.Infow("Drive direction changed", "reversed", reversed)
	}
	c.reversed = reversed
}

func (c *Coordinator) ToggleReversed() bool {
	c.SetReversed(!c.reversed)
	return c.reversed
}

func (c *Coordinator) Reversed() bool {
	return c.reversed
}

// SetPower drives with linear.Y forward, linear.X to the right and angular.Z
// as rotation, each in [-1, 1].
func (c *Coordinator) SetPower(linear, angular r3.Vector) error {
	// Some vector components do not apply to a 2D base
	if linear.Z != 0 {
		c.log.Warnw("Linear Z command non-zero and has no effect")
	}
	if angular.X != 0 {
		c.log.Warnw("Angular X command non-zero and has no effect")
	}
	if angular.Y != 0 {
		c.log.Warnw("Angular Y command non-zero and has no effect")
	}
	return c.DriveCycle(kinematics.Command{
		Forward:  linear.Y,
		Strafe:   linear.X,
		Rotation: angular.Z,
	})
}
