package hardware

import (
	"context"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/canmotor"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

// Interface is the drive hardware: one azimuth and one throttle motor per
// wheel and an optional gyro.
type Interface interface {
	// Start kicks off any background polling.  It returns once the hardware
	// is ready to use or ctx is cancelled.
	Start(ctx context.Context)

	AzimuthMotor(w kinematics.Wheel) swervemodule.AzimuthMotor
	ThrottleMotor(w kinematics.Wheel) swervemodule.ThrottleMotor
	// HeadingSensor returns nil if there is no gyro.
	HeadingSensor() HeadingSensor

	Shutdown()
}

type HeadingSensor interface {
	HeadingDegrees() (float64, error)
}

const (
	BackendDummy = "dummy"
	BackendCAN   = "can"

	ThrottleBackendCAN      = "can"
	ThrottleBackendPicoBLDC = "picobldc"
)

type Config struct {
	Backend         string `yaml:"backend" toml:"backend"`
	CANChannel      string `yaml:"can_channel" toml:"can_channel"`
	ThrottleBackend string `yaml:"throttle_backend" toml:"throttle_backend"`
	I2CBus          string `yaml:"i2c_bus" toml:"i2c_bus"`
	// PicoFullScaleVelocity is the throttle velocity that maps to full speed
	// on a Pico-BLDC channel.  Zero means one over the throttle ticks per inch.
	PicoFullScaleVelocity float64 `yaml:"pico_full_scale_velocity" toml:"pico_full_scale_velocity"`
	PicoWatchdogMS        int     `yaml:"pico_watchdog_ms" toml:"pico_watchdog_ms"`
}

type Wheel struct {
	Name            string `yaml:"name" toml:"name"`
	AzimuthID       uint8  `yaml:"azimuth_id" toml:"azimuth_id"`
	ThrottleID      uint8  `yaml:"throttle_id" toml:"throttle_id"`
	ThrottleChannel int    `yaml:"throttle_channel" toml:"throttle_channel"`
}

type Gyro struct {
	// Device is the IMU's serial port; empty for no gyro.
	Device string `yaml:"device" toml:"device"`
	Invert bool   `yaml:"invert" toml:"invert"`
}

// Options is everything needed to build the hardware.
type Options struct {
	Config
	Wheels      [kinematics.NumWheels]Wheel
	AzimuthPID  canmotor.PID
	ThrottlePID canmotor.PID
	Gyro        Gyro
}
