// Package config loads the controller configuration.  Values missing from the
// file keep their defaults.
package config

import (
	"bytes"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/calibration"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/canmotor"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

const DefaultPath = "/cfg/swerve.yaml"

type Calibration struct {
	// Dir holds one offset file per module.
	Dir string `yaml:"dir" toml:"dir"`
	// SQLite, if set, is a database used instead of the offset files.
	SQLite string `yaml:"sqlite" toml:"sqlite"`
}

type Joystick struct {
	Device      string `yaml:"device" toml:"device"`
	StrafeAxis  uint8  `yaml:"strafe_axis" toml:"strafe_axis"`
	ForwardAxis uint8  `yaml:"forward_axis" toml:"forward_axis"`
	TwistAxis   uint8  `yaml:"twist_axis" toml:"twist_axis"`
}

type Config struct {
	Chassis               chassis.Geometry          `yaml:"chassis" toml:"chassis"`
	DriveMode             drive.Mode                `yaml:"drive_mode" toml:"drive_mode"`
	ThrottleMode          swervemodule.ThrottleMode `yaml:"throttle_mode" toml:"throttle_mode"`
	MinThrottle           float64                   `yaml:"min_throttle" toml:"min_throttle"`
	AzimuthTicksPerDegree float64                   `yaml:"azimuth_ticks_per_degree" toml:"azimuth_ticks_per_degree"`
	ThrottleTicksPerInch  float64                   `yaml:"throttle_ticks_per_inch" toml:"throttle_ticks_per_inch"`
	Shaping               drive.Shaping             `yaml:"shaping" toml:"shaping"`
	LoopPeriodMS          int                       `yaml:"loop_period_ms" toml:"loop_period_ms"`

	// Wheels are in front-left, front-right, rear-left, rear-right order.
	Wheels      []hardware.Wheel `yaml:"wheels" toml:"wheels"`
	AzimuthPID  canmotor.PID     `yaml:"azimuth_pid" toml:"azimuth_pid"`
	ThrottlePID canmotor.PID     `yaml:"throttle_pid" toml:"throttle_pid"`

	Calibration Calibration     `yaml:"calibration" toml:"calibration"`
	Hardware    hardware.Config `yaml:"hardware" toml:"hardware"`
	Gyro        hardware.Gyro   `yaml:"gyro" toml:"gyro"`
	Joystick    Joystick        `yaml:"joystick" toml:"joystick"`
}

func Default() Config {
	return Config{
		Chassis: chassis.Geometry{
			TrackWidth:      28,
			WheelbaseLength: 28,
		},
		DriveMode:             drive.FieldRelative,
		ThrottleMode:          swervemodule.ThrottleVelocity,
		MinThrottle:           0.05,
		AzimuthTicksPerDegree: 10,
		ThrottleTicksPerInch:  50,
		Shaping:               drive.DefaultShaping(),
		LoopPeriodMS:          20,
		Wheels: []hardware.Wheel{
			{Name: "FrontLeftModule", AzimuthID: 32, ThrottleID: 42, ThrottleChannel: 0},
			{Name: "FrontRightModule", AzimuthID: 31, ThrottleID: 41, ThrottleChannel: 1},
			{Name: "RearLeftModule", AzimuthID: 34, ThrottleID: 44, ThrottleChannel: 2},
			{Name: "RearRightModule", AzimuthID: 33, ThrottleID: 43, ThrottleChannel: 3},
		},
		Calibration: Calibration{
			Dir: "/home/lvuser",
		},
		Hardware: hardware.Config{
			Backend:         hardware.BackendDummy,
			CANChannel:      "can0",
			ThrottleBackend: hardware.ThrottleBackendCAN,
			I2CBus:          "/dev/i2c-1",
		},
		Gyro: hardware.Gyro{
			Device: "/dev/ttyAMA0",
		},
		Joystick: Joystick{
			Device:      "/dev/input/js0",
			StrafeAxis:  joystick.AxisLStickX,
			ForwardAxis: joystick.AxisLStickY,
			TwistAxis:   joystick.AxisRStickX,
		},
	}
}

// Load reads path over the defaults.  Files ending in .toml are TOML,
// anything else YAML.  The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.UnmarshalStrict(data, &cfg)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func (c Config) Validate() error {
	if err := c.Chassis.Validate(); err != nil {
		return err
	}
	if len(c.Wheels) != kinematics.NumWheels {
		return errors.Errorf("need %d wheels, config has %d", kinematics.NumWheels, len(c.Wheels))
	}
	seen := map[string]bool{}
	for i, w := range c.Wheels {
		if w.Name == "" {
			return errors.Errorf("%v wheel has no name", kinematics.Wheel(i))
		}
		if seen[w.Name] {
			return errors.Errorf("wheel name %q used twice", w.Name)
		}
		seen[w.Name] = true
		if err := c.ModuleConfig(kinematics.Wheel(i)).Validate(); err != nil {
			return err
		}
	}
	if math.IsNaN(c.MinThrottle) || math.IsInf(c.MinThrottle, 0) || c.MinThrottle < 0 {
		return errors.Errorf("min_throttle %v must be a non-negative number", c.MinThrottle)
	}
	if c.DriveMode != drive.FieldRelative && c.DriveMode != drive.RobotRelative {
		return errors.Errorf("unknown drive_mode %v", c.DriveMode)
	}
	if c.LoopPeriodMS <= 0 {
		return errors.Errorf("loop_period_ms %d must be positive", c.LoopPeriodMS)
	}
	if math.IsNaN(c.Hardware.PicoFullScaleVelocity) || c.Hardware.PicoFullScaleVelocity < 0 {
		return errors.Errorf("pico_full_scale_velocity %v must not be negative", c.Hardware.PicoFullScaleVelocity)
	}
	if c.Shaping.Exponent <= 0 {
		return errors.Errorf("shaping exponent %v must be positive", c.Shaping.Exponent)
	}
	return nil
}

// Marshal renders the config in the format implied by path.
func (c Config) Marshal(path string) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, errors.Wrap(err, "encode TOML")
		}
		return buf.Bytes(), nil
	}
	out, err := yaml.Marshal(&c)
	return out, errors.Wrap(err, "encode YAML")
}

// WriteInUse records the effective config next to the one it was loaded
// from, as swerve-in-use.yaml for swerve.yaml.
func (c Config) WriteInUse(path string) (string, error) {
	ext := filepath.Ext(path)
	inUse := strings.TrimSuffix(path, ext) + "-in-use" + ext
	data, err := c.Marshal(inUse)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(inUse), 0o755); err != nil {
		return "", errors.Wrap(err, "create config dir")
	}
	if err := ioutil.WriteFile(inUse, data, 0o666); err != nil {
		return "", errors.Wrapf(err, "write %s", inUse)
	}
	return inUse, nil
}

func (c Config) HardwareOptions() hardware.Options {
	opts := hardware.Options{
		Config:      c.Hardware,
		AzimuthPID:  c.AzimuthPID,
		ThrottlePID: c.ThrottlePID,
		Gyro:        c.Gyro,
	}
	copy(opts.Wheels[:], c.Wheels)
	// Unset means a full-scale wheel speed is full output.
	if opts.PicoFullScaleVelocity == 0 && c.ThrottleTicksPerInch > 0 {
		opts.PicoFullScaleVelocity = 1 / c.ThrottleTicksPerInch
	}
	return opts
}

func (c Config) ModuleConfig(w kinematics.Wheel) swervemodule.Config {
	return swervemodule.Config{
		Name:           c.Wheels[w].Name,
		TicksPerDegree: c.AzimuthTicksPerDegree,
		TicksPerInch:   c.ThrottleTicksPerInch,
		ThrottleMode:   c.ThrottleMode,
	}
}

func (c Config) DriveConfig() drive.Config {
	return drive.Config{
		Geometry:    c.Chassis,
		Mode:        c.DriveMode,
		MinThrottle: c.MinThrottle,
	}
}

// OffsetStore opens the calibration store.  The dummy backend keeps offsets
// in memory so that trying things out doesn't touch the real calibration.
// The returned close func is never nil.
func (c Config) OffsetStore() (swervemodule.OffsetStore, func() error, error) {
	noop := func() error { return nil }
	switch {
	case c.Hardware.Backend == hardware.BackendDummy || c.Hardware.Backend == "":
		return calibration.NewMemoryStore(), noop, nil
	case c.Calibration.SQLite != "":
		s, err := calibration.OpenSQLite(c.Calibration.SQLite)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	}
	return calibration.NewFileStore(c.Calibration.Dir), noop, nil
}
