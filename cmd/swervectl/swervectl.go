package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/config"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/teleop"
)

type Globals struct {
	Config string `help:"Config file; YAML, or TOML if it ends in .toml." default:"${default_config}" type:"path"`
	Dummy  bool   `help:"Use logging dummy hardware whatever the config says."`
	Debug  bool   `help:"Enable debug logging."`

	log *zap.SugaredLogger `kong:"-"`
}

var CLI struct {
	Globals

	Drive       DriveCmd       `cmd:"" default:"1" help:"Drive from the joystick (the default)."`
	Recalibrate RecalibrateCmd `cmd:"" help:"Record the current wheel positions as straight ahead."`
	Solve       SolveCmd       `cmd:"" help:"Print the wheel setpoints for a chassis command."`
	ShowConfig  ShowConfigCmd  `cmd:"" help:"Print the effective config."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("swervectl"),
		kong.Description("Swerve drive controller."),
		kong.UsageOnError(),
		kong.Vars{"default_config": config.DefaultPath},
	)

	log, err := newLogger(CLI.Debug)
	ctx.FatalIfErrorf(err)
	defer func() { _ = log.Sync() }()
	CLI.log = log.Sugar()
	CLI.log.Infow("swervectl starting", "command", ctx.Command(), "GOMAXPROCS", runtime.GOMAXPROCS(0))

	ctx.FatalIfErrorf(ctx.Run(&CLI.Globals))
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopmentConfig().Build()
	}
	return zap.NewProductionConfig().Build()
}

// loadConfig falls back to the defaults if the default config file is absent.
func (g *Globals) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		if g.Config != config.DefaultPath || !os.IsNotExist(errors.Cause(err)) {
			return cfg, err
		}
		g.log.Warnw("No config file; using defaults", "path", g.Config)
		cfg = config.Default()
	}
	if g.Dummy {
		cfg.Hardware.Backend = hardware.BackendDummy
	}
	return cfg, nil
}

// rig is the hardware plus everything built on top of it.
type rig struct {
	hw         hardware.Interface
	coord      *drive.Coordinator
	closeStore func() error
}

func (g *Globals) buildRig(ctx context.Context, cfg config.Config) (*rig, error) {
	hw, err := hardware.New(cfg.HardwareOptions(), g.log)
	if err != nil {
		return nil, err
	}
	hw.Start(ctx)

	store, closeStore, err := cfg.OffsetStore()
	if err != nil {
		hw.Shutdown()
		return nil, err
	}
	r := &rig{hw: hw, closeStore: closeStore}

	var wheels [kinematics.NumWheels]drive.Wheel
	for w := kinematics.FrontLeft; w < kinematics.NumWheels; w++ {
		m, err := swervemodule.New(cfg.ModuleConfig(w), hw.AzimuthMotor(w), hw.ThrottleMotor(w), store, g.log)
		if err != nil {
			r.close(g.log)
			return nil, err
		}
		wheels[w] = m
	}

	var heading drive.HeadingSensor
	if hs := hw.HeadingSensor(); hs != nil {
		heading = hs
	}
	r.coord, err = drive.New(cfg.DriveConfig(), heading, wheels, g.log)
	if err != nil {
		r.close(g.log)
		return nil, err
	}
	return r, nil
}

func (r *rig) close(log *zap.SugaredLogger) {
	r.hw.Shutdown()
	if err := r.closeStore(); err != nil {
		log.Warnw("Failed to close calibration store", "error", err)
	}
}

type DriveCmd struct{}

func (c *DriveCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if inUse, err := cfg.WriteInUse(g.Config); err != nil {
		g.log.Warnw("Failed to write in-use config", "error", err)
	} else {
		g.log.Infow("Wrote in-use config", "path", inUse)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	r, err := g.buildRig(ctx, cfg)
	if err != nil {
		return err
	}
	defer r.close(g.log)

	loop := teleop.New(r.coord, cfg.Shaping, teleop.Axes{
		Strafe:  cfg.Joystick.StrafeAxis,
		Forward: cfg.Joystick.ForwardAxis,
		Twist:   cfg.Joystick.TwistAxis,
	}, time.Duration(cfg.LoopPeriodMS)*time.Millisecond, g.log)
	loop.Start(ctx)
	defer loop.Stop()

	j, err := openJoystick(ctx, cfg.Joystick.Device, g.log)
	if err != nil {
		// Only fails once we're shutting down.
		return nil
	}
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		if err := teleop.ReadJoystick(ctx, j, loop.OnJoystickEvent); err != nil && ctx.Err() == nil {
			g.log.Errorw("Joystick failed", "error", err)
		}
	}()

	<-ctx.Done()
	g.log.Infow("Shutting down")
	<-readerDone
	return nil
}

// openJoystick retries until the joystick appears, since it may connect
// after startup.
func openJoystick(ctx context.Context, device string, log *zap.SugaredLogger) (*joystick.Joystick, error) {
	for {
		j, err := joystick.NewJoystick(device)
		if err == nil {
			log.Infow("Opened joystick", "device", device)
			return j, nil
		}
		log.Warnw("Failed to open joystick", "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

type RecalibrateCmd struct{}

func (c *RecalibrateCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	r, err := g.buildRig(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer r.close(g.log)
	return r.coord.RecalibrateAll()
}

type SolveCmd struct {
	Forward  float64  `help:"Forward command in [-1, 1]."`
	Strafe   float64  `help:"Rightward command in [-1, 1]."`
	Rotation float64  `help:"Clockwise rotation command in [-1, 1]."`
	Heading  *float64 `help:"Robot heading in degrees; solves field relative if set."`
}

func (c *SolveCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	cmd := kinematics.Command{Forward: c.Forward, Strafe: c.Strafe, Rotation: c.Rotation}
	setpoints := kinematics.ComputeWheelSetpoints(cmd, cfg.Chassis, c.Heading)
	for w, s := range setpoints {
		fmt.Printf("%-12v angle %8.3f speed %.4f\n", kinematics.Wheel(w), s.Angle, s.Speed)
	}
	if setpoints.MaxSpeed() <= cfg.MinThrottle {
		fmt.Printf("below min throttle %v: nothing would be sent\n", cfg.MinThrottle)
	}
	return nil
}

type ShowConfigCmd struct{}

func (c *ShowConfigCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	out, err := cfg.Marshal(g.Config)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
