package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/bno08x"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/canmotor"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/picobldc"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

const (
	// PID slot used for both axes.
	pidSlot = 0

	gyroStartupTimeout  = time.Second
	motorStartupTimeout = time.Second
)

// New builds the hardware selected by opts.Backend.
func New(opts Options, logger *zap.SugaredLogger) (Interface, error) {
	switch opts.Backend {
	case BackendDummy, "":
		return NewDummy(logger), nil
	case BackendCAN:
		h, err := newCAN(opts, logger)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, errors.Errorf("unknown hardware backend %q", opts.Backend)
}

type Hardware struct {
	log *zap.SugaredLogger

	bus  *canmotor.Bus
	pico *picobldc.Board
	imu  *bno08x.BNO08X

	azimuthIDs []uint8
	azimuth    [kinematics.NumWheels]swervemodule.AzimuthMotor
	throttle   [kinematics.NumWheels]swervemodule.ThrottleMotor

	cancel    context.CancelFunc
	loopsDone sync.WaitGroup
}

var _ Interface = (*Hardware)(nil)

func newCAN(opts Options, logger *zap.SugaredLogger) (*Hardware, error) {
	log := logger.Named("hw")
	bus, err := canmotor.Open(opts.CANChannel, logger)
	if err != nil {
		return nil, err
	}
	h := &Hardware{log: log, bus: bus}

	switch opts.ThrottleBackend {
	case ThrottleBackendCAN, "":
	case ThrottleBackendPicoBLDC:
		h.pico, err = picobldc.Open(opts.I2CBus, logger)
		if err != nil {
			_ = bus.Close()
			return nil, err
		}
		if opts.PicoFullScaleVelocity > 0 {
			h.pico.FullScaleVelocity = opts.PicoFullScaleVelocity
		}
	default:
		_ = bus.Close()
		return nil, errors.Errorf("unknown throttle backend %q", opts.ThrottleBackend)
	}

	for i, w := range opts.Wheels {
		az := bus.Motor(w.AzimuthID)
		if err := bus.ConfigurePID(w.AzimuthID, pidSlot, opts.AzimuthPID); err != nil {
			h.Shutdown()
			return nil, err
		}
		h.azimuth[i] = az
		h.azimuthIDs = append(h.azimuthIDs, w.AzimuthID)

		if h.pico != nil {
			h.throttle[i] = h.pico.Channel(w.ThrottleChannel)
			continue
		}
		if err := bus.ConfigurePID(w.ThrottleID, pidSlot, opts.ThrottlePID); err != nil {
			h.Shutdown()
			return nil, err
		}
		h.throttle[i] = bus.Motor(w.ThrottleID)
	}

	if h.pico != nil && opts.PicoWatchdogMS > 0 {
		if err := h.pico.SetWatchdog(time.Duration(opts.PicoWatchdogMS) * time.Millisecond); err != nil {
			h.Shutdown()
			return nil, err
		}
	}

	if opts.Gyro.Device != "" {
		h.imu = bno08x.New(opts.Gyro.Device, logger)
		h.imu.Invert = opts.Gyro.Invert
	}
	return h, nil
}

func (h *Hardware) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)

	h.loopsDone.Add(1)
	go h.bus.Loop(ctx, &h.loopsDone)
	// Calibration reads the azimuth sensors as soon as the modules are built.
	if err := h.bus.WaitForStatus(ctx, motorStartupTimeout, h.azimuthIDs...); err != nil {
		h.log.Warnw("Azimuth controllers not reporting yet", "error", err)
	}

	if h.imu != nil {
		h.loopsDone.Add(1)
		go h.imu.LoopReadingReports(ctx, &h.loopsDone)
		if _, err := h.imu.WaitForReportAfter(time.Time{}, gyroStartupTimeout); err != nil {
			h.log.Warnw("Gyro not reporting yet", "error", err)
		}
	}

	if h.pico != nil {
		if v, err := h.pico.BattVolts(); err != nil {
			h.log.Warnw("Failed to read battery voltage", "error", err)
		} else {
			h.log.Infow("Pico-BLDC ready", "battery", v)
		}
	}
}

func (h *Hardware) AzimuthMotor(w kinematics.Wheel) swervemodule.AzimuthMotor {
	return h.azimuth[w]
}

func (h *Hardware) ThrottleMotor(w kinematics.Wheel) swervemodule.ThrottleMotor {
	return h.throttle[w]
}

func (h *Hardware) HeadingSensor() HeadingSensor {
	if h.imu == nil {
		return nil
	}
	return h.imu
}

// Shutdown stops the motors and background loops.
func (h *Hardware) Shutdown() {
	for _, th := range h.throttle {
		if th != nil {
			_ = th.SetOutput(0)
		}
	}
	if h.cancel != nil {
		h.cancel()
		h.loopsDone.Wait()
	}
	if h.pico != nil {
		if err := h.pico.Close(); err != nil {
			h.log.Warnw("Failed to close Pico-BLDC", "error", err)
		}
	}
	if err := h.bus.Close(); err != nil {
		h.log.Warnw("Failed to close CAN bus", "error", err)
	}
	h.log.Infow("Hardware shut down")
}
