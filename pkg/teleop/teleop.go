// Package teleop drives the robot from a joystick.  Events are folded into
// the stick state as they arrive and a drive cycle runs on every tick.
package teleop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/tunable"
)

// Driver is satisfied by *drive.Coordinator.
type Driver interface {
	DriveCycle(cmd kinematics.Command) error
	ToggleReversed() bool
	RecalibrateAll() error
}

// Axes are the joystick axis numbers for each motion.
type Axes struct {
	Strafe, Forward, Twist uint8
}

type Loop struct {
	driver  Driver
	shaping drive.Shaping
	axes    Axes
	period  time.Duration
	log     *zap.SugaredLogger

	Tunables   *tunable.Tunables
	speedScale *tunable.Tunable
	turnScale  *tunable.Tunable

	cancel         context.CancelFunc
	stopWG         sync.WaitGroup
	done           chan struct{}
	joystickEvents chan *joystick.Event

	// Owned by the loop goroutine.
	state   *joystick.State
	lastErr string
}

func New(driver Driver, shaping drive.Shaping, axes Axes, period time.Duration, logger *zap.SugaredLogger) *Loop {
	log := logger.Named("teleop")
	tunables := tunable.New(log)
	return &Loop{
		driver:         driver,
		shaping:        shaping,
		axes:           axes,
		period:         period,
		log:            log,
		Tunables:       tunables,
		speedScale:     tunables.Create("speed", 1, 0.1, 0.1, 1),
		turnScale:      tunables.Create("turn", 1, 0.1, 0.1, 1),
		done:           make(chan struct{}),
		joystickEvents: make(chan *joystick.Event),
		state:          joystick.NewState(),
	}
}

func (l *Loop) Name() string {
	return "Teleop"
}

func (l *Loop) Start(ctx context.Context) {
	l.stopWG.Add(1)
	var loopCtx context.Context
	loopCtx, l.cancel = context.WithCancel(ctx)
	go l.loop(loopCtx)
}

// Stop waits for the loop to exit.  Events already handed over have been
// applied by the time it returns.
func (l *Loop) Stop() {
	l.cancel()
	l.stopWG.Wait()
}

// OnJoystickEvent passes an event to the loop.  It is dropped if the loop has
// stopped.
func (l *Loop) OnJoystickEvent(event *joystick.Event) {
	select {
	case l.joystickEvents <- event:
	case <-l.done:
	}
}

func (l *Loop) loop(ctx context.Context) {
	defer l.stopWG.Done()
	defer close(l.done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	l.log.Infow("Teleop started", "period", l.period)
	for {
		select {
		case <-ctx.Done():
			l.log.Infow("Teleop stopped")
			return
		case event := <-l.joystickEvents:
			l.handleEvent(event)
		case <-ticker.C:
			l.cycle()
		}
	}
}

func (l *Loop) handleEvent(event *joystick.Event) {
	pressed := l.state.Apply(event)

	if event.Type == joystick.EventTypeAxis && event.Number == joystick.AxisDPadY && event.Value != 0 {
		if t := l.Tunables.Current(); t != nil {
			// Up is negative.
			if event.Value < 0 {
				t.Add(1)
			} else {
				t.Add(-1)
			}
		}
		return
	}
	if !pressed {
		return
	}

	switch event.Number {
	case joystick.ButtonTriangle:
		l.driver.ToggleReversed()
	case joystick.ButtonL1:
		l.Tunables.SelectPrev()
	case joystick.ButtonR1:
		l.Tunables.SelectNext()
	case joystick.ButtonShare, joystick.ButtonOptions:
		if l.state.Button(joystick.ButtonShare) && l.state.Button(joystick.ButtonOptions) {
			l.log.Infow("Share+Options pressed: recalibrating")
			if err := l.driver.RecalibrateAll(); err != nil {
				l.log.Errorw("Recalibration failed", "error", err)
			}
		}
	}
}

// Command is the shaped command for the current stick positions.
func (l *Loop) Command() kinematics.Command {
	cmd := l.shaping.Command(
		l.state.Axis(l.axes.Strafe),
		// Stick up is negative.
		-l.state.Axis(l.axes.Forward),
		l.state.Axis(l.axes.Twist),
	)
	speed := l.speedScale.Get()
	cmd.Forward *= speed
	cmd.Strafe *= speed
	cmd.Rotation *= l.turnScale.Get()
	return cmd
}

func (l *Loop) cycle() {
	err := l.driver.DriveCycle(l.Command())
	if err == nil {
		if l.lastErr != "" {
			l.log.Infow("Drive cycle recovered")
			l.lastErr = ""
		}
		return
	}
	// Only log changes; a dead sensor would otherwise log every tick.
	if msg := err.Error(); msg != l.lastErr {
		l.log.Warnw("Drive cycle failed", "error", err)
		l.lastErr = msg
	}
}

// EventReader is satisfied by *joystick.Joystick.
type EventReader interface {
	ReadEvent() (*joystick.Event, error)
	Close() error
}

// ReadJoystick feeds events from j to onEvent until reading fails or ctx is
// done.  j is closed on return.
func ReadJoystick(ctx context.Context, j EventReader, onEvent func(*joystick.Event)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = j.Close()
	})
	defer func() {
		if stop() {
			_ = j.Close()
		}
	}()
	for {
		event, err := j.ReadEvent()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		onEvent(event)
	}
}
