package teleop

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/drive"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/joystick"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDriver struct {
	lock         sync.Mutex
	commands     []kinematics.Command
	toggles      int
	recalibrates int
	err          error
}

func (d *fakeDriver) DriveCycle(cmd kinematics.Command) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.commands = append(d.commands, cmd)
	return d.err
}

func (d *fakeDriver) ToggleReversed() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.toggles++
	return d.toggles%2 == 1
}

func (d *fakeDriver) RecalibrateAll() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.recalibrates++
	return nil
}

func (d *fakeDriver) last() (kinematics.Command, int) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.commands) == 0 {
		return kinematics.Command{}, 0
	}
	return d.commands[len(d.commands)-1], len(d.commands)
}

var defaultAxes = Axes{
	Strafe:  joystick.AxisLStickX,
	Forward: joystick.AxisLStickY,
	Twist:   joystick.AxisRStickX,
}

func startLoop(t *testing.T, d *fakeDriver) *Loop {
	l := New(d, drive.DefaultShaping(), defaultAxes, time.Millisecond, zaptest.NewLogger(t).Sugar())
	l.Start(context.Background())
	return l
}

func axis(n uint8, v int16) *joystick.Event {
	return &joystick.Event{Type: joystick.EventTypeAxis, Number: n, Value: v}
}

func button(n uint8, down bool) *joystick.Event {
	e := &joystick.Event{Type: joystick.EventTypeButton, Number: n}
	if down {
		e.Value = 1
	}
	return e
}

func TestSticksDrive(t *testing.T) {
	d := &fakeDriver{}
	l := startLoop(t, d)
	defer l.Stop()

	l.OnJoystickEvent(axis(joystick.AxisLStickY, -joystick.AxisMax))
	l.OnJoystickEvent(axis(joystick.AxisRStickX, joystick.AxisMax))
	require.Eventually(t, func() bool {
		cmd, _ := d.last()
		return cmd == kinematics.Command{Forward: 1, Rotation: 0.5}
	}, time.Second, time.Millisecond)

	l.OnJoystickEvent(axis(joystick.AxisLStickY, 0))
	l.OnJoystickEvent(axis(joystick.AxisRStickX, 0))
	l.OnJoystickEvent(axis(joystick.AxisLStickX, -joystick.AxisMax))
	require.Eventually(t, func() bool {
		cmd, _ := d.last()
		return cmd == kinematics.Command{Strafe: -1}
	}, time.Second, time.Millisecond)
}

func TestButtons(t *testing.T) {
	d := &fakeDriver{}
	l := startLoop(t, d)

	l.OnJoystickEvent(button(joystick.ButtonTriangle, true))
	l.OnJoystickEvent(button(joystick.ButtonTriangle, true)) // Repeat, not a new press.
	l.OnJoystickEvent(button(joystick.ButtonTriangle, false))
	l.OnJoystickEvent(button(joystick.ButtonTriangle, true))

	l.OnJoystickEvent(button(joystick.ButtonOptions, true))
	l.OnJoystickEvent(button(joystick.ButtonOptions, false))
	l.OnJoystickEvent(button(joystick.ButtonShare, true))
	l.OnJoystickEvent(button(joystick.ButtonOptions, true))
	l.Stop()

	assert.Equal(t, 2, d.toggles)
	assert.Equal(t, 1, d.recalibrates)
}

func TestTunables(t *testing.T) {
	d := &fakeDriver{}
	l := startLoop(t, d)

	// Speed is selected.  Down twice, up once.
	l.OnJoystickEvent(axis(joystick.AxisDPadY, joystick.AxisMax))
	l.OnJoystickEvent(axis(joystick.AxisDPadY, 0))
	l.OnJoystickEvent(axis(joystick.AxisDPadY, joystick.AxisMax))
	l.OnJoystickEvent(axis(joystick.AxisDPadY, -joystick.AxisMax))
	// Turn: already at the maximum.
	l.OnJoystickEvent(button(joystick.ButtonR1, true))
	l.OnJoystickEvent(axis(joystick.AxisDPadY, -joystick.AxisMax))
	l.OnJoystickEvent(axis(joystick.AxisLStickY, -joystick.AxisMax))
	l.OnJoystickEvent(axis(joystick.AxisRStickX, joystick.AxisMax))
	l.Stop()

	assert.InDelta(t, 0.9, l.speedScale.Get(), 1e-9)
	assert.Equal(t, 1.0, l.turnScale.Get())
	assert.Equal(t, "turn", l.Tunables.Current().Name)

	cmd := l.Command()
	assert.InDelta(t, 0.9, cmd.Forward, 1e-9)
	assert.InDelta(t, 0.5, cmd.Rotation, 1e-9)
}

func TestDriveErrorsDontStopTheLoop(t *testing.T) {
	d := &fakeDriver{err: errors.New("heading unavailable")}
	l := startLoop(t, d)
	defer l.Stop()

	require.Eventually(t, func() bool {
		_, n := d.last()
		return n >= 5
	}, time.Second, time.Millisecond)
}

func TestEventsAfterStopAreDropped(t *testing.T) {
	d := &fakeDriver{}
	l := startLoop(t, d)
	l.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.OnJoystickEvent(button(joystick.ButtonTriangle, true))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnJoystickEvent blocked after Stop")
	}
	assert.Zero(t, d.toggles)
}

type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

func TestReadJoystick(t *testing.T) {
	pr, pw := io.Pipe()
	js := joystick.New(pr)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan *joystick.Event, 10)
	result := make(chan error, 1)
	go func() {
		result <- ReadJoystick(ctx, js, func(e *joystick.Event) { events <- e })
	}()

	require.NoError(t, binary.Write(pw, binary.LittleEndian, rawEvent{
		Time: 100, Value: 1, Type: uint8(joystick.EventTypeButton) | 0x80, Number: joystick.ButtonCross,
	}))
	require.NoError(t, binary.Write(pw, binary.LittleEndian, rawEvent{
		Time: 120, Value: -200, Type: uint8(joystick.EventTypeAxis), Number: joystick.AxisLStickY,
	}))

	e := <-events
	assert.Equal(t, joystick.EventTypeButton, e.Type)
	assert.Equal(t, uint8(joystick.ButtonCross), e.Number)
	e = <-events
	assert.Equal(t, joystick.EventTypeAxis, e.Type)
	assert.Equal(t, int16(-200), e.Value)

	cancel()
	assert.Equal(t, context.Canceled, <-result)
	_ = pw.Close()
}

func TestReadJoystickError(t *testing.T) {
	pr, pw := io.Pipe()
	require.NoError(t, pw.CloseWithError(errors.New("unplugged")))

	err := ReadJoystick(context.Background(), joystick.New(pr), func(*joystick.Event) {
		t.Fatal("unexpected event")
	})
	assert.EqualError(t, err, "unplugged")
}
