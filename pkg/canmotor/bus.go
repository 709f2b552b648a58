// Package canmotor talks to smart motor controllers on a SocketCAN bus.  Each
// controller runs its own position/velocity loop; this package sends setpoints
// and tracks the status frames they broadcast.
package canmotor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Socket is the part of *canbus.Socket that the bus uses.
type Socket interface {
	Send(frame canbus.Frame) (int, error)
	Recv() (canbus.Frame, error)
	Close() error
}

var (
	ErrNoStatus    = errors.New("no status received from motor controller")
	ErrStaleStatus = errors.New("motor controller status is stale")
)

const DefaultStatusTimeout = 250 * time.Millisecond

// PID gains for one control slot.
type PID struct {
	P     float64 `yaml:"p" toml:"p"`
	I     float64 `yaml:"i" toml:"i"`
	D     float64 `yaml:"d" toml:"d"`
	F     float64 `yaml:"f" toml:"f"`
	IZone float64 `yaml:"izone" toml:"izone"`
}

type statusRecord struct {
	Status
	received time.Time
}

type Bus struct {
	tx, rx Socket
	log    *zap.SugaredLogger

	StatusTimeout time.Duration
	now           func() time.Time

	txLock sync.Mutex

	lock   sync.Mutex
	status map[uint8]statusRecord
}

// Open binds two raw sockets to channel (e.g. "can0"), one for sending and one
// for the receive loop.
func Open(channel string, logger *zap.SugaredLogger) (*Bus, error) {
	tx, err := canbus.New()
	if err != nil {
		return nil, errors.Wrap(err, "open CAN send socket")
	}
	if err := tx.Bind(channel); err != nil {
		_ = tx.Close()
		return nil, errors.Wrapf(err, "bind CAN send socket to %s", channel)
	}
	rx, err := canbus.New()
	if err != nil {
		_ = tx.Close()
		return nil, errors.Wrap(err, "open CAN receive socket")
	}
	if err := rx.Bind(channel); err != nil {
		_ = tx.Close()
		_ = rx.Close()
		return nil, errors.Wrapf(err, "bind CAN receive socket to %s", channel)
	}
	return NewBus(tx, rx, logger), nil
}

func NewBus(tx, rx Socket, logger *zap.SugaredLogger) *Bus {
	return &Bus{
		tx:            tx,
		rx:            rx,
		log:           logger.Named("can"),
		StatusTimeout: DefaultStatusTimeout,
		now:           time.Now,
		status:        map[uint8]statusRecord{},
	}
}

// Loop receives status frames until ctx is cancelled.  It closes the receive
// socket on the way out, which is also what unblocks a pending Recv.
func (b *Bus) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	stop := context.AfterFunc(ctx, func() {
		_ = b.rx.Close()
	})
	defer stop()

	for {
		frame, err := b.rx.Recv()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			b.log.Errorw("CAN Rx error", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		b.handleFrame(frame)
	}
}

func (b *Bus) handleFrame(frame canbus.Frame) {
	if frame.Kind != canbus.EFF {
		return
	}
	api, device, ok := parseID(frame.ID)
	if !ok || api != APIStatus {
		return
	}
	s, err := decodeStatus(frame.Data)
	if err != nil {
		b.log.Warnw("Bad status frame", "device", device, "error", err)
		return
	}
	b.lock.Lock()
	b.status[device] = statusRecord{Status: s, received: b.now()}
	b.lock.Unlock()
}

// Status returns the last status reported by device.
func (b *Bus) Status(device uint8) (Status, error) {
	b.lock.Lock()
	rec, ok := b.status[device]
	b.lock.Unlock()
	if !ok {
		return Status{}, errors.Wrapf(ErrNoStatus, "device %d", device)
	}
	if age := b.now().Sub(rec.received); b.StatusTimeout > 0 && age > b.StatusTimeout {
		return Status{}, errors.Wrapf(ErrStaleStatus, "device %d: last status %v ago", device, age)
	}
	return rec.Status, nil
}

// WaitForStatus blocks until every device has reported a fresh status, or
// returns the first device's error once timeout passes or ctx is done.
func (b *Bus) WaitForStatus(ctx context.Context, timeout time.Duration, devices ...uint8) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(5 * time.Millisecond)
	defer poll.Stop()

	for {
		var err error
		for _, d := range devices {
			if _, err = b.Status(d); err != nil {
				break
			}
		}
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), err.Error())
		case <-deadline.C:
			return err
		case <-poll.C:
		}
	}
}

func (b *Bus) send(frame canbus.Frame) error {
	b.txLock.Lock()
	defer b.txLock.Unlock()
	if _, err := b.tx.Send(frame); err != nil {
		return errors.Wrapf(err, "CAN Tx frame %08x", frame.ID)
	}
	return nil
}

// ConfigurePID uploads gains for one slot of device.
func (b *Bus) ConfigurePID(device uint8, slot byte, pid PID) error {
	gains := []struct {
		index byte
		value float64
	}{
		{gainP, pid.P},
		{gainI, pid.I},
		{gainD, pid.D},
		{gainF, pid.F},
		{gainIZone, pid.IZone},
	}
	for _, g := range gains {
		if err := b.send(gainFrame(device, slot, g.index, g.value)); err != nil {
			return errors.Wrapf(err, "configure PID on device %d", device)
		}
	}
	b.log.Debugw("Configured PID", "device", device, "slot", slot,
		"p", pid.P, "i", pid.I, "d", pid.D, "f", pid.F, "izone", pid.IZone)
	return nil
}

func (b *Bus) Motor(device uint8) *Motor {
	return &Motor{bus: b, device: device}
}

func (b *Bus) Close() error {
	return b.tx.Close()
}

// Motor is one controller on the bus.  It implements both the azimuth and the
// throttle motor interfaces of a swerve module.
type Motor struct {
	bus    *Bus
	device uint8
}

func (m *Motor) Device() uint8 {
	return m.device
}

func (m *Motor) SetPosition(ticks float64) error {
	return m.bus.send(setpointFrame(APISetPosition, m.device, ticks))
}

func (m *Motor) SetVelocity(v float64) error {
	return m.bus.send(setpointFrame(APISetVelocity, m.device, v))
}

func (m *Motor) SetOutput(fraction float64) error {
	fraction = math.Max(-1, math.Min(1, fraction))
	return m.bus.send(setpointFrame(APISetOutput, m.device, fraction))
}

func (m *Motor) SensorPosition() (float64, error) {
	s, err := m.bus.Status(m.device)
	if err != nil {
		return 0, err
	}
	return s.Position, nil
}
