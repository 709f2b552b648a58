package hardware

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

// Dummy is hardware that logs what it's asked to do.  Azimuth sensors report
// the last commanded position, as if the steering loop were perfect.
type Dummy struct {
	log      *zap.SugaredLogger
	Azimuth  [kinematics.NumWheels]*DummyMotor
	Throttle [kinematics.NumWheels]*DummyMotor
	Gyro     *DummyGyro
}

var _ Interface = (*Dummy)(nil)

func NewDummy(logger *zap.SugaredLogger) *Dummy {
	log := logger.Named("dhw")
	d := &Dummy{
		log:  log,
		Gyro: &DummyGyro{},
	}
	for w := kinematics.FrontLeft; w < kinematics.NumWheels; w++ {
		d.Azimuth[w] = NewDummyMotor(w.String()+"-azimuth", log)
		d.Throttle[w] = NewDummyMotor(w.String()+"-throttle", log)
	}
	return d
}

func (d *Dummy) Start(ctx context.Context) {
	d.log.Infow("Start")
}

func (d *Dummy) AzimuthMotor(w kinematics.Wheel) swervemodule.AzimuthMotor {
	return d.Azimuth[w]
}

func (d *Dummy) ThrottleMotor(w kinematics.Wheel) swervemodule.ThrottleMotor {
	return d.Throttle[w]
}

func (d *Dummy) HeadingSensor() HeadingSensor {
	return d.Gyro
}

func (d *Dummy) Shutdown() {
	d.log.Infow("Shutdown")
}

type DummyMotor struct {
	name string
	log  *zap.SugaredLogger

	lock     sync.Mutex
	position float64
	velocity float64
	output   float64
	setCalls int
}

func NewDummyMotor(name string, logger *zap.SugaredLogger) *DummyMotor {
	return &DummyMotor{name: name, log: logger}
}

func (m *DummyMotor) SetPosition(ticks float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.log.Debugw("SetPosition", "motor", m.name, "ticks", ticks)
	m.position = ticks
	m.setCalls++
	return nil
}

func (m *DummyMotor) SensorPosition() (float64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.position, nil
}

func (m *DummyMotor) SetVelocity(v float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.log.Debugw("SetVelocity", "motor", m.name, "velocity", v)
	m.velocity = v
	m.setCalls++
	return nil
}

func (m *DummyMotor) SetOutput(fraction float64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.log.Debugw("SetOutput", "motor", m.name, "output", fraction)
	m.output = fraction
	m.setCalls++
	return nil
}

// SetCalls counts every setpoint sent to the motor.
func (m *DummyMotor) SetCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.setCalls
}

func (m *DummyMotor) Velocity() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.velocity
}

func (m *DummyMotor) Output() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.output
}

type DummyGyro struct {
	lock    sync.Mutex
	heading float64
	err     error
}

func (g *DummyGyro) HeadingDegrees() (float64, error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.heading, g.err
}

func (g *DummyGyro) SetHeading(degrees float64) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.heading = degrees
}

// SetError makes subsequent reads fail with err, or succeed again if nil.
func (g *DummyGyro) SetError(err error) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.err = err
}
