package hardware

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/kinematics"
)

func TestNewBackends(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()

	hw, err := New(Options{Config: Config{Backend: BackendDummy}}, log)
	require.NoError(t, err)
	assert.IsType(t, &Dummy{}, hw)

	_, err = New(Options{Config: Config{Backend: "lego"}}, log)
	assert.Error(t, err)
}

func TestDummyMotorFollowsSetpoint(t *testing.T) {
	d := NewDummy(zaptest.NewLogger(t).Sugar())
	d.Start(context.Background())
	defer d.Shutdown()

	az := d.AzimuthMotor(kinematics.RearLeft)
	pos, err := az.SensorPosition()
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)

	require.NoError(t, az.SetPosition(1234))
	pos, err = az.SensorPosition()
	require.NoError(t, err)
	assert.Equal(t, 1234.0, pos)
	assert.Equal(t, 1, d.Azimuth[kinematics.RearLeft].SetCalls())
	assert.Equal(t, 0, d.Azimuth[kinematics.FrontLeft].SetCalls())

	th := d.ThrottleMotor(kinematics.RearLeft)
	require.NoError(t, th.SetVelocity(0.02))
	require.NoError(t, th.SetOutput(-0.5))
	assert.Equal(t, 0.02, d.Throttle[kinematics.RearLeft].Velocity())
	assert.Equal(t, -0.5, d.Throttle[kinematics.RearLeft].Output())
	assert.Equal(t, 2, d.Throttle[kinematics.RearLeft].SetCalls())
}

func TestDummyGyro(t *testing.T) {
	d := NewDummy(zaptest.NewLogger(t).Sugar())
	gyro := d.HeadingSensor()
	require.NotNil(t, gyro)

	d.Gyro.SetHeading(-450)
	h, err := gyro.HeadingDegrees()
	require.NoError(t, err)
	assert.Equal(t, -450.0, h)

	d.Gyro.SetError(errors.New("no report"))
	_, err = gyro.HeadingDegrees()
	assert.Error(t, err)
}

func TestDummyLogsUnderNamedLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := NewDummy(zap.New(core).Sugar())
	d.Start(context.Background())
	require.NoError(t, d.AzimuthMotor(kinematics.FrontLeft).SetPosition(100))

	moves := logs.FilterMessage("SetPosition").All()
	require.Len(t, moves, 1)
	assert.Equal(t, "dhw", moves[0].LoggerName)
	for _, e := range logs.All() {
		assert.NotContains(t, e.Message, "DHW")
	}
}
