// Package picobldc drives the Pico-BLDC four channel brushless controller
// over I2C.  Each channel can serve as the throttle of one swerve module.
package picobldc

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/io/i2c"
)

const (
	PicoAddr = 0x42

	NumChannels = 4
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegMot0V
	RegMot1V
	RegMot2V
	RegMot3V

	RegMot0Calib
	RegMot1Calib
	RegMot2Calib
	RegMot3Calib

	RegBattV // LSB=4mV
)

const BattVLSB = 0.004

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
)

const (
	writeRetries     = 20
	calibTimeout     = 10 * time.Second
	configRefreshAge = 100 * time.Millisecond
)

var ErrCalibrationTimeout = errors.New("Pico-BLDC calibration did not finish")

// Device is the part of *i2c.Device that the board uses.
type Device interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

type Board struct {
	lock sync.Mutex
	dev  Device
	open func() (Device, error)
	log  *zap.SugaredLogger

	// FullScaleVelocity is the velocity command that maps to full motor
	// speed.
	FullScaleVelocity float64

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool
}

// Open opens the board on an I2C bus such as "/dev/i2c-1".
func Open(bus string, logger *zap.SugaredLogger) (*Board, error) {
	open := func() (Device, error) {
		return i2c.Open(&i2c.Devfs{Dev: bus}, PicoAddr)
	}
	dev, err := open()
	if err != nil {
		return nil, errors.Wrapf(err, "open Pico-BLDC on %s", bus)
	}
	return newBoard(dev, open, logger), nil
}

func newBoard(dev Device, open func() (Device, error), logger *zap.SugaredLogger) *Board {
	return &Board{
		dev:               dev,
		open:              open,
		log:               logger.Named("picobldc"),
		FullScaleVelocity: 1,
	}
}

func (p *Board) Reset() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.maybeConfigure(true, false)
}

func (p *Board) SetWatchdog(timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if timeout == 0 {
		// Disable.
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	if err := p.writeReg(RegWatchdogTimeout, uint16(ms)); err != nil {
		return err
	}
	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

// SetChannel sets one motor's speed register, enabling the motors first if
// needed.
func (p *Board) SetChannel(channel int, speed int16) error {
	if channel < 0 || channel >= NumChannels {
		return errors.Errorf("Pico-BLDC has no channel %d", channel)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	return p.writeReg(RegMot0V+Register(channel), uint16(speed))
}

func (p *Board) Channel(channel int) *Channel {
	return &Channel{board: p, channel: channel}
}

func (p *Board) Close() error {
	_ = p.Reset()
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.dev.Close()
}

func (p *Board) BattVolts() (float64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	raw, err := p.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return float64(raw) * BattVLSB, nil
}

func (p *Board) Status() (StatusFlag, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	raw, err := p.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (p *Board) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < writeRetries; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.log.Infow("Successfully programmed Pico-BLDC after retries", "tries", tries+1)
			}
			return nil
		}
		p.log.Warnw("Failed to write to Pico-BLDC", "error", err)
		time.Sleep(1 * time.Millisecond)
		if p.open == nil {
			continue
		}
		_ = p.dev.Close()
		dev, openErr := p.open()
		if openErr != nil {
			continue
		}
		p.dev = dev
	}
	return errors.Wrapf(err, "write to Pico-BLDC failed after %d tries", writeRetries)
}

func (p *Board) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	// Figure out if the config word has changed.
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && time.Since(p.lastConfigTime) < configRefreshAge {
		// Skip writing config if we've done it recently.
		return nil
	}

	if p.lastConfigWord == 0 {
		// First time.  Figure out calibration...
		calib, err := p.readReg(RegMot3Calib)
		if err != nil {
			return err
		}
		if calib == 0 {
			// The wheels must be free to spin for this.
			p.log.Warnw("Pico-BLDC not calibrated, running calibration")
			configWord |= RegCtrlDoCalib
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}

	if configWord&RegCtrlDoCalib != 0 {
		if err := p.waitForCalibration(); err != nil {
			return err
		}
	}

	if err := p.writeReg(RegStatus, uint16(RegStatusCalibDone)); err != nil {
		return err
	}

	p.lastConfigTime = time.Now()
	p.lastConfigWord = configWord &^ (RegCtrlReset | RegCtrlDoCalib) /* Reset and calibrate flags are not persistent */
	return nil
}

func (p *Board) waitForCalibration() error {
	start := time.Now()
	var lastPrint time.Time
	for {
		status, err := p.readReg(RegStatus)
		if err != nil {
			p.log.Warnw("Failed to read status register", "error", err)
		} else if status&uint16(RegStatusCalibDone) != 0 {
			break
		}
		if time.Since(start) > calibTimeout {
			return ErrCalibrationTimeout
		}
		if time.Since(lastPrint) > time.Second {
			p.log.Infow("Waiting for calibration to finish", "status", status)
			lastPrint = time.Now()
		}
		time.Sleep(10 * time.Millisecond)
	}

	var words [NumChannels]uint16
	for i := range words {
		v, err := p.readReg(RegMot0Calib + Register(i))
		if err != nil {
			return err
		}
		words[i] = v
	}
	p.log.Infow("Calibration done", "words", words)
	return nil
}

func (p *Board) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *Board) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, errors.Wrapf(err, "read Pico-BLDC register %d", reg)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// Channel is one motor output of a Board, used as a swerve throttle.  The
// board has no encoder feedback, so velocity commands are open loop too,
// scaled by the board's FullScaleVelocity.
type Channel struct {
	board   *Board
	channel int
}

func (c *Channel) SetVelocity(v float64) error {
	return c.board.SetChannel(c.channel, toSpeed(v/c.board.FullScaleVelocity))
}

func (c *Channel) SetOutput(fraction float64) error {
	return c.board.SetChannel(c.channel, toSpeed(fraction))
}

func toSpeed(fraction float64) int16 {
	if math.IsNaN(fraction) {
		return 0
	}
	fraction = math.Max(-1, math.Min(1, fraction))
	return int16(math.Round(fraction * math.MaxInt16))
}
