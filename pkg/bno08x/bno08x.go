// Package bno08x reads a BNO08x IMU in UART-RVC mode and provides the robot's
// heading as a continuous angle.
package bno08x

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/angle"
)

const DefaultDevice = "/dev/ttyAMA0"

const ReportFrequency = 100
const ReportInterval = time.Second / ReportFrequency

// DefaultStaleAfter is how old the latest report may get before the heading
// is treated as unavailable.
const DefaultStaleAfter = 10 * ReportInterval

const packetLen = 19

var packetHeader = []byte{0xaa, 0xaa}

var (
	ErrNoReport    = errors.New("no report from IMU yet")
	ErrStaleReport = errors.New("IMU report is stale")
	ErrChecksum    = errors.New("bad IMU packet checksum")
)

type IMUReport struct {
	Time   time.Time
	Index  uint8
	Yaw    int16
	Pitch  int16
	Roll   int16
	XAccel int16
	YAccel int16
	ZAccel int16
}

func (i IMUReport) String() string {
	return fmt.Sprintf("[%02x] Y:%7.2f P:%7.2f R:%7.2f X:%7.2f Y:%7.2f Z:%7.2f",
		i.Index, float64(i.Yaw)/100.0, float64(i.Pitch)/100.0, float64(i.Roll)/100.0,
		float64(i.XAccel)/100.0, float64(i.YAccel)/100.0, float64(i.ZAccel)/100.0)
}

func (i IMUReport) YawDegrees() float64 {
	return (float64(i.Yaw)) / 100.0
}

type BNO08X struct {
	device string
	open   func() (io.ReadCloser, error)
	log    *zap.SugaredLogger

	// Invert negates the heading, for IMUs mounted upside down.
	Invert     bool
	StaleAfter time.Duration
	now        func() time.Time

	lock       sync.Mutex
	cond       *sync.Cond
	lastReport IMUReport
	haveReport bool
	heading    float64
}

func New(device string, logger *zap.SugaredLogger) *BNO08X {
	b := newBNO08X(logger)
	b.device = device
	b.open = func() (io.ReadCloser, error) {
		mode := &serial.Mode{
			BaudRate: 115200,
		}
		s, err := serial.Open(device, mode)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open serial port %s", device)
		}
		return s, nil
	}
	return b
}

func newBNO08X(logger *zap.SugaredLogger) *BNO08X {
	b := &BNO08X{
		log:        logger.Named("bno08x"),
		StaleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	b.cond = sync.NewCond(&b.lock)
	return b
}

func (b *BNO08X) CurrentReport() IMUReport {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.lastReport
}

// HeadingDegrees returns the yaw accumulated across reports, so it keeps
// counting past ±180 as the robot spins.
func (b *BNO08X) HeadingDegrees() (float64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.haveReport {
		return 0, ErrNoReport
	}
	if age := b.now().Sub(b.lastReport.Time); b.StaleAfter > 0 && age > b.StaleAfter {
		return 0, errors.Wrapf(ErrStaleReport, "last report %v ago", age)
	}
	if b.Invert {
		return -b.heading, nil
	}
	return b.heading, nil
}

// WaitForReportAfter blocks until there is a report newer than t, giving up
// after timeout.
func (b *BNO08X) WaitForReportAfter(t time.Time, timeout time.Duration) (IMUReport, error) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.cond.Broadcast()
	})
	defer timer.Stop()

	b.lock.Lock()
	defer b.lock.Unlock()
	for !b.haveReport || b.lastReport.Time.Before(t) {
		if !time.Now().Before(deadline) {
			return IMUReport{}, errors.Errorf("IMU hasn't responded for %v", timeout)
		}
		b.cond.Wait()
	}
	return b.lastReport, nil
}

func (b *BNO08X) LoopReadingReports(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer b.cond.Broadcast()
	for ctx.Err() == nil {
		err := b.openAndLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		b.log.Warnw("BNO08X loop stopped; will retry", "device", b.device, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (b *BNO08X) openAndLoop(ctx context.Context) error {
	port, err := b.open()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = port.Close()
	})
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()
	return b.readReports(ctx, port)
}

func (b *BNO08X) readReports(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	buf := make([]byte, packetLen)
resync:
	b.log.Debugw("BNO08X Resync...")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hdr, err := br.Peek(2)
		if err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		if bytes.Equal(hdr, packetHeader) {
			break
		}
		if _, err := br.Discard(1); err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
	}
	b.log.Debugw("BNO08X: In sync with packet stream.")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := io.ReadFull(br, buf); err != nil {
			return errors.Wrap(err, "failed to read from serial")
		}
		report, err := parsePacket(buf)
		if err != nil {
			b.log.Warnw("BNO08X: bad packet", "error", err)
			goto resync
		}
		report.Time = b.now()
		b.setReport(report)
	}
}

func parsePacket(buf []byte) (IMUReport, error) {
	if len(buf) != packetLen || !bytes.Equal(buf[:2], packetHeader) {
		return IMUReport{}, errors.New("lost sync")
	}
	var checksum uint8
	for _, c := range buf[2 : packetLen-1] {
		checksum += c
	}
	if buf[packetLen-1] != checksum {
		return IMUReport{}, errors.Wrapf(ErrChecksum, "%x != %x", buf[packetLen-1], checksum)
	}
	return IMUReport{
		Index:  buf[2],
		Yaw:    int16(binary.LittleEndian.Uint16(buf[3:5])),
		Pitch:  int16(binary.LittleEndian.Uint16(buf[5:7])),
		Roll:   int16(binary.LittleEndian.Uint16(buf[7:9])),
		XAccel: int16(binary.LittleEndian.Uint16(buf[9:11])),
		YAccel: int16(binary.LittleEndian.Uint16(buf[11:13])),
		ZAccel: int16(binary.LittleEndian.Uint16(buf[13:15])),
	}, nil
}

func (b *BNO08X) setReport(report IMUReport) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.haveReport {
		// Assumes the robot turns less than 180 degrees between reports.
		delta := angle.FromFloat(report.YawDegrees()).Sub(angle.FromFloat(b.lastReport.YawDegrees()))
		b.heading += delta.Float()
	} else {
		b.heading = report.YawDegrees()
	}
	b.lastReport = report
	b.haveReport = true
	b.cond.Broadcast()
}
