package bno08x

import (
	"bytes"
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
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func packet(index uint8, yawCentiDegrees int16) []byte {
	buf := make([]byte, packetLen)
	buf[0], buf[1] = 0xaa, 0xaa
	buf[2] = index
	binary.LittleEndian.PutUint16(buf[3:5], uint16(yawCentiDegrees))
	pitch, zAccel := int16(-150), int16(981)
	binary.LittleEndian.PutUint16(buf[5:7], uint16(pitch))
	binary.LittleEndian.PutUint16(buf[13:15], uint16(zAccel))
	var checksum uint8
	for _, c := range buf[2 : packetLen-1] {
		checksum += c
	}
	buf[packetLen-1] = checksum
	return buf
}

func TestParsePacket(t *testing.T) {
	r, err := parsePacket(packet(7, -12345))
	require.NoError(t, err)
	assert.Equal(t, uint8(7), r.Index)
	assert.Equal(t, -123.45, r.YawDegrees())
	assert.Equal(t, int16(-150), r.Pitch)
	assert.Equal(t, int16(981), r.ZAccel)

	bad := packet(7, 100)
	bad[4] ^= 0x01
	_, err = parsePacket(bad)
	assert.Equal(t, ErrChecksum, errors.Cause(err))

	bad = packet(7, 100)
	bad[1] = 0
	_, err = parsePacket(bad)
	assert.Error(t, err)
}

func TestHeadingUnwraps(t *testing.T) {
	b := newBNO08X(zaptest.NewLogger(t).Sugar())

	_, err := b.HeadingDegrees()
	assert.Equal(t, ErrNoReport, err)

	var stream bytes.Buffer
	stream.Write([]byte{0x01, 0xaa, 0x55}) // Noise before the first header.
	for i, yaw := range []int16{0, 9000, 17900, -17900, -9000, 0} {
		stream.Write(packet(uint8(i), yaw))
		if i == 3 {
			corrupt := packet(99, 0)
			corrupt[10] ^= 0xff
			stream.Write(corrupt)
		}
	}
	err = b.readReports(context.Background(), &stream)
	assert.Equal(t, io.EOF, errors.Cause(err))

	// 0 -> 90 -> 179 -> 181 -> 270 -> 360.  The corrupt packet is skipped.
	h, err := b.HeadingDegrees()
	require.NoError(t, err)
	assert.InDelta(t, 360, h, 1e-9)
	assert.Equal(t, uint8(5), b.CurrentReport().Index)

	b.Invert = true
	h, err = b.HeadingDegrees()
	require.NoError(t, err)
	assert.InDelta(t, -360, h, 1e-9)
}

func TestHeadingStale(t *testing.T) {
	b := newBNO08X(zaptest.NewLogger(t).Sugar())
	now := time.Unix(100, 0)
	b.now = func() time.Time { return now }

	b.setReport(IMUReport{Time: now, Yaw: 4500})
	h, err := b.HeadingDegrees()
	require.NoError(t, err)
	assert.Equal(t, 45.0, h)

	now = now.Add(time.Second)
	_, err = b.HeadingDegrees()
	assert.Equal(t, ErrStaleReport, errors.Cause(err))
}

func TestWaitForReportAfter(t *testing.T) {
	b := newBNO08X(zaptest.NewLogger(t).Sugar())

	_, err := b.WaitForReportAfter(time.Now(), 20*time.Millisecond)
	assert.Error(t, err)

	start := time.Now()
	go func() {
		time.Sleep(5 * time.Millisecond)
		b.setReport(IMUReport{Time: time.Now(), Yaw: 100})
	}()
	r, err := b.WaitForReportAfter(start, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int16(100), r.Yaw)
}

type pipePort struct {
	*io.PipeReader
}

func TestLoopStopsOnCancel(t *testing.T) {
	b := newBNO08X(zaptest.NewLogger(t).Sugar())
	pr, pw := io.Pipe()
	opened := 0
	b.open = func() (io.ReadCloser, error) {
		opened++
		if opened > 1 {
			return nil, errors.New("no such device")
		}
		return pipePort{pr}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go b.LoopReadingReports(ctx, &wg)

	go func() {
		_, _ = pw.Write(packet(1, 9000))
	}()
	r, err := b.WaitForReportAfter(time.Time{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90.0, r.YawDegrees())

	cancel()
	wg.Wait()
	_ = pw.Close()
}
