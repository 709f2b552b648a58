package canmotor

import (
	"encoding/binary"
	"math"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
)

// Frame IDs follow the FRC CAN addressing layout (29-bit extended IDs):
//
//	bits 28-24 device type, 23-16 manufacturer, 15-6 API, 5-0 device number.
const (
	deviceTypeMotorController = 2
	manufacturerTeamUse       = 8

	MaxDeviceID = 0x3f
)

type API uint16

const (
	APISetPosition API = 0x010
	APISetVelocity API = 0x011
	APISetOutput   API = 0x012
	// APIConfigPID carries one gain per frame: slot, gain index, float32 value.
	APIConfigPID API = 0x040
	// APIStatus is sent by the controller: sensor position and velocity in
	// ticks and ticks/100ms, both float32.
	APIStatus API = 0x060
)

const (
	gainP byte = iota
	gainI
	gainD
	gainF
	gainIZone
)

func frameID(api API, device uint8) uint32 {
	return deviceTypeMotorController<<24 |
		manufacturerTeamUse<<16 |
		uint32(api&0x3ff)<<6 |
		uint32(device&MaxDeviceID)
}

// parseID splits an extended frame ID.  ok is false for frames that aren't
// from a team-use motor controller.
func parseID(id uint32) (api API, device uint8, ok bool) {
	if id>>24&0x1f != deviceTypeMotorController || id>>16&0xff != manufacturerTeamUse {
		return 0, 0, false
	}
	return API(id >> 6 & 0x3ff), uint8(id & MaxDeviceID), true
}

func setpointFrame(api API, device uint8, value float64) canbus.Frame {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(float32(value)))
	return canbus.Frame{
		ID:   frameID(api, device),
		Data: data,
		Kind: canbus.EFF,
	}
}

func gainFrame(device uint8, slot, gain byte, value float64) canbus.Frame {
	data := make([]byte, 6)
	data[0] = slot
	data[1] = gain
	binary.LittleEndian.PutUint32(data[2:], math.Float32bits(float32(value)))
	return canbus.Frame{
		ID:   frameID(APIConfigPID, device),
		Data: data,
		Kind: canbus.EFF,
	}
}

type Status struct {
	Position float64
	Velocity float64
}

func decodeStatus(data []byte) (Status, error) {
	if len(data) < 8 {
		return Status{}, errors.Errorf("status frame too short: %d bytes", len(data))
	}
	return Status{
		Position: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))),
		Velocity: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))),
	}, nil
}
