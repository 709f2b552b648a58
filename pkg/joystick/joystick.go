// Button and pad mappings for a DualShock 4 on the hid-sony driver:
//
// Buttons
//
//    Cross     = 0
//    Circle    = 1
//    Triangle  = 2
//    Square    = 3
//    L1        = 4
//    R1        = 5
//    L2        = 6 (also an axis)
//    R2        = 7 (also an axis)
//    Share     = 8
//    Options   = 9
//    PS        = 10
//    L stick   = 11
//    R stick   = 12
//
// Axes
//
//    D-pad   u/d = 7 (up = -32767; down = +32767)
//            l/r = 6 (left = -32767; right = +32767)
//    L stick u/d = 1 (up = -32767; down = +32767)
//            l/r = 0 (left = -32767; right = +32767)
//    R stick u/d = 4 (up = -32767; down = +32767)
//            l/r = 3 (left = -32767; right = +32767)
//    L2          = 2 (unpressed = -32767; fully-pressed = 32767)
//    R2          = 5 (unpressed = -32767; fully-pressed = 32767)
package joystick

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
)

type EventType uint8

const (
	EventTypeButton EventType = 1
	EventTypeAxis   EventType = 2

	// eventTypeInit is set on the synthetic events sent when the device is
	// opened, describing the initial state.
	eventTypeInit = 0x80
)

const (
	ButtonSquare   = 3
	ButtonCross    = 0
	ButtonCircle   = 1
	ButtonTriangle = 2
	ButtonL1       = 4
	ButtonR1       = 5
	ButtonL2       = 6
	ButtonR2       = 7
	ButtonShare    = 8
	ButtonOptions  = 9
	ButtonLStick   = 11
	ButtonRStick   = 12
	ButtonPS       = 10
	//ButtonPadClick =

	AxisLStickX = 0
	AxisLStickY = 1
	AxisRStickX = 3
	AxisRStickY = 4
	AxisDPadX   = 6
	AxisDPadY   = 7
)

func (e EventType) String() string {
	switch e {
	case EventTypeAxis:
		return "axis"
	case EventTypeButton:
		return "button"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

type Joystick struct {
	device io.ReadCloser

	deviceEpoch    uint32
	wallclockEpoch time.Time
}

type rawEvent struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

type Event struct {
	Time   time.Time
	Value  int16
	Type   EventType
	Number uint8
}

func (e *Event) String() string {
	return fmt.Sprintf("%v(%v)=%v", e.Type, e.Number, e.Value)
}

func NewJoystick(device string) (*Joystick, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Wrapf(err, "open joystick %s", device)
	}
	return New(f), nil
}

// New reads events in the Linux js_event format from r.
func New(r io.ReadCloser) *Joystick {
	return &Joystick{
		device: r,
	}
}

func (j *Joystick) ReadEvent() (*Event, error) {
	var rawEvent rawEvent
	err := binary.Read(j.device, binary.LittleEndian, &rawEvent)
	if err != nil {
		return nil, err
	}

	if j.deviceEpoch == 0 {
		j.deviceEpoch = rawEvent.Time
		j.wallclockEpoch = time.Now()
	}

	return &Event{
		Time:   j.wallclockEpoch.Add(time.Duration(rawEvent.Time-j.deviceEpoch) * time.Millisecond),
		Value:  rawEvent.Value,
		Type:   EventType(rawEvent.Type &^ eventTypeInit),
		Number: rawEvent.Number,
	}, nil
}

func (j *Joystick) Close() error {
	return j.device.Close()
}

// AxisMax is the magnitude reported at full deflection.
const AxisMax = 32767

// Normalize scales a raw axis value to [-1, 1].
func Normalize(value int16) float64 {
	return math.Max(-1, math.Min(1, float64(value)/AxisMax))
}

// State tracks the latest value of every axis and button.
type State struct {
	axes    map[uint8]int16
	buttons map[uint8]bool
}

func NewState() *State {
	return &State{
		axes:    map[uint8]int16{},
		buttons: map[uint8]bool{},
	}
}

// Apply records e.  For buttons it reports whether this was a press, as
// opposed to a release or an axis move.
func (s *State) Apply(e *Event) (pressed bool) {
	switch e.Type {
	case EventTypeAxis:
		s.axes[e.Number] = e.Value
	case EventTypeButton:
		down := e.Value != 0
		pressed = down && !s.buttons[e.Number]
		s.buttons[e.Number] = down
	}
	return
}

// Axis is the normalised position of axis n, 0 if it hasn't moved yet.
func (s *State) Axis(n uint8) float64 {
	return Normalize(s.axes[n])
}

func (s *State) RawAxis(n uint8) int16 {
	return s.axes[n]
}

func (s *State) Button(n uint8) bool {
	return s.buttons[n]
}
