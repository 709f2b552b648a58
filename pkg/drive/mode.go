package drive

import (
	"fmt"

	"github.com/pkg/errors"
)

type Mode int

const (
	// FieldRelative drives relative to the field using the heading sensor, so
	// pushing the stick forward always moves away from the driver.
	FieldRelative Mode = iota
	RobotRelative
)

func (m Mode) String() string {
	switch m {
	case FieldRelative:
		return "field"
	case RobotRelative:
		return "robot"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "field":
		return FieldRelative, nil
	case "robot":
		return RobotRelative, nil
	}
	return 0, errors.Errorf("unknown drive mode %q (want field or robot)", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}
