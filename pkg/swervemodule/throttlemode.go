package swervemodule

import (
	"fmt"

	"github.com/pkg/errors"
)

// ThrottleMode selects how a module's drive speed is commanded.
type ThrottleMode int

const (
	// ThrottleVelocity uses the controller's closed-loop velocity mode.
	ThrottleVelocity ThrottleMode = iota
	// ThrottleOutput sends the speed as open-loop output.
	ThrottleOutput
)

func (m ThrottleMode) String() string {
	switch m {
	case ThrottleVelocity:
		return "velocity"
	case ThrottleOutput:
		return "output"
	}
	return fmt.Sprintf("ThrottleMode(%d)", int(m))
}

func ParseThrottleMode(s string) (ThrottleMode, error) {
	switch s {
	case "velocity":
		return ThrottleVelocity, nil
	case "output":
		return ThrottleOutput, nil
	}
	return 0, errors.Errorf("unknown throttle mode %q (want velocity or output)", s)
}

func (m ThrottleMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ThrottleMode) UnmarshalText(text []byte) error {
	parsed, err := ParseThrottleMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m ThrottleMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

func (m *ThrottleMode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}
