package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads from YAML as either a Go duration
// string ("30s", "1h30m") or a bare integer number of milliseconds, the unit
// outbound call timeouts are expressed in.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}

	if node.Value == "" || node.Tag == "!!null" {
		*d = 0
		return nil
	}

	if node.Tag == "!!int" {
		ms, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Milliseconds returns the duration in whole milliseconds.
func (d Duration) Milliseconds() int64 {
	return time.Duration(d).Milliseconds()
}
