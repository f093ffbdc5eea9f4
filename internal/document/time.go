package document

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var unitTime = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseTime parses a time string: plain digits are seconds, otherwise
// h/m/s components in that order ("1h30m", "45s"). The empty string is 0.
func ParseTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative time %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}

	m := unitTime.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q: want seconds or h/m/s units like \"1h30m\"", s)
	}
	var total time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}

// FormatTime renders d compactly: "1h30m", "45s", "0s". Sub-second
// durations fall back to time.Duration's own format.
func FormatTime(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d%time.Second != 0 || d < 0 {
		return d.String()
	}
	var b strings.Builder
	h, rem := d/time.Hour, d%time.Hour
	m, rem := rem/time.Minute, rem%time.Minute
	s := rem / time.Second
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s > 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}

// TimeValue is a document time field: a number of seconds or a unit string.
type TimeValue time.Duration

// Duration returns the value as a time.Duration.
func (t TimeValue) Duration() time.Duration { return time.Duration(t) }

// UnmarshalYAML accepts integers, floats and unit strings.
func (t *TimeValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: time value must be a number or string", node.Line)
	}
	switch node.Tag {
	case "!!int":
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("line %d: invalid time %q", node.Line, node.Value)
		}
		*t = TimeValue(time.Duration(n) * time.Second)
	case "!!float":
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("line %d: invalid time %q", node.Line, node.Value)
		}
		*t = TimeValue(time.Duration(math.Round(f * float64(time.Second))))
	default:
		d, err := ParseTime(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*t = TimeValue(d)
	}
	return nil
}

// seconds is the encoded form: whole seconds as an integer, otherwise a float.
func (t TimeValue) seconds() any {
	d := time.Duration(t)
	if d%time.Second == 0 {
		return int64(d / time.Second)
	}
	return d.Seconds()
}

// MarshalYAML writes the value as seconds.
func (t TimeValue) MarshalYAML() (any, error) {
	return t.seconds(), nil
}

// MarshalJSON writes the value as seconds.
func (t TimeValue) MarshalJSON() ([]byte, error) {
	switch v := t.seconds().(type) {
	case int64:
		return strconv.AppendInt(nil, v, 10), nil
	default:
		return strconv.AppendFloat(nil, v.(float64), 'f', -1, 64), nil
	}
}
