package schemas

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timecodeRe = regexp.MustCompile(`^(?:(\d{1,2}):)?(\d{1,2}):(\d{2})(?:\.(\d{1,3}))?$`)
	isoPartRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)([HMS])`)
)

// Duration wraps time.Duration so it decodes from JSON strings and TOML text.
type Duration struct {
	time.Duration
}

// MarshalJSON converts Duration to JSON string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON parses Duration from multiple formats
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ParseDuration parses duration from multiple formats:
// - Go duration: "1h30m", "90s"
// - bare seconds: "2", "1.5"
// - Timecode: "01:30:00", "05:30", "00:05:30.500"
// - ISO 8601: "PT1H30M"
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid duration format: %s", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	if d, err := parseTimecode(s); err == nil {
		return d, nil
	}

	if strings.HasPrefix(s, "PT") {
		return parseISO8601(s)
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ParseSeconds is ParseDuration expressed in float seconds.
func ParseSeconds(s string) (float64, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

// FormatSeconds renders seconds the way ffmpeg expects them on the command line.
func FormatSeconds(secs float64) string {
	return strconv.FormatFloat(secs, 'f', 3, 64)
}

// parseTimecode parses "HH:MM:SS", "MM:SS" and an optional ".mmm" suffix.
func parseTimecode(s string) (time.Duration, error) {
	matches := timecodeRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid timecode format")
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])
	if minutes > 59 && matches[1] != "" || seconds > 59 {
		return 0, fmt.Errorf("invalid timecode format")
	}

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second

	if matches[4] != "" {
		ms := matches[4]
		for len(ms) < 3 {
			ms += "0"
		}
		millis, _ := strconv.Atoi(ms)
		d += time.Duration(millis) * time.Millisecond
	}

	return d, nil
}

// parseISO8601 parses "PT1H30M" format
func parseISO8601(s string) (time.Duration, error) {
	rest := strings.TrimPrefix(s, "PT")
	matches := isoPartRe.FindAllStringSubmatch(rest, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid ISO 8601 format: %s", s)
	}

	var d time.Duration
	for _, match := range matches {
		value, _ := strconv.ParseFloat(match[1], 64)
		switch match[2] {
		case "H":
			d += time.Duration(value * float64(time.Hour))
		case "M":
			d += time.Duration(value * float64(time.Minute))
		case "S":
			d += time.Duration(value * float64(time.Second))
		}
	}
	return d, nil
}
