package primitives

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"
	"github.com/ncruces/go-strftime"

	"github.com/chicogong/tagforge/pkg/schemas"
	"github.com/chicogong/tagforge/pkg/tags"
)

const defaultTimeFormat = "%Y-%m-%d %H:%M:%S"

// maxBusinessSpan bounds {businessdays:} iteration.
const maxBusinessSpan = 100 * 366

func timePrimitives() []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "timestamp", Aliases: []string{"time", "date"}, Usage: "{timestamp:format|timezone|offset}", Fn: timestamp},
		{Name: "now", Aliases: []string{"unix"}, Usage: "{now}", Fn: func(_ context.Context, tc *tags.Context, _ *tags.Call) (any, error) {
			return strconv.FormatInt(tc.Now().Unix(), 10), nil
		}},
		{Name: "duration", Usage: "{duration:start|end|format|precision}", Fn: duration},
		{Name: "countdown", Usage: "{countdown:target|format|timezone|past message}", Fn: countdown},
		{Name: "parsetime", Usage: "{parsetime:text|timezone|format}", Fn: parseTimePrimitive},
		{Name: "businessdays", Usage: "{businessdays:start|end|holidays}", Fn: businessDays},
	}
}

// location accepts IANA names and UTC offsets such as "+05:30" or "-8".
func location(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}
	if name[0] == '+' || name[0] == '-' {
		h, m, _ := strings.Cut(name[1:], ":")
		hours, err := strconv.Atoi(h)
		minutes := 0
		if err == nil && m != "" {
			minutes, err = strconv.Atoi(m)
		}
		if err != nil || hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("invalid timezone '%s'", name)
		}
		secs := hours*3600 + minutes*60
		if name[0] == '-' {
			secs = -secs
		}
		return time.FixedZone("UTC"+name, secs), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone '%s'", name)
	}
	return loc, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// parseTime reads "now", unix seconds (or milliseconds) and the common
// date layouts. Clock times such as "18:30" refer to today.
func parseTime(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return now.In(loc), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 || n < -1e12 {
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{"15:04:05", "15:04", "3:04pm", "3pm"} {
		if t, err := time.ParseInLocation(layout, strings.ToLower(s), loc); err == nil {
			y, m, d := now.In(loc).Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time '%s'", s)
}

// parseOffset accepts anything schemas.ParseDuration does plus days and
// weeks such as "3d" or "-1w".
func parseOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if num, ok := strings.CutSuffix(s, suffix); ok {
			if v, err := strconv.ParseFloat(num, 64); err == nil {
				return time.Duration(v * float64(unit)), nil
			}
		}
	}
	d, err := schemas.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid offset '%s'", s)
	}
	return d, nil
}

func formatTime(t time.Time, format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		return strftime.Format(defaultTimeFormat, t)
	case "unix":
		return strconv.FormatInt(t.Unix(), 10)
	case "iso":
		return t.Format(time.RFC3339)
	case "relative":
		return humanize.Time(t)
	}
	return strftime.Format(format, t)
}

func timestamp(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	loc, err := location(call.Part(1))
	if err != nil {
		return nil, err
	}
	offset, err := parseOffset(call.Part(2))
	if err != nil {
		return nil, err
	}
	return formatTime(tc.Now().Add(offset).In(loc), call.Part(0)), nil
}

var durationUnits = []struct {
	name string
	d    time.Duration
}{
	{"year", 365 * 24 * time.Hour},
	{"week", 7 * 24 * time.Hour},
	{"day", 24 * time.Hour},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
}

// humanDuration spells d out with at most precision units, for example
// "2 days, 3 hours".
func humanDuration(d time.Duration, precision int) string {
	sign := ""
	if d < 0 {
		sign, d = "-", -d
	}
	var parts []string
	for _, u := range durationUnits {
		if len(parts) >= precision {
			break
		}
		n := d / u.d
		if n == 0 {
			continue
		}
		d -= n * u.d
		parts = append(parts, plural(int64(n), u.name))
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return sign + strings.Join(parts, ", ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return humanize.Comma(n) + " " + unit + "s"
}

// formatDuration renders d as "full" (default), "clock", or a single unit
// ("seconds", "minutes", "hours", "days", "weeks") with precision
// decimals.
func formatDuration(d time.Duration, format string, precision int) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", "full", "human":
		if precision <= 0 {
			precision = 2
		}
		return humanDuration(d, precision), nil
	case "clock":
		sign := ""
		if d < 0 {
			sign, d = "-", -d
		}
		h := int64(d / time.Hour)
		m := int64(d/time.Minute) % 60
		s := int64(d/time.Second) % 60
		return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s), nil
	default:
		unit, ok := map[string]time.Duration{
			"seconds": time.Second,
			"minutes": time.Minute,
			"hours":   time.Hour,
			"days":    24 * time.Hour,
			"weeks":   7 * 24 * time.Hour,
		}[f]
		if !ok {
			return "", fmt.Errorf("unknown format '%s'", format)
		}
		p := math.Pow(10, float64(max(0, min(precision, 6))))
		return formatNumber(math.Round(float64(d)/float64(unit)*p) / p), nil
	}
}

func optionalInt(s string, def int) (int, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return parseInt(s, "precision")
}

func duration(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() == 0 {
		return nil, usage("{duration:start|end|format|precision}")
	}
	now := tc.Now()
	start, err := parseTime(call.Part(0), time.UTC, now)
	if err != nil {
		return nil, err
	}
	end, err := parseTime(call.Part(1), time.UTC, now)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(call.Part(2)), "relative") {
		return humanize.RelTime(start, end, "earlier", "later"), nil
	}
	precision, err := optionalInt(call.Part(3), 2)
	if err != nil {
		return nil, err
	}
	return formatDuration(end.Sub(start), call.Part(2), precision)
}

func countdown(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() == 0 {
		return nil, usage("{countdown:target|format|timezone|past message}")
	}
	loc, err := location(call.Part(2))
	if err != nil {
		return nil, err
	}
	now := tc.Now()
	target, err := parseTime(call.Part(0), loc, now)
	if err != nil {
		return nil, err
	}
	if !target.After(now) {
		if msg := call.Part(3); msg != "" {
			return msg, nil
		}
		return "The time has passed", nil
	}
	if strings.EqualFold(strings.TrimSpace(call.Part(1)), "relative") {
		return humanize.RelTime(target, now, "ago", "from now"), nil
	}
	return formatDuration(target.Sub(now), call.Part(1), 2)
}

// parseTimePrimitive returns unix seconds. An optional strftime format
// describes the input.
func parseTimePrimitive(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	loc, err := location(call.Part(1))
	if err != nil {
		return nil, err
	}
	var t time.Time
	if f := strings.TrimSpace(call.Part(2)); f != "" {
		layout, err := strftime.Layout(f)
		if err != nil {
			return nil, fmt.Errorf("invalid format '%s'", f)
		}
		t, err = time.ParseInLocation(layout, strings.TrimSpace(call.Part(0)), loc)
		if err != nil {
			return nil, fmt.Errorf("'%s' does not match '%s'", strings.TrimSpace(call.Part(0)), f)
		}
	} else if t, err = parseTime(call.Part(0), loc, tc.Now()); err != nil {
		return nil, err
	}
	return strconv.FormatInt(t.Unix(), 10), nil
}

// businessDays counts weekdays in [start, end) that are not holidays.
// Holidays are a JSON array or a comma separated list of dates.
func businessDays(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	if call.NumParts() < 2 {
		return nil, usage("{businessdays:start|end|holidays}")
	}
	now := tc.Now()
	start, err := parseTime(call.Part(0), time.UTC, now)
	if err != nil {
		return nil, err
	}
	end, err := parseTime(call.Part(1), time.UTC, now)
	if err != nil {
		return nil, err
	}
	holidays, err := parseHolidays(call.Part(2), now)
	if err != nil {
		return nil, err
	}

	sign := 1
	if end.Before(start) {
		start, end, sign = end, start, -1
	}
	day := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	start, end = day(start), day(end)
	if end.Sub(start) > maxBusinessSpan*24*time.Hour {
		return nil, errors.New("range too large")
	}

	n := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if holidays[d.Format(time.DateOnly)] {
			continue
		}
		n++
	}
	return strconv.Itoa(sign * n), nil
}

func parseHolidays(s string, now time.Time) (map[string]bool, error) {
	s = strings.TrimSpace(s)
	out := map[string]bool{}
	if s == "" {
		return out, nil
	}
	var list []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, errors.New("holidays must be a JSON array of dates")
		}
	} else {
		list = strings.Split(s, ",")
	}
	for _, h := range list {
		t, err := parseTime(h, time.UTC, now)
		if err != nil {
			return nil, err
		}
		out[t.Format(time.DateOnly)] = true
	}
	return out, nil
}
