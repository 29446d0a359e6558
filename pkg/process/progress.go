package process

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress is one FFmpeg status line.
type Progress struct {
	Frame   int
	FPS     float64
	Time    time.Duration // position reached in the output
	Size    int64         // bytes written so far
	Bitrate float64       // kbit/s
	Speed   float64       // 1.0 = realtime
}

// ProgressParser recognizes FFmpeg's periodic "frame= ... speed=" lines.
type ProgressParser struct {
	frameRegex   *regexp.Regexp
	fpsRegex     *regexp.Regexp
	timeRegex    *regexp.Regexp
	sizeRegex    *regexp.Regexp
	bitrateRegex *regexp.Regexp
	speedRegex   *regexp.Regexp
}

// NewProgressParser creates a new progress parser
func NewProgressParser() *ProgressParser {
	return &ProgressParser{
		frameRegex:   regexp.MustCompile(`frame=\s*(\d+)`),
		fpsRegex:     regexp.MustCompile(`fps=\s*([\d.]+)`),
		timeRegex:    regexp.MustCompile(`time=\s*(\d{2}):(\d{2}):(\d{2})\.(\d{2})`),
		sizeRegex:    regexp.MustCompile(`size=\s*(\d+)(?:kB|KiB)`),
		bitrateRegex: regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`),
		speedRegex:   regexp.MustCompile(`speed=\s*([\d.]+)x`),
	}
}

// ParseLine returns nil unless line is a status line. Audio-only encodes
// report size= and time= without frame=.
func (pp *ProgressParser) ParseLine(line string) *Progress {
	if !strings.Contains(line, "frame=") && !(strings.Contains(line, "size=") && strings.Contains(line, "time=")) {
		return nil
	}

	progress := &Progress{}

	if m := pp.frameRegex.FindStringSubmatch(line); len(m) > 1 {
		progress.Frame, _ = strconv.Atoi(m[1])
	}
	if m := pp.fpsRegex.FindStringSubmatch(line); len(m) > 1 {
		progress.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := pp.timeRegex.FindStringSubmatch(line); len(m) > 4 {
		progress.Time = parseClock(m[1], m[2], m[3], m[4])
	}
	if m := pp.sizeRegex.FindStringSubmatch(line); len(m) > 1 {
		kb, _ := strconv.ParseInt(m[1], 10, 64)
		progress.Size = kb * 1024
	}
	if m := pp.bitrateRegex.FindStringSubmatch(line); len(m) > 1 {
		progress.Bitrate, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := pp.speedRegex.FindStringSubmatch(line); len(m) > 1 {
		progress.Speed, _ = strconv.ParseFloat(m[1], 64)
	}

	return progress
}

func parseClock(h, m, s, cs string) time.Duration {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	centis, _ := strconv.Atoi(cs)

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(centis)*10*time.Millisecond
}
