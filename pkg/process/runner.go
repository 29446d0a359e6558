// Package process supervises external tool invocations (ffmpeg, ffprobe).
//
// Every call runs under a deadline and a process-wide concurrency bound.
// On deadline or cancellation the child receives SIGTERM and, after a grace
// period, SIGKILL.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	LabelFFmpeg  = "FFmpeg"
	LabelFFprobe = "FFprobe"

	// maxErrorText bounds the stderr excerpt carried in a failed Result.
	maxErrorText = 1200
)

// Tools locates the media binaries and their deadlines.
type Tools struct {
	FFmpeg         string
	FFprobe        string
	FFmpegTimeout  time.Duration
	FFprobeTimeout time.Duration
}

// DefaultTools resolves binaries from PATH with 60s/20s deadlines.
func DefaultTools() Tools {
	return Tools{
		FFmpeg:         "ffmpeg",
		FFprobe:        "ffprobe",
		FFmpegTimeout:  60 * time.Second,
		FFprobeTimeout: 20 * time.Second,
	}
}

// Spec describes one invocation.
type Spec struct {
	Label   string
	Path    string
	Args    []string
	Timeout time.Duration
	Dir     string
}

// Result is the outcome of a supervised run. Output holds stdout on success
// and a labelled error message otherwise.
type Result struct {
	OK       bool
	Output   string
	Stdout   []byte
	TimedOut bool
	Elapsed  time.Duration
}

// Err converts a failed Result into an error.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return errors.New(r.Output)
}

// Runner launches and supervises subprocesses.
type Runner struct {
	tools  Tools
	sem    *semaphore.Weighted
	grace  time.Duration
	logger *zap.Logger
	parser *ProgressParser
}

// Option configures a Runner.
type Option func(*Runner)

// WithTools overrides binary paths and deadlines.
func WithTools(t Tools) Option {
	return func(r *Runner) {
		if t.FFmpeg != "" {
			r.tools.FFmpeg = t.FFmpeg
		}
		if t.FFprobe != "" {
			r.tools.FFprobe = t.FFprobe
		}
		if t.FFmpegTimeout > 0 {
			r.tools.FFmpegTimeout = t.FFmpegTimeout
		}
		if t.FFprobeTimeout > 0 {
			r.tools.FFprobeTimeout = t.FFprobeTimeout
		}
	}
}

// WithMaxConcurrent bounds the number of simultaneous children.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithKillGrace sets the delay between SIGTERM and SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner. Defaults: DefaultTools, 4 concurrent
// children, 2s kill grace.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		tools:  DefaultTools(),
		sem:    semaphore.NewWeighted(4),
		grace:  2 * time.Second,
		logger: zap.NewNop(),
		parser: NewProgressParser(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tools returns the configured binaries.
func (r *Runner) Tools() Tools {
	return r.tools
}

// FFmpeg runs ffmpeg with the standard non-interactive prefix.
func (r *Runner) FFmpeg(ctx context.Context, tracker Tracker, args ...string) Result {
	full := append([]string{"-hide_banner", "-nostdin", "-y"}, args...)
	return r.Run(ctx, tracker, Spec{
		Label:   LabelFFmpeg,
		Path:    r.tools.FFmpeg,
		Args:    full,
		Timeout: r.tools.FFmpegTimeout,
	})
}

// FFprobe runs ffprobe.
func (r *Runner) FFprobe(ctx context.Context, tracker Tracker, args ...string) Result {
	return r.Run(ctx, tracker, Spec{
		Label:   LabelFFprobe,
		Path:    r.tools.FFprobe,
		Args:    args,
		Timeout: r.tools.FFprobeTimeout,
	})
}

// Run executes spec. It never returns a Go error: every failure is folded
// into a Result whose Output starts with the spec's Label.
func (r *Runner) Run(ctx context.Context, tracker Tracker, spec Spec) Result {
	if spec.Label == "" {
		spec.Label = spec.Path
	}
	if tracker == nil {
		tracker = nopTracker{}
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{Output: fmt.Sprintf("%s error: %v", spec.Label, err)}
	}
	defer r.sem.Release(1)

	runCtx := ctx
	cancel := func() {}
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	configure(cmd)
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = r.grace

	var stdout bytes.Buffer
	sink := newStderrSink(r.parser, r.logger.With(zap.String("tool", spec.Label)))
	cmd.Stdout = &stdout
	cmd.Stderr = sink

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{Output: fmt.Sprintf("%s error: %v", spec.Label, err)}
	}

	h := newHandle(spec.Label, cmd)
	tracker.Track(h)
	r.logger.Debug("process started",
		zap.String("tool", spec.Label),
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("args", spec.Args))

	waitErr := cmd.Wait()
	close(h.done)
	tracker.Untrack(h)

	res := Result{
		Stdout:  stdout.Bytes(),
		Elapsed: time.Since(start),
	}

	switch {
	case waitErr == nil:
		res.OK = true
		res.Output = strings.ToValidUTF8(stdout.String(), string(utf8.RuneError))
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.Output = fmt.Sprintf("%s timed out after %ss", spec.Label,
			strconv.FormatFloat(spec.Timeout.Seconds(), 'f', -1, 64))
		r.logger.Warn("process timed out", zap.String("tool", spec.Label), zap.Duration("timeout", spec.Timeout))
	case ctx.Err() != nil:
		res.Output = fmt.Sprintf("%s cancelled: %v", spec.Label, ctx.Err())
	default:
		detail := sink.tail()
		if detail == "" {
			detail = waitErr.Error()
		}
		res.Output = fmt.Sprintf("%s error: %s", spec.Label, detail)
	}

	r.logger.Debug("process exited",
		zap.String("tool", spec.Label),
		zap.Bool("ok", res.OK),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

// stderrSink splits stderr into lines, logs progress lines at debug and
// keeps the remaining text for error reporting.
type stderrSink struct {
	parser  *ProgressParser
	logger  *zap.Logger
	partial []byte
	kept    []string
	keptLen int
}

func newStderrSink(p *ProgressParser, l *zap.Logger) *stderrSink {
	return &stderrSink{parser: p, logger: l}
}

func (s *stderrSink) Write(p []byte) (int, error) {
	s.partial = append(s.partial, p...)
	for {
		i := bytes.IndexAny(s.partial, "\r\n")
		if i < 0 {
			break
		}
		s.line(string(s.partial[:i]))
		s.partial = s.partial[i+1:]
	}
	return len(p), nil
}

func (s *stderrSink) line(line string) {
	line = strings.TrimSpace(strings.ToValidUTF8(line, string(utf8.RuneError)))
	if line == "" {
		return
	}
	if prog := s.parser.ParseLine(line); prog != nil {
		s.logger.Debug("progress",
			zap.Int("frame", prog.Frame),
			zap.Duration("time", prog.Time),
			zap.Float64("speed", prog.Speed))
		return
	}
	s.kept = append(s.kept, line)
	s.keptLen += len(line) + 1
	for s.keptLen > 4*maxErrorText && len(s.kept) > 1 {
		s.keptLen -= len(s.kept[0]) + 1
		s.kept = s.kept[1:]
	}
}

// tail returns the last lines of non-progress output, bounded in size.
func (s *stderrSink) tail() string {
	if len(s.partial) > 0 {
		s.line(string(s.partial))
		s.partial = nil
	}
	text := strings.Join(s.kept, "\n")
	if len(text) > maxErrorText {
		text = text[len(text)-maxErrorText:]
		if i := strings.IndexByte(text, '\n'); i >= 0 && i < len(text)-1 {
			text = text[i+1:]
		}
		text = strings.ToValidUTF8(text, "")
	}
	return text
}
