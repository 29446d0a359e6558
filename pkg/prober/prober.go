// Package prober reads media properties with ffprobe or, for still images,
// by decoding the image header.
package prober

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/chicogong/tagforge/pkg/process"
	"github.com/chicogong/tagforge/pkg/schemas"
)

// Prober probes media files.
type Prober struct {
	runner *process.Runner
	logger *zap.Logger
}

// ProberOption is a functional option for Prober
type ProberOption func(*Prober)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProberOption {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber creates a Prober that launches ffprobe through runner.
func NewProber(runner *process.Runner, opts ...ProberOption) *Prober {
	p := &Prober{
		runner: runner,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Probe runs ffprobe on filePath and returns its metadata.
func (p *Prober) Probe(ctx context.Context, tracker process.Tracker, filePath string) (*schemas.MediaInfo, error) {
	res := p.runner.FFprobe(ctx, tracker,
		"-v", "error",
		"-print_format", "json",
		"-show_entries", "format=filename,format_name,duration,size,bit_rate:stream=index,codec_type,codec_name,width,height,r_frame_rate,pix_fmt,sample_rate,channels,duration",
		filePath,
	)
	if !res.OK {
		return nil, res.Err()
	}

	return parseFFprobeOutput(res.Stdout)
}

// Inspect returns (width, height, duration, has_audio). Still images are
// measured from their header; everything else goes through ffprobe. Any
// failure yields schemas.FallbackDimensions.
func (p *Prober) Inspect(ctx context.Context, tracker process.Tracker, filePath string) schemas.Dimensions {
	if schemas.IsStill(filePath) {
		w, h, err := StillSize(filePath)
		if err == nil {
			return schemas.Dimensions{Width: w, Height: h}
		}
		p.logger.Debug("still header decode failed, trying ffprobe",
			zap.String("path", filePath), zap.Error(err))
	}

	info, err := p.Probe(ctx, tracker, filePath)
	if err != nil {
		p.logger.Debug("probe failed", zap.String("path", filePath), zap.Error(err))
		return schemas.FallbackDimensions
	}
	return info.Summary()
}

// StillSize decodes only the image header.
func StillSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// ffprobeOutput represents the raw JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`

	Width       int    `json:"width"`
	Height      int    `json:"height"`
	RFrameRate  string `json:"r_frame_rate"`
	PixelFormat string `json:"pix_fmt"`

	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`

	Duration string `json:"duration"`
}

func parseFFprobeOutput(data []byte) (*schemas.MediaInfo, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &schemas.MediaInfo{
		Format: schemas.FormatInfo{
			Filename: output.Format.Filename,
			Format:   output.Format.FormatName,
			Duration: parseDuration(output.Format.Duration),
			Size:     parseInt64(output.Format.Size),
			BitRate:  parseInt64(output.Format.BitRate),
		},
	}

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			info.VideoStreams = append(info.VideoStreams, schemas.VideoStream{
				Index:       stream.Index,
				Codec:       stream.CodecName,
				Width:       stream.Width,
				Height:      stream.Height,
				FrameRate:   parseFrameRate(stream.RFrameRate),
				PixelFormat: stream.PixelFormat,
				Duration:    parseDuration(stream.Duration),
			})
		case "audio":
			info.AudioStreams = append(info.AudioStreams, schemas.AudioStream{
				Index:      stream.Index,
				Codec:      stream.CodecName,
				SampleRate: int(parseInt64(stream.SampleRate)),
				Channels:   stream.Channels,
				Duration:   parseDuration(stream.Duration),
			})
		}
	}

	return info, nil
}

// parseDuration parses ffprobe's seconds-as-float; "N/A" and junk are 0.
func parseDuration(s string) time.Duration {
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFrameRate parses "30/1" or "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		rate, _ := strconv.ParseFloat(s, 64)
		return rate
	}

	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
