package schemas

import (
	"path/filepath"
	"strings"
	"time"
)

// MediaInfo contains detected media properties
type MediaInfo struct {
	Format       FormatInfo    `json:"format"`
	VideoStreams []VideoStream `json:"video_streams,omitempty"`
	AudioStreams []AudioStream `json:"audio_streams,omitempty"`
}

// FormatInfo contains format-level information
type FormatInfo struct {
	Filename  string        `json:"filename,omitempty"`
	Format    string        `json:"format,omitempty"`
	Duration  time.Duration `json:"duration"`
	Size      int64         `json:"size"`
	BitRate   int64         `json:"bit_rate,omitempty"`
	StartTime time.Duration `json:"start_time,omitempty"`
}

// VideoStream represents a video stream
type VideoStream struct {
	Index       int           `json:"index"`
	Codec       string        `json:"codec"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	FrameRate   float64       `json:"frame_rate"`
	PixelFormat string        `json:"pixel_format,omitempty"`
	BitRate     int64         `json:"bit_rate,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// AudioStream represents an audio stream
type AudioStream struct {
	Index      int           `json:"index"`
	Codec      string        `json:"codec"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitRate    int64         `json:"bit_rate,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Dimensions is the summary the media operations work from.
type Dimensions struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	HasAudio bool    `json:"has_audio"`
}

// FallbackDimensions is reported when a file cannot be probed.
var FallbackDimensions = Dimensions{Width: 1, Height: 1}

// Summary reduces MediaInfo to width, height, duration and audio presence.
// The first video stream supplies the dimensions.
func (m *MediaInfo) Summary() Dimensions {
	d := Dimensions{
		Duration: m.Format.Duration.Seconds(),
		HasAudio: len(m.AudioStreams) > 0,
	}
	if len(m.VideoStreams) > 0 {
		v := m.VideoStreams[0]
		d.Width, d.Height = v.Width, v.Height
		if d.Duration == 0 {
			d.Duration = v.Duration.Seconds()
		}
	}
	if d.Width <= 0 || d.Height <= 0 {
		d.Width, d.Height = 1, 1
	}
	return d
}

// Kind classifies media by file extension.
type Kind string

const (
	KindImage    Kind = "image"
	KindAnimated Kind = "animated"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindUnknown  Kind = "unknown"
)

var extKinds = map[string]Kind{
	".png": KindImage, ".jpg": KindImage, ".jpeg": KindImage, ".webp": KindImage,
	".bmp": KindImage, ".tif": KindImage, ".tiff": KindImage,
	".gif": KindAnimated,
	".mp4": KindVideo, ".mov": KindVideo, ".mkv": KindVideo, ".webm": KindVideo,
	".avi": KindVideo, ".m4v": KindVideo, ".flv": KindVideo,
	".mp3": KindAudio, ".wav": KindAudio, ".ogg": KindAudio, ".m4a": KindAudio,
	".flac": KindAudio, ".aac": KindAudio, ".opus": KindAudio,
}

// KindOf classifies a path by its extension.
func KindOf(path string) Kind {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return k
	}
	return KindUnknown
}

// IsStill reports whether path names a single-frame image format.
func IsStill(path string) bool {
	return KindOf(path) == KindImage
}

// HasVideo reports whether the extension carries a picture track.
func (k Kind) HasVideo() bool {
	return k == KindVideo || k == KindAnimated || k == KindImage
}
