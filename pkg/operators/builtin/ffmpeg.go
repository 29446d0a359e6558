package builtin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
	"github.com/chicogong/tagforge/pkg/workspace"
)

// evenScale keeps yuv420p encoders happy with odd dimensions.
const evenScale = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// job assembles a single ffmpeg invocation: inputs with their options, a
// filter_complex graph, stream maps and output options.
type job struct {
	inputs  []string
	nInputs int
	filters []string
	maps    []string
	opts    []string
}

// input adds path with per-input options and returns its index.
func (j *job) input(path string, opts ...string) int {
	j.inputs = append(j.inputs, opts...)
	j.inputs = append(j.inputs, "-i", path)
	j.nInputs++
	return j.nInputs - 1
}

// lavfi adds a generated input such as anullsrc or color.
func (j *job) lavfi(src string, opts ...string) int {
	return j.input(src, append(opts, "-f", "lavfi")...)
}

func (j *job) filter(chain string, args ...interface{}) {
	if len(args) > 0 {
		chain = fmt.Sprintf(chain, args...)
	}
	j.filters = append(j.filters, chain)
}

func (j *job) mapStream(labels ...string) {
	for _, l := range labels {
		j.maps = append(j.maps, "-map", l)
	}
}

func (j *job) output(opts ...string) {
	j.opts = append(j.opts, opts...)
}

func (j *job) args(dst string) []string {
	args := append([]string{}, j.inputs...)
	if len(j.filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(j.filters, ";"))
	}
	args = append(args, j.maps...)
	args = append(args, j.opts...)
	return append(args, dst)
}

func (j *job) run(ctx context.Context, env *operators.Env, dst string) error {
	return ffmpeg(ctx, env, j.args(dst)...)
}

// ffmpeg runs the binary under the session's process tracking.
func ffmpeg(ctx context.Context, env *operators.Env, args ...string) error {
	res := env.Runner.FFmpeg(ctx, env.Session, args...)
	if !res.OK {
		return errors.New(res.Output)
	}
	return nil
}

// encodeArgs picks codecs for a container.
func encodeArgs(ext string) []string {
	switch ext {
	case ".mp4", ".mov", ".m4v":
		return []string{"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-movflags", "+faststart"}
	case ".mkv":
		return []string{"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p", "-c:a", "aac"}
	case ".webm":
		return []string{"-c:v", "libvpx-vp9", "-b:v", "0", "-crf", "32", "-c:a", "libopus"}
	case ".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tif", ".tiff":
		return []string{"-frames:v", "1", "-update", "1"}
	}
	return nil
}

// isStillExt reports whether ext is a single-frame image container.
func isStillExt(ext string) bool {
	return schemas.KindOf("x"+ext) == schemas.KindImage
}

// paletteGraph turns a video chain into a GIF palette pass.
func paletteGraph(in, chain string) string {
	if chain != "" {
		chain += ","
	}
	return fmt.Sprintf("%s%ssplit[pg0][pg1];[pg0]palettegen[pal];[pg1][pal]paletteuse", in, chain)
}

// filters holds per-stream filter chains for filterMedia.
type filters struct {
	video string
	audio string
}

// filterMedia writes a copy of e with the chains applied, in e's own
// container. Missing chains pass that stream through.
func filterMedia(ctx context.Context, env *operators.Env, e *workspace.Entry, f filters) (string, error) {
	kind := kindOf(e)
	ext := extOf(e)

	switch {
	case kind == schemas.KindAudio && f.audio == "":
		return "", fmt.Errorf("'%s' is audio; an image or video is required", e.Key)
	case kind != schemas.KindAudio && kind != schemas.KindVideo && f.video == "":
		return "", fmt.Errorf("'%s' has no audio track", e.Key)
	}

	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return "", err
	}

	j := &job{}
	j.input(e.Path)
	switch kind {
	case schemas.KindImage:
		j.output("-vf", f.video)
		j.output(encodeArgs(ext)...)
	case schemas.KindAnimated:
		j.filter(paletteGraph("[0:v]", f.video))
	case schemas.KindAudio:
		j.output("-af", f.audio)
	default:
		if f.video != "" {
			j.output("-vf", f.video+","+evenScale)
			j.output(encodeArgs(ext)...)
		} else {
			j.output("-c:v", "copy")
		}
		if f.audio != "" {
			j.output("-af", f.audio)
		} else {
			j.output("-c:a", "copy")
		}
	}

	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return "", err
	}
	return dst, nil
}

// ff formats a float for a filter argument.
func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escapeFilter quotes a value for use inside a filtergraph option.
func escapeFilter(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `,`, `\,`, `;`, `\;`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
