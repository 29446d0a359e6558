package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
	"github.com/chicogong/tagforge/pkg/workspace"
)

// stillSeconds is the length of video synthesized from a still image.
const stillSeconds = 3.0

// Formats lists the containers convert and render accept.
var Formats = []string{
	"png", "jpg", "jpeg", "webp", "bmp", "tiff", "gif",
	"mp4", "webm", "mov", "mkv",
	"mp3", "wav", "ogg", "m4a", "flac", "opus",
}

// renderFlags are the ffmpeg output options render passes through. The
// value says whether the flag takes an argument.
var renderFlags = map[string]bool{
	"-crf": true, "-preset": true, "-b:v": true, "-b:a": true, "-r": true,
	"-t": true, "-ss": true, "-pix_fmt": true, "-q:v": true, "-q:a": true,
	"-ac": true, "-ar": true, "-loop": true, "-tune": true, "-profile:v": true,
	"-an": false, "-vn": false, "-shortest": false,
}

func init() {
	operators.Register(&ConvertOperator{base{operators.OperatorDescriptor{
		Name:        "convert",
		Category:    operators.CategoryOutput,
		Description: "Re-encode media to another container",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			{Name: "format", Type: operators.TypeString, Required: true, Validation: operators.OneOf(Formats...)},
			key("output_key"),
		},
	}}})
	operators.Register(&RenderOperator{base{operators.OperatorDescriptor{
		Name:        "render",
		Category:    operators.CategoryOutput,
		Description: "Emit a cached entry as an output file",
		Parameters: []operators.ParameterDescriptor{
			key("media_key"),
			{Name: "format", Type: operators.TypeString, Default: "", Validation: operators.OneOf(append([]string{""}, Formats...)...)},
			str("filename", ""),
			{Name: "extra_args", Type: operators.TypeList},
		},
		Variadic: "extra_args",
	}}})
	operators.Register(&CloneOperator{base{operators.OperatorDescriptor{
		Name:        "clone",
		Category:    operators.CategoryOutput,
		Description: "Copy an entry under a new key",
		Parameters:  []operators.ParameterDescriptor{key("input_key"), key("output_key")},
	}}})
}

// ConvertOperator re-encodes media.
type ConvertOperator struct{ base }

func (o *ConvertOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	ext := formatExt(p.String("format"))
	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}
	if err := transcode(ctx, env, in, ext, dst, nil); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// RenderOperator emits a cached entry. Without a format change, filename
// or extra options the file is copied as is.
type RenderOperator struct{ base }

func (o *RenderOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("media_key"))
	if err != nil {
		return nil, err
	}
	extra, err := checkRenderArgs(p.Strings("extra_args"))
	if err != nil {
		return nil, err
	}

	name := sanitizeFilename(p.String("filename"))
	ext := extOf(in)
	switch {
	case p.String("format") != "":
		ext = formatExt(p.String("format"))
	case filepath.Ext(name) != "":
		ext = strings.ToLower(filepath.Ext(name))
	}

	var dst string
	if name != "" {
		dst, err = env.Session.AllocateNamed(strings.TrimSuffix(name, filepath.Ext(name)) + ext)
	} else {
		dst, err = env.Session.Allocate(ext)
	}
	if err != nil {
		return nil, err
	}

	if ext == extOf(in) && len(extra) == 0 && schemas.KindOf(in.Path) != schemas.KindUnknown {
		err = copyFile(in.Path, dst)
	} else {
		err = transcode(ctx, env, in, ext, dst, extra)
	}
	if err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	if info, statErr := os.Stat(dst); statErr != nil || info.Size() == 0 {
		env.Session.Release(dst)
		return nil, fmt.Errorf("rendered file is empty")
	}
	return &operators.Result{Rendered: dst}, nil
}

// CloneOperator duplicates an entry.
type CloneOperator struct{ base }

func (o *CloneOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	dst, err := env.Session.Allocate(filepath.Ext(in.Path))
	if err != nil {
		return nil, err
	}
	if err := copyFile(in.Path, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	res, err := produce(env, o.Name(), p.String("output_key"), dst)
	if err == nil && in.Info != nil {
		info := *in.Info
		if e, ok := env.Session.Cache().Get(res.Key); ok {
			e.Info = &info
		}
	}
	return res, err
}

// transcode writes e to dst in the container named by ext.
func transcode(ctx context.Context, env *operators.Env, e *workspace.Entry, ext, dst string, extra []string) error {
	from := kindOf(e)
	to := schemas.KindOf("x" + ext)

	j := &job{}
	switch {
	case to == schemas.KindImage:
		if err := needVisual(e); err != nil {
			return err
		}
		j.input(e.Path)
		j.output(encodeArgs(ext)...)
	case to == schemas.KindAnimated:
		if err := needVisual(e); err != nil {
			return err
		}
		j.input(e.Path)
		j.filter(paletteGraph("[0:v]", ""))
		j.output("-loop", "0")
	case to == schemas.KindAudio:
		j.input(e.Path)
		j.output("-vn")
	case from == schemas.KindImage:
		j.input(e.Path, "-loop", "1", "-t", ff(stillSeconds))
		j.output("-vf", evenScale)
		j.output(encodeArgs(ext)...)
	case from == schemas.KindAudio:
		// Audio into a video container gets a black picture.
		j.input(e.Path)
		j.lavfi("color=c=black:s=640x360:r=30")
		j.mapStream("1:v", "0:a")
		j.output("-shortest")
		j.output(encodeArgs(ext)...)
	default:
		j.input(e.Path)
		j.output("-vf", evenScale)
		j.output(encodeArgs(ext)...)
	}
	j.output(extra...)
	return j.run(ctx, env, dst)
}

func formatExt(format string) string {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "jpeg" {
		format = "jpg"
	}
	return "." + format
}

func checkRenderArgs(args []string) ([]string, error) {
	for i := 0; i < len(args); i++ {
		takesValue, ok := renderFlags[args[i]]
		if !ok {
			return nil, fmt.Errorf("render option '%s' not allowed", args[i])
		}
		if takesValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("render option '%s' needs a value", args[i])
			}
			i++
		}
	}
	return args, nil
}

// sanitizeFilename keeps a plain base name.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 32 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
