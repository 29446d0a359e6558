package builtin

import (
	"context"
	"fmt"

	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
	"github.com/chicogong/tagforge/pkg/workspace"
)

// mixFormat normalizes mixed audio to stereo 44.1 kHz.
const mixFormat = "aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo"

func init() {
	operators.Register(&VolumeOperator{base{operators.OperatorDescriptor{
		Name:        "volume",
		Category:    operators.CategoryAudio,
		Description: "Scale audio volume (1 = unchanged)",
		Parameters: []operators.ParameterDescriptor{
			key("input_key"),
			reqNum("volume_level", operators.Range(0, 20)),
			key("output_key"),
		},
	}}})
	for _, name := range []string{"tremolo", "vibrato"} {
		operators.Register(&ModulationOperator{base{operators.OperatorDescriptor{
			Name:        name,
			Category:    operators.CategoryAudio,
			Description: "Apply " + name + " modulation",
			Parameters: []operators.ParameterDescriptor{
				key("input_key"),
				reqNum("frequency", operators.Range(0.1, 20000)),
				reqNum("depth", operators.Range(0, 1)),
				key("output_key"),
			},
		}}})
	}
	operators.Register(&AudioReplaceOperator{base{operators.OperatorDescriptor{
		Name:        "audioputreplace",
		Category:    operators.CategoryAudio,
		Description: "Replace the audio track of media_key with audio_key",
		Parameters: []operators.ParameterDescriptor{
			key("media_key"),
			key("audio_key"),
			key("output_key"),
			flag("preserve_length", false),
			flag("force_video", false),
			flag("loop_media", false),
			flag("loop_audio", false),
		},
	}}})
	operators.Register(&AudioMixOperator{base{operators.OperatorDescriptor{
		Name:        "audioputmix",
		Category:    operators.CategoryAudio,
		Description: "Mix audio_key into the audio of media_key",
		Parameters: []operators.ParameterDescriptor{
			key("media_key"),
			key("audio_key"),
			key("output_key"),
			num("volume", 1, operators.Range(0, 20)),
			flag("loop_audio", false),
			flag("preserve_length", true),
			flag("loop_media", false),
		},
	}}})
}

// needAudio fails for entries without a sound track.
func needAudio(ctx context.Context, env *operators.Env, e *workspace.Entry) error {
	switch kindOf(e) {
	case schemas.KindAudio:
		return nil
	case schemas.KindVideo:
		if inspect(ctx, env, e).HasAudio {
			return nil
		}
	}
	return fmt.Errorf("'%s' has no audio track", e.Key)
}

// VolumeOperator scales loudness.
type VolumeOperator struct{ base }

func (o *VolumeOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needAudio(ctx, env, in); err != nil {
		return nil, err
	}

	dst, err := filterMedia(ctx, env, in, filters{audio: "volume=" + ff(p.Float("volume_level"))})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// ModulationOperator applies tremolo (amplitude) or vibrato (pitch).
type ModulationOperator struct{ base }

func (o *ModulationOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	in, err := lookup(env, p.String("input_key"))
	if err != nil {
		return nil, err
	}
	if err := needAudio(ctx, env, in); err != nil {
		return nil, err
	}

	chain := fmt.Sprintf("%s=f=%s:d=%s", o.Name(), ff(p.Float("frequency")), ff(p.Float("depth")))
	dst, err := filterMedia(ctx, env, in, filters{audio: chain})
	if err != nil {
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// AudioReplaceOperator swaps the sound track. Stills, or any media when
// force_video is set, become an mp4.
type AudioReplaceOperator struct{ base }

func (o *AudioReplaceOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	media, err := lookup(env, p.String("media_key"))
	if err != nil {
		return nil, err
	}
	audio, err := lookup(env, p.String("audio_key"))
	if err != nil {
		return nil, err
	}
	if err := needVisual(media); err != nil {
		return nil, err
	}
	if err := needAudio(ctx, env, audio); err != nil {
		return nil, err
	}

	kind := kindOf(media)
	ext := extOf(media)
	if kind != schemas.KindVideo || p.Bool("force_video") {
		ext = ".mp4"
	}

	j := &job{}
	switch {
	case kind == schemas.KindImage:
		j.input(media.Path, "-loop", "1")
	case p.Bool("loop_media"):
		j.input(media.Path, "-stream_loop", "-1")
	default:
		j.input(media.Path)
	}
	if p.Bool("loop_audio") {
		j.input(audio.Path, "-stream_loop", "-1")
	} else {
		j.input(audio.Path)
	}
	j.mapStream("0:v:0", "1:a:0")
	j.output("-vf", evenScale)
	j.output(encodeArgs(ext)...)

	// Any looped input is unbounded, so the other one sets the length.
	if kind == schemas.KindImage || p.Bool("preserve_length") || p.Bool("loop_media") || p.Bool("loop_audio") {
		j.output("-shortest")
	}
	if kind == schemas.KindImage {
		j.output("-tune", "stillimage")
	}

	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}
	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}

// AudioMixOperator mixes a second track into the media's audio. With
// preserve_length the media's length wins.
type AudioMixOperator struct{ base }

func (o *AudioMixOperator) Execute(ctx context.Context, env *operators.Env, p operators.Params) (*operators.Result, error) {
	media, err := lookup(env, p.String("media_key"))
	if err != nil {
		return nil, err
	}
	audio, err := lookup(env, p.String("audio_key"))
	if err != nil {
		return nil, err
	}
	if err := needAudio(ctx, env, audio); err != nil {
		return nil, err
	}

	kind := kindOf(media)
	md := inspect(ctx, env, media)
	ad := inspect(ctx, env, audio)
	mediaHasAudio := kind == schemas.KindAudio || (kind == schemas.KindVideo && md.HasAudio)
	preserve := p.Bool("preserve_length")

	ext := extOf(media)
	if kind == schemas.KindImage || kind == schemas.KindAnimated {
		ext = ".mp4"
	}

	j := &job{}
	switch {
	case kind == schemas.KindImage:
		j.input(media.Path, "-loop", "1")
	case p.Bool("loop_media"):
		j.input(media.Path, "-stream_loop", "-1")
	default:
		j.input(media.Path)
	}
	if p.Bool("loop_audio") {
		j.input(audio.Path, "-stream_loop", "-1")
	} else {
		j.input(audio.Path)
	}

	j.filter("[1:a]volume=%s,%s[mix1]", ff(p.Float("volume")), mixFormat)
	if mediaHasAudio {
		duration := "longest"
		if preserve || p.Bool("loop_audio") {
			duration = "first"
		}
		j.filter("[0:a]%s[mix0]", mixFormat)
		j.filter("[mix0][mix1]amix=inputs=2:duration=%s:dropout_transition=0[a]", duration)
	} else {
		j.filter("[mix1]anull[a]")
	}

	if kind != schemas.KindAudio {
		j.mapStream("0:v:0")
		j.output("-vf", evenScale)
	}
	j.mapStream("[a]")
	j.output(encodeArgs(ext)...)

	switch {
	case p.Bool("loop_media") || kind == schemas.KindImage:
		// The media repeats for as long as the mixed-in audio plays.
		if ad.Duration > 0 {
			j.output("-t", ff(ad.Duration))
		} else {
			j.output("-shortest")
		}
	case preserve && md.Duration > 0:
		j.output("-t", ff(md.Duration))
	case !mediaHasAudio && !preserve:
		// Nothing to mix with: the longer input decides.
	default:
		j.output("-shortest")
	}

	dst, err := env.Session.Allocate(ext)
	if err != nil {
		return nil, err
	}
	if err := j.run(ctx, env, dst); err != nil {
		env.Session.Release(dst)
		return nil, err
	}
	return produce(env, o.Name(), p.String("output_key"), dst)
}
