// Package builtin registers the GScript media operations.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/chicogong/tagforge/pkg/operators"
	"github.com/chicogong/tagforge/pkg/schemas"
	"github.com/chicogong/tagforge/pkg/workspace"
)

// base carries the descriptor shared by every operation type.
type base struct {
	desc operators.OperatorDescriptor
}

func (b *base) Name() string                  { return b.desc.Name }
func (b *base) Category() operators.Category  { return b.desc.Category }
func (b *base) Describe() *operators.OperatorDescriptor {
	d := b.desc
	d.Parameters = append([]operators.ParameterDescriptor(nil), b.desc.Parameters...)
	return &d
}

// Parameter constructors keep descriptors readable.

func key(name string) operators.ParameterDescriptor {
	return operators.ParameterDescriptor{Name: name, Type: operators.TypeString, Required: true}
}

func str(name string, def string) operators.ParameterDescriptor {
	return operators.ParameterDescriptor{Name: name, Type: operators.TypeString, Default: def}
}

func reqStr(name, desc string) operators.ParameterDescriptor {
	return operators.ParameterDescriptor{Name: name, Type: operators.TypeString, Required: true, Description: desc}
}

func num(name string, def float64, rules *operators.ValidationRules) operators.ParameterDescriptor {
	return operators.ParameterDescriptor{Name: name, Type: operators.TypeFloat, Default: def, Validation: rules}
}

func reqNum(name string, rules *operators.ValidationRules) operators.ParameterDescriptor {
	return operators.ParameterDescriptor{Name: name, Type: operators.TypeFloat, Required: true, Validation: rules}
}

func integer(name string, def int, rules *operators.ValidationRules) operators.ParameterDescriptor {
	return operators.ParameterDescriptor{Name: name, Type: operators.TypeInt, Default: def, Validation: rules}
}

func flag(name string, def bool) operators.ParameterDescriptor {
	return operators.ParameterDescriptor{Name: name, Type: operators.TypeBool, Default: def}
}

// lookup returns the cache entry for key.
func lookup(env *operators.Env, key string) (*workspace.Entry, error) {
	if key == "" {
		return nil, errors.New("missing media key")
	}
	e, ok := env.Session.Cache().Get(key)
	if !ok {
		return nil, fmt.Errorf("media key '%s' not found", key)
	}
	return e, nil
}

// inspect probes an entry once and remembers the answer on it.
func inspect(ctx context.Context, env *operators.Env, e *workspace.Entry) schemas.Dimensions {
	if e.Info != nil {
		return *e.Info
	}
	d := env.Prober.Inspect(ctx, env.Session, e.Path)
	e.Info = &d
	return d
}

// produce binds key to path after checking the file is non-empty. The
// file is released on failure.
func produce(env *operators.Env, op, key, path string) (*operators.Result, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		env.Session.Release(path)
		return nil, errors.New("operation produced no output")
	}
	env.Session.Cache().Set(key, path, op)
	return &operators.Result{Key: key}, nil
}

// kindOf classifies an entry. Files without a known extension are treated
// as video.
func kindOf(e *workspace.Entry) schemas.Kind {
	k := schemas.KindOf(e.Path)
	if k == schemas.KindUnknown {
		return schemas.KindVideo
	}
	return k
}

// extOf returns the extension outputs derived from e should use.
func extOf(e *workspace.Entry) string {
	ext := strings.ToLower(filepath.Ext(e.Path))
	if schemas.KindOf(e.Path) == schemas.KindUnknown {
		return ".mp4"
	}
	return ext
}

func needVisual(e *workspace.Entry) error {
	if kindOf(e) == schemas.KindAudio {
		return fmt.Errorf("'%s' is audio; an image or video is required", e.Key)
	}
	return nil
}

// atempoChain splits a tempo factor into atempo stages each within
// [0.5, 2.0].
func atempoChain(speed float64) (string, error) {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return "", fmt.Errorf("speed must be a positive number, got %v", speed)
	}
	var stages []string
	for speed > 2.0 {
		stages = append(stages, "atempo=2.0")
		speed /= 2.0
	}
	for speed < 0.5 {
		stages = append(stages, "atempo=0.5")
		speed /= 0.5
	}
	stages = append(stages, "atempo="+ff(speed))
	return strings.Join(stages, ","), nil
}

// saveImage encodes img by the extension of path.
func saveImage(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Ext(path), err)
	}
	return nil
}
