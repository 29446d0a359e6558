package primitives

import (
	"context"
	"errors"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chicogong/tagforge/pkg/gscript"
	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/storage"
	"github.com/chicogong/tagforge/pkg/tags"
)

// NoMedia is returned by the media lookups when nothing matches.
const NoMedia = "No valid media found"

func mediaPrimitives(deps Deps) []*tags.Primitive {
	return []*tags.Primitive{
		{Name: "image", Aliases: []string{"img"}, Usage: "{image[:fallback]}", Fn: mediaURL("image")},
		{Name: "video", Usage: "{video[:fallback]}", Fn: mediaURL("video")},
		{Name: "audio", Usage: "{audio[:fallback]}", Fn: mediaURL("audio")},
		{Name: "iv", Usage: "{iv[:fallback]}", Fn: mediaURL("image", "video")},
		{Name: "av", Usage: "{av[:fallback]}", Fn: mediaURL("audio", "video")},
		{Name: "media", Usage: "{media[:fallback]}", Fn: mediaURL("image", "video", "audio")},
		{Name: "attach", Aliases: []string{"file"}, Usage: "{attach[:url]}", Fn: attach},
		{Name: "attachtext", Usage: "{attachtext:text[|filename]}", Fn: func(_ context.Context, _ *tags.Context, call *tags.Call) (any, error) {
			name := "message.txt"
			parts := call.Parts()
			body := call.Args
			if len(parts) > 1 {
				if n := strings.TrimSpace(parts[len(parts)-1]); n != "" && !strings.ContainsAny(n, `/\`) && filepath.Ext(n) != "" {
					name = n
					body = strings.Join(parts[:len(parts)-1], "|")
				}
			}
			return platform.File{Name: name, Data: []byte(body)}, nil
		}},
		{Name: "text", Aliases: []string{"fetch"}, Usage: "{text:url}", Fn: func(ctx context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			m := deps.Storage
			if tc.Media != nil && tc.Media.Storage != nil {
				m = tc.Media.Storage
			}
			if m == nil {
				return nil, ErrNoMedia
			}
			return fetchText(ctx, m, strings.TrimSpace(call.Args))
		}},
		{Name: "gscript", Aliases: []string{"gs"}, Usage: "{gscript:script}", Fn: func(ctx context.Context, tc *tags.Context, call *tags.Call) (any, error) {
			return runScript(ctx, deps.GScript, tc, call.Args)
		}},
	}
}

func mediaURL(kinds ...string) tags.Func {
	return func(_ context.Context, tc *tags.Context, call *tags.Call) (any, error) {
		for _, a := range tc.Invocation.Attachments {
			if slices.Contains(kinds, a.Kind()) {
				return a.URL, nil
			}
		}
		if fb := strings.TrimSpace(call.Args); fb != "" {
			return fb, nil
		}
		return NoMedia, nil
	}
}

func fetchText(ctx context.Context, m *storage.Manager, uri string) (string, error) {
	if uri == "" {
		return "", usage("{text:url}")
	}
	return m.FetchText(ctx, uri, MaxTextFetch)
}

// attach downloads url, or the invocation's first attachment, into the
// media session and attaches it.
func attach(ctx context.Context, tc *tags.Context, call *tags.Call) (any, error) {
	if tc.Media == nil || tc.Media.Session == nil || tc.Media.Storage == nil {
		return nil, ErrNoMedia
	}
	uri := strings.TrimSpace(call.Args)
	if uri == "" {
		if len(tc.Invocation.Attachments) == 0 {
			return nil, errors.New("nothing to attach")
		}
		uri = tc.Invocation.Attachments[0].URL
	}
	p, err := tc.Media.Storage.Download(ctx, uri, tc.Media.Session.Allocate)
	if err != nil {
		return nil, err
	}
	return platform.File{Name: attachmentName(uri, p), Path: p}, nil
}

// attachmentName keeps the remote file name when it has an extension and
// falls back to the downloaded file's name.
func attachmentName(uri, local string) string {
	if u, err := url.Parse(uri); err == nil {
		base := path.Base(u.Path)
		if base != "." && base != "/" && path.Ext(base) != "" {
			return base
		}
	}
	return filepath.Base(local)
}

func runScript(ctx context.Context, in *gscript.Interpreter, tc *tags.Context, script string) (any, error) {
	if tc.Media == nil || tc.Media.Session == nil {
		return nil, ErrNoMedia
	}
	out, err := in.Run(ctx, tc.Media, script)
	if err != nil {
		return nil, err
	}
	files := make([]platform.File, 0, len(out.Files))
	for _, p := range out.Files {
		files = append(files, platform.File{Name: filepath.Base(p), Path: p})
	}
	return files, nil
}
