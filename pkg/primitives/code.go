package primitives

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/chicogong/tagforge/pkg/codeexec"
	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/storage"
	"github.com/chicogong/tagforge/pkg/tags"
)

// codePrimitives registers one primitive per language alias, all routed
// to the sandbox.
func codePrimitives(deps Deps) []*tags.Primitive {
	var out []*tags.Primitive
	for _, alias := range codeexec.Aliases() {
		out = append(out, &tags.Primitive{
			Name:  alias,
			Usage: "{" + alias + ":code}",
			Fn:    runCode(deps, alias),
		})
	}
	return out
}

func runCode(deps Deps, language string) tags.Func {
	return func(ctx context.Context, tc *tags.Context, call *tags.Call) (any, error) {
		if deps.Code == nil {
			return nil, ErrNoSandbox
		}
		code := strings.TrimSpace(call.Args)
		if code == "" {
			return nil, errors.New("no code given")
		}
		files, err := attachmentFiles(ctx, deps, tc)
		if err != nil {
			return nil, err
		}
		res, err := deps.Code.Execute(ctx, language, code, files)
		if err != nil {
			return nil, err
		}
		output := strings.TrimRight(res.Output, "\n")
		if res.Failed {
			return nil, errors.New(strings.TrimSpace(output))
		}
		out := []any{output}
		for _, f := range res.Files {
			out = append(out, platform.File{Name: f.Name, Data: f.Data})
		}
		return out, nil
	}
}

// attachmentFiles downloads the invocation's attachments so the program
// sees them in its working directory.
func attachmentFiles(ctx context.Context, deps Deps, tc *tags.Context) ([]codeexec.File, error) {
	if len(tc.Invocation.Attachments) == 0 {
		return nil, nil
	}
	m := deps.Storage
	if tc.Media != nil && tc.Media.Storage != nil {
		m = tc.Media.Storage
	}
	if m == nil {
		return nil, ErrNoMedia
	}

	files := make([]codeexec.File, 0, len(tc.Invocation.Attachments))
	seen := make(map[string]int)
	for _, a := range tc.Invocation.Attachments {
		data, err := m.Fetch(ctx, a.URL, codeexec.MaxFileSize)
		if err != nil {
			if errors.Is(err, storage.ErrTooLarge) {
				return nil, fmt.Errorf("attachment %s exceeds %d bytes", attachmentName(a), codeexec.MaxFileSize)
			}
			return nil, fmt.Errorf("attachment %s: %w", attachmentName(a), err)
		}
		name := attachmentName(a)
		if n := seen[name]; n > 0 {
			ext := path.Ext(name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
		}
		seen[attachmentName(a)]++
		files = append(files, codeexec.File{Name: name, Data: data})
	}
	return files, nil
}

// attachmentName is the attachment's filename, else the last URL path
// segment, reduced to a bare file name.
func attachmentName(a platform.Attachment) string {
	name := a.Filename
	if name == "" {
		if u, err := url.Parse(a.URL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "attachment"
	}
	return name
}
