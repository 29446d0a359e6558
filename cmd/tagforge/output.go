package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/ui"
)

// savedFile is a message attachment written to disk.
type savedFile struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	Size int    `json:"size" yaml:"size"`
}

type messageOutput struct {
	Content string      `json:"content" yaml:"content"`
	Embeds  []*ui.Embed `json:"embeds,omitempty" yaml:"embeds,omitempty"`
	View    *ui.View    `json:"view,omitempty" yaml:"view,omitempty"`
	Files   []savedFile `json:"files,omitempty" yaml:"files,omitempty"`
}

// printMessage writes attachments under dir and prints msg in the selected
// format.
func printMessage(msg *platform.Message, dir string) {
	out := messageOutput{Content: msg.Content, Embeds: msg.Embeds, View: msg.View}
	if len(msg.Files) > 0 {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			exitErr("create output dir", err)
		}
	}
	for _, f := range msg.Files {
		path := filepath.Join(dir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			exitErr("write attachment", err)
		}
		out.Files = append(out.Files, savedFile{Name: f.Name, Path: path, Size: len(f.Data)})
	}

	if formatFlag != "text" {
		printValue(out)
		return
	}
	if out.Content != "" {
		fmt.Println(out.Content)
	}
	for _, e := range out.Embeds {
		b, _ := json.Marshal(e)
		fmt.Printf("[embed] %s\n", b)
	}
	if out.View != nil && out.View.Len() > 0 {
		b, _ := json.Marshal(out.View)
		fmt.Printf("[view] %s\n", b)
	}
	for _, f := range out.Files {
		fmt.Printf("[file] %s (%d bytes)\n", f.Path, f.Size)
	}
}

// printValue prints v as json or yaml, falling back to indented json for
// the text format.
func printValue(v any) {
	switch formatFlag {
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			exitErr("encode yaml", err)
		}
		fmt.Print(string(b))
	case "json", "text":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			exitErr("encode json", err)
		}
		fmt.Println(string(b))
	default:
		exitErr("output", fmt.Errorf("unknown format %q", formatFlag))
	}
}
