// Package fonts resolves font names to parsed OpenType fonts. Lookup tries
// an exact file in the configured directories, then a case-insensitive match
// against every font found under them, then the default font, and finally
// the embedded Go fonts.
package fonts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var fontExts = []string{".ttf", ".otf", ".ttc"}

// embedded fonts, addressable by name.
var embedded = map[string][]byte{
	"go":         goregular.TTF,
	"goregular":  goregular.TTF,
	"sans":       goregular.TTF,
	"sans-serif": goregular.TTF,
	"gobold":     gobold.TTF,
	"bold":       gobold.TTF,
	"goitalic":   goitalic.TTF,
	"italic":     goitalic.TTF,
	"gomono":     gomono.TTF,
	"mono":       gomono.TTF,
	"monospace":  gomono.TTF,
}

// DefaultDirs returns the well-known font directories for this platform.
func DefaultDirs() []string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		dirs := []string{filepath.Join(os.Getenv("WINDIR"), "Fonts")}
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, "Microsoft", "Windows", "Fonts"))
		}
		return dirs
	case "darwin":
		return []string{"/System/Library/Fonts", "/Library/Fonts", filepath.Join(home, "Library", "Fonts")}
	default:
		return []string{"/usr/share/fonts", "/usr/local/share/fonts",
			filepath.Join(home, ".fonts"), filepath.Join(home, ".local", "share", "fonts")}
	}
}

// Library caches parsed fonts.
type Library struct {
	dirs     []string
	fallback string
	logger   *zap.Logger

	mu     sync.Mutex
	parsed map[string]*opentype.Font // by resolved path or embedded key
	index  map[string]string         // normalized name -> path
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) {
		if l != nil {
			lib.logger = l
		}
	}
}

// NewLibrary creates a Library searching dirs (DefaultDirs when empty).
// fallback names the font used when a lookup finds nothing; "" means the
// embedded Go Regular.
func NewLibrary(dirs []string, fallback string, opts ...Option) *Library {
	if len(dirs) == 0 {
		dirs = DefaultDirs()
	}
	lib := &Library{
		dirs:     dirs,
		fallback: fallback,
		logger:   zap.NewNop(),
		parsed:   make(map[string]*opentype.Font),
	}
	for _, opt := range opts {
		opt(lib)
	}
	return lib
}

// Lookup resolves name. It only fails when even the embedded font cannot
// be parsed.
func (l *Library) Lookup(name string) (*opentype.Font, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		if f, err := l.find(name); err == nil {
			return f, nil
		}
		l.logger.Debug("font not found, using default", zap.String("font", name))
	}
	if l.fallback != "" && !strings.EqualFold(l.fallback, name) {
		if f, err := l.find(l.fallback); err == nil {
			return f, nil
		}
	}
	return l.load("goregular", goregular.TTF)
}

// Face returns a face for name at size points (72 DPI, so points are
// pixels).
func (l *Library) Face(name string, size float64) (font.Face, error) {
	f, err := l.Lookup(name)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// Names lists the font names discoverable under the search directories.
func (l *Library) Names() []string {
	l.mu.Lock()
	index := l.indexLocked()
	l.mu.Unlock()

	names := make([]string, 0, len(index)+len(embedded))
	for n := range index {
		names = append(names, n)
	}
	for n := range embedded {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *Library) find(name string) (*opentype.Font, error) {
	if data, ok := embedded[strings.ToLower(name)]; ok {
		return l.load(strings.ToLower(name), data)
	}

	// Direct file: absolute path or a filename inside a font directory.
	if filepath.IsAbs(name) {
		if fileExists(name) {
			return l.loadFile(name)
		}
	} else if !strings.ContainsAny(name, `/\`) {
		for _, dir := range l.dirs {
			for _, candidate := range withExts(name) {
				p := filepath.Join(dir, candidate)
				if fileExists(p) {
					return l.loadFile(p)
				}
			}
		}
	}

	l.mu.Lock()
	index := l.indexLocked()
	l.mu.Unlock()

	key := normalize(name)
	if p, ok := index[key]; ok {
		return l.loadFile(p)
	}
	// Prefix match picks the shortest family member, e.g. "dejavu" finds
	// DejaVuSans before DejaVuSans-Bold.
	bestKey, best := "", ""
	for n, p := range index {
		if strings.HasPrefix(n, key) && (best == "" || len(n) < len(bestKey) || (len(n) == len(bestKey) && n < bestKey)) {
			bestKey, best = n, p
		}
	}
	if best != "" {
		return l.loadFile(best)
	}
	return nil, fmt.Errorf("font '%s' not found", name)
}

// indexLocked walks the font directories once.
func (l *Library) indexLocked() map[string]string {
	if l.index != nil {
		return l.index
	}
	l.index = make(map[string]string)
	for _, dir := range l.dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !hasFontExt(path) {
				return nil
			}
			key := normalize(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())))
			if _, dup := l.index[key]; !dup {
				l.index[key] = path
			}
			return nil
		})
	}
	return l.index
}

func (l *Library) loadFile(path string) (*opentype.Font, error) {
	l.mu.Lock()
	if f, ok := l.parsed[path]; ok {
		l.mu.Unlock()
		return f, nil
	}
	l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".ttc") {
		coll, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font %s: %w", path, err)
		}
		f, err := coll.Font(0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font %s: %w", path, err)
		}
		return l.store(path, f), nil
	}
	return l.load(path, data)
}

func (l *Library) load(key string, data []byte) (*opentype.Font, error) {
	l.mu.Lock()
	if f, ok := l.parsed[key]; ok {
		l.mu.Unlock()
		return f, nil
	}
	l.mu.Unlock()

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return l.store(key, f), nil
}

func (l *Library) store(key string, f *opentype.Font) *opentype.Font {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parsed[key] = f
	return f
}

func withExts(name string) []string {
	if hasFontExt(name) {
		return []string{name}
	}
	out := []string{name}
	for _, ext := range fontExts {
		out = append(out, name+ext)
	}
	return out
}

func hasFontExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range fontExts {
		if ext == e {
			return true
		}
	}
	return false
}

// normalize lowercases and drops separators so "Dejavu Sans" matches
// "DejaVuSans".
func normalize(name string) string {
	name = strings.ToLower(name)
	if hasFontExt(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
