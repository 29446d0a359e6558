// Package config loads tagforge settings from TOML files.
//
// A base file is decoded first, then an optional environment file
// (tagforge.<env>.toml next to the base) overrides any keys it sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chicogong/tagforge/pkg/schemas"
)

// EnvRuntime names the environment variable selecting the override file.
const EnvRuntime = "TAGFORGE_ENV"

// Duration decodes from "90s", "00:01:30", "PT90S" or bare seconds.
type Duration = schemas.Duration

// Config is the full application configuration.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Tools     ToolsConfig     `toml:"tools"`
	Store     StoreConfig     `toml:"store"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
	Fonts     FontsConfig     `toml:"fonts"`
	Media     MediaConfig     `toml:"media"`
	API       APIConfig       `toml:"api"`
	Log       LogConfig       `toml:"log"`
}

type WorkspaceConfig struct {
	Root          string   `toml:"root"`
	MaxAge        Duration `toml:"max_age"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type ToolsConfig struct {
	FFmpeg         string   `toml:"ffmpeg"`
	FFprobe        string   `toml:"ffprobe"`
	FFmpegTimeout  Duration `toml:"ffmpeg_timeout"`
	FFprobeTimeout Duration `toml:"ffprobe_timeout"`
	KillGrace      Duration `toml:"kill_grace"`
	MaxConcurrent  int      `toml:"max_concurrent"`
}

type StoreConfig struct {
	// Driver is one of sqlite, bolt or memory.
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

type SandboxConfig struct {
	URL               string   `toml:"url"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

type FontsConfig struct {
	Dirs    []string `toml:"dirs"`
	Default string   `toml:"default"`
}

type MediaConfig struct {
	MaxDownloadBytes     int64   `toml:"max_download_bytes"`
	BlockPrivateNetworks bool    `toml:"block_private_networks"`
	EnableS3             bool    `toml:"enable_s3"`
	EnableGCS            bool    `toml:"enable_gcs"`
	OutputURI            string  `toml:"output_uri"`
	CaptionBand          float64 `toml:"caption_band"`
}

type APIConfig struct {
	Host      string   `toml:"host"`
	Port      int      `toml:"port"`
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`
	APIKeys   []string `toml:"api_keys"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:          filepath.Join(os.TempDir(), "gscript"),
			MaxAge:        Duration{24 * time.Hour},
			SweepInterval: Duration{time.Hour},
		},
		Tools: ToolsConfig{
			FFmpeg:         "ffmpeg",
			FFprobe:        "ffprobe",
			FFmpegTimeout:  Duration{60 * time.Second},
			FFprobeTimeout: Duration{20 * time.Second},
			KillGrace:      Duration{2 * time.Second},
			MaxConcurrent:  4,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "tagforge.db",
		},
		Sandbox: SandboxConfig{
			URL:               "http://127.0.0.1:8000",
			Timeout:           Duration{30 * time.Second},
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Media: MediaConfig{
			MaxDownloadBytes:     50 << 20,
			BlockPrivateNetworks: true,
			CaptionBand:          0.2,
		},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			TokenTTL: Duration{24 * time.Hour},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, then the environment override file if
// one exists. A missing base file is not an error. The returned slice lists
// keys present in the files that do not map to any setting.
func Load(path string) (*Config, []string, error) {
	cfg := Default()
	var unknown []string

	for _, p := range candidateFiles(path) {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, nil, fmt.Errorf("stat %s: %w", p, err)
		}
		md, err := toml.DecodeFile(p, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", p, err)
		}
		for _, key := range md.Undecoded() {
			unknown = append(unknown, p+": "+key.String())
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, unknown, nil
}

func candidateFiles(path string) []string {
	if path == "" {
		return nil
	}
	files := []string{path}
	if env := os.Getenv(EnvRuntime); env != "" {
		ext := filepath.Ext(path)
		files = append(files, strings.TrimSuffix(path, ext)+"."+env+ext)
	}
	return files
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "bolt", "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite, bolt or memory, got %q", c.Store.Driver)
	}
	if c.Workspace.Root == "" {
		return errors.New("workspace.root must not be empty")
	}
	if c.Tools.MaxConcurrent < 1 {
		return errors.New("tools.max_concurrent must be at least 1")
	}
	if c.Media.CaptionBand <= 0 || c.Media.CaptionBand >= 1 {
		return fmt.Errorf("media.caption_band must be between 0 and 1, got %v", c.Media.CaptionBand)
	}
	return nil
}
