package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/codeexec"
	"github.com/chicogong/tagforge/pkg/config"
	"github.com/chicogong/tagforge/pkg/engine"
	"github.com/chicogong/tagforge/pkg/fonts"
	"github.com/chicogong/tagforge/pkg/gscript"
	"github.com/chicogong/tagforge/pkg/logging"
	"github.com/chicogong/tagforge/pkg/platform"
	"github.com/chicogong/tagforge/pkg/prober"
	"github.com/chicogong/tagforge/pkg/process"
	"github.com/chicogong/tagforge/pkg/storage"
	"github.com/chicogong/tagforge/pkg/store"
	"github.com/chicogong/tagforge/pkg/validator"
	"github.com/chicogong/tagforge/pkg/workspace"
)

var (
	configPath string
	formatFlag string
	logLevel   string

	userFlag     string
	nameFlag     string
	guildFlag    string
	elevatedFlag bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "tagforge",
	Short: "Tag templates and GScript media pipelines",
	Long: "tagforge evaluates tag templates, runs GScript media pipelines and " +
		"manages stored tags from the command line or over HTTP.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tagforge.toml", "Config file (missing file means defaults)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: text, json or yaml")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level")
}

// addInvocationFlags registers the flags describing who is invoking.
func addInvocationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&userFlag, "user", "u", "local", "Invoking user id")
	cmd.Flags().StringVar(&nameFlag, "name", "", "Invoking user name (default: user id)")
	cmd.Flags().StringVarP(&guildFlag, "guild", "g", "", "Guild id for server tags")
	cmd.Flags().BoolVar(&elevatedFlag, "elevated", false, "Invoke with elevated permissions")
}

func invocation(content string) *platform.Invocation {
	name := nameFlag
	if name == "" {
		name = userFlag
	}
	inv := &platform.Invocation{
		ID:       "cli",
		Author:   platform.User{ID: userFlag, Name: name},
		Channel:  platform.Channel{ID: "cli", Name: "cli"},
		Content:  content,
		Elevated: elevatedFlag,
	}
	if guildFlag != "" {
		inv.Guild = &platform.Guild{ID: guildFlag, Name: guildFlag}
	}
	return inv
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func loadConfig() (*config.Config, *zap.Logger) {
	cfg, unknown, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		exitErr("build logger", err)
	}
	for _, key := range unknown {
		logger.Warn("unknown config key", zap.String("key", key))
	}
	return cfg, logger
}

// app holds everything built from the config.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	workspace *workspace.Workspace
	engine    *engine.Engine
	closers   []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// newApp wires the store, media stack and engine from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a.store = st
	a.closers = append(a.closers, st)

	ws, err := workspace.New(cfg.Workspace.Root,
		workspace.WithMaxAge(cfg.Workspace.MaxAge.Duration),
		workspace.WithSweepInterval(cfg.Workspace.SweepInterval.Duration),
		workspace.WithKillGrace(cfg.Tools.KillGrace.Duration),
		workspace.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	a.workspace = ws

	manager, err := a.storageManager(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	runner := process.NewRunner(
		process.WithTools(process.Tools{
			FFmpeg:         cfg.Tools.FFmpeg,
			FFprobe:        cfg.Tools.FFprobe,
			FFmpegTimeout:  cfg.Tools.FFmpegTimeout.Duration,
			FFprobeTimeout: cfg.Tools.FFprobeTimeout.Duration,
		}),
		process.WithMaxConcurrent(cfg.Tools.MaxConcurrent),
		process.WithKillGrace(cfg.Tools.KillGrace.Duration),
		process.WithLogger(logger))

	opts := []engine.Option{
		engine.WithStore(st),
		engine.WithWorkspace(ws),
		engine.WithMedia(runner,
			prober.NewProber(runner, prober.WithLogger(logger)),
			fonts.NewLibrary(cfg.Fonts.Dirs, cfg.Fonts.Default, fonts.WithLogger(logger))),
		engine.WithStorage(manager),
		engine.WithInterpreter(gscript.New(
			gscript.WithLogger(logger),
			gscript.WithOutputURI(cfg.Media.OutputURI))),
		engine.WithCaptionBand(cfg.Media.CaptionBand),
		engine.WithLogger(logger),
	}
	if cfg.Sandbox.URL != "" {
		opts = append(opts, engine.WithCodeExecutor(codeexec.NewClient(cfg.Sandbox.URL,
			codeexec.WithTimeout(cfg.Sandbox.Timeout.Duration),
			codeexec.WithRateLimit(cfg.Sandbox.RequestsPerSecond, cfg.Sandbox.Burst),
			codeexec.WithLogger(logger))))
	}
	a.engine = engine.New(opts...)
	return a, nil
}

// storageManager registers the enabled backends behind the source policy.
func (a *app) storageManager(ctx context.Context) (*storage.Manager, error) {
	media := a.cfg.Media
	policy := validator.New()
	policy.BlockPrivate = media.BlockPrivateNetworks
	policy.SourceSchemes = []string{"http", "https"}
	policy.DestinationSchemes = []string{"file"}

	httpOpts := []storage.HTTPOption{storage.WithMaxBytes(media.MaxDownloadBytes)}
	if media.BlockPrivateNetworks {
		httpOpts = append(httpOpts, storage.WithDialControl(validator.DialControl))
	}
	opts := []storage.ManagerOption{
		storage.WithBackend("http", storage.NewHTTPStorage(httpOpts...)),
		storage.WithBackend("file", storage.NewLocalStorage("")),
		storage.WithManagerLogger(a.logger),
	}

	if media.EnableS3 {
		s3, err := storage.NewS3Storage(ctx, storage.S3Options{
			Region:       os.Getenv("AWS_REGION"),
			Endpoint:     os.Getenv("TAGFORGE_S3_ENDPOINT"),
			UsePathStyle: os.Getenv("TAGFORGE_S3_ENDPOINT") != "",
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithBackend("s3", s3))
		policy.SourceSchemes = append(policy.SourceSchemes, "s3")
		policy.DestinationSchemes = append(policy.DestinationSchemes, "s3")
	}
	if media.EnableGCS {
		gcs, err := storage.NewGCSStorage(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gcs)
		opts = append(opts, storage.WithBackend("gs", gcs))
		policy.SourceSchemes = append(policy.SourceSchemes, "gs")
		policy.DestinationSchemes = append(policy.DestinationSchemes, "gs")
	}

	if media.OutputURI != "" {
		if err := policy.CheckDestination(media.OutputURI); err != nil {
			return nil, fmt.Errorf("media.output_uri: %w", err)
		}
	}
	opts = append(opts, storage.WithGuard(policy.CheckSource))
	return storage.NewManager(opts...), nil
}

// readSource returns args joined, the contents of file, or stdin for "-".
func readSource(args []string, file string) (string, error) {
	if file == "" && len(args) == 1 && args[0] == "-" {
		file = "-"
	}
	switch file {
	case "":
		return strings.Join(args, " "), nil
	case "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	default:
		b, err := os.ReadFile(file)
		return string(b), err
	}
}
