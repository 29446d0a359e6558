package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/workspace"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale media session files once",
		Run:   runSweep,
	}
	cmd.Flags().Duration("max-age", 0, "Override workspace.max_age")
	RootCmd.AddCommand(cmd)
}

type sweepOutput struct {
	Root          string `json:"root" yaml:"root"`
	StaleSessions int    `json:"stale_sessions" yaml:"stale_sessions"`
	Files         int    `json:"files" yaml:"files"`
	Dirs          int    `json:"dirs" yaml:"dirs"`
}

func runSweep(cmd *cobra.Command, args []string) {
	maxAge, _ := cmd.Flags().GetDuration("max-age")

	cfg, logger := loadConfig()
	defer logger.Sync()
	if maxAge <= 0 {
		maxAge = cfg.Workspace.MaxAge.Duration
	}

	ws, err := workspace.New(cfg.Workspace.Root,
		workspace.WithMaxAge(maxAge),
		workspace.WithLogger(logger))
	if err != nil {
		exitErr("open workspace", err)
	}
	stats := ws.Sweep()
	logger.Info("sweep finished", zap.String("root", ws.Root()), zap.Int("files", stats.Files), zap.Int("dirs", stats.Dirs))

	out := sweepOutput{Root: ws.Root(), StaleSessions: stats.StaleSessions, Files: stats.Files, Dirs: stats.Dirs}
	if formatFlag == "text" {
		fmt.Printf("%s: removed %d files and %d directories\n", out.Root, out.Files, out.Dirs)
		return
	}
	printValue(out)
}
