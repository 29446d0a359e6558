// Command sandboxd serves the code execution sandbox used by the code
// primitives. Run it as an unprivileged user inside a container; it applies
// no isolation of its own beyond a per-run timeout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/logging"
	"github.com/chicogong/tagforge/pkg/process"
	"github.com/chicogong/tagforge/pkg/sandbox"
)

var rootCmd = &cobra.Command{
	Use:          "sandboxd",
	Short:        "Code execution sandbox service",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.String("root", filepath.Join(os.TempDir(), "sandbox"), "Directory executions run in")
	f.String("addr", ":8000", "Listen address")
	f.Duration("timeout", sandbox.DefaultTimeout, "Per-execution timeout")
	f.Int64("max-file-size", sandbox.DefaultMaxFileSize, "Upload size limit in bytes")
	f.Duration("delete-after", sandbox.DefaultDeleteAfter, "Delay before a downloaded file is removed")
	f.Int("max-concurrent", 4, "Concurrent executions")
	f.String("log-level", "info", "Log level")
	f.Bool("dev", false, "Development (console) logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	root, _ := f.GetString("root")
	addr, _ := f.GetString("addr")
	timeout, _ := f.GetDuration("timeout")
	maxSize, _ := f.GetInt64("max-file-size")
	deleteAfter, _ := f.GetDuration("delete-after")
	maxConcurrent, _ := f.GetInt("max-concurrent")
	level, _ := f.GetString("log-level")
	dev, _ := f.GetBool("dev")

	logger, err := logging.New(logging.Options{Level: level, Development: dev})
	if err != nil {
		return err
	}
	defer logger.Sync()

	svc, err := sandbox.New(root,
		sandbox.WithTimeout(timeout),
		sandbox.WithMaxFileSize(maxSize),
		sandbox.WithDeleteAfter(deleteAfter),
		sandbox.WithRunner(process.NewRunner(
			process.WithMaxConcurrent(maxConcurrent),
			process.WithLogger(logger))),
		sandbox.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("start sandbox: %w", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      timeout + 30*time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("sandbox listening",
			zap.String("addr", addr),
			zap.String("root", svc.Root()),
			zap.Strings("languages", svc.Languages()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
