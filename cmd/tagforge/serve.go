package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chicogong/tagforge/pkg/api"
	"github.com/chicogong/tagforge/pkg/auth"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Run:   runServe,
	}
	cmd.Flags().String("host", "", "Override api.host")
	cmd.Flags().Int("port", 0, "Override api.port")
	cmd.Flags().String("cors-origin", "", "Allow browser calls from this origin")
	cmd.Flags().Bool("no-auth", false, "Serve without authentication (local use only)")
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	origin, _ := cmd.Flags().GetString("cors-origin")
	noAuth, _ := cmd.Flags().GetBool("no-auth")

	cfg, logger := loadConfig()
	if host != "" {
		cfg.API.Host = host
	}
	if port != 0 {
		cfg.API.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		exitErr("start", err)
	}
	defer a.Close()

	opts := []api.Option{api.WithLogger(logger), api.WithCORS(origin)}
	if !noAuth {
		mw, tokens, err := authMiddleware(cfg.API.JWTSecret, cfg.API.TokenTTL.Duration, cfg.API.APIKeys, logger)
		if err != nil {
			exitErr("auth", err)
		}
		opts = append(opts, api.WithAuth(mw))
		if tokens != nil {
			opts = append(opts, api.WithTokenIssuer(tokens))
		}
	}

	go a.workspace.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a.engine, opts...).Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		// Renders can take as long as the ffmpeg deadline.
		WriteTimeout: cfg.Tools.FFmpegTimeout.Duration + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr), zap.Bool("auth", !noAuth))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			exitErr("serve", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// authMiddleware builds the request authenticator. At least one of a JWT
// secret or API keys is required.
func authMiddleware(secret string, ttl time.Duration, keys []string, logger *zap.Logger) (*auth.Middleware, *auth.JWTManager, error) {
	var jm *auth.JWTManager
	if secret != "" {
		jm = auth.NewJWTManager(secret, ttl)
	}
	var km *auth.APIKeyManager
	if len(keys) > 0 {
		km = auth.NewAPIKeyManager()
		if err := km.LoadKeys(keys); err != nil {
			return nil, nil, err
		}
		logger.Info("api keys loaded", zap.Int("count", km.Count()))
	}
	if jm == nil && km == nil {
		return nil, nil, errors.New("set api.jwt_secret or api.api_keys, or pass --no-auth")
	}
	return auth.NewMiddleware(jm, km, false, logger), jm, nil
}
