package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tcross-assistant/internal/infra/api"
	"tcross-assistant/internal/infra/sched"
	"tcross-assistant/internal/infra/telegram"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when a token is configured, the Telegram bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	// ---- HTTP API ----
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if !auth.Enabled() {
		a.log.Warn().Msg("auth.jwt_secret not set; clients are identified by address only")
	}
	srv := api.NewServer(a.hub, a.export, auth, a.text, api.Options{
		AdminKey:   cfg.Auth.AdminKey,
		TrustProxy: cfg.HTTP.TrustProxy,
	}, a.log)
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(cfg.HTTP.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	var wg sync.WaitGroup

	go func() {
		a.log.Info().Str("addr", httpSrv.Addr).Msg("http api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	// ---- Idle session janitor ----
	janitor := sched.NewSessionJanitor(cfg.Sessions.SweepInterval, cfg.Sessions.IdleTTL, a.hub, a.log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = janitor.Run(ctx)
	}()

	// ---- Telegram ----
	if cfg.Bot.Token != "" {
		bot, err := telegram.NewBot(cfg.Bot, a.hub, a.export, a.text, a.log)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				errc <- fmt.Errorf("telegram: %w", err)
			}
		}()
	} else {
		a.log.Info().Msg("bot.token not set; telegram bot disabled")
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown requested")
	case runErr = <-errc:
		a.log.Error().Err(runErr).Msg("component failed; shutting down")
		stop()
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	return runErr
}
