package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/mcumixer/external/config"
	"github.com/foxseedlab/mcumixer/external/discord"
	engineimpl "github.com/foxseedlab/mcumixer/external/engine"
	"github.com/foxseedlab/mcumixer/external/feedback"
	"github.com/foxseedlab/mcumixer/external/metrics"
	repositoryimpl "github.com/foxseedlab/mcumixer/external/repository"
	"github.com/foxseedlab/mcumixer/external/srtp"
	transcriberimpl "github.com/foxseedlab/mcumixer/external/transcriber"
	webhookimpl "github.com/foxseedlab/mcumixer/external/webhook"
	"github.com/foxseedlab/mcumixer/internal/conference"
	"github.com/foxseedlab/mcumixer/internal/config"
	discordpkg "github.com/foxseedlab/mcumixer/internal/discord"
	"github.com/foxseedlab/mcumixer/internal/mixer"
	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	shutdownTimeout       = 30 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "codec", engineimpl.CodecName())

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: starting metrics server", "addr", cfg.MetricsAddr)
	server := startMetricsServer(cfg, injector)

	slog.Info("startup: launching discord bot")
	runBot(cfg, injector, server)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	engineimpl.RegisterDI(injector)
	srtp.RegisterDI(injector)
	metrics.RegisterDI(injector)
	feedback.RegisterDI(injector)
	mixer.RegisterDI(injector)
	discord.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	conference.RegisterDI(injector)

	return injector
}

func startMetricsServer(cfg *config.Config, injector do.Injector) *http.Server {
	collector := do.MustInvoke[*metrics.Collector](injector)
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return server
}

func runBot(cfg *config.Config, injector do.Injector, server *http.Server) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	manager, err := do.Invoke[*conference.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve conference manager", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancel()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(ctx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")

	botUserID, err := dc.GetBotUserID()
	if err != nil {
		slog.Error("failed to resolve bot user id", "error", err)
		os.Exit(1)
	}
	manager.SetBotUserID(botUserID)

	dc.RegisterVoiceStateUpdateHandler(manager.HandleVoiceStateUpdate)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "voice_channel_id", cfg.DiscordVCID)

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Error("conference shutdown reported errors", "error", err)
	}
	if err := dc.Close(); err != nil {
		slog.Error("discord close failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", "error", err)
	}
}
