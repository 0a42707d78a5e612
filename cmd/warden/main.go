package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"warden/internal/alert"
	"warden/internal/audit"
	"warden/internal/bot"
	"warden/internal/config"
	"warden/internal/decision"
	"warden/internal/executor"
	"warden/internal/pipeline"
	"warden/internal/storage"
	"warden/internal/window"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("session init failed", zap.Error(err))
	}

	notifier := alert.New(cfg.Alert, logger)
	windows := window.NewStore(cfg.Window.MaxMessages, cfg.Window.MaxAge())
	engine := decision.NewEngine(store, logger)
	auditor := audit.NewLogger(store, logger)

	exec := executor.New(bot.NewAPI(session, logger), cfg.Executor, logger)
	exec.OnBreakerChange(func(route string, from, to executor.State) {
		logger.Warn("breaker state change",
			zap.String("route", route),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		if to != executor.StateOpen {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		notifier.Send(ctx, fmt.Sprintf("circuit breaker open: %s", route))
	})

	pipe := pipeline.New(cfg, store, windows, engine, exec, auditor, logger)
	pipe.SetAlerter(notifier)

	botSvc := bot.New(cfg, logger, store, session, pipe, exec, auditor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start(ctx)
	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	go maintenance(ctx, cfg, logger, windows, pipe, auditor)

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	// Close the gateway first so no new events arrive, then drain what is
	// already queued before cancelling the workers' context.
	botSvc.Close()
	pipe.Stop()
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}
	logger.Info("shutdown complete")
}

// maintenance runs the periodic housekeeping: window and retraction sweeps
// every minute, audit retention once a day.
func maintenance(ctx context.Context, cfg config.Config, logger *zap.Logger, windows *window.Store, pipe *pipeline.Pipeline, auditor *audit.Logger) {
	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()
	retention := time.NewTicker(24 * time.Hour)
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			now := time.Now()
			if evicted := windows.Sweep(now); evicted > 0 {
				logger.Debug("window sweep", zap.Int("evicted", evicted))
			}
			pipe.SweepRetractions(now)
		case <-retention.C:
			cleanupCtx, cleanupCancel := context.WithTimeout(ctx, time.Minute)
			removed, err := auditor.Cleanup(cleanupCtx, cfg.RetentionDays)
			cleanupCancel()
			if err != nil {
				logger.Error("audit retention sweep failed", zap.Error(err))
			} else if removed > 0 {
				logger.Info("audit retention sweep", zap.Int64("removed", removed))
			}
		}
	}
}
