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
	"golang.org/x/sync/errgroup"

	"slguard/internal/api"
	"slguard/internal/api/handlers"
	"slguard/internal/engine"
	"slguard/internal/instruments"
	"slguard/internal/notify"
	"slguard/internal/repository"
	"slguard/internal/websocket"
	"slguard/pkg/utils"
)

func newServeCmd() *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the protection engine and the ops HTTP server",
		Long: `Run the protection engine for BROKER_ACCOUNT_ID.

Both broker streams are supervised and reconnected with backoff; a stream idle
for longer than STREAM_TIMEOUT is restarted. The ops HTTP server exposes
/health, /metrics, /api/v1/* and the /ws/alerts feed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, noSync)
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip reconciliation with broker balances on start")
	return cmd
}

func runServe(ctx context.Context, noSync bool) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	logger := a.logger

	client, err := a.brokerClient()
	if err != nil {
		return err
	}

	// Репозитории
	positionRepo := repository.NewPositionRepository(a.db)
	orderRepo := repository.NewOrderRepository(a.db)
	tradeRepo := repository.NewTradeRepository(a.db)
	ladderRepo := repository.NewMultiTPRepository(a.db)
	eventRepo := repository.NewEventRepository(a.db)

	instrumentCache := instruments.NewCache(client, a.retryConfig(), logger)
	resolver, calc, err := a.settingsResolver()
	if err != nil {
		return err
	}

	// Лента для ops клиентов и оповещения
	websocket.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	hub := websocket.NewHub(logger)

	sinks := []notify.Sink{notify.NewLogSink(logger), notify.NewHubSink(hub)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL))
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.QueueSize, cfg.Notify.Timeout, logger, sinks...)

	eng := engine.New(engine.Config{
		AccountID:        cfg.Broker.AccountID,
		MonitorInterval:  cfg.Engine.MonitorInterval,
		StreamTimeout:    cfg.Engine.StreamTimeout,
		BackoffBase:      cfg.Engine.BackoffBase,
		BackoffMax:       cfg.Engine.BackoffMax,
		ShutdownGrace:    cfg.Engine.ShutdownGrace,
		DedupeTTL:        cfg.Engine.DedupeTTL,
		DedupeMaxEntries: cfg.Engine.DedupeMaxEntries,
		SyncOnStart:      cfg.Engine.SyncOnStart && !noSync,
		Retry:            a.retryConfig(),
	}, engine.Deps{
		Broker:      client,
		Instruments: instrumentCache,
		Settings:    resolver,
		Calculator:  calc,
		Positions:   positionRepo,
		Orders:      orderRepo,
		Trades:      tradeRepo,
		Ladders:     ladderRepo,
		Events:      eventRepo,
		Notifier:    dispatcher,
		Feed:        hub,
	}, logger)

	origins := websocket.NewOriginChecker(cfg.Server.AllowedOrigins)
	router := api.SetupRoutes(&api.Dependencies{
		Positions:   handlers.NewPositionHandler(cfg.Broker.AccountID, positionRepo, orderRepo, ladderRepo),
		Events:      handlers.NewEventHandler(cfg.Broker.AccountID, eventRepo),
		Trades:      handlers.NewTradeHandler(cfg.Broker.AccountID, tradeRepo),
		Levels:      handlers.NewLevelsHandler(cfg.Broker.AccountID, instrumentCache, resolver, calc),
		Status:      handlers.NewStatusHandler(eng, hub.ClientCount),
		Stream:      hub.ServeWS,
		TokenHash:   cfg.Security.APITokenHash,
		AllowOrigin: origins.Check,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.Security.APITokenHash == "" {
		logger.Warn("API_TOKEN_HASH is empty, ops API is served without authorization")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server starting", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	sent, dropped := dispatcher.Stats()
	logger.Info("slguard stopped",
		utils.Int64("alerts_sent", sent),
		utils.Int64("alerts_dropped", dropped),
		utils.Err(err),
	)
	return err
}
