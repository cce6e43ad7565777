package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/attachment"
	"github.com/teamlinkhq/teamlink/internal/bridge"
	"github.com/teamlinkhq/teamlink/internal/config"
	"github.com/teamlinkhq/teamlink/internal/db"
	"github.com/teamlinkhq/teamlink/internal/handlers"
	"github.com/teamlinkhq/teamlink/internal/hub"
	"github.com/teamlinkhq/teamlink/internal/linking"
	"github.com/teamlinkhq/teamlink/internal/logger"
	"github.com/teamlinkhq/teamlink/internal/message"
	"github.com/teamlinkhq/teamlink/internal/recording"
	"github.com/teamlinkhq/teamlink/internal/server"
	"github.com/teamlinkhq/teamlink/internal/timeline"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideHub,
			provideBridgeClient,
			provideRelay,
			provideMessageService,
			area.NewService,
			linking.NewService,
			provideCoordinator,
			provideStorage,
			provideRecorder,
			provideUploader,
			provideSummarizer,
			provideSessionStore,
			provideRecordingManager,
			provideServerHandler(provideMessageHandler),
			provideServerHandler(provideLiveHandler),
			provideServerHandler(provideLinkHandler),
			provideServerHandler(provideUploadHandler),
			provideServerHandler(provideRecordingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(handlers.NewHealthHandler),
			provideServer,
		),
		fx.Invoke(
			startRelay,
			startUploadJanitor,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideHub(log *slog.Logger, cfg config.Config) *hub.Hub {
	return hub.NewHub(log, time.Duration(cfg.Hub.TypingTimeoutSeconds)*time.Second)
}

func provideBridgeClient(log *slog.Logger, cfg config.Config) bridge.Client {
	return bridge.NewTelegramClient(log, cfg.Bridge.BotToken)
}

func provideRelay(log *slog.Logger, cfg config.Config, client bridge.Client) *bridge.Relay {
	return bridge.NewRelay(log, client, cfg.Bridge.QueueSize)
}

func provideMessageService(log *slog.Logger, conn *pgxpool.Pool) *message.DBService {
	return message.NewService(log, conn)
}

func provideCoordinator(log *slog.Logger, msgService *message.DBService, areaService *area.Service, h *hub.Hub, linkService *linking.DBService, relay *bridge.Relay, recorder attachment.Recorder) *timeline.Coordinator {
	return timeline.NewCoordinator(log, msgService, areaService, h, linkService, relay, recorder)
}

func provideStorage(cfg config.Config) (attachment.Storage, error) {
	return attachment.NewFSStorage(cfg.Upload.Dir)
}

func provideRecorder(log *slog.Logger, conn *pgxpool.Pool) attachment.Recorder {
	return attachment.NewDBRecorder(log, conn)
}

func provideUploader(log *slog.Logger, cfg config.Config, storage attachment.Storage, recorder attachment.Recorder) *attachment.Uploader {
	return attachment.NewUploader(log, storage, recorder, cfg.Upload.MaxBytes)
}

func provideSummarizer(cfg config.Config) recording.Summarizer {
	return recording.NewHTTPSummarizer(cfg.Summarizer.BaseURL,
		time.Duration(cfg.Summarizer.TimeoutSeconds)*time.Second)
}

func provideSessionStore(conn *pgxpool.Pool) recording.SessionStore {
	return recording.NewSessionStore(conn)
}

func provideRecordingManager(log *slog.Logger, sessions recording.SessionStore, msgService *message.DBService, summarizer recording.Summarizer) *recording.Manager {
	return recording.NewManager(log, sessions, msgService, summarizer)
}

func provideMessageHandler(log *slog.Logger, coordinator *timeline.Coordinator) *handlers.MessageHandler {
	return handlers.NewMessageHandler(log, coordinator)
}

func provideLiveHandler(log *slog.Logger, h *hub.Hub, areaService *area.Service) *handlers.LiveHandler {
	return handlers.NewLiveHandler(log, h, areaService)
}

func provideLinkHandler(log *slog.Logger, linkService *linking.DBService, areaService *area.Service, cfg config.Config) *handlers.LinkHandler {
	return handlers.NewLinkHandler(log, linkService, areaService, cfg.Bridge.LinkSecret)
}

func provideUploadHandler(log *slog.Logger, uploader *attachment.Uploader, recorder attachment.Recorder, storage attachment.Storage, areaService *area.Service) *handlers.UploadHandler {
	return handlers.NewUploadHandler(log, uploader, recorder, storage, areaService)
}

func provideRecordingHandler(log *slog.Logger, manager *recording.Manager, areaService *area.Service) *handlers.RecordingHandler {
	return handlers.NewRecordingHandler(log, manager, areaService)
}

func provideWebhookHandler(log *slog.Logger, coordinator *timeline.Coordinator, client bridge.Client, cfg config.Config) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, coordinator, client,
		cfg.Bridge.WebhookSecret, cfg.Bridge.LinkSecret,
		time.Duration(cfg.Bridge.LinkCodeTTLSeconds)*time.Second)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server.Addr,
		params.Config.Auth.JWTSecret, params.ServerHandlers)
}

func startRelay(lc fx.Lifecycle, relay *bridge.Relay) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { relay.Start(); return nil },
		OnStop:  func(ctx context.Context) error { relay.Stop(); return nil },
	})
}

func startUploadJanitor(lc fx.Lifecycle, logger *slog.Logger, cfg config.Config, uploader *attachment.Uploader) {
	staleAfter := time.Duration(cfg.Upload.StaleAfterSeconds) * time.Second
	if staleAfter <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				ticker := time.NewTicker(staleAfter / 2)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if swept := uploader.SweepStale(staleAfter); swept > 0 {
							logger.Info("swept stale uploads", slog.Int("count", swept))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error { cancel(); return nil },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
