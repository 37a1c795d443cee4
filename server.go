package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"tutorhub/internal/cache"
	"tutorhub/internal/config"
	"tutorhub/internal/db"
	"tutorhub/internal/directory"
	hubgrpc "tutorhub/internal/grpc"
	"tutorhub/internal/handlers"
	pkglog "tutorhub/internal/log"
	"tutorhub/internal/middleware"
	"tutorhub/internal/observability"
	"tutorhub/internal/rabbitmq"
	"tutorhub/internal/repositories"
	"tutorhub/internal/rooms"
	"tutorhub/internal/service"
	"tutorhub/internal/storage"
	"tutorhub/internal/telemetry"
	"tutorhub/internal/ws"
)

func runServe(parent context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	l := pkglog.L()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			l.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	database, err := db.Connect(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer database.Close()
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, database); err != nil {
			return err
		}
	}

	lookupCache, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer lookupCache.Close()

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	l.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("amqp publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, "audit."+serviceName, serviceName, cfg.AMQP.Environment)

	messages := repositories.NewMessageRepo(database)
	lookup := directory.New(repositories.NewCourseRepo(database), repositories.NewUserRepo(database), lookupCache, cfg.Cache.TTL)
	images := storage.NewImageUploader(store, cfg.Storage.KeyPrefix, cfg.Storage.URLTTL, cfg.Storage.MaxImageBytes)

	hub := ws.NewHub()
	notifier := service.NewNotifier(hub, lookup)
	chat := service.NewChatService(hub, messages, lookup, images, notifier, audit, service.ChatOptions{
		HistoryLimit:  cfg.Chat.HistoryLimit,
		PreviewLength: cfg.Chat.PreviewLength,
	})
	calls := service.NewCallService(hub, rooms.NewTracker(), lookup)

	router := newRouter(cfg, routerDeps{
		ws:            ws.NewHandler(hub, chat, notifier, calls, cfg.WebSocket),
		calls:         handlers.NewCallHandler(calls),
		users:         handlers.NewUserHandler(hub, chat),
		notifications: handlers.NewNotificationHandler(notifier, audit),
		audit:         audit,
		store:         store,
		stats: func() handlers.HubStats {
			return handlers.HubStats{Connections: hub.Len(), CallRooms: calls.ActiveRooms()}
		},
	})

	health := hubgrpc.NewHealthServer(database, cfg.GRPC.HealthInterval)
	if err := health.Start(fmt.Sprintf(":%d", cfg.GRPC.Port)); err != nil {
		return err
	}
	defer health.Stop()
	go health.Watch(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info().Str("address", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		l.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	return srv.Shutdown(sctx)
}

type routerDeps struct {
	ws            *ws.Handler
	calls         *handlers.CallHandler
	users         *handlers.UserHandler
	notifications *handlers.NotificationHandler
	audit         *telemetry.AuditEmitter
	store         storage.Storage
	stats         func() handlers.HubStats
}

func newRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		pkglog.GinMiddleware(pkglog.L()),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", deps.ws.Handle)

	router.GET("/calls/:room_id", deps.calls.RoomStatus)
	router.GET("/users/:user_id/presence", deps.users.Presence)
	router.GET("/users/:user_id/private-chats", deps.users.PrivateChats)

	internal := router.Group("/internal", middleware.InternalAuth(cfg.Server.InternalToken))
	internal.POST("/notifications/purchase", deps.notifications.Purchase)

	if local, ok := deps.store.(*storage.LocalStorage); ok {
		router.Static("/media", local.BasePath())
	}

	handlers.RegisterDebugRoutes(router, deps.audit, deps.stats, cfg.Server.Debug)
	return router
}
