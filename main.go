package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"groupchat-service/internal/cache"
	"groupchat-service/internal/chat"
	"groupchat-service/internal/config"
	"groupchat-service/internal/db"
	grpcserver "groupchat-service/internal/grpc"
	"groupchat-service/internal/handlers"
	"groupchat-service/internal/hub"
	"groupchat-service/internal/logging"
	"groupchat-service/internal/middleware"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/rabbitmq"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
	"groupchat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: cfg.Tracing.ServiceName})
	log := logging.L()

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("service stopped")
}

func run(cfg *config.Config) error {
	log := logging.L()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint, cfg.Tracing.Enabled)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	database, err := db.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer database.Close()

	var mirror hub.Mirror
	presenceMirror, err := cache.NewPresenceMirror(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("presence mirror disabled")
	} else if presenceMirror != nil {
		defer presenceMirror.Close()
		if err := presenceMirror.Reset(ctx); err != nil {
			log.Warn().Err(err).Msg("presence mirror reset failed")
		}
		mirror = presenceMirror
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditKey, cfg.Tracing.ServiceName, cfg.AMQP.Environment)

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewGroupMessageRepo(database)
	seenRepo := repositories.NewSeenRepo(database)

	h := hub.NewHub()
	tracker := hub.NewTracker(h, groupRepo, mirror)
	svc := chat.New(chat.Deps{
		Groups:        groupRepo,
		Messages:      messageRepo,
		Seen:          seenRepo,
		Hub:           h,
		Presence:      tracker,
		Publisher:     publisher,
		Audit:         audit,
		TypingTimeout: cfg.Chat.TypingTimeout,
	})

	router := newRouter(cfg, h, tracker, svc, audit)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv, err := grpcserver.NewServer(fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tracker.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("address", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(grpcSrv.Serve)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.Close()
		grpcSrv.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, h *hub.Hub, tracker *hub.Tracker, svc *chat.Services, audit *telemetry.AuditEmitter) *gin.Engine {
	if !cfg.Debug.Enabled {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	router.Use(logging.GinMiddleware(*logging.L()))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online_users": len(tracker.Snapshot())})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wsRouter := ws.NewRouter(h, tracker, svc)
	router.GET("/ws", ws.NewHandler(h, wsRouter, cfg.WebSocket).Handle)

	api := router.Group("/", middleware.Identity())
	handlers.NewGroupHandler(svc, tracker).Register(api)
	handlers.RegisterDebugRoutes(api, audit, svc.Typing, cfg.Debug.Enabled)

	return router
}
