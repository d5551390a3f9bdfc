package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/telegram-shop-bot/internal/config"
	"github.com/flicky/telegram-shop-bot/internal/handler"
	"github.com/flicky/telegram-shop-bot/internal/metrics"
	"github.com/flicky/telegram-shop-bot/internal/middleware"
	"github.com/flicky/telegram-shop-bot/internal/repository"
	"github.com/flicky/telegram-shop-bot/internal/service"
	"github.com/flicky/telegram-shop-bot/internal/telegram"
	"github.com/flicky/telegram-shop-bot/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	publishCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer publishCh.Close()

	if err := worker.SetupRabbitMQ(publishCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}

	consumeCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer consumeCh.Close()
	if err := consumeCh.Qos(1, 0, false); err != nil {
		log.Error("set QoS", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Telegram
	tg, err := telegram.NewClient(cfg.Telegram.Token, log)
	if err != nil {
		log.Error("connect to Telegram", "error", err)
		os.Exit(1)
	}

	// Metrics
	registry, err := metrics.NewRegistry()
	if err != nil {
		log.Error("create metrics registry", "error", err)
		os.Exit(1)
	}
	m := metrics.New(registry)

	// Repositories
	transactor := repository.NewTransactor(dbPool)
	userRepo := repository.NewUserRepository()
	cartRepo := repository.NewCartRepository()
	productRepo := repository.NewProductRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)

	// Services
	catalogSvc := service.NewCatalogService(productRepo, redisClient, cfg.Bot.CatalogCacheTTL)
	cartSvc := service.NewCartService(cartRepo, catalogSvc)
	checkoutSvc := service.NewCheckoutService(orderRepo, userRepo, cartSvc, catalogSvc, cfg.Bot.MinPhoneLength)
	botSvc := service.NewBotService(service.BotDeps{
		Transactor:   transactor,
		UserRepo:     userRepo,
		OrderRepo:    orderRepo,
		Catalog:      catalogSvc,
		Carts:        cartSvc,
		Checkout:     checkoutSvc,
		Transport:    tg,
		Events:       worker.NewPublisher(publishCh),
		Metrics:      m,
		Log:          log,
		HistoryLimit: cfg.Bot.OrderHistoryLimit,
	})
	guard := service.NewUpdateGuard(redisClient, cfg.Bot.UpdateDedupTTL)

	// Handlers
	webhookH := handler.NewWebhookHandler(botSvc, guard, log)
	healthH := handler.NewHealthHandler(
		handler.PostgresDependency(dbPool),
		handler.RedisDependency(redisClient),
		handler.RabbitMQDependency(amqpConn),
	)

	// Worker
	notifyWorker := worker.NewNotificationWorker(
		consumeCh, orderRepo, catalogSvc, tg, redisClient, cfg.Telegram.OperatorChatID, m, log,
	)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.POST("/telegram/webhook/:secret", middleware.WebhookSecret(cfg.Telegram.WebhookSecret), webhookH.Handle)

	if err := notifyWorker.Start(ctx); err != nil {
		log.Error("start notification worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	notifyWorker.Stop()
	cancel()
	log.Info("server stopped")
}
