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

	"github.com/pcforge/storefront/internal/auth"
	"github.com/pcforge/storefront/internal/cache"
	"github.com/pcforge/storefront/internal/cartrepo"
	"github.com/pcforge/storefront/internal/config"
	"github.com/pcforge/storefront/internal/consumer"
	storehttp "github.com/pcforge/storefront/internal/http"
	"github.com/pcforge/storefront/internal/localcart"
	"github.com/pcforge/storefront/internal/logger"
	"github.com/pcforge/storefront/internal/payment"
	"github.com/pcforge/storefront/internal/publisher"
	"github.com/pcforge/storefront/internal/repository"
	"github.com/pcforge/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	log.Info("storefront starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres: catalog, orders, outbox, users, builds
	creds := &repository.Credentials{
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.Name,
		MigrationsDirPath: cfg.DB.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	defer repo.Close()
	if err := repo.RunMigrations(creds); err != nil {
		fatal(log, "failed to run migrations", err)
	}
	log.Info("database migrations completed")

	// MongoDB: server carts
	mongoDB, err := cartrepo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		fatal(log, "failed to connect to MongoDB", err)
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
	carts := cartrepo.NewMongoRepository(mongoDB)
	if err := carts.CreateIndexes(ctx); err != nil {
		fatal(log, "failed to create cart indexes", err)
	}
	log.Info("connected to MongoDB", "uri", cfg.MongoURI)

	// Redis: cart cache, login codes, guest carts
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fatal(log, "redis connection failed", err)
	}
	log.Info("redis ping succeeded")

	var gateway payment.Gateway = &payment.FakeGateway{}
	if cfg.PaymentGateway == "razorpay" {
		gateway = payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, log)
	}
	log.Info("payment gateway configured", "gateway", cfg.PaymentGateway)

	catalogSvc := service.NewCatalogService(repo, log)
	cartSvc := service.NewCartService(carts, cache.NewRedisCache(redisClient), repo, log)
	checkoutSvc := service.NewCheckoutService(repo, repo, cartSvc, gateway,
		payment.NewVerifier(cfg.RazorpayKeySecret),
		service.CheckoutConfig{
			Currency:      cfg.Currency,
			GatewayKeyID:  cfg.RazorpayKeyID,
			PaymentExpiry: cfg.PaymentExpiry,
		}, log)
	buildSvc := service.NewBuildService(repo, repo, cartSvc, log)
	adminSvc := service.NewAdminService(repo, log)
	authSvc := service.NewAuthService(repo,
		auth.NewOTPStore(redisClient, cfg.OTPTTL),
		auth.LogSender{Log: log},
		auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL),
		service.DevLogin{Phone: cfg.DevLoginPhone, Code: cfg.DevLoginCode},
		log)
	adminAuth := auth.NewAdminAuth(auth.NewCookieStore(cfg.SessionKey, cfg.CookieSecure), cfg.AdminPasswordHash)

	pub, err := newPublisher(cfg, log)
	if err != nil {
		fatal(log, "failed to create event publisher", err)
	}
	defer pub.Close()
	poller := publisher.NewOutboxPoller(repo, pub, checkoutSvc, cfg.OutboxInterval, cfg.SweepInterval, log)
	go poller.Run(ctx)

	if cfg.EventsBackend == "kafka" {
		orders := consumer.NewOrderConsumer(cartSvc, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, log)
		defer orders.Close()
		go orders.Run(ctx)
	}

	otpLimiter := storehttp.NewRateLimiter(10 * time.Second)
	loginLimiter := storehttp.NewRateLimiter(2 * time.Second)
	go otpLimiter.Cleanup(ctx, time.Minute)
	go loginLimiter.Cleanup(ctx, time.Minute)

	router := storehttp.NewRouter(storehttp.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		CookieSecure:       cfg.CookieSecure,
		OTPLimiter:         otpLimiter,
		LoginLimiter:       loginLimiter,
	}, storehttp.Deps{
		Catalog:  catalogSvc,
		Carts:    cartSvc,
		Guests:   guestStores(redisClient, log),
		Checkout: checkoutSvc,
		Builds:   buildSvc,
		Admin:    adminSvc,
		Auth:     authSvc,
		Sessions: authSvc,
		AdminSes: adminAuth,
		Health: map[string]storehttp.HealthCheck{
			"postgres": repo.Ping,
			"mongodb":  func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) },
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("storefront listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down storefront...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("storefront stopped")
}

func newPublisher(cfg *config.Config, log *slog.Logger) (publisher.Publisher, error) {
	switch cfg.EventsBackend {
	case "kafka":
		log.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "amqp":
		log.Info("publishing events to rabbitmq", "exchange", cfg.AMQPExchange)
		return publisher.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		log.Warn("no event broker configured, events are only logged", "backend", cfg.EventsBackend)
		return publisher.LogPublisher{Log: log}, nil
	}
}

func guestStores(client redis.Cmdable, log *slog.Logger) storehttp.GuestStores {
	return func(guestID string) *localcart.Store {
		return localcart.NewStore(localcart.NewRedisBackend(client, guestID), log)
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
