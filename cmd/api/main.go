package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"slfs-backend/core/service"
	"slfs-backend/core/worker"
	"slfs-backend/infra/db"
	"slfs-backend/infra/externalapi"
	"slfs-backend/infra/redis"
	"slfs-backend/internal/broker"
	"slfs-backend/internal/cache"
	"slfs-backend/internal/config"
	"slfs-backend/internal/handler"
	"slfs-backend/internal/logger"
	"slfs-backend/internal/metrics"
	"slfs-backend/internal/server"
	"slfs-backend/internal/validation"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New("slfs-backend", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if missing := cfg.MissingGatewaySettings(); len(missing) > 0 {
		log.WithField("missing", missing).Warn("M-Pesa settings are incomplete, STK push requests will fail upstream")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	mongoClient, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoConnectTimeout)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	log.Info("connected to MongoDB")
	mongoDB := mongoClient.Database(cfg.MongoDatabase)

	paymentDeps := service.PaymentDeps{
		Gateway: newGateway(cfg, log),
		Amount:  cfg.MpesaAmount,
		Metrics: m,
		Log:     log.WithField("component", "payments"),
	}
	clearanceDeps := service.ClearanceDeps{
		Repository: db.NewClearanceRepository(mongoDB),
		Validator:  validation.New(),
		Metrics:    m,
		Log:        log.WithField("component", "clearance"),
	}
	if cfg.ClearanceVerifyLaptop {
		clearanceDeps.Checker = db.NewLaptopInventory(mongoDB)
	}

	var closers []func()

	if cfg.RedisEnabled() {
		rdb, err := redis.NewRedisClient(ctx, cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to Redis")
		}
		log.Info("connected to Redis")
		paymentDeps.Idempotency = cache.NewIdempotencyStore(rdb, cfg.IdempotencyTTL, cfg.IdempotencyPendingTTL())
		closers = append(closers, func() { _ = rdb.Close() })
	}

	if cfg.PostgresEnabled() {
		ledger, err := db.NewPostgresLedger(ctx, cfg.PostgresDSN, cfg.DBMaxConnections, log.WithField("component", "ledger"))
		if err != nil {
			log.WithError(err).Fatal("failed to connect to Postgres")
		}
		log.Info("connected to Postgres")
		paymentDeps.Ledger = ledger
		closers = append(closers, ledger.Close)
	}

	var dispatcher *worker.Dispatcher
	if cfg.NatsEnabled() {
		nc, err := broker.NewNATSConn(cfg.NatsURL, log.WithField("component", "nats"))
		if err != nil {
			log.WithError(err).Fatal("failed to connect to NATS")
		}
		dispatcher = worker.NewDispatcher(nc, cfg.EventBuffer, log.WithField("component", "events"))
		dispatcher.Start(cfg.EventWorkers)
		paymentDeps.Events = dispatcher
		clearanceDeps.Events = dispatcher
		closers = append(closers, func() { _ = nc.Drain() })
	}

	if cfg.STKPushJWTSecret == "" {
		log.Warn("STKPUSH_JWT_SECRET is not set, /api/stkpush accepts unauthenticated requests")
	}

	e := server.New(server.Deps{
		Payments:       service.NewPaymentService(paymentDeps),
		Clearance:      service.NewClearanceService(clearanceDeps),
		Metrics:        m,
		Log:            log,
		Modules:        handler.DefaultModules(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StaticDir:      cfg.StaticDir,
		STKPushSecret:  cfg.STKPushJWTSecret,
	})

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("server is running")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("could not start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	if dispatcher != nil {
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("event dispatcher did not drain")
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.WithError(err).Warn("mongo disconnect failed")
	}
}

func newGateway(cfg *config.Config, log *logrus.Entry) externalapi.Client {
	loc, err := time.LoadLocation(cfg.MpesaTimezone)
	if err != nil {
		loc = time.UTC
	}

	return externalapi.NewClient(externalapi.Credentials{
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackURL,
		BaseURL:        cfg.MpesaBaseURL,
	}, externalapi.Options{
		Timeout:          cfg.MpesaTimeout,
		Location:         loc,
		Amount:           cfg.MpesaAmount,
		AccountReference: cfg.MpesaAccountReference,
		TransactionDesc:  cfg.MpesaTransactionDesc,
		Logger:           log.WithField("component", "daraja"),
	})
}
