package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	httphandler "github.com/ogurasousui/codex-account-service/internal/adapters/http/handler"
	"github.com/ogurasousui/codex-account-service/internal/adapters/notifier"
	"github.com/ogurasousui/codex-account-service/internal/adapters/notifier/redisstream"
	"github.com/ogurasousui/codex-account-service/internal/adapters/notifier/ses"
	"github.com/ogurasousui/codex-account-service/internal/adapters/repository/memory"
	"github.com/ogurasousui/codex-account-service/internal/adapters/repository/postgres"
	"github.com/ogurasousui/codex-account-service/internal/core/account"
	"github.com/ogurasousui/codex-account-service/internal/platform/config"
	pg "github.com/ogurasousui/codex-account-service/internal/platform/db/postgres"
	"github.com/ogurasousui/codex-account-service/internal/platform/logging"
	"github.com/ogurasousui/codex-account-service/internal/platform/metrics"
	"github.com/ogurasousui/codex-account-service/internal/platform/security"
	"github.com/ogurasousui/codex-account-service/internal/platform/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(os.Stdout, cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.SlogLogger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hasher, err := security.NewBcryptHasher(cfg.Security.BcryptCost)
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}
	tokens, err := security.NewTokenIssuer([]byte(cfg.Security.TokenSecret), cfg.Security.TokenTTL)
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}

	sender, closeNotifier, err := buildNotifier(ctx, cfg.Notifier, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	opts := []account.Option{
		account.WithLogger(logger.With("component", "account")),
		account.WithRecorder(m),
	}

	var repo account.Repository
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn(ctx, "using in-memory account store; data is lost on restart")
		repo = memory.NewAccountRepository()
	default:
		dbPool, err := pg.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("initialize database pool: %w", err)
		}
		defer dbPool.Close()

		repo = postgres.NewAccountRepository(dbPool)
		opts = append(opts, account.WithTransactionManager(pg.NewTransactionManager(dbPool)))
	}

	svc := account.NewService(repo, hasher, tokens, sender, opts...)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), httphandler.Observe(m, logger))
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	httphandler.NewAccountHandler(svc, hasher).Register(router)

	srv := server.New(server.Config{
		HTTPAddr:        cfg.Server.HTTPAddr,
		GRPCAddr:        cfg.Server.GRPCAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, logger)

	return srv.Run(ctx)
}

func buildNotifier(ctx context.Context, cfg config.NotifierConfig, logger logging.Logger) (account.Notifier, func(), error) {
	noop := func() {}

	switch cfg.Kind {
	case config.NotifierSES:
		n, err := ses.NewFromConfig(ctx, cfg)
		if err != nil {
			return nil, noop, fmt.Errorf("initialize ses notifier: %w", err)
		}
		return n, noop, nil
	case config.NotifierRedis:
		client, err := redisstream.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, fmt.Errorf("initialize redis notifier: %w", err)
		}
		return redisstream.New(client, cfg.Redis.Stream, cfg.VerifyURL), closer(client, logger), nil
	default:
		return notifier.NewLogNotifier(cfg.VerifyURL, logger), noop, nil
	}
}

func closer(c io.Closer, logger logging.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Warn(context.Background(), "failed to close notifier client", "error", err)
		}
	}
}
