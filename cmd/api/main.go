package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/simonlevelai/askeve-platform/internal/api/router"
	"github.com/simonlevelai/askeve-platform/internal/compliance"
	appconfig "github.com/simonlevelai/askeve-platform/internal/config"
	"github.com/simonlevelai/askeve-platform/internal/content"
	"github.com/simonlevelai/askeve-platform/internal/escalation"
	"github.com/simonlevelai/askeve-platform/internal/flow"
	"github.com/simonlevelai/askeve-platform/internal/notify"
	"github.com/simonlevelai/askeve-platform/internal/safety"
	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting askeve-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Postgres is optional; without it events and audit records stay in
	// memory (development only).
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.Ping(); err != nil {
			logger.Error("failed to reach database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var eventStore escalation.EventStore
	var auditStore compliance.AuditStore
	if db != nil {
		eventStore = escalation.NewPostgresEventStore(db)
		auditStore = compliance.NewPostgresAuditStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		eventStore = escalation.NewMemoryEventStore()
		auditStore = compliance.NewMemoryAuditStore()
	}

	var stateStore flow.StateStore
	if cfg.RedisAddr != "" {
		opts := &goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to reach redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		stateStore = flow.NewRedisStateStore(client, cfg.ConversationTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, conversation state is in-memory")
		stateStore = flow.NewMemoryStateStore()
	}

	var notifier escalation.Notifier
	if cfg.NurseWebhookURL != "" {
		teams, err := notify.NewTeamsNotifier(notify.Config{
			WebhookURL:   cfg.NurseWebhookURL,
			DashboardURL: cfg.DashboardBaseURL,
			MaxAttempts:  cfg.NotifyMaxAttempts,
			RetryDelay:   cfg.NotifyRetryDelay,
			Logger:       logger,
		})
		if err != nil {
			logger.Error("failed to create Teams notifier", "error", err)
			os.Exit(1)
		}
		notifier = teams
	} else {
		logger.Warn("NURSE_WEBHOOK_URL not set, alerts go to the log only")
		notifier = notify.NewLogNotifier(logger)
	}

	dispatcher := escalation.NewAsyncDispatcher(notifier, eventStore, 64, logger.Component("dispatch"))
	dispatcher.Start(2)
	defer dispatcher.Stop()

	escalationService := escalation.NewService(escalation.ServiceConfig{
		Store:         eventStore,
		Notifier:      notifier,
		Dispatcher:    dispatcher,
		BusinessStart: cfg.BusinessHoursStart,
		BusinessEnd:   cfg.BusinessHoursEnd,
		Logger:        logger.Component("escalation"),
	})

	var searcher content.Searcher
	if cfg.ContentSearchURL != "" {
		s, err := content.NewHTTPSearcher(content.Config{
			BaseURL:       cfg.ContentSearchURL,
			TrustedDomain: cfg.TrustedContentDomain,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("failed to create content searcher", "error", err)
			os.Exit(1)
		}
		searcher = s
	} else {
		logger.Warn("CONTENT_SEARCH_URL not set, health information lookups will fail over to guidance")
		searcher = content.EmptySearcher{}
	}

	table := safety.DefaultTriggerTable()
	logger.Info("trigger table loaded",
		"version", table.Version(),
		"triggers", table.Len(),
	)

	engine := flow.NewEngine(flow.EngineConfig{
		Store:     stateStore,
		Analyzer:  safety.NewAnalyzer(table, cfg.AnalyzerSLA, logger),
		Escalator: escalationService,
		Searcher:  searcher,
		Auditor:   compliance.NewAuditor(auditStore, logger),
		Logger:    logger.Component("flow"),
	})

	r := router.New(&router.Config{
		Logger:            logger,
		FlowHandler:       flow.NewHandler(engine, logger),
		EscalationHandler: escalation.NewHandler(escalationService, logger),
		MetricsHandler:    promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
