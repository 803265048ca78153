package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/auth"
	catalogrepo "royalty-engine/internal/catalog/infrastructure/postgres"
	"royalty-engine/internal/config"
	"royalty-engine/internal/eventing"
	"royalty-engine/internal/eventing/eventbus"
	eventingrepo "royalty-engine/internal/eventing/infrastructure/postgres"
	"royalty-engine/internal/observability/metrics"
	"royalty-engine/internal/royalty/application"
	"royalty-engine/internal/royalty/application/events"
	royaltyrepo "royalty-engine/internal/royalty/infrastructure/postgres"
	"royalty-engine/internal/royalty/interfaces"
	"royalty-engine/internal/royalty/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.StatementReady{})
	registry.Register(events.RunCacheInvalidated{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	runRepo := royaltyrepo.NewRunRepository(db)
	statementRepo := royaltyrepo.NewStatementRepository(db)
	carryoverRepo := royaltyrepo.NewCarryoverRepository(db)
	runLock := royaltyrepo.NewRunLock(db)
	catalogReader := catalogrepo.NewCatalogReader(db)

	eventPublisher := interfaces.NewOutboxPublisher(publisher)
	clock := application.SystemClock{}

	calculationService, err := application.NewCalculationService(
		runRepo,
		carryoverRepo,
		catalogReader,
		catalogReader,
		catalogReader,
		catalogReader,
		runLock,
		eventPublisher,
		clock,
		cfg.LockLease(),
		cfg.TxTimeout(),
	)
	if err != nil {
		logger.Fatalf("calculation service error: %v", err)
	}
	validationService, err := application.NewValidationService(runRepo, statementRepo, catalogReader, clock, cfg.OutlierMultiplier)
	if err != nil {
		logger.Fatalf("validation service error: %v", err)
	}
	rollbackService, err := application.NewRollbackService(runRepo, statementRepo, runLock, auditRepo, eventPublisher, clock, cfg.LockLease(), cfg.MinRollbackReason)
	if err != nil {
		logger.Fatalf("rollback service error: %v", err)
	}
	runService, err := application.NewRunService(runRepo, statementRepo, validationService, rollbackService, runLock, auditRepo, eventPublisher, clock, cfg.LockLease())
	if err != nil {
		logger.Fatalf("run service error: %v", err)
	}
	statementService, err := application.NewStatementService(runRepo, statementRepo, auditRepo, clock)
	if err != nil {
		logger.Fatalf("statement service error: %v", err)
	}

	runHandler, err := interfaces.NewRunHandler(runService, calculationService, rollbackService, validationService)
	if err != nil {
		logger.Fatalf("run handler error: %v", err)
	}
	statementHandler, err := interfaces.NewStatementHandler(statementService)
	if err != nil {
		logger.Fatalf("statement handler error: %v", err)
	}

	if cfg.WebhookURL != "" {
		notify.RegisterSubscriber(baseBus, notify.NewWebhookNotifier(cfg.WebhookURL), processedStore, logger)
	}

	// Retry loop for outbox records whose inline dispatch failed.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := dispatcher.Dispatch(context.Background(), cfg.DispatchBatch); err != nil {
				logger.Printf("outbox dispatch error: %v", err)
			}
		}
	}()

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/runs", runHandler)
	mux.Handle("/api/v1/runs/", runHandler)
	mux.Handle("/api/v1/statements", statementHandler)
	mux.Handle("/api/v1/statements/", statementHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
