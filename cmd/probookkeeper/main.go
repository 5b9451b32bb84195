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

	"github.com/hibiken/asynq"

	"github.com/probookkeeper/probookkeeper/internal/app"
	"github.com/probookkeeper/probookkeeper/internal/bills"
	"github.com/probookkeeper/probookkeeper/internal/invoicing"
	"github.com/probookkeeper/probookkeeper/internal/ledger/accounts"
	"github.com/probookkeeper/probookkeeper/internal/ledger/journals"
	"github.com/probookkeeper/probookkeeper/internal/observability"
	"github.com/probookkeeper/probookkeeper/internal/platform/cache"
	"github.com/probookkeeper/probookkeeper/internal/platform/db"
	"github.com/probookkeeper/probookkeeper/internal/quotes"
	"github.com/probookkeeper/probookkeeper/internal/reports/aging"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
	"github.com/probookkeeper/probookkeeper/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := internalShared.NewAuditLogger(pool)
	idempotency := internalShared.NewIdempotencyGuard(redisClient, cfg.IdempotencyTTL)
	documentLocks := internalShared.NewDocumentLock(redisClient, 10*time.Second)

	invoiceService := invoicing.NewService(invoicing.NewRepository(pool), auditLogger, idempotency)
	invoiceService.WithLocks(documentLocks)
	billService := bills.NewService(bills.NewRepository(pool), auditLogger, idempotency)
	billService.WithLocks(documentLocks)
	quoteService := quotes.NewService(quotes.NewRepository(pool), auditLogger)
	accountService := accounts.NewService(accounts.NewRepository(pool))
	journalService := journals.NewService(journals.NewRepository(pool), auditLogger)
	agingService := aging.NewService(logger, aging.NewInvoiceSource(pool), aging.NewBillSource(pool), redisClient)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		InvoiceHandler: invoicing.NewHandler(logger, invoiceService),
		BillHandler:    bills.NewHandler(logger, billService),
		QuoteHandler:   quotes.NewHandler(logger, quoteService),
		JournalHandler: journals.NewHandler(logger, journalService),
		AccountHandler: accounts.NewHandler(logger, accountService),
		ReportHandler:  aging.NewHandler(logger, agingService),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
