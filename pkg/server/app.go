package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "FinArb/internal/domain/repository"
	"FinArb/internal/service/sources"
	"FinArb/pkg/cache"
	pkgch "FinArb/pkg/clickhouse"
	"FinArb/pkg/config"
	xhttp "FinArb/pkg/http"
	applogger "FinArb/pkg/logger"
)

// App encapsulates the application lifecycle: stream feeds, HTTP server,
// and infrastructure clients.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	handler    xhttp.Handler
	streams    []*sources.StreamSource
	store      cache.Store
	audit      domrepo.AuditSink
	publisher  domrepo.ResultPublisher
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates an App with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	handler xhttp.Handler,
	streams []*sources.StreamSource,
	store cache.Store,
	audit domrepo.AuditSink,
	publisher domrepo.ResultPublisher,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		handler:   handler,
		streams:   streams,
		store:     store,
		audit:     audit,
		publisher: publisher,
		chClient:  chClient,
	}
}

// Run starts everything and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, s := range a.streams {
		go s.Run(ctx)
	}
	if len(a.streams) > 0 {
		a.logger.Info("stream sources started", applogger.Int("count", len(a.streams)))
	}

	a.httpServer = xhttp.NewServer(a.handler, a.logger,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// shutdown stops the server and closes infrastructure clients.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("audit close error", applogger.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
