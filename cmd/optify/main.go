package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"optify/internal/cache"
	"optify/internal/cli"
	"optify/internal/config"
	"optify/internal/core"
	apphttp "optify/internal/http"
	applog "optify/internal/log"
	"optify/internal/report/google"
	"optify/internal/services"
	"optify/internal/state"
)

const (
	shutdownTimeout    = 30 * time.Second
	cacheSweepInterval = time.Minute
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()
	ctx = applog.NewContext(ctx, logger)

	be := cli.InitBackend(ctx, logger, cfg, false)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err.Error())
		}
	}()

	hub := state.NewHub(be.Store)

	var publisher services.Publisher
	if cfg.RecalcMode == config.RecalcAMQP && be.Queue != nil {
		publisher = be.Queue
	}
	recalc := services.NewRecalcService(be.Store, publisher, hub)
	defer recalc.Wait()

	summaries := cache.NewLRUCache[core.Bucket](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	caches := cache.NewManager(logger.Logger.With(applog.FieldComponent, applog.ComponentCache))
	caches.Register("summary", summaries)

	var reports *services.ReportService
	if cfg.GoogleSpreadsheetID != "" {
		writer, err := google.NewFromEnv(ctx, cfg.GoogleSpreadsheetID, cfg.ReportSheetName)
		if err != nil {
			logger.Warn("Google Sheets export disabled", applog.FieldError, err.Error())
		} else {
			reports = services.NewReportService(be.Store, recalc, writer)
			logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Transactions:      services.NewTransactionService(be.Store, recalc, summaries),
		Recalc:            recalc,
		Reports:           reports,
		States:            be.Store,
		Hub:               hub,
		Logger:            logger,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		caches.Run(gctx, cacheSweepInterval)
		return nil
	})
	g.Go(func() error {
		if err := hub.Watch(gctx, cfg.StateWatchInterval); !errors.Is(err, context.Canceled) {
			return fmt.Errorf("state watch: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting optify server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"recalc_mode", cfg.RecalcMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err.Error())
		recalc.Wait()
		_ = be.Cleanup()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
