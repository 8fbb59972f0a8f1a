package main

import (
	"os"

	"optify/internal/backend"
	"optify/internal/cli"
	applog "optify/internal/log"
	"optify/internal/services"
	"optify/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)
	logger.Info("Starting optify-worker")

	if backend.BackendType(cfg.DataBackend) == backend.MemoryBackend {
		logger.Error("The worker needs a shared backend, memory cannot be used")
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()
	ctx = applog.NewContext(ctx, logger)

	be := cli.InitBackend(ctx, logger, cfg, true)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err.Error())
		}
	}()

	// Snapshots written here reach API subscribers through their state watch.
	recalc := services.NewRecalcService(be.Store, nil, nil)
	w := worker.NewRecalcWorker(recalc, be.Queue)

	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped", applog.FieldError, err.Error())
		recalc.Wait()
		_ = be.Cleanup()
		os.Exit(1)
	}
	recalc.Wait()
	logger.Info("Worker shutdown complete")
}
